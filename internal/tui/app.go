package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/export"
	"github.com/sadopc/dwell/internal/invoice"
	"github.com/sadopc/dwell/internal/store"
	"github.com/sadopc/dwell/internal/tracker"
)

// chromeHeight is the space taken by the tab bar and the help footer.
const chromeHeight = 4

type exportFormat struct {
	label string
	ext   string
	write func([]store.DetentionEvent, map[int64]*store.Facility, string) error
}

var exportFormats = []exportFormat{
	{label: "CSV", ext: "csv", write: export.ToCSV},
	{label: "JSON", ext: "json", write: export.ToJSON},
}

// App is the root Bubble Tea model. It owns the tab bar, the footer and
// the export overlay; everything else is delegated to the active view.
type App struct {
	store     *store.Store
	tracker   *tracker.Service
	exportDir string
	width     int
	height    int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	dashboard  dashboardModel
	facilities facilitiesModel
	reports    reportsModel
	invoices   invoicesModel
	settings   settingsModel

	help   help.Model
	status string
}

func NewApp(t *tracker.Service, inv *invoice.Service) App {
	s := t.Store()
	home, _ := os.UserHomeDir()

	return App{
		store:      s,
		tracker:    t,
		exportDir:  home,
		activeView: viewDashboard,
		dashboard:  newDashboardModel(t),
		facilities: newFacilitiesModel(s),
		reports:    newReportsModel(s, t.Now),
		invoices:   newInvoicesModel(inv, s, t.Now),
		settings:   newSettingsModel(s),
		help:       help.New(),
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.dashboard.Init(), everySecond())
}

// everySecond schedules the clock that drives the live timer.
func everySecond() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}
		if handled, cmd := a.handleGlobalKey(msg); handled {
			return a, cmd
		}

	case tickMsg:
		var cmd tea.Cmd
		a.dashboard, cmd = a.dashboard.update(msg)
		return a, tea.Batch(everySecond(), cmd)

	case statusMsg:
		a.status = msg.text
		return a, nil

	case checkedInMsg:
		a.status = "Checked in at " + a.dashboard.timer.facilityName()
		return a, nil

	case checkedOutMsg:
		a.status = checkoutStatus(msg.event)
		return a, nil

	case exportDoneMsg:
		a.exportPicking = false
		a.status = "Exported to " + msg.path
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a *App) resize(w, h int) {
	a.width, a.height = w, h
	a.help.Width = w
	ch := max(h-chromeHeight, 1)
	a.dashboard.setSize(w, ch)
	a.facilities.setSize(w, ch)
	a.reports.setSize(w, ch)
	a.invoices.setSize(w, ch)
	a.settings.setSize(w, ch)
}

// handleGlobalKey applies the keys that work from every view. It reports
// false when the key belongs to the active view.
func (a *App) handleGlobalKey(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return true, tea.Quit
	case key.Matches(msg, keys.Help):
		a.showHelp = !a.showHelp
		a.help.ShowAll = a.showHelp
		return true, nil
	case key.Matches(msg, keys.Export):
		a.exportPicking, a.exportCursor = true, 0
		return true, nil
	case key.Matches(msg, keys.Tab):
		return true, a.switchTo((a.activeView + 1) % viewState(len(viewNames)))
	}
	for i, b := range []key.Binding{keys.Tab1, keys.Tab2, keys.Tab3, keys.Tab4, keys.Tab5} {
		if key.Matches(msg, b) {
			return true, a.switchTo(viewState(i))
		}
	}
	return false, nil
}

// switchTo activates v and reloads its data.
func (a *App) switchTo(v viewState) tea.Cmd {
	a.activeView = v
	return a.refreshCurrentView()
}

func checkoutStatus(e *store.DetentionEvent) string {
	if e == nil {
		return "Checked out"
	}
	return fmt.Sprintf("Checked out: %s detention, %s",
		billing.FormatMinutes(e.DetentionMinutes), billing.FormatCurrency(e.TotalAmount))
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewDashboard:
		a.dashboard, cmd = a.dashboard.update(msg)
	case viewFacilities:
		a.facilities, cmd = a.facilities.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewInvoices:
		a.invoices, cmd = a.invoices.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

// isFormActive reports whether the active view is capturing keystrokes.
func (a App) isFormActive() bool {
	switch a.activeView {
	case viewDashboard:
		return a.dashboard.formActive || a.dashboard.picking
	case viewFacilities:
		return a.facilities.formActive
	case viewInvoices:
		return a.invoices.formActive
	case viewSettings:
		return a.settings.formActive
	default:
		return false
	}
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewFacilities:
		return a.facilities.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewInvoices:
		return a.invoices.refresh()
	case viewSettings:
		return a.settings.refresh()
	default:
		return a.dashboard.loadData()
	}
}

func (a App) activeContent() string {
	switch a.activeView {
	case viewFacilities:
		return a.facilities.view()
	case viewReports:
		return a.reports.view()
	case viewInvoices:
		return a.invoices.view()
	case viewSettings:
		return a.settings.view()
	default:
		return a.dashboard.view()
	}
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header, footer := a.renderHeader(), a.renderFooter()
	body := a.activeContent()
	if a.exportPicking {
		body = a.renderExportPicker()
	}

	bodyHeight := max(a.height-lipgloss.Height(header)-lipgloss.Height(footer), 1)
	body = lipgloss.NewStyle().Width(a.width).Height(bodyHeight).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// spread places left and right on one line, pushed apart to fill width.
func spread(width, margin int, left, right string) string {
	gap := max(width-lipgloss.Width(left)-lipgloss.Width(right)-margin, 1)
	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, lipgloss.NewStyle().Width(gap).Render(""), right)
}

func (a App) renderHeader() string {
	tabs := make([]string, len(viewNames))
	for i, name := range viewNames {
		style := inactiveTabStyle
		if viewState(i) == a.activeView {
			style = activeTabStyle
		}
		tabs[i] = style.Render(name)
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("dwell")
	return headerStyle.Render(spread(a.width, 4, title, lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)))
}

func (a App) renderFooter() string {
	right := a.timerBadge()
	if a.status != "" {
		right += mutedStyle.Render(" " + a.status)
	}
	return spread(a.width, 2, footerStyle.Render(a.help.View(keys)), right)
}

// timerBadge shows the running stop: elapsed time in grace, elapsed time
// and earnings once detention is billing.
func (a App) timerBadge() string {
	if !a.dashboard.isRunning() {
		return ""
	}
	st := a.dashboard.timerState()
	elapsed := " ● " + billing.FormatTime(st.ElapsedSeconds)
	if st.IsDetentionActive {
		return timerDetentionStyle.Render(elapsed + " " + billing.FormatCurrency(st.CurrentEarnings))
	}
	return timerGraceStyle.Render(elapsed)
}

func (a App) renderExportPicker() string {
	rows := []string{titleStyle.Render("Export Format"), ""}
	for i, f := range exportFormats {
		if i == a.exportCursor {
			rows = append(rows, selectedItemStyle.Render("> "+f.label))
		} else {
			rows = append(rows, normalItemStyle.Render("  "+f.label))
		}
	}
	rows = append(rows, "", mutedStyle.Render("  enter: export  esc: cancel"))
	return activePanelStyle.Width(a.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		a.exportCursor = max(a.exportCursor-1, 0)
	case key.Matches(msg, keys.Down):
		a.exportCursor = min(a.exportCursor+1, len(exportFormats)-1)
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

// doExport writes every event in exportFormats[format] to the export
// directory, named after the tracker's current day.
func (a App) doExport(format int) tea.Cmd {
	f := exportFormats[format]
	return func() tea.Msg {
		events, err := a.store.ListEvents(store.EventFilter{})
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		all, err := a.store.ListFacilities(true)
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Export error: %v", err), isError: true}
		}
		facilities := make(map[int64]*store.Facility, len(all))
		for i := range all {
			facilities[all[i].ID] = &all[i]
		}

		name := fmt.Sprintf("dwell-export-%s.%s", a.tracker.Now().Format("2006-01-02"), f.ext)
		path := filepath.Join(a.exportDir, name)
		if err := f.write(events, facilities, path); err != nil {
			return statusMsg{text: fmt.Sprintf("%s export error: %v", f.label, err), isError: true}
		}
		return exportDoneMsg{path: path}
	}
}
