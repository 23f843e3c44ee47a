package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/store"
	"github.com/sadopc/dwell/internal/tracker"
)

type dashboardModel struct {
	store  *store.Store
	now    func() time.Time
	timer  timerModel
	width  int
	height int

	todayEarnings float64
	todaySummary  []store.DailySummary
	recentEvents  []store.DetentionEvent
	facilities    []store.Facility
	names         map[int64]string

	// Facility picker state
	picking      bool
	pickerCursor int

	// Check-in form; values are pointers so they survive value copies.
	formActive bool
	form       *huh.Form
	facility   store.Facility
	loadNumber *string
	eventType  *string
}

func newDashboardModel(t *tracker.Service) dashboardModel {
	load, typ := "", store.EventDelivery
	d := dashboardModel{
		store:      t.Store(),
		now:        t.Now,
		timer:      newTimerModel(t),
		names:      map[int64]string{},
		loadNumber: &load,
		eventType:  &typ,
	}
	d.timer.load()
	return d
}

func (d dashboardModel) Init() tea.Cmd {
	return d.loadData()
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
}

func (d dashboardModel) isRunning() bool                { return d.timer.running() }
func (d dashboardModel) timerState() billing.TimerState { return d.timer.state() }

type dashboardDataMsg struct {
	todayEarnings float64
	todaySummary  []store.DailySummary
	recentEvents  []store.DetentionEvent
	facilities    []store.Facility
}

func (d dashboardModel) loadData() tea.Cmd {
	return func() tea.Msg {
		now := d.now().UTC()
		earnings, _ := d.store.GetTodayEarnings(now)

		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.Add(24 * time.Hour)
		summary, _ := d.store.GetDailySummary(dayStart, dayEnd)

		events, _ := d.store.ListEvents(store.EventFilter{Limit: 5})
		facilities, _ := d.store.ListFacilities(false)

		return dashboardDataMsg{
			todayEarnings: earnings,
			todaySummary:  summary,
			recentEvents:  events,
			facilities:    facilities,
		}
	}
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if d.formActive && d.form != nil {
		return d.updateForm(msg)
	}

	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.todayEarnings = msg.todayEarnings
		d.todaySummary = msg.todaySummary
		d.recentEvents = msg.recentEvents
		d.facilities = msg.facilities
		for _, f := range msg.facilities {
			d.names[f.ID] = f.Name
		}
		return d, nil

	case tickMsg:
		d.timer.tick()
		return d, nil

	case tea.KeyMsg:
		if d.picking {
			return d.updatePicker(msg)
		}

		switch {
		case key.Matches(msg, keys.CheckIn):
			if d.timer.running() {
				return d, statusCmd("Already checked in at "+d.timer.facilityName(), true)
			}
			if len(d.facilities) == 0 {
				return d, statusCmd("No facilities yet. Press 2 to go to Facilities and add one.", true)
			}
			if len(d.facilities) == 1 {
				return d.showCheckInForm(d.facilities[0])
			}
			d.picking = true
			d.pickerCursor = 0
			return d, nil

		case key.Matches(msg, keys.CheckOut):
			return d.checkOut()
		}
	}
	return d, nil
}

func (d dashboardModel) updatePicker(msg tea.KeyMsg) (dashboardModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if d.pickerCursor > 0 {
			d.pickerCursor--
		}
	case key.Matches(msg, keys.Down):
		if d.pickerCursor < len(d.facilities)-1 {
			d.pickerCursor++
		}
	case key.Matches(msg, keys.Enter):
		d.picking = false
		return d.showCheckInForm(d.facilities[d.pickerCursor])
	case key.Matches(msg, keys.Back):
		d.picking = false
	}
	return d, nil
}

func (d dashboardModel) showCheckInForm(f store.Facility) (dashboardModel, tea.Cmd) {
	d.facility = f
	*d.loadNumber = ""
	*d.eventType = store.EventDelivery

	d.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Load / PO number").Value(d.loadNumber),
			huh.NewSelect[string]().Title("Stop type").
				Options(
					huh.NewOption("Delivery", store.EventDelivery),
					huh.NewOption("Pickup", store.EventPickup),
				).Value(d.eventType),
		),
	).WithShowHelp(true).WithShowErrors(true)

	d.formActive = true
	return d, d.form.Init()
}

func (d dashboardModel) updateForm(msg tea.Msg) (dashboardModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			d.formActive = false
			d.form = nil
			return d, nil
		}
	}

	form, cmd := d.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		d.form = f
	}

	if d.form.State == huh.StateCompleted {
		d.formActive = false
		d.form = nil
		return d.checkIn(d.facility.ID, *d.loadNumber, *d.eventType)
	}
	return d, cmd
}

func (d dashboardModel) checkIn(facilityID int64, loadNumber, eventType string) (dashboardModel, tea.Cmd) {
	e, err := d.timer.checkIn(facilityID, loadNumber, eventType)
	if err != nil {
		return d, errorCmd(err)
	}
	return d, tea.Batch(
		d.loadData(),
		func() tea.Msg { return checkedInMsg{event: e} },
	)
}

func (d dashboardModel) checkOut() (dashboardModel, tea.Cmd) {
	e, err := d.timer.checkOut()
	if err != nil {
		return d, errorCmd(err)
	}
	if e == nil {
		return d, nil
	}
	return d, tea.Batch(
		d.loadData(),
		func() tea.Msg { return checkedOutMsg{event: e} },
	)
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}

	contentWidth := d.width - 4

	if d.formActive && d.form != nil {
		title := titleStyle.Render("Check in at " + d.facility.Name)
		return activePanelStyle.Width(contentWidth).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", d.form.View()),
		)
	}

	timerPanel := d.renderTimerPanel(contentWidth)
	summaryPanel := d.renderSummaryPanel(contentWidth)

	var bottomPanel string
	if d.picking {
		bottomPanel = d.renderFacilityPicker(contentWidth)
	} else {
		bottomPanel = d.renderRecentPanel(contentWidth)
	}

	return lipgloss.JoinVertical(lipgloss.Left, timerPanel, summaryPanel, bottomPanel)
}

func (d dashboardModel) renderTimerPanel(w int) string {
	if !d.timer.running() {
		content := lipgloss.JoinVertical(lipgloss.Center,
			timerStyle.Width(w-6).Render("00:00:00"),
			mutedStyle.Render("■  NOT CHECKED IN"),
			mutedStyle.Render("Press s to check in"),
		)
		return panelStyle.Width(w).Render(content)
	}

	st := d.timer.state()
	e := d.timer.event()

	var clock, indicator, detail string
	if st.IsDetentionActive {
		clock = timerDetentionStyle.Width(w - 6).Render(billing.FormatTime(st.ElapsedSeconds))
		indicator = errorStyle.Render("●  DETENTION")
		detail = fmt.Sprintf("%s  %s",
			mutedStyle.Render("detention "+billing.FormatTime(st.DetentionSeconds)),
			earningsStyle.Render(billing.FormatCurrency(st.CurrentEarnings)),
		)
	} else {
		clock = timerGraceStyle.Width(w - 6).Render(billing.FormatTime(st.ElapsedSeconds))
		indicator = successStyle.Render("●  FREE TIME")
		remaining := billing.FormatTime(st.GraceRemainingSeconds())
		if st.GraceRemainingSeconds() < int64(tracker.GraceWarningLead.Seconds()) {
			detail = warningStyle.Render("grace ends in " + remaining)
		} else {
			detail = mutedStyle.Render("grace ends in " + remaining)
		}
	}

	where := highlightStyle.Render(d.timer.facilityName())
	if e.LoadNumber != "" {
		where += mutedStyle.Render(" / load " + e.LoadNumber)
	}
	terms := mutedStyle.Render(fmt.Sprintf("%s free, %s/h",
		billing.FormatMinutes(int64(e.GracePeriodMinutes)), billing.FormatCurrency(e.HourlyRate)))

	content := lipgloss.JoinVertical(lipgloss.Center, clock, indicator, detail, where, terms)
	return activePanelStyle.Width(w).Render(content)
}

func (d dashboardModel) renderSummaryPanel(w int) string {
	title := titleStyle.Render("Today")
	total := earningsStyle.Render(billing.FormatCurrency(d.todayEarnings))
	header := fmt.Sprintf("%s  %s", title, total)

	if len(d.todaySummary) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			header,
			mutedStyle.Render("No stops today"),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, header)
	for _, s := range d.todaySummary {
		colorDot := lipgloss.NewStyle().Foreground(facilityColor(s.FacilityID)).Render("●")
		row := fmt.Sprintf("  %s %-22s dwell %s  detention %-8s %s  (%d stops)",
			colorDot,
			s.FacilityName,
			billing.FormatTime(s.DwellSeconds),
			billing.FormatMinutes(s.DetentionMinutes),
			billing.FormatCurrency(s.Earnings),
			s.EventCount,
		)
		rows = append(rows, row)
	}

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderRecentPanel(w int) string {
	title := titleStyle.Render("Recent Stops")
	if len(d.recentEvents) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("No stops yet"),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	for _, e := range d.recentEvents {
		name, ok := d.names[e.FacilityID]
		if !ok {
			name = "?"
		}
		arrived := e.ArrivalTime.Local().Format("Jan 02 15:04")

		status := "✓"
		detail := fmt.Sprintf("%s  %s", billing.FormatTime(e.DwellSeconds()), billing.FormatCurrency(e.TotalAmount))
		switch e.Status {
		case store.StatusActive:
			status = "●"
			detail = "on site"
		case store.StatusInvoiced:
			status = "$"
		case store.StatusPaid:
			status = "✓$"
		}
		rows = append(rows, fmt.Sprintf("  %-2s %s  %-22s %s", status, arrived, name, detail))
	}

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderFacilityPicker(w int) string {
	title := titleStyle.Render("Select Facility")

	var rows []string
	rows = append(rows, title)
	for i, f := range d.facilities {
		colorDot := lipgloss.NewStyle().Foreground(facilityColor(f.ID)).Render("●")
		cursor := "  "
		style := normalItemStyle
		if i == d.pickerCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		label := f.Name
		if f.City != "" {
			label += ", " + f.City
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%s %s", cursor, colorDot, label)))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: select  esc: cancel"))

	return activePanelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
