package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/store"
)

type facilitiesModel struct {
	store  *store.Store
	width  int
	height int

	facilities   []store.Facility
	brokers      []store.Broker
	defaults     billing.Terms
	cursor       int
	brokerCursor int
	viewBrokers  bool
	showArchived bool

	formActive bool
	form       *huh.Form
	formType   string // "facility", "edit_facility", "broker"
	editingID  int64

	// Form field pointers (survive value copies)
	formName  *string
	formCity  *string
	formState *string
	formGrace *string
	formRate  *string
	formEmail *string
	formPhone *string
}

func newFacilitiesModel(s *store.Store) facilitiesModel {
	name, city, state, grace, rate, email, phone := "", "", "", "", "", "", ""
	return facilitiesModel{
		store:     s,
		formName:  &name,
		formCity:  &city,
		formState: &state,
		formGrace: &grace,
		formRate:  &rate,
		formEmail: &email,
		formPhone: &phone,
	}
}

func (p *facilitiesModel) setSize(w, h int) {
	p.width = w
	p.height = h
}

type facilitiesDataMsg struct {
	facilities []store.Facility
	brokers    []store.Broker
	defaults   billing.Terms
}

func (p facilitiesModel) refresh() tea.Cmd {
	return func() tea.Msg {
		facilities, _ := p.store.ListFacilities(p.showArchived)
		brokers, _ := p.store.ListBrokers(false)
		return facilitiesDataMsg{facilities: facilities, brokers: brokers, defaults: p.store.DefaultTerms()}
	}
}

func (p facilitiesModel) update(msg tea.Msg) (facilitiesModel, tea.Cmd) {
	if p.formActive && p.form != nil {
		return p.updateForm(msg)
	}

	switch msg := msg.(type) {
	case facilitiesDataMsg:
		p.facilities = msg.facilities
		p.brokers = msg.brokers
		p.defaults = msg.defaults
		if p.cursor >= len(p.facilities) {
			p.cursor = max(0, len(p.facilities)-1)
		}
		if p.brokerCursor >= len(p.brokers) {
			p.brokerCursor = max(0, len(p.brokers)-1)
		}
		return p, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Brokers) {
			p.viewBrokers = !p.viewBrokers
			return p, nil
		}
		if p.viewBrokers {
			return p.updateBrokerList(msg)
		}
		return p.updateFacilityList(msg)
	}
	return p, nil
}

func (p facilitiesModel) updateFacilityList(msg tea.KeyMsg) (facilitiesModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, keys.Down):
		if p.cursor < len(p.facilities)-1 {
			p.cursor++
		}
	case key.Matches(msg, keys.Enter):
		if len(p.facilities) > 0 {
			return p.showFacilityForm(&p.facilities[p.cursor])
		}
	case key.Matches(msg, keys.New):
		return p.showFacilityForm(nil)
	case key.Matches(msg, keys.Delete):
		if len(p.facilities) > 0 {
			f := p.facilities[p.cursor]
			if err := p.store.ArchiveFacility(f.ID); err != nil {
				return p, errorCmd(err)
			}
			return p, tea.Batch(p.refresh(), statusCmd("Archived "+f.Name, false))
		}
	case key.Matches(msg, keys.Left), key.Matches(msg, keys.Right):
		p.showArchived = !p.showArchived
		return p, p.refresh()
	}
	return p, nil
}

func (p facilitiesModel) updateBrokerList(msg tea.KeyMsg) (facilitiesModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		p.viewBrokers = false
	case key.Matches(msg, keys.Up):
		if p.brokerCursor > 0 {
			p.brokerCursor--
		}
	case key.Matches(msg, keys.Down):
		if p.brokerCursor < len(p.brokers)-1 {
			p.brokerCursor++
		}
	case key.Matches(msg, keys.New):
		return p.showBrokerForm()
	case key.Matches(msg, keys.Delete):
		if len(p.brokers) > 0 {
			b := p.brokers[p.brokerCursor]
			if err := p.store.ArchiveBroker(b.ID); err != nil {
				return p, errorCmd(err)
			}
			return p, p.refresh()
		}
	}
	return p, nil
}

// showFacilityForm opens the create form, or the edit form when f is set.
// Blank grace and rate fields mean the default terms apply.
func (p facilitiesModel) showFacilityForm(f *store.Facility) (facilitiesModel, tea.Cmd) {
	*p.formName, *p.formCity, *p.formState, *p.formGrace, *p.formRate = "", "", "", "", ""
	p.formType = "facility"
	if f != nil {
		p.formType = "edit_facility"
		p.editingID = f.ID
		*p.formName = f.Name
		*p.formCity = f.City
		*p.formState = f.State
		if f.GracePeriodMinutes != nil {
			*p.formGrace = strconv.Itoa(*f.GracePeriodMinutes)
		}
		if f.HourlyRate != nil {
			*p.formRate = strconv.FormatFloat(*f.HourlyRate, 'f', -1, 64)
		}
	}

	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Facility Name").Value(p.formName).Validate(required),
			huh.NewInput().Title("City").Value(p.formCity),
			huh.NewInput().Title("State").Value(p.formState).CharLimit(2),
			huh.NewInput().Title("Free time (min)").
				Description(fmt.Sprintf("blank for the default, %d", p.defaults.GracePeriodMinutes)).
				Value(p.formGrace).Validate(optionalMinutes),
			huh.NewInput().Title("Hourly rate").
				Description("blank for the default, "+billing.FormatCurrency(p.defaults.HourlyRate)).
				Value(p.formRate).Validate(optionalRate),
		),
	).WithShowHelp(true).WithShowErrors(true)

	p.formActive = true
	return p, p.form.Init()
}

func (p facilitiesModel) showBrokerForm() (facilitiesModel, tea.Cmd) {
	*p.formName, *p.formEmail, *p.formPhone = "", "", ""
	p.formType = "broker"

	p.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Broker Name").Value(p.formName).Validate(required),
			huh.NewInput().Title("Billing email").Value(p.formEmail),
			huh.NewInput().Title("Phone").Value(p.formPhone),
		),
	).WithShowHelp(true).WithShowErrors(true)

	p.formActive = true
	return p, p.form.Init()
}

func (p facilitiesModel) updateForm(msg tea.Msg) (facilitiesModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			p.formActive = false
			p.form = nil
			return p, nil
		}
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	if p.form.State == huh.StateCompleted {
		p.formActive = false
		if err := p.save(); err != nil {
			return p, tea.Batch(p.refresh(), errorCmd(err))
		}
		return p, p.refresh()
	}

	return p, cmd
}

func (p facilitiesModel) save() error {
	name := strings.TrimSpace(*p.formName)
	switch p.formType {
	case "broker":
		_, err := p.store.CreateBroker(name, strings.TrimSpace(*p.formEmail), strings.TrimSpace(*p.formPhone))
		return err
	}

	in := store.FacilityInput{
		Name:  name,
		City:  strings.TrimSpace(*p.formCity),
		State: strings.ToUpper(strings.TrimSpace(*p.formState)),
	}
	if g, err := strconv.Atoi(strings.TrimSpace(*p.formGrace)); err == nil {
		in.GracePeriodMinutes = &g
	}
	if r, err := strconv.ParseFloat(strings.TrimSpace(*p.formRate), 64); err == nil {
		in.HourlyRate = &r
	}

	if p.formType == "edit_facility" {
		return p.store.UpdateFacility(p.editingID, in)
	}
	_, err := p.store.CreateFacility(in)
	return err
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func optionalMinutes(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return wholeMinutes(s)
}

func optionalRate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return validRate(s)
}

func (p facilitiesModel) view() string {
	if p.formActive && p.form != nil {
		var title string
		switch p.formType {
		case "edit_facility":
			title = titleStyle.Render("Edit Facility")
		case "broker":
			title = titleStyle.Render("New Broker")
		default:
			title = titleStyle.Render("New Facility")
		}
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", p.form.View())
		return panelStyle.Width(p.width - 4).Render(content)
	}

	if p.viewBrokers {
		return p.renderBrokerList()
	}
	return p.renderFacilityList()
}

func (p facilitiesModel) renderFacilityList() string {
	w := p.width - 4
	title := titleStyle.Render("Facilities")
	if p.showArchived {
		title += mutedStyle.Render("  (including archived)")
	}

	if len(p.facilities) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No facilities yet. Press n to add one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	header := mutedStyle.Render(fmt.Sprintf("  %-3s %-26s %-16s %-10s %-10s", "", "Name", "Location", "Free time", "Rate"))
	rows = append(rows, header)

	for i, f := range p.facilities {
		colorDot := lipgloss.NewStyle().Foreground(facilityColor(f.ID)).Render("●")
		cursor := "  "
		style := normalItemStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		terms := f.Terms(p.defaults)
		grace := billing.FormatMinutes(int64(terms.GracePeriodMinutes))
		rate := billing.FormatCurrency(terms.HourlyRate)
		if f.GracePeriodMinutes == nil {
			grace += "*"
		}
		if f.HourlyRate == nil {
			rate += "*"
		}
		location := strings.TrimSuffix(strings.Join([]string{f.City, f.State}, ", "), ", ")
		row := style.Render(fmt.Sprintf("%s%s %-26s %-16s %-10s %-10s", cursor, colorDot, f.Name, location, grace, rate))
		if f.Archived {
			row += mutedStyle.Render(" archived")
		}
		rows = append(rows, row)
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  * default terms"))
	rows = append(rows, mutedStyle.Render("  n: new  enter: edit  d: archive  ←/→: archived  b: brokers"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (p facilitiesModel) renderBrokerList() string {
	w := p.width - 4
	title := titleStyle.Render("Brokers")

	if len(p.brokers) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			mutedStyle.Render("No brokers. Press n to add one."),
		)
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	for i, b := range p.brokers {
		cursor := "  "
		style := normalItemStyle
		if i == p.brokerCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		contact := ""
		if b.Email != "" {
			contact = mutedStyle.Render(" <" + b.Email + ">")
		}
		rows = append(rows, style.Render(cursor+b.Name)+contact)
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  n: new broker  d: archive  esc/b: facilities"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
