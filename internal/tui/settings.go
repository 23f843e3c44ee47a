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

type settingsModel struct {
	store  *store.Store
	width  int
	height int

	settings   []store.Setting
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	gracePeriod  *string
	hourlyRate   *string
	dueDays      *string
	companyName  *string
	companyEmail *string
	driverName   *string
	truckNumber  *string
}

func newSettingsModel(s *store.Store) settingsModel {
	gp, hr, dd := "", "", ""
	cn, ce, dn, tn := "", "", "", ""
	return settingsModel{
		store:        s,
		gracePeriod:  &gp,
		hourlyRate:   &hr,
		dueDays:      &dd,
		companyName:  &cn,
		companyEmail: &ce,
		driverName:   &dn,
		truckNumber:  &tn,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings []store.Setting
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		settings, _ := s.store.GetAllSettings()
		return settingsDataMsg{settings: settings}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.settings = msg.settings
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.New):
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	terms := s.store.DefaultTerms()
	*s.gracePeriod = strconv.Itoa(terms.GracePeriodMinutes)
	*s.hourlyRate = strconv.FormatFloat(terms.HourlyRate, 'f', -1, 64)
	*s.dueDays = strconv.Itoa(s.store.InvoiceDueDays())
	*s.companyName = s.store.SettingOr(store.SettingCompanyName, "")
	*s.companyEmail = s.store.SettingOr(store.SettingCompanyEmail, "")
	*s.driverName = s.store.SettingOr(store.SettingDriverName, "")
	*s.truckNumber = s.store.SettingOr(store.SettingTruckNumber, "")

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Free time (min)").Value(s.gracePeriod).Validate(wholeMinutes),
			huh.NewInput().Title("Hourly rate").Value(s.hourlyRate).Validate(validRate),
			huh.NewInput().Title("Invoice due (days)").Value(s.dueDays).Validate(wholeMinutes),
		).Title("Default terms"),
		huh.NewGroup(
			huh.NewInput().Title("Company name").Value(s.companyName),
			huh.NewInput().Title("Company email").Value(s.companyEmail),
			huh.NewInput().Title("Driver").Value(s.driverName),
			huh.NewInput().Title("Truck number").Value(s.truckNumber),
		).Title("Invoice header"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		if err := s.saveSettings(); err != nil {
			return s, tea.Batch(s.refresh(), errorCmd(err))
		}
		return s, tea.Batch(s.refresh(), statusCmd("Settings saved", false))
	}

	return s, cmd
}

func (s settingsModel) saveSettings() error {
	grace, err := strconv.Atoi(strings.TrimSpace(*s.gracePeriod))
	if err != nil {
		return fmt.Errorf("free time: %w", err)
	}
	hourly, err := strconv.ParseFloat(strings.TrimSpace(*s.hourlyRate), 64)
	if err != nil {
		return fmt.Errorf("hourly rate: %w", err)
	}
	if err := s.store.SetDefaultTerms(billing.Terms{GracePeriodMinutes: grace, HourlyRate: hourly}); err != nil {
		return err
	}

	values := map[string]string{
		store.SettingInvoiceDueDays: strings.TrimSpace(*s.dueDays),
		store.SettingCompanyName:    strings.TrimSpace(*s.companyName),
		store.SettingCompanyEmail:   strings.TrimSpace(*s.companyEmail),
		store.SettingDriverName:     strings.TrimSpace(*s.driverName),
		store.SettingTruckNumber:    strings.TrimSpace(*s.truckNumber),
	}
	for k, v := range values {
		if err := s.store.SetSetting(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s settingsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Settings")
		formView := s.form.View()
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", formView),
		)
	}

	title := titleStyle.Render("Settings")
	hint := mutedStyle.Render("Press enter to edit settings")

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")

	for _, setting := range s.settings {
		label := lipgloss.NewStyle().Width(24).Render(setting.Key)
		value := highlightStyle.Render(formatSettingValue(setting.Key, setting.Value))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}

	rows = append(rows, "")
	rows = append(rows, hint)

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatSettingValue(k, v string) string {
	switch k {
	case store.SettingGracePeriod:
		if m, err := strconv.ParseInt(v, 10, 64); err == nil {
			return billing.FormatMinutes(m)
		}
	case store.SettingHourlyRate:
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			return billing.FormatCurrency(r) + "/h"
		}
	case store.SettingInvoiceDueDays:
		return v + " days"
	}
	if v == "" {
		return "-"
	}
	return v
}

func wholeMinutes(s string) error {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err != nil || n < 0 {
		return fmt.Errorf("a whole number, 0 or more")
	}
	return nil
}

func validRate(s string) error {
	if r, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil || r < 0 {
		return fmt.Errorf("a rate of 0 or more")
	}
	return nil
}
