package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/invoice"
	"github.com/sadopc/dwell/internal/store"
)

type invoicePane int

const (
	paneUnbilled invoicePane = iota
	paneInvoices
)

type invoicesModel struct {
	service *invoice.Service
	store   *store.Store
	now     func() time.Time
	width   int
	height  int

	pane      invoicePane
	events    []store.DetentionEvent
	selected  map[int64]bool
	invoices  []store.Invoice
	brokers   []store.Broker
	names     map[int64]string
	cursor    int
	invCursor int

	formActive bool
	form       *huh.Form

	// Form field pointers (survive value copies)
	brokerID  *int64
	recipient *string
}

func newInvoicesModel(svc *invoice.Service, s *store.Store, now func() time.Time) invoicesModel {
	var broker int64
	recipient := ""
	return invoicesModel{
		service:   svc,
		store:     s,
		now:       now,
		selected:  map[int64]bool{},
		names:     map[int64]string{},
		brokerID:  &broker,
		recipient: &recipient,
	}
}

func (m *invoicesModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type invoicesDataMsg struct {
	events     []store.DetentionEvent
	invoices   []store.Invoice
	brokers    []store.Broker
	facilities []store.Facility
	status     *statusMsg
}

func (m invoicesModel) refresh() tea.Cmd {
	return func() tea.Msg {
		events, _ := m.store.ListEvents(store.EventFilter{Status: store.StatusCompleted, Uninvoiced: true})
		invoices, _ := m.store.ListInvoices("")
		brokers, _ := m.store.ListBrokers(false)
		facilities, _ := m.store.ListFacilities(true)
		return invoicesDataMsg{events: events, invoices: invoices, brokers: brokers, facilities: facilities}
	}
}

func (m invoicesModel) update(msg tea.Msg) (invoicesModel, tea.Cmd) {
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case invoicesDataMsg:
		var cmd tea.Cmd
		if msg.status != nil {
			cmd = statusCmd(msg.status.text, msg.status.isError)
		}
		m.events = msg.events
		m.invoices = msg.invoices
		m.brokers = msg.brokers
		for _, f := range msg.facilities {
			m.names[f.ID] = f.Name
		}
		// Drop selections for events that were billed elsewhere.
		live := make(map[int64]bool, len(m.events))
		for _, e := range m.events {
			if m.selected[e.ID] {
				live[e.ID] = true
			}
		}
		m.selected = live
		if m.cursor >= len(m.events) {
			m.cursor = max(0, len(m.events)-1)
		}
		if m.invCursor >= len(m.invoices) {
			m.invCursor = max(0, len(m.invoices)-1)
		}
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left), key.Matches(msg, keys.Right):
			if m.pane == paneUnbilled {
				m.pane = paneInvoices
			} else {
				m.pane = paneUnbilled
			}
			return m, nil
		}
		if m.pane == paneInvoices {
			return m.updateInvoiceList(msg)
		}
		return m.updateEventList(msg)
	}
	return m, nil
}

func (m invoicesModel) updateEventList(msg tea.KeyMsg) (invoicesModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.events)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Select):
		if len(m.events) > 0 {
			id := m.events[m.cursor].ID
			if m.selected[id] {
				delete(m.selected, id)
			} else {
				m.selected[id] = true
			}
		}
	case key.Matches(msg, keys.New):
		if len(m.selected) == 0 {
			return m, statusCmd("Select events with space first", true)
		}
		return m.showForm()
	}
	return m, nil
}

func (m invoicesModel) updateInvoiceList(msg tea.KeyMsg) (invoicesModel, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if m.invCursor > 0 {
			m.invCursor--
		}
	case key.Matches(msg, keys.Down):
		if m.invCursor < len(m.invoices)-1 {
			m.invCursor++
		}
	case key.Matches(msg, keys.Paid):
		if len(m.invoices) > 0 {
			inv := m.invoices[m.invCursor]
			return m, m.invoiceAction(inv, "Marked paid", m.service.MarkPaid)
		}
	case key.Matches(msg, keys.Send):
		if len(m.invoices) > 0 {
			inv := m.invoices[m.invCursor]
			return m, m.invoiceAction(inv, "Sent", m.service.Send)
		}
	}
	return m, nil
}

// invoiceAction runs fn off the update loop and reloads the lists with the
// outcome attached.
func (m invoicesModel) invoiceAction(inv store.Invoice, done string, fn func(context.Context, int64) error) tea.Cmd {
	reload := m.refresh()
	return func() tea.Msg {
		status := &statusMsg{text: fmt.Sprintf("%s %s", done, inv.Number)}
		if err := fn(context.Background(), inv.ID); err != nil {
			status = &statusMsg{text: fmt.Sprintf("%s: %v", inv.Number, err), isError: true}
		}
		data := reload().(invoicesDataMsg)
		data.status = status
		return data
	}
}

func (m invoicesModel) selectedIDs() []int64 {
	ids := make([]int64, 0, len(m.selected))
	for id := range m.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m invoicesModel) selectedTotal() float64 {
	var total float64
	for _, e := range m.events {
		if m.selected[e.ID] {
			total += e.TotalAmount
		}
	}
	return total
}

func (m invoicesModel) showForm() (invoicesModel, tea.Cmd) {
	*m.brokerID = 0
	*m.recipient = ""

	opts := []huh.Option[int64]{huh.NewOption("None", int64(0))}
	for _, b := range m.brokers {
		opts = append(opts, huh.NewOption(b.Name, b.ID))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int64]().Title("Bill to broker").Options(opts...).Value(m.brokerID),
			huh.NewInput().Title("Recipient email").
				Description("blank to use the broker's billing email").
				Value(m.recipient),
		),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func (m invoicesModel) updateForm(msg tea.Msg) (invoicesModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			m.formActive = false
			m.form = nil
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.formActive = false
		return m.generate()
	}

	return m, cmd
}

func (m invoicesModel) generate() (invoicesModel, tea.Cmd) {
	req := invoice.Request{
		EventIDs:       m.selectedIDs(),
		RecipientEmail: strings.TrimSpace(*m.recipient),
	}
	if *m.brokerID != 0 {
		id := *m.brokerID
		req.BrokerID = &id
	}

	inv, err := m.service.Generate(context.Background(), req)
	if err != nil {
		return m, errorCmd(err)
	}
	m.selected = map[int64]bool{}
	m.pane = paneInvoices
	return m, tea.Batch(
		m.refresh(),
		statusCmd(fmt.Sprintf("Created %s for %s", inv.Number, billing.FormatCurrency(inv.TotalAmount)), false),
	)
}

func (m invoicesModel) view() string {
	w := m.width - 4

	if m.formActive && m.form != nil {
		summary := mutedStyle.Render(fmt.Sprintf("%d events, %s", len(m.selected), billing.FormatCurrency(m.selectedTotal())))
		content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("New Invoice"), summary, "", m.form.View())
		return panelStyle.Width(w).Render(content)
	}

	unbilledTab := inactiveTabStyle.Render("Unbilled")
	invoicesTab := inactiveTabStyle.Render("Invoices")
	if m.pane == paneUnbilled {
		unbilledTab = activeTabStyle.Render("Unbilled")
	} else {
		invoicesTab = activeTabStyle.Render("Invoices")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Invoices"), "  ", unbilledTab, invoicesTab,
	)

	var body string
	if m.pane == paneUnbilled {
		body = m.renderEvents(w)
	} else {
		body = m.renderInvoices(w)
	}

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, header, "", body))
}

func (m invoicesModel) renderEvents(w int) string {
	if len(m.events) == 0 {
		return mutedStyle.Render("  No completed events waiting to be billed")
	}

	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-4s %-12s %-24s %-10s %10s %10s", "", "Date", "Facility", "Load", "Detention", "Amount")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 76))))

	for i, e := range m.events {
		cursor := "  "
		style := normalItemStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		check := "[ ]"
		if m.selected[e.ID] {
			check = "[x]"
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s%-4s %-12s %-24s %-10s %10s %10s",
			cursor, check, e.ArrivalTime.Local().Format("2006-01-02"), truncate(m.names[e.FacilityID], 24), truncate(e.LoadNumber, 10),
			billing.FormatMinutes(e.DetentionMinutes), billing.FormatCurrency(e.TotalAmount),
		)))
	}

	rows = append(rows, "")
	if len(m.selected) > 0 {
		rows = append(rows, earningsStyle.Render(fmt.Sprintf("  Selected: %d events, %s", len(m.selected), billing.FormatCurrency(m.selectedTotal()))))
	}
	rows = append(rows, mutedStyle.Render("  space: select  n: create invoice  ←/→: invoices"))
	return strings.Join(rows, "\n")
}

func (m invoicesModel) renderInvoices(w int) string {
	if len(m.invoices) == 0 {
		return mutedStyle.Render("  No invoices yet")
	}

	now := m.now()
	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-24s %-8s %-12s %10s  %s", "Number", "Status", "Due", "Amount", "Recipient")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 76))))

	for i, inv := range m.invoices {
		cursor := "  "
		style := normalItemStyle
		if i == m.invCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		status := inv.Status
		statusStyle := mutedStyle
		switch {
		case inv.Status == store.InvoicePaid:
			statusStyle = successStyle
		case inv.DueDate.Before(now):
			status = "overdue"
			statusStyle = errorStyle
		case inv.Status == store.InvoiceSent:
			statusStyle = highlightStyle
		}
		recipient := inv.RecipientEmail
		if recipient == "" {
			recipient = "-"
		}
		rows = append(rows, fmt.Sprintf("%s %s %s  %s",
			style.Render(fmt.Sprintf("%s%-24s", cursor, inv.Number)),
			statusStyle.Render(fmt.Sprintf("%-8s", status)),
			style.Render(fmt.Sprintf("%-12s %10s", inv.DueDate.Local().Format("2006-01-02"), billing.FormatCurrency(inv.TotalAmount))),
			mutedStyle.Render(recipient),
		))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  m: email  p: mark paid  ←/→: unbilled"))
	return strings.Join(rows, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
