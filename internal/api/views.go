package api

import (
	"time"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/store"
)

type facilityView struct {
	ID                 int64    `json:"id"`
	Name               string   `json:"name"`
	Address            string   `json:"address,omitempty"`
	City               string   `json:"city,omitempty"`
	State              string   `json:"state,omitempty"`
	Latitude           *float64 `json:"latitude,omitempty"`
	Longitude          *float64 `json:"longitude,omitempty"`
	GracePeriodMinutes *int     `json:"grace_period_minutes,omitempty"`
	HourlyRate         *float64 `json:"hourly_rate,omitempty"`
	Archived           bool     `json:"archived"`
}

func newFacilityView(f *store.Facility) facilityView {
	return facilityView{
		ID:                 f.ID,
		Name:               f.Name,
		Address:            f.Address,
		City:               f.City,
		State:              f.State,
		Latitude:           f.Latitude,
		Longitude:          f.Longitude,
		GracePeriodMinutes: f.GracePeriodMinutes,
		HourlyRate:         f.HourlyRate,
		Archived:           f.Archived,
	}
}

type brokerView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Archived bool   `json:"archived"`
}

func newBrokerView(b *store.Broker) brokerView {
	return brokerView{ID: b.ID, Name: b.Name, Email: b.Email, Phone: b.Phone, Archived: b.Archived}
}

type eventView struct {
	ID                 int64      `json:"id"`
	FacilityID         int64      `json:"facility_id"`
	BrokerID           *int64     `json:"broker_id,omitempty"`
	LoadNumber         string     `json:"load_number,omitempty"`
	EventType          string     `json:"event_type"`
	ArrivalTime        time.Time  `json:"arrival_time"`
	DepartureTime      *time.Time `json:"departure_time,omitempty"`
	GracePeriodMinutes int        `json:"grace_period_minutes"`
	HourlyRate         float64    `json:"hourly_rate"`
	DwellSeconds       int64      `json:"dwell_seconds"`
	DetentionMinutes   int64      `json:"detention_minutes"`
	TotalAmount        float64    `json:"total_amount"`
	Status             string     `json:"status"`
	InvoiceID          *int64     `json:"invoice_id,omitempty"`
	Notes              string     `json:"notes,omitempty"`
}

func newEventView(e *store.DetentionEvent) eventView {
	return eventView{
		ID:                 e.ID,
		FacilityID:         e.FacilityID,
		BrokerID:           e.BrokerID,
		LoadNumber:         e.LoadNumber,
		EventType:          e.EventType,
		ArrivalTime:        e.ArrivalTime,
		DepartureTime:      e.DepartureTime,
		GracePeriodMinutes: e.GracePeriodMinutes,
		HourlyRate:         e.HourlyRate,
		DwellSeconds:       e.DwellSeconds(),
		DetentionMinutes:   e.DetentionMinutes,
		TotalAmount:        e.TotalAmount,
		Status:             e.Status,
		InvoiceID:          e.InvoiceID,
		Notes:              e.Notes,
	}
}

func newEventViews(events []store.DetentionEvent) []eventView {
	views := make([]eventView, len(events))
	for i := range events {
		views[i] = newEventView(&events[i])
	}
	return views
}

// timerView is billing.TimerState plus display strings.
type timerView struct {
	ElapsedSeconds        int64   `json:"elapsed_seconds"`
	GracePeriodSeconds    int64   `json:"grace_period_seconds"`
	GraceRemainingSeconds int64   `json:"grace_remaining_seconds"`
	DetentionSeconds      int64   `json:"detention_seconds"`
	IsInGracePeriod       bool    `json:"is_in_grace_period"`
	IsDetentionActive     bool    `json:"is_detention_active"`
	CurrentEarnings       float64 `json:"current_earnings"`

	Elapsed        string `json:"elapsed"`
	GraceRemaining string `json:"grace_remaining"`
	Detention      string `json:"detention"`
	Earnings       string `json:"earnings"`
}

func newTimerView(t billing.TimerState) timerView {
	return timerView{
		ElapsedSeconds:        t.ElapsedSeconds,
		GracePeriodSeconds:    t.GracePeriodSeconds,
		GraceRemainingSeconds: t.GraceRemainingSeconds(),
		DetentionSeconds:      t.DetentionSeconds,
		IsInGracePeriod:       t.IsInGracePeriod,
		IsDetentionActive:     t.IsDetentionActive,
		CurrentEarnings:       t.CurrentEarnings,
		Elapsed:               billing.FormatTime(t.ElapsedSeconds),
		GraceRemaining:        billing.FormatTime(t.GraceRemainingSeconds()),
		Detention:             billing.FormatTime(t.DetentionSeconds),
		Earnings:              billing.FormatCurrency(t.CurrentEarnings),
	}
}

type invoiceView struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	BrokerID       *int64     `json:"broker_id,omitempty"`
	RecipientEmail string     `json:"recipient_email,omitempty"`
	TotalAmount    float64    `json:"total_amount"`
	Status         string     `json:"status"`
	DueDate        time.Time  `json:"due_date"`
	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

func newInvoiceView(inv *store.Invoice) invoiceView {
	return invoiceView{
		ID:             inv.ID,
		Number:         inv.Number,
		BrokerID:       inv.BrokerID,
		RecipientEmail: inv.RecipientEmail,
		TotalAmount:    inv.TotalAmount,
		Status:         inv.Status,
		DueDate:        inv.DueDate,
		CreatedAt:      inv.CreatedAt,
		SentAt:         inv.SentAt,
		PaidAt:         inv.PaidAt,
	}
}

func newInvoiceViews(invoices []store.Invoice) []invoiceView {
	views := make([]invoiceView, len(invoices))
	for i := range invoices {
		views[i] = newInvoiceView(&invoices[i])
	}
	return views
}
