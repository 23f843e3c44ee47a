// Package invoice turns settled detention events into numbered invoices,
// renders them and emails them to the broker.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sadopc/dwell/internal/logger"
	"github.com/sadopc/dwell/internal/metrics"
	"github.com/sadopc/dwell/internal/store"
	"github.com/sadopc/dwell/internal/tracker"
)

var ErrNoRecipient = errors.New("invoice has no recipient email")

// Request selects the events to bill. An empty RecipientEmail falls back
// to the broker's address.
type Request struct {
	EventIDs       []int64 `json:"event_ids"`
	BrokerID       *int64  `json:"broker_id,omitempty"`
	RecipientEmail string  `json:"recipient_email,omitempty"`
}

type Service struct {
	store  *store.Store
	mailer Mailer
	clock  tracker.Clock
}

func NewService(s *store.Store, m Mailer, clock tracker.Clock) *Service {
	if m == nil {
		m = DisabledMailer{}
	}
	if clock == nil {
		clock = tracker.SystemClock{}
	}
	return &Service{store: s, mailer: m, clock: clock}
}

// NewNumber builds an invoice number of the form INV-YYYYMMDD-XXXXXXXX.
func NewNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102"), id[:8])
}

// Generate bills the requested completed events on a new draft invoice.
func (s *Service) Generate(ctx context.Context, req Request) (*store.Invoice, error) {
	now := s.clock.Now()

	recipient := strings.TrimSpace(req.RecipientEmail)
	if req.BrokerID != nil {
		b, err := s.store.GetBroker(*req.BrokerID)
		if err != nil {
			return nil, err
		}
		if recipient == "" {
			recipient = b.Email
		}
	}

	inv, err := s.store.CreateInvoice(store.NewInvoice{
		Number:         NewNumber(now),
		BrokerID:       req.BrokerID,
		RecipientEmail: recipient,
		EventIDs:       req.EventIDs,
		DueDate:        now.AddDate(0, 0, s.store.InvoiceDueDays()),
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	metrics.InvoicesGenerated.Inc()
	logger.InfoKV(ctx, "invoice generated", "number", inv.Number, "events", len(req.EventIDs), "total", inv.TotalAmount)
	return inv, nil
}

// Render builds the line items and the text and HTML bodies.
func (s *Service) Render(ctx context.Context, invoiceID int64) (*Document, error) {
	inv, err := s.store.GetInvoice(invoiceID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.InvoiceEvents(inv.ID)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Invoice:      *inv,
		CompanyName:  s.store.SettingOr(store.SettingCompanyName, ""),
		CompanyEmail: s.store.SettingOr(store.SettingCompanyEmail, ""),
		DriverName:   s.store.SettingOr(store.SettingDriverName, ""),
		TruckNumber:  s.store.SettingOr(store.SettingTruckNumber, ""),
	}
	if inv.BrokerID != nil {
		if doc.Broker, err = s.store.GetBroker(*inv.BrokerID); err != nil {
			return nil, err
		}
	}

	names := make(map[int64]string)
	for _, e := range events {
		if _, ok := names[e.FacilityID]; !ok {
			f, err := s.store.GetFacility(e.FacilityID)
			if err != nil {
				return nil, err
			}
			names[e.FacilityID] = f.Name
		}
		item := LineItem{
			EventID:          e.ID,
			Facility:         names[e.FacilityID],
			LoadNumber:       e.LoadNumber,
			EventType:        e.EventType,
			Arrival:          e.ArrivalTime,
			DwellSeconds:     e.DwellSeconds(),
			GracePeriod:      int64(e.GracePeriodMinutes),
			DetentionMinutes: e.DetentionMinutes,
			Rate:             e.HourlyRate,
			Amount:           e.TotalAmount,
		}
		if e.DepartureTime != nil {
			item.Departure = *e.DepartureTime
		}
		doc.Items = append(doc.Items, item)
	}

	if err := render(doc); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return doc, nil
}

// Send emails the invoice and marks it sent. Paid invoices are not resent.
func (s *Service) Send(ctx context.Context, invoiceID int64) error {
	inv, err := s.store.GetInvoice(invoiceID)
	if err != nil {
		return err
	}
	if inv.Status == store.InvoicePaid {
		return fmt.Errorf("send invoice %s: %w", inv.Number, store.ErrInvalidTransition)
	}
	if inv.RecipientEmail == "" {
		return fmt.Errorf("send invoice %s: %w", inv.Number, ErrNoRecipient)
	}

	doc, err := s.Render(ctx, invoiceID)
	if err != nil {
		return err
	}

	err = s.mailer.Send(ctx, Message{
		To:      []string{inv.RecipientEmail},
		Subject: doc.Subject,
		Text:    doc.Text,
		HTML:    doc.HTML,
	})
	switch {
	case errors.Is(err, ErrMailerDisabled):
		metrics.InvoiceEmails.WithLabelValues("disabled").Inc()
		return err
	case err != nil:
		metrics.InvoiceEmails.WithLabelValues("failed").Inc()
		logger.ErrorKV(ctx, "invoice email failed", "number", inv.Number, "error", err)
		return err
	}
	metrics.InvoiceEmails.WithLabelValues("sent").Inc()

	if err := s.store.MarkInvoiceSent(inv.ID, s.clock.Now()); err != nil {
		return err
	}
	logger.InfoKV(ctx, "invoice sent", "number", inv.Number, "to", inv.RecipientEmail)
	return nil
}

// MarkPaid records payment of the invoice and its events.
func (s *Service) MarkPaid(ctx context.Context, invoiceID int64) error {
	if err := s.store.MarkInvoicePaid(invoiceID, s.clock.Now()); err != nil {
		return err
	}
	logger.InfoKV(ctx, "invoice paid", "invoice_id", invoiceID)
	return nil
}

// Overdue lists sent invoices past their due date.
func (s *Service) Overdue(ctx context.Context) ([]store.Invoice, error) {
	return s.store.ListOverdueInvoices(s.clock.Now())
}
