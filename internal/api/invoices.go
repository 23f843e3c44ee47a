package api

import (
	"context"
	"net/http"

	"github.com/sadopc/dwell/internal/invoice"
	"github.com/sadopc/dwell/internal/store"
)

type lineItemView struct {
	EventID          int64   `json:"event_id"`
	Facility         string  `json:"facility"`
	LoadNumber       string  `json:"load_number,omitempty"`
	DwellSeconds     int64   `json:"dwell_seconds"`
	DetentionMinutes int64   `json:"detention_minutes"`
	HourlyRate       float64 `json:"hourly_rate"`
	Amount           float64 `json:"amount"`
}

type invoiceDetail struct {
	invoiceView
	Items   []lineItemView `json:"items"`
	Subject string         `json:"subject"`
	Text    string         `json:"text"`
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.InvoiceDraft, store.InvoiceSent, store.InvoicePaid:
	default:
		writeError(w, r, badRequest("unknown status %q", status))
		return
	}
	invoices, err := s.store.ListInvoices(status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceViews(invoices))
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoice.Request
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := s.invoices.Generate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newInvoiceView(inv))
}

func (s *Server) handleOverdueInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := s.invoices.Overdue(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceViews(invoices))
}

// handleGetInvoice returns the invoice with its rendered line items.
func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.invoices.Render(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	detail := invoiceDetail{
		invoiceView: newInvoiceView(&doc.Invoice),
		Items:       make([]lineItemView, len(doc.Items)),
		Subject:     doc.Subject,
		Text:        doc.Text,
	}
	for i, item := range doc.Items {
		detail.Items[i] = lineItemView{
			EventID:          item.EventID,
			Facility:         item.Facility,
			LoadNumber:       item.LoadNumber,
			DwellSeconds:     item.DwellSeconds,
			DetentionMinutes: item.DetentionMinutes,
			HourlyRate:       item.Rate,
			Amount:           item.Amount,
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSendInvoice(w http.ResponseWriter, r *http.Request) {
	s.invoiceAction(w, r, s.invoices.Send)
}

func (s *Server) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	s.invoiceAction(w, r, s.invoices.MarkPaid)
}

func (s *Server) invoiceAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int64) error) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := action(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := s.store.GetInvoice(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInvoiceView(inv))
}
