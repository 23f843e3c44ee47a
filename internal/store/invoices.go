package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

const invoiceColumns = `id, number, broker_id, recipient_email, total_amount, status, due_date, created_at, sent_at, paid_at`

func scanInvoice(row rowScanner) (*Invoice, error) {
	inv := &Invoice{}
	var dueDate, createdAt string
	var sentAt, paidAt sql.NullString
	var brokerID sql.NullInt64
	if err := row.Scan(&inv.ID, &inv.Number, &brokerID, &inv.RecipientEmail, &inv.TotalAmount, &inv.Status,
		&dueDate, &createdAt, &sentAt, &paidAt); err != nil {
		return nil, err
	}
	inv.BrokerID = nullInt(brokerID)
	inv.DueDate = parseTime(dueDate)
	inv.CreatedAt = parseTime(createdAt)
	inv.SentAt = parseNullTime(sentAt)
	inv.PaidAt = parseNullTime(paidAt)
	return inv, nil
}

// CreateInvoice bills the given completed events. The events move to
// invoiced in the same transaction.
func (s *Store) CreateInvoice(in NewInvoice) (*Invoice, error) {
	if len(in.EventIDs) == 0 {
		return nil, ErrNoEvents
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	defer tx.Rollback()

	var total float64
	seen := make(map[int64]bool, len(in.EventIDs))
	for _, id := range in.EventIDs {
		if seen[id] {
			return nil, fmt.Errorf("create invoice: event %d: %w", id, ErrRepeatedEvent)
		}
		seen[id] = true

		var status string
		var amount float64
		var invoiceID sql.NullInt64
		err := tx.QueryRow(`SELECT status, total_amount, invoice_id FROM detention_events WHERE id = ?`, id).
			Scan(&status, &amount, &invoiceID)
		if err != nil {
			return nil, fmt.Errorf("create invoice: event %d: %w", id, notFound(err))
		}
		if status != StatusCompleted || invoiceID.Valid {
			return nil, fmt.Errorf("create invoice: event %d (%s): %w", id, status, ErrInvalidTransition)
		}
		total += amount
	}
	total = math.Round(total*100) / 100

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := tx.Exec(
		`INSERT INTO invoices (number, broker_id, recipient_email, total_amount, status, due_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Number, in.BrokerID, in.RecipientEmail, total, InvoiceDraft, formatTime(in.DueDate), formatTime(createdAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}
	invoiceID, _ := res.LastInsertId()

	for _, id := range in.EventIDs {
		res, err := tx.Exec(
			`UPDATE detention_events SET status = ?, invoice_id = ?
			 WHERE id = ? AND status = ? AND invoice_id IS NULL`,
			StatusInvoiced, invoiceID, id, StatusCompleted,
		)
		if err != nil {
			return nil, fmt.Errorf("mark event %d invoiced: %w", id, err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return nil, fmt.Errorf("mark event %d invoiced: %w", id, ErrInvalidTransition)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return s.GetInvoice(invoiceID)
}

func (s *Store) GetInvoice(id int64) (*Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRow(`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get invoice %d: %w", id, notFound(err))
	}
	return inv, nil
}

func (s *Store) GetInvoiceByNumber(number string) (*Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRow(`SELECT `+invoiceColumns+` FROM invoices WHERE number = ?`, number))
	if err != nil {
		return nil, fmt.Errorf("get invoice %q: %w", number, notFound(err))
	}
	return inv, nil
}

// ListInvoices returns invoices newest first. An empty status lists all.
func (s *Store) ListInvoices(status string) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.queryInvoices(query, args...)
}

// ListOverdueInvoices returns sent, unpaid invoices whose due date is before now.
func (s *Store) ListOverdueInvoices(now time.Time) ([]Invoice, error) {
	return s.queryInvoices(
		`SELECT `+invoiceColumns+` FROM invoices WHERE status = ? AND due_date < ? ORDER BY due_date`,
		InvoiceSent, formatTime(now),
	)
}

func (s *Store) queryInvoices(query string, args ...any) ([]Invoice, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// InvoiceEvents returns the events billed on an invoice, oldest first.
func (s *Store) InvoiceEvents(invoiceID int64) ([]DetentionEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+eventColumns+` FROM detention_events WHERE invoice_id = ? ORDER BY arrival_time, id`, invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("invoice events: %w", err)
	}
	defer rows.Close()

	var events []DetentionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *Store) MarkInvoiceSent(id int64, at time.Time) error {
	inv, err := s.GetInvoice(id)
	if err != nil {
		return err
	}
	if inv.Status == InvoicePaid {
		return fmt.Errorf("send invoice %d (%s): %w", id, inv.Status, ErrInvalidTransition)
	}
	_, err = s.db.Exec(`UPDATE invoices SET status = ?, sent_at = ? WHERE id = ?`, InvoiceSent, formatTime(at), id)
	return err
}

// MarkInvoicePaid settles the invoice and every event billed on it.
func (s *Store) MarkInvoicePaid(id int64, at time.Time) error {
	inv, err := s.GetInvoice(id)
	if err != nil {
		return err
	}
	if inv.Status == InvoicePaid {
		return fmt.Errorf("pay invoice %d: %w", id, ErrInvalidTransition)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("pay invoice: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE invoices SET status = ?, paid_at = ? WHERE id = ?`, InvoicePaid, formatTime(at), id); err != nil {
		return fmt.Errorf("pay invoice %d: %w", id, err)
	}
	if _, err := tx.Exec(
		`UPDATE detention_events SET status = ? WHERE invoice_id = ? AND status = ?`,
		StatusPaid, id, StatusInvoiced,
	); err != nil {
		return fmt.Errorf("pay invoice %d events: %w", id, err)
	}
	return tx.Commit()
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
