package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sadopc/dwell/internal/billing"
)

const eventColumns = `id, facility_id, broker_id, load_number, event_type, arrival_time, departure_time,
	grace_period_minutes, hourly_rate, detention_minutes, total_amount, status, invoice_id, notes, created_at`

func scanEvent(row rowScanner) (*DetentionEvent, error) {
	e := &DetentionEvent{}
	var arrival, createdAt string
	var departure sql.NullString
	var brokerID, invoiceID sql.NullInt64
	err := row.Scan(&e.ID, &e.FacilityID, &brokerID, &e.LoadNumber, &e.EventType, &arrival, &departure,
		&e.GracePeriodMinutes, &e.HourlyRate, &e.DetentionMinutes, &e.TotalAmount, &e.Status, &invoiceID, &e.Notes, &createdAt)
	if err != nil {
		return nil, err
	}
	e.BrokerID = nullInt(brokerID)
	e.InvoiceID = nullInt(invoiceID)
	e.ArrivalTime = parseTime(arrival)
	e.DepartureTime = parseNullTime(departure)
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// CheckIn opens a detention event. Only one event may be active at a time.
func (s *Store) CheckIn(in CheckIn) (*DetentionEvent, error) {
	eventType := in.EventType
	if eventType == "" {
		eventType = EventDelivery
	}
	if eventType != EventPickup && eventType != EventDelivery {
		return nil, fmt.Errorf("check in: %w %q", ErrUnknownEventType, eventType)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}
	defer tx.Rollback()

	var activeID int64
	err = tx.QueryRow(`SELECT id FROM detention_events WHERE status = ? LIMIT 1`, StatusActive).Scan(&activeID)
	if err == nil {
		return nil, fmt.Errorf("check in: event %d: %w", activeID, ErrAlreadyCheckedIn)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check in: %w", err)
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := tx.Exec(
		`INSERT INTO detention_events (facility_id, broker_id, load_number, event_type, arrival_time,
		 grace_period_minutes, hourly_rate, status, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.FacilityID, in.BrokerID, strings.TrimSpace(in.LoadNumber), eventType, formatTime(in.Arrival),
		in.Terms.GracePeriodMinutes, in.Terms.HourlyRate, StatusActive, in.Notes, formatTime(createdAt),
	)
	if err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetEvent(id)
}

// CheckOut closes an active event and stores its settlement.
func (s *Store) CheckOut(id int64, departure time.Time) (*DetentionEvent, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("check out event %d: %w", id, err)
	}
	defer tx.Rollback()

	e, err := scanEvent(tx.QueryRow(`SELECT `+eventColumns+` FROM detention_events WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("check out event %d: %w", id, notFound(err))
	}
	if e.Status != StatusActive {
		return nil, fmt.Errorf("check out event %d (%s): %w", id, e.Status, ErrInvalidTransition)
	}

	// Settle on the stored second-precision instant so the numbers match
	// what a reader of the database would recompute.
	departure = parseTime(formatTime(departure))
	settled := billing.ComputeDetentionAmount(e.ArrivalTime, departure, e.Terms())

	res, err := tx.Exec(
		`UPDATE detention_events SET departure_time = ?, detention_minutes = ?, total_amount = ?, status = ?
		 WHERE id = ? AND status = ?`,
		formatTime(departure), settled.DetentionMinutes, settled.TotalAmount, StatusCompleted, id, StatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("check out event %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return nil, fmt.Errorf("check out event %d: %w", id, ErrInvalidTransition)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("check out event %d: %w", id, err)
	}
	return s.GetEvent(id)
}

func (s *Store) GetEvent(id int64) (*DetentionEvent, error) {
	e, err := scanEvent(s.db.QueryRow(`SELECT `+eventColumns+` FROM detention_events WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, notFound(err))
	}
	return e, nil
}

// GetActiveEvent returns the open event, or nil when the driver is not
// checked in anywhere.
func (s *Store) GetActiveEvent() (*DetentionEvent, error) {
	e, err := scanEvent(s.db.QueryRow(
		`SELECT `+eventColumns+` FROM detention_events WHERE status = ? ORDER BY id DESC LIMIT 1`, StatusActive,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active event: %w", err)
	}
	return e, nil
}

func (s *Store) UpdateEventNotes(id int64, notes string) error {
	res, err := s.db.Exec(`UPDATE detention_events SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return fmt.Errorf("update notes %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("event %d", id))
}

// DeleteEvent removes an event that has not been billed yet.
func (s *Store) DeleteEvent(id int64) error {
	e, err := s.GetEvent(id)
	if err != nil {
		return err
	}
	if e.Status == StatusInvoiced || e.Status == StatusPaid {
		return fmt.Errorf("delete event %d (%s): %w", id, e.Status, ErrInvalidTransition)
	}
	_, err = s.db.Exec(`DELETE FROM detention_events WHERE id = ?`, id)
	return err
}

func (s *Store) ListEvents(f EventFilter) ([]DetentionEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM detention_events WHERE 1=1`
	var args []any

	if f.FacilityID != nil {
		query += ` AND facility_id = ?`
		args = append(args, *f.FacilityID)
	}
	if f.BrokerID != nil {
		query += ` AND broker_id = ?`
		args = append(args, *f.BrokerID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Uninvoiced {
		query += ` AND invoice_id IS NULL`
	}
	if f.From != nil {
		query += ` AND arrival_time >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND arrival_time < ?`
		args = append(args, formatTime(*f.To))
	}
	query += ` ORDER BY arrival_time DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
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
