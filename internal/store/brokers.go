package store

import (
	"fmt"
	"time"
)

const brokerColumns = `id, name, email, phone, archived, created_at, updated_at`

func scanBroker(row rowScanner) (*Broker, error) {
	b := &Broker{}
	var createdAt, updatedAt string
	var archived int
	if err := row.Scan(&b.ID, &b.Name, &b.Email, &b.Phone, &archived, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.Archived = archived == 1
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}

func (s *Store) CreateBroker(name, email, phone string) (*Broker, error) {
	now := formatTime(time.Now())
	res, err := s.db.Exec(
		`INSERT INTO brokers (name, email, phone, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, email, phone, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert broker %q: %w", name, duplicate(err))
	}
	id, _ := res.LastInsertId()
	return s.GetBroker(id)
}

func (s *Store) GetBroker(id int64) (*Broker, error) {
	b, err := scanBroker(s.db.QueryRow(`SELECT `+brokerColumns+` FROM brokers WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get broker %d: %w", id, notFound(err))
	}
	return b, nil
}

func (s *Store) ListBrokers(includeArchived bool) ([]Broker, error) {
	query := `SELECT ` + brokerColumns + ` FROM brokers`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list brokers: %w", err)
	}
	defer rows.Close()

	var brokers []Broker
	for rows.Next() {
		b, err := scanBroker(rows)
		if err != nil {
			return nil, err
		}
		brokers = append(brokers, *b)
	}
	return brokers, rows.Err()
}

func (s *Store) UpdateBroker(id int64, name, email, phone string) error {
	now := formatTime(time.Now())
	res, err := s.db.Exec(
		`UPDATE brokers SET name = ?, email = ?, phone = ?, updated_at = ? WHERE id = ?`,
		name, email, phone, now, id,
	)
	if err != nil {
		return fmt.Errorf("update broker %d: %w", id, duplicate(err))
	}
	return requireAffected(res, fmt.Sprintf("broker %d", id))
}

func (s *Store) ArchiveBroker(id int64) error {
	now := formatTime(time.Now())
	res, err := s.db.Exec(
		`UPDATE brokers SET archived = 1, updated_at = ? WHERE id = ?`, now, id,
	)
	if err != nil {
		return fmt.Errorf("archive broker %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("broker %d", id))
}
