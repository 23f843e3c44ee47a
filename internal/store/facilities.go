package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const facilityColumns = `id, name, address, city, state, latitude, longitude, grace_period_minutes, hourly_rate, archived, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFacility(row rowScanner) (*Facility, error) {
	f := &Facility{}
	var createdAt, updatedAt string
	var archived int
	var lat, lng, rate sql.NullFloat64
	var grace sql.NullInt64
	if err := row.Scan(&f.ID, &f.Name, &f.Address, &f.City, &f.State, &lat, &lng, &grace, &rate, &archived, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.Latitude = nullFloat(lat)
	f.Longitude = nullFloat(lng)
	f.HourlyRate = nullFloat(rate)
	if grace.Valid {
		g := int(grace.Int64)
		f.GracePeriodMinutes = &g
	}
	f.Archived = archived == 1
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return f, nil
}

func (s *Store) CreateFacility(in FacilityInput) (*Facility, error) {
	now := formatTime(time.Now())
	res, err := s.db.Exec(
		`INSERT INTO facilities (name, address, city, state, latitude, longitude, grace_period_minutes, hourly_rate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Address, in.City, in.State, in.Latitude, in.Longitude, in.GracePeriodMinutes, in.HourlyRate, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert facility %q: %w", in.Name, duplicate(err))
	}
	id, _ := res.LastInsertId()
	return s.GetFacility(id)
}

func (s *Store) GetFacility(id int64) (*Facility, error) {
	f, err := scanFacility(s.db.QueryRow(`SELECT `+facilityColumns+` FROM facilities WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get facility %d: %w", id, notFound(err))
	}
	return f, nil
}

func (s *Store) GetFacilityByName(name string) (*Facility, error) {
	f, err := scanFacility(s.db.QueryRow(`SELECT `+facilityColumns+` FROM facilities WHERE name = ?`, name))
	if err != nil {
		return nil, fmt.Errorf("get facility %q: %w", name, notFound(err))
	}
	return f, nil
}

func (s *Store) ListFacilities(includeArchived bool) ([]Facility, error) {
	query := `SELECT ` + facilityColumns + ` FROM facilities`
	if !includeArchived {
		query += ` WHERE archived = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()

	var facilities []Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, *f)
	}
	return facilities, rows.Err()
}

func (s *Store) UpdateFacility(id int64, in FacilityInput) error {
	now := formatTime(time.Now())
	res, err := s.db.Exec(
		`UPDATE facilities SET name = ?, address = ?, city = ?, state = ?, latitude = ?, longitude = ?,
		 grace_period_minutes = ?, hourly_rate = ?, updated_at = ? WHERE id = ?`,
		in.Name, in.Address, in.City, in.State, in.Latitude, in.Longitude, in.GracePeriodMinutes, in.HourlyRate, now, id,
	)
	if err != nil {
		return fmt.Errorf("update facility %d: %w", id, duplicate(err))
	}
	return requireAffected(res, fmt.Sprintf("facility %d", id))
}

// UpsertFacility creates the facility or updates the one with the same name.
// It reports whether a new row was created.
func (s *Store) UpsertFacility(in FacilityInput) (*Facility, bool, error) {
	existing, err := s.GetFacilityByName(in.Name)
	if errors.Is(err, ErrNotFound) {
		f, err := s.CreateFacility(in)
		return f, true, err
	}
	if err != nil {
		return nil, false, err
	}
	if err := s.UpdateFacility(existing.ID, in); err != nil {
		return nil, false, err
	}
	f, err := s.GetFacility(existing.ID)
	return f, false, err
}

func (s *Store) ArchiveFacility(id int64) error {
	now := formatTime(time.Now())
	res, err := s.db.Exec(
		`UPDATE facilities SET archived = 1, updated_at = ? WHERE id = ?`, now, id,
	)
	if err != nil {
		return fmt.Errorf("archive facility %d: %w", id, err)
	}
	return requireAffected(res, fmt.Sprintf("facility %d", id))
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
