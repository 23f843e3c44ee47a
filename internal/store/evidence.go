package store

import (
	"database/sql"
	"fmt"
)

func (s *Store) AddLocation(p LocationPoint) (*LocationPoint, error) {
	if _, err := s.GetEvent(p.EventID); err != nil {
		return nil, err
	}
	if p.Kind == "" {
		p.Kind = LocationTrack
	}
	res, err := s.db.Exec(
		`INSERT INTO location_points (event_id, kind, latitude, longitude, accuracy_meters, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.EventID, p.Kind, p.Latitude, p.Longitude, p.AccuracyMeters, formatTime(p.RecordedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert location: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	p.RecordedAt = parseTime(formatTime(p.RecordedAt))
	return &p, nil
}

func (s *Store) ListLocations(eventID int64) ([]LocationPoint, error) {
	rows, err := s.db.Query(
		`SELECT id, event_id, kind, latitude, longitude, accuracy_meters, recorded_at
		 FROM location_points WHERE event_id = ? ORDER BY recorded_at, id`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var points []LocationPoint
	for rows.Next() {
		var p LocationPoint
		var recordedAt string
		if err := rows.Scan(&p.ID, &p.EventID, &p.Kind, &p.Latitude, &p.Longitude, &p.AccuracyMeters, &recordedAt); err != nil {
			return nil, err
		}
		p.RecordedAt = parseTime(recordedAt)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Store) AddPhoto(p Photo) (*Photo, error) {
	if _, err := s.GetEvent(p.EventID); err != nil {
		return nil, err
	}
	res, err := s.db.Exec(
		`INSERT INTO photos (event_id, path, caption, latitude, longitude, taken_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.EventID, p.Path, p.Caption, p.Latitude, p.Longitude, formatTime(p.TakenAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert photo: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	p.TakenAt = parseTime(formatTime(p.TakenAt))
	return &p, nil
}

func (s *Store) ListPhotos(eventID int64) ([]Photo, error) {
	rows, err := s.db.Query(
		`SELECT id, event_id, path, caption, latitude, longitude, taken_at
		 FROM photos WHERE event_id = ? ORDER BY taken_at, id`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		var p Photo
		var takenAt string
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.EventID, &p.Path, &p.Caption, &lat, &lng, &takenAt); err != nil {
			return nil, err
		}
		p.Latitude = nullFloat(lat)
		p.Longitude = nullFloat(lng)
		p.TakenAt = parseTime(takenAt)
		photos = append(photos, p)
	}
	return photos, rows.Err()
}
