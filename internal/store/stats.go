package store

import (
	"fmt"
	"math"
	"time"
)

// dwellExpr is the dwell time of a settled event in whole seconds.
const dwellExpr = `(CAST(strftime('%s', e.departure_time) AS INTEGER) - CAST(strftime('%s', e.arrival_time) AS INTEGER))`

func (s *Store) GetDailySummary(from, to time.Time) ([]DailySummary, error) {
	rows, err := s.db.Query(`
		SELECT date(e.arrival_time) AS day, e.facility_id, f.name,
		       COALESCE(SUM(`+dwellExpr+`), 0),
		       COALESCE(SUM(e.detention_minutes), 0),
		       COALESCE(SUM(e.total_amount), 0),
		       COUNT(*)
		FROM detention_events e
		JOIN facilities f ON f.id = e.facility_id
		WHERE e.departure_time IS NOT NULL
		  AND e.arrival_time >= ? AND e.arrival_time < ?
		GROUP BY day, e.facility_id
		ORDER BY day, f.name`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("daily summary: %w", err)
	}
	defer rows.Close()

	var summaries []DailySummary
	for rows.Next() {
		var ds DailySummary
		if err := rows.Scan(&ds.Date, &ds.FacilityID, &ds.FacilityName, &ds.DwellSeconds,
			&ds.DetentionMinutes, &ds.Earnings, &ds.EventCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, ds)
	}
	return summaries, rows.Err()
}

// GetStats aggregates settled events with arrival in [from, to). Zero times
// leave that side of the range open.
func (s *Store) GetStats(from, to time.Time) (*Stats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN e.detention_minutes > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(` + dwellExpr + `), 0) / 60.0,
		       COALESCE(AVG(e.detention_minutes), 0),
		       COALESCE(SUM(e.total_amount), 0),
		       COALESCE(SUM(CASE WHEN e.status = 'paid' THEN e.total_amount ELSE 0 END), 0)
		FROM detention_events e
		WHERE e.departure_time IS NOT NULL`
	var args []any
	if !from.IsZero() {
		query += ` AND e.arrival_time >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += ` AND e.arrival_time < ?`
		args = append(args, formatTime(to))
	}

	st := &Stats{}
	err := s.db.QueryRow(query, args...).Scan(&st.TotalEvents, &st.EventsWithDetention,
		&st.AvgDwellMinutes, &st.AvgDetentionMinutes, &st.TotalBilled, &st.TotalPaid)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	st.DetentionRate = percent(st.EventsWithDetention, st.TotalEvents)
	st.Outstanding = roundMoney(st.TotalBilled - st.TotalPaid)
	return st, nil
}

// GetFacilityStats ranks facilities by average dwell, longest first.
func (s *Store) GetFacilityStats() ([]FacilityStats, error) {
	rows, err := s.db.Query(`
		SELECT e.facility_id, f.name, COUNT(*),
		       COALESCE(AVG(` + dwellExpr + `), 0) / 60.0,
		       COALESCE(AVG(e.detention_minutes), 0),
		       COALESCE(SUM(CASE WHEN e.detention_minutes > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(e.total_amount), 0)
		FROM detention_events e
		JOIN facilities f ON f.id = e.facility_id
		WHERE e.departure_time IS NOT NULL
		GROUP BY e.facility_id
		ORDER BY 4 DESC, f.name`)
	if err != nil {
		return nil, fmt.Errorf("facility stats: %w", err)
	}
	defer rows.Close()

	var stats []FacilityStats
	for rows.Next() {
		var fs FacilityStats
		var withDetention int
		if err := rows.Scan(&fs.FacilityID, &fs.FacilityName, &fs.EventCount, &fs.AvgDwellMinutes,
			&fs.AvgDetentionMinutes, &withDetention, &fs.TotalEarnings); err != nil {
			return nil, err
		}
		fs.DetentionRate = percent(withDetention, fs.EventCount)
		stats = append(stats, fs)
	}
	return stats, rows.Err()
}

// GetTodayEarnings sums settled amounts for events that arrived on the UTC
// day containing now.
func (s *Store) GetTodayEarnings(now time.Time) (float64, error) {
	today := now.UTC().Format("2006-01-02")
	var total float64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(total_amount), 0)
		FROM detention_events
		WHERE date(arrival_time) = ? AND departure_time IS NOT NULL`, today,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return roundMoney(total), nil
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
