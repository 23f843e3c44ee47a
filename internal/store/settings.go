package store

import (
	"fmt"
	"strconv"

	"github.com/sadopc/dwell/internal/billing"
)

// Setting keys.
const (
	SettingGracePeriod    = "grace_period_minutes"
	SettingHourlyRate     = "hourly_rate"
	SettingInvoiceDueDays = "invoice_due_days"
	SettingCompanyName    = "company_name"
	SettingCompanyEmail   = "company_email"
	SettingDriverName     = "driver_name"
	SettingTruckNumber    = "truck_number"
)

const defaultInvoiceDueDays = 30

func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, notFound(err))
	}
	return value, nil
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *Store) GetAllSettings() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// SettingOr returns the stored value, or fallback when missing or empty.
func (s *Store) SettingOr(key, fallback string) string {
	v, err := s.GetSetting(key)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

// DefaultTerms reads the user's default grace period and rate. Unparseable
// or negative values fall back to billing.DefaultTerms.
func (s *Store) DefaultTerms() billing.Terms {
	t := billing.DefaultTerms
	if g, err := strconv.Atoi(s.SettingOr(SettingGracePeriod, "")); err == nil && g >= 0 {
		t.GracePeriodMinutes = g
	}
	if r, err := strconv.ParseFloat(s.SettingOr(SettingHourlyRate, ""), 64); err == nil && r >= 0 {
		t.HourlyRate = r
	}
	return t
}

// SetDefaultTerms stores the user's default grace period and rate.
func (s *Store) SetDefaultTerms(t billing.Terms) error {
	if err := s.SetSetting(SettingGracePeriod, strconv.Itoa(t.GracePeriodMinutes)); err != nil {
		return err
	}
	return s.SetSetting(SettingHourlyRate, strconv.FormatFloat(t.HourlyRate, 'f', -1, 64))
}

func (s *Store) InvoiceDueDays() int {
	if d, err := strconv.Atoi(s.SettingOr(SettingInvoiceDueDays, "")); err == nil && d >= 0 {
		return d
	}
	return defaultInvoiceDueDays
}
