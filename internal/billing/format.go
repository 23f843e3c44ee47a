package billing

import "fmt"

// FormatTime renders seconds as HH:MM:SS. Hours are not wrapped at 24.
func FormatTime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatDuration renders seconds as "1h 30m", "2h" or "30m". Zero is "0m".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60

	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

// FormatMinutes is FormatDuration for a whole-minute count.
func FormatMinutes(minutes int64) string {
	return FormatDuration(minutes * 60)
}

// FormatCurrency renders an amount as "$1234.50".
func FormatCurrency(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}
