package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/dwell/internal/store"
)

// viewState represents the currently active view.
type viewState int

const (
	viewDashboard viewState = iota
	viewFacilities
	viewReports
	viewInvoices
	viewSettings
)

var viewNames = []string{"Dashboard", "Facilities", "Reports", "Invoices", "Settings"}

// --- Messages ---

type checkedInMsg struct {
	event *store.DetentionEvent
}

type checkedOutMsg struct {
	event *store.DetentionEvent
}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

func statusCmd(text string, isError bool) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: text, isError: isError}
	}
}

func errorCmd(err error) tea.Cmd {
	return statusCmd(fmt.Sprintf("Error: %v", err), true)
}

// --- Helpers ---

func formatHours(secs int64) string {
	h := float64(secs) / 3600
	return fmt.Sprintf("%.1fh", h)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
