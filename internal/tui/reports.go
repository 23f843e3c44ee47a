package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/store"
)

type reportMode int

const (
	reportDaily reportMode = iota
	reportWeekly
)

type reportsModel struct {
	store  *store.Store
	now    func() time.Time
	width  int
	height int

	mode      reportMode
	summaries []store.DailySummary
	stats     *store.Stats
	offset    int // weeks or 7-day blocks back from today (0 = current)

	chart barchart.Model
}

func newReportsModel(s *store.Store, now func() time.Time) reportsModel {
	return reportsModel{
		store: s,
		now:   now,
		chart: barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	summaries []store.DailySummary
	stats     *store.Stats
}

func (r reportsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		from, to := r.dateRange()
		summaries, _ := r.store.GetDailySummary(from, to)
		stats, _ := r.store.GetStats(from, to)
		return reportsDataMsg{summaries: summaries, stats: stats}
	}
}

func (r reportsModel) dateRange() (time.Time, time.Time) {
	now := r.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch r.mode {
	case reportWeekly:
		weekday := today.Weekday()
		if weekday == time.Sunday {
			weekday = 7
		}
		startOfWeek := today.AddDate(0, 0, -int(weekday-time.Monday))
		startOfWeek = startOfWeek.AddDate(0, 0, -7*r.offset)
		return startOfWeek, startOfWeek.AddDate(0, 0, 7)
	default:
		end := today.AddDate(0, 0, 1-7*r.offset)
		start := end.AddDate(0, 0, -7)
		return start, end
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		r.summaries = msg.summaries
		r.stats = msg.stats
		r.buildChart()
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			r.offset++
			return r, r.refresh()
		case key.Matches(msg, keys.Right):
			if r.offset > 0 {
				r.offset--
			}
			return r, r.refresh()
		case key.Matches(msg, keys.Enter):
			if r.mode == reportDaily {
				r.mode = reportWeekly
			} else {
				r.mode = reportDaily
			}
			r.offset = 0
			return r, r.refresh()
		}
	}
	return r, nil
}

// buildChart stacks detention hours per facility for each day in range.
func (r *reportsModel) buildChart() {
	chartWidth := r.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)

	from, to := r.dateRange()

	var bars []barchart.BarData
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		dateStr := d.Format("2006-01-02")
		label := d.Format("Mon 02")

		var values []barchart.BarValue
		for _, s := range r.summaries {
			if s.Date == dateStr && s.DetentionMinutes > 0 {
				values = append(values, barchart.BarValue{
					Name:  s.FacilityName,
					Value: float64(s.DetentionMinutes) / 60.0,
					Style: lipgloss.NewStyle().Foreground(facilityColor(s.FacilityID)),
				})
			}
		}

		if len(values) == 0 {
			values = []barchart.BarValue{{Name: "", Value: 0, Style: lipgloss.NewStyle().Foreground(colorSubtle)}}
		}

		bars = append(bars, barchart.BarData{
			Label:  label,
			Values: values,
		})
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	dailyTab := inactiveTabStyle.Render("Daily")
	weeklyTab := inactiveTabStyle.Render("Weekly")
	if r.mode == reportDaily {
		dailyTab = activeTabStyle.Render("Daily")
	} else {
		weeklyTab = activeTabStyle.Render("Weekly")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, dailyTab, weeklyTab)

	from, to := r.dateRange()
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s to %s", from.Format("Jan 02"), to.Add(-24*time.Hour).Format("Jan 02, 2006")))

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", modeTabs, "  ", dateLabel,
	)

	chartTitle := subtitleStyle.Render("Detention hours")
	chartView := r.chart.View()
	statsView := r.renderStats()
	tableView := r.renderSummaryTable(w)
	legend := r.renderLegend()

	nav := mutedStyle.Render("  ←/→: navigate  enter: switch mode")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", statsView, "", chartTitle, chartView, "", legend, "", tableView, "", nav,
		),
	)
}

func (r reportsModel) renderStats() string {
	st := r.stats
	if st == nil {
		st = &store.Stats{}
	}
	var detentionSecs int64
	for _, s := range r.summaries {
		detentionSecs += s.DetentionMinutes * 60
	}
	label := func(s string) string { return mutedStyle.Render(s) }
	line1 := fmt.Sprintf("  %s %d   %s %s   %s %s   %s %s",
		label("Events"), st.TotalEvents,
		label("Detention"), accentStyle.Render(formatHours(detentionSecs)),
		label("Detention rate"), accentStyle.Render(fmt.Sprintf("%.0f%%", st.DetentionRate)),
		label("Avg dwell"), billing.FormatMinutes(int64(st.AvgDwellMinutes+0.5)),
	)
	line2 := fmt.Sprintf("  %s %s   %s %s   %s %s",
		label("Billed"), earningsStyle.Render(billing.FormatCurrency(st.TotalBilled)),
		label("Paid"), successStyle.Render(billing.FormatCurrency(st.TotalPaid)),
		label("Outstanding"), warningStyle.Render(billing.FormatCurrency(st.Outstanding)),
	)
	return line1 + "\n" + line2
}

func (r reportsModel) renderSummaryTable(w int) string {
	if len(r.summaries) == 0 {
		return mutedStyle.Render("  No data for this period")
	}

	var rows []string
	headerRow := mutedStyle.Render(fmt.Sprintf("  %-12s %-24s %8s %10s %10s %10s", "Date", "Facility", "Events", "Dwell", "Detention", "Earned"))
	rows = append(rows, headerRow)
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 78))))

	for _, s := range r.summaries {
		colorDot := lipgloss.NewStyle().Foreground(facilityColor(s.FacilityID)).Render("●")
		rows = append(rows, fmt.Sprintf("  %-12s %s %-22s %8d %10s %10s %10s",
			s.Date, colorDot, s.FacilityName, s.EventCount,
			billing.FormatDuration(s.DwellSeconds),
			billing.FormatMinutes(s.DetentionMinutes),
			billing.FormatCurrency(s.Earnings),
		))
	}

	return strings.Join(rows, "\n")
}

func (r reportsModel) renderLegend() string {
	seen := make(map[int64]bool)
	var items []string
	for _, s := range r.summaries {
		if seen[s.FacilityID] {
			continue
		}
		seen[s.FacilityID] = true
		dot := lipgloss.NewStyle().Foreground(facilityColor(s.FacilityID)).Render("●")
		items = append(items, fmt.Sprintf("%s %s", dot, s.FacilityName))
	}
	if len(items) == 0 {
		return ""
	}
	return "  " + strings.Join(items, "  ")
}
