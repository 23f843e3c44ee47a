package api

import (
	"net/http"

	"github.com/sadopc/dwell/internal/store"
)

type statsView struct {
	TotalEvents         int     `json:"total_events"`
	EventsWithDetention int     `json:"events_with_detention"`
	DetentionRate       float64 `json:"detention_rate"`
	AvgDwellMinutes     float64 `json:"avg_dwell_minutes"`
	AvgDetentionMinutes float64 `json:"avg_detention_minutes"`
	TotalBilled         float64 `json:"total_billed"`
	TotalPaid           float64 `json:"total_paid"`
	Outstanding         float64 `json:"outstanding"`
	TodayEarnings       float64 `json:"today_earnings"`
}

type facilityStatsView struct {
	FacilityID          int64   `json:"facility_id"`
	FacilityName        string  `json:"facility_name"`
	EventCount          int     `json:"event_count"`
	AvgDwellMinutes     float64 `json:"avg_dwell_minutes"`
	AvgDetentionMinutes float64 `json:"avg_detention_minutes"`
	DetentionRate       float64 `json:"detention_rate"`
	TotalEarnings       float64 `json:"total_earnings"`
}

// handleStats aggregates completed events between the optional from and to
// query parameters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}

	st, err := s.store.GetStats(from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	today, err := s.store.GetTodayEarnings(s.tracker.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatsView(st, today))
}

func newStatsView(st *store.Stats, today float64) statsView {
	return statsView{
		TotalEvents:         st.TotalEvents,
		EventsWithDetention: st.EventsWithDetention,
		DetentionRate:       st.DetentionRate,
		AvgDwellMinutes:     st.AvgDwellMinutes,
		AvgDetentionMinutes: st.AvgDetentionMinutes,
		TotalBilled:         st.TotalBilled,
		TotalPaid:           st.TotalPaid,
		Outstanding:         st.Outstanding,
		TodayEarnings:       today,
	}
}

func (s *Server) handleFacilityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetFacilityStats()
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]facilityStatsView, len(stats))
	for i, fs := range stats {
		views[i] = facilityStatsView{
			FacilityID:          fs.FacilityID,
			FacilityName:        fs.FacilityName,
			EventCount:          fs.EventCount,
			AvgDwellMinutes:     fs.AvgDwellMinutes,
			AvgDetentionMinutes: fs.AvgDetentionMinutes,
			DetentionRate:       fs.DetentionRate,
			TotalEarnings:       fs.TotalEarnings,
		}
	}
	writeJSON(w, http.StatusOK, views)
}
