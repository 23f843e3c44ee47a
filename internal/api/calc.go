package api

import (
	"net/http"
	"time"

	"github.com/sadopc/dwell/internal/billing"
)

// calcRequest prices an arbitrary interval. Terms left out fall back to the
// stored defaults, and a missing end time means now.
type calcRequest struct {
	Arrival            time.Time  `json:"arrival_time"`
	Departure          *time.Time `json:"departure_time"`
	GracePeriodMinutes *int       `json:"grace_period_minutes"`
	HourlyRate         *float64   `json:"hourly_rate"`
}

type settlementView struct {
	DwellSeconds     int64   `json:"dwell_seconds"`
	DetentionMinutes int64   `json:"detention_minutes"`
	TotalAmount      float64 `json:"total_amount"`
	Detention        string  `json:"detention"`
	Amount           string  `json:"amount"`
}

func (s *Server) decodeCalc(w http.ResponseWriter, r *http.Request) (calcRequest, billing.Terms, error) {
	var req calcRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		return req, billing.Terms{}, err
	}
	if req.Arrival.IsZero() {
		return req, billing.Terms{}, badRequest("arrival_time is required")
	}

	terms := s.store.DefaultTerms()
	if req.GracePeriodMinutes != nil {
		if *req.GracePeriodMinutes < 0 {
			return req, terms, badRequest("grace_period_minutes must not be negative")
		}
		terms.GracePeriodMinutes = *req.GracePeriodMinutes
	}
	if req.HourlyRate != nil {
		terms.HourlyRate = *req.HourlyRate
	}
	return req, terms, nil
}

func (s *Server) handleCalcTimer(w http.ResponseWriter, r *http.Request) {
	req, terms, err := s.decodeCalc(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := s.tracker.Now()
	if req.Departure != nil {
		now = *req.Departure
	}
	writeJSON(w, http.StatusOK, newTimerView(billing.ComputeTimerState(req.Arrival, now, terms)))
}

func (s *Server) handleCalcSettlement(w http.ResponseWriter, r *http.Request) {
	req, terms, err := s.decodeCalc(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Departure == nil {
		writeError(w, r, badRequest("departure_time is required"))
		return
	}

	// A departure before arrival settles as zero dwell, same as the timer.
	dwell := max(int64(req.Departure.Sub(req.Arrival).Seconds()), 0)
	st := billing.ComputeDetentionAmount(req.Arrival, *req.Departure, terms)
	writeJSON(w, http.StatusOK, settlementView{
		DwellSeconds:     dwell,
		DetentionMinutes: st.DetentionMinutes,
		TotalAmount:      st.TotalAmount,
		Detention:        billing.FormatMinutes(st.DetentionMinutes),
		Amount:           billing.FormatCurrency(st.TotalAmount),
	})
}
