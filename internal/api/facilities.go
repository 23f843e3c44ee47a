package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sadopc/dwell/internal/store"
)

type facilityRequest struct {
	Name               string   `json:"name"`
	Address            string   `json:"address"`
	City               string   `json:"city"`
	State              string   `json:"state"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	GracePeriodMinutes *int     `json:"grace_period_minutes"`
	HourlyRate         *float64 `json:"hourly_rate"`
}

func (req facilityRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", errBadRequest)
	}
	if req.GracePeriodMinutes != nil && *req.GracePeriodMinutes < 0 {
		return fmt.Errorf("%w: grace_period_minutes must not be negative", errBadRequest)
	}
	if req.HourlyRate != nil && *req.HourlyRate < 0 {
		return fmt.Errorf("%w: hourly_rate must not be negative", errBadRequest)
	}
	return nil
}

func (s *Server) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	facilities, err := s.store.ListFacilities(r.URL.Query().Get("archived") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]facilityView, len(facilities))
	for i := range facilities {
		views[i] = newFacilityView(&facilities[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateFacility(w http.ResponseWriter, r *http.Request) {
	var req facilityRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	f, err := s.store.CreateFacility(store.FacilityInput{
		Name:               strings.TrimSpace(req.Name),
		Address:            req.Address,
		City:               req.City,
		State:              req.State,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		GracePeriodMinutes: req.GracePeriodMinutes,
		HourlyRate:         req.HourlyRate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newFacilityView(f))
}

type brokerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (s *Server) handleListBrokers(w http.ResponseWriter, r *http.Request) {
	brokers, err := s.store.ListBrokers(r.URL.Query().Get("archived") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]brokerView, len(brokers))
	for i := range brokers {
		views[i] = newBrokerView(&brokers[i])
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateBroker(w http.ResponseWriter, r *http.Request) {
	var req brokerRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, fmt.Errorf("%w: name is required", errBadRequest))
		return
	}

	b, err := s.store.CreateBroker(name, strings.TrimSpace(req.Email), strings.TrimSpace(req.Phone))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBrokerView(b))
}
