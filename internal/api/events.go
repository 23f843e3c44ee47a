package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sadopc/dwell/internal/store"
	"github.com/sadopc/dwell/internal/tracker"
)

type checkInRequest struct {
	FacilityID int64             `json:"facility_id"`
	BrokerID   *int64            `json:"broker_id"`
	LoadNumber string            `json:"load_number"`
	EventType  string            `json:"event_type"`
	Notes      string            `json:"notes"`
	Arrival    *time.Time        `json:"arrival_time"`
	Location   *tracker.Location `json:"location"`
}

type checkOutRequest struct {
	Location *tracker.Location `json:"location"`
}

type locationRequest struct {
	Kind string `json:"kind"`
	tracker.Location
}

type photoRequest struct {
	Path     string            `json:"path"`
	Caption  string            `json:"caption"`
	Location *tracker.Location `json:"location"`
}

type activeResponse struct {
	Event    eventView    `json:"event"`
	Facility facilityView `json:"facility"`
	Timer    timerView    `json:"timer"`
	At       time.Time    `json:"at"`
}

type eventDetail struct {
	eventView
	Locations []locationView `json:"locations"`
	Photos    []photoView    `json:"photos"`
}

type locationView struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

func newLocationView(p *store.LocationPoint) locationView {
	return locationView{
		ID:             p.ID,
		Kind:           p.Kind,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		AccuracyMeters: p.AccuracyMeters,
		RecordedAt:     p.RecordedAt,
	}
}

type photoView struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Caption   string    `json:"caption,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	TakenAt   time.Time `json:"taken_at"`
}

func newPhotoView(p *store.Photo) photoView {
	return photoView{
		ID:        p.ID,
		Path:      p.Path,
		Caption:   p.Caption,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		TakenAt:   p.TakenAt,
	}
}

// handleListEvents supports facility_id, broker_id, status, from, to,
// uninvoiced and limit query parameters.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.EventFilter
	var err error

	if f.FacilityID, err = queryInt64(r, "facility_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.BrokerID, err = queryInt64(r, "broker_id"); err != nil {
		writeError(w, r, err)
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !from.IsZero() {
		f.From = &from
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !to.IsZero() {
		f.To = &to
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, badRequest("invalid limit %q", v))
			return
		}
		f.Limit = n
	}
	f.Status = q.Get("status")
	f.Uninvoiced = q.Get("uninvoiced") == "true"

	events, err := s.store.ListEvents(f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventViews(events))
}

// handleActive returns the running event with its live timer, or 204.
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	snap, err := s.tracker.Tick(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, activeResponse{
		Event:    newEventView(snap.Event),
		Facility: newFacilityView(snap.Facility),
		Timer:    newTimerView(snap.Timer),
		At:       snap.At,
	})
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	if req.FacilityID <= 0 {
		writeError(w, r, badRequest("facility_id is required"))
		return
	}

	e, err := s.tracker.CheckIn(r.Context(), tracker.CheckInRequest{
		FacilityID: req.FacilityID,
		BrokerID:   req.BrokerID,
		LoadNumber: req.LoadNumber,
		EventType:  req.EventType,
		Notes:      req.Notes,
		Arrival:    req.Arrival,
		Location:   req.Location,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEventView(e))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.store.GetEvent(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	locations, err := s.store.ListLocations(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	photos, err := s.store.ListPhotos(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	detail := eventDetail{
		eventView: newEventView(e),
		Locations: make([]locationView, len(locations)),
		Photos:    make([]photoView, len(photos)),
	}
	for i := range locations {
		detail.Locations[i] = newLocationView(&locations[i])
	}
	for i := range photos {
		detail.Photos[i] = newPhotoView(&photos[i])
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req checkOutRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.tracker.CheckOut(r.Context(), id, req.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventView(e))
}

func (s *Server) handleAddLocation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req locationRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = store.LocationTrack
	}

	p, err := s.tracker.RecordLocation(r.Context(), id, kind, req.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLocationView(p))
}

func (s *Server) handleAddPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req photoRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := s.tracker.AttachPhoto(r.Context(), id, req.Path, req.Caption, req.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPhotoView(p))
}
