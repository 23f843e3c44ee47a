// Package tracker runs the live detention timer: check-in, check-out, the
// per-second snapshot and the lifecycle notifications that go with them.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/logger"
	"github.com/sadopc/dwell/internal/metrics"
	"github.com/sadopc/dwell/internal/notify"
	"github.com/sadopc/dwell/internal/store"
)

// GraceWarningLead is how close to the end of grace the warning fires.
const GraceWarningLead = 15 * time.Minute

var (
	ErrInvalidLocation  = errors.New("invalid location")
	ErrFacilityArchived = errors.New("facility is archived")
	ErrEmptyPhotoPath   = errors.New("photo path is required")
)

// Location is a GPS fix supplied by the driver's device.
type Location struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracy_meters,omitempty"`
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidLocation, l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidLocation, l.Longitude)
	}
	if l.AccuracyMeters < 0 {
		return fmt.Errorf("%w: negative accuracy", ErrInvalidLocation)
	}
	return nil
}

// CheckInRequest describes an arrival. A nil Arrival means now.
type CheckInRequest struct {
	FacilityID int64
	BrokerID   *int64
	LoadNumber string
	EventType  string
	Notes      string
	Arrival    *time.Time
	Location   *Location
}

// Snapshot is the active event with its timer evaluated at At.
type Snapshot struct {
	Event    *store.DetentionEvent
	Facility *store.Facility
	Timer    billing.TimerState
	At       time.Time
}

// announced remembers which one-shot notifications an event has produced.
type announced struct {
	graceWarning     bool
	detentionStarted bool
}

type Service struct {
	store *store.Store
	pub   notify.Publisher
	clock Clock

	mu   sync.Mutex
	sent map[int64]*announced
}

// New creates a tracker. A nil publisher discards notifications and a nil
// clock reads the wall clock.
func New(s *store.Store, pub notify.Publisher, clock Clock) *Service {
	if pub == nil {
		pub = notify.NopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{store: s, pub: pub, clock: clock, sent: make(map[int64]*announced)}
}

// Store exposes the underlying store for read-only views.
func (s *Service) Store() *store.Store { return s.store }

// Now returns the tracker's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// CheckIn opens a detention event at a facility under the facility's terms,
// falling back to the user's defaults.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (*store.DetentionEvent, error) {
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			return nil, err
		}
	}

	f, err := s.store.GetFacility(req.FacilityID)
	if err != nil {
		return nil, err
	}
	if f.Archived {
		return nil, fmt.Errorf("check in at %q: %w", f.Name, ErrFacilityArchived)
	}

	arrival := s.clock.Now()
	if req.Arrival != nil {
		arrival = *req.Arrival
	}

	e, err := s.store.CheckIn(store.CheckIn{
		FacilityID: f.ID,
		BrokerID:   req.BrokerID,
		LoadNumber: req.LoadNumber,
		EventType:  req.EventType,
		Arrival:    arrival,
		Terms:      f.Terms(s.store.DefaultTerms()),
		Notes:      req.Notes,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	if req.Location != nil {
		s.addLocation(ctx, e.ID, store.LocationArrival, *req.Location, arrival)
	}

	metrics.CheckIns.WithLabelValues(e.EventType).Inc()
	metrics.ActiveEvents.Set(1)

	ctx = logger.WithKV(ctx, "event_id", e.ID, "facility", f.Name)
	logger.InfoKV(ctx, "checked in", "load", e.LoadNumber, "grace_minutes", e.GracePeriodMinutes, "rate", e.HourlyRate)

	s.publish(ctx, notify.Event{
		Type:       notify.CheckedIn,
		EventID:    e.ID,
		Facility:   f.Name,
		LoadNumber: e.LoadNumber,
		Timestamp:  e.ArrivalTime,
	})
	return e, nil
}

// CheckOut settles the event at the current time.
func (s *Service) CheckOut(ctx context.Context, eventID int64, loc *Location) (*store.DetentionEvent, error) {
	if loc != nil {
		if err := loc.Validate(); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	e, err := s.store.CheckOut(eventID, now)
	if err != nil {
		return nil, err
	}

	if loc != nil {
		s.addLocation(ctx, e.ID, store.LocationDeparture, *loc, now)
	}

	s.mu.Lock()
	delete(s.sent, e.ID)
	s.mu.Unlock()

	metrics.ObserveSettlement(e.DetentionMinutes, e.TotalAmount)
	metrics.ActiveEvents.Set(0)

	name := s.facilityName(e.FacilityID)
	ctx = logger.WithKV(ctx, "event_id", e.ID, "facility", name)
	logger.InfoKV(ctx, "checked out",
		"dwell", billing.FormatTime(e.DwellSeconds()),
		"detention_minutes", e.DetentionMinutes,
		"amount", billing.FormatCurrency(e.TotalAmount),
	)

	final := billing.ComputeTimerState(e.ArrivalTime, *e.DepartureTime, e.Terms())
	s.publish(ctx, notify.Event{
		Type:             notify.CheckedOut,
		EventID:          e.ID,
		Facility:         name,
		LoadNumber:       e.LoadNumber,
		Timestamp:        *e.DepartureTime,
		ElapsedSeconds:   final.ElapsedSeconds,
		DetentionSeconds: final.DetentionSeconds,
		Amount:           e.TotalAmount,
	})
	return e, nil
}

// Active returns the open event evaluated at the current time, or nil when
// the driver is not checked in.
func (s *Service) Active(ctx context.Context) (*Snapshot, error) {
	e, err := s.store.GetActiveEvent()
	if err != nil || e == nil {
		return nil, err
	}
	f, err := s.store.GetFacility(e.FacilityID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return &Snapshot{
		Event:    e,
		Facility: f,
		Timer:    billing.ComputeTimerState(e.ArrivalTime, now, e.Terms()),
		At:       now,
	}, nil
}

// Tick refreshes the active snapshot and emits the one-shot grace warning
// and detention-started notifications when their thresholds are crossed.
func (s *Service) Tick(ctx context.Context) (*Snapshot, error) {
	snap, err := s.Active(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		s.mu.Lock()
		clear(s.sent)
		s.mu.Unlock()
		return nil, nil
	}

	var due []notify.EventType

	s.mu.Lock()
	// Only the active event can still announce; drop events that were
	// closed or deleted behind the tracker's back.
	for id := range s.sent {
		if id != snap.Event.ID {
			delete(s.sent, id)
		}
	}
	a, ok := s.sent[snap.Event.ID]
	if !ok {
		a = &announced{}
		s.sent[snap.Event.ID] = a
	}
	t := snap.Timer
	if !a.graceWarning && t.IsInGracePeriod && t.GraceRemainingSeconds() < int64(GraceWarningLead.Seconds()) {
		a.graceWarning = true
		due = append(due, notify.GraceWarning)
	}
	if !a.detentionStarted && t.IsDetentionActive {
		a.detentionStarted = true
		a.graceWarning = true
		due = append(due, notify.DetentionStarted)
	}
	s.mu.Unlock()

	ctx = logger.WithKV(ctx, "event_id", snap.Event.ID, "facility", snap.Facility.Name)
	for _, typ := range due {
		if typ == notify.DetentionStarted {
			logger.InfoKV(ctx, "detention started", "elapsed", billing.FormatTime(t.ElapsedSeconds))
		}
		s.publish(ctx, notify.Event{
			Type:             typ,
			EventID:          snap.Event.ID,
			Facility:         snap.Facility.Name,
			LoadNumber:       snap.Event.LoadNumber,
			Timestamp:        snap.At,
			ElapsedSeconds:   t.ElapsedSeconds,
			DetentionSeconds: t.DetentionSeconds,
			Amount:           t.CurrentEarnings,
		})
	}
	return snap, nil
}

// RecordLocation stores a GPS fix against an event.
func (s *Service) RecordLocation(ctx context.Context, eventID int64, kind string, loc Location) (*store.LocationPoint, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case "", store.LocationTrack, store.LocationArrival, store.LocationDeparture:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidLocation, kind)
	}
	return s.store.AddLocation(store.LocationPoint{
		EventID:        eventID,
		Kind:           kind,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		AccuracyMeters: loc.AccuracyMeters,
		RecordedAt:     s.clock.Now(),
	})
}

// AttachPhoto records photo metadata against an event. The file itself is
// not copied.
func (s *Service) AttachPhoto(ctx context.Context, eventID int64, path, caption string, loc *Location) (*store.Photo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrEmptyPhotoPath
	}
	p := store.Photo{EventID: eventID, Path: path, Caption: caption, TakenAt: s.clock.Now()}
	if loc != nil {
		if err := loc.Validate(); err != nil {
			return nil, err
		}
		p.Latitude = &loc.Latitude
		p.Longitude = &loc.Longitude
	}
	photo, err := s.store.AddPhoto(p)
	if err != nil {
		return nil, err
	}
	logger.DebugKV(ctx, "photo attached", "event_id", eventID, "path", path)
	return photo, nil
}

func (s *Service) addLocation(ctx context.Context, eventID int64, kind string, loc Location, at time.Time) {
	_, err := s.store.AddLocation(store.LocationPoint{
		EventID:        eventID,
		Kind:           kind,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		AccuracyMeters: loc.AccuracyMeters,
		RecordedAt:     at,
	})
	if err != nil {
		logger.WarnKV(ctx, "record location failed", "event_id", eventID, "kind", kind, "error", err)
	}
}

func (s *Service) facilityName(id int64) string {
	f, err := s.store.GetFacility(id)
	if err != nil {
		return ""
	}
	return f.Name
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	if err := s.pub.Publish(ev); err != nil {
		metrics.PublishFailures.WithLabelValues(string(ev.Type)).Inc()
		logger.WarnKV(ctx, "publish failed", "type", ev.Type, "error", err)
	}
}
