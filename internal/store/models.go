package store

import (
	"time"

	"github.com/sadopc/dwell/internal/billing"
)

// Event lifecycle states. Transitions only move forward:
// active -> completed -> invoiced -> paid.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusInvoiced  = "invoiced"
	StatusPaid      = "paid"
)

// Event types.
const (
	EventPickup   = "pickup"
	EventDelivery = "delivery"
)

// Location kinds.
const (
	LocationArrival   = "arrival"
	LocationDeparture = "departure"
	LocationTrack     = "track"
)

// Invoice states.
const (
	InvoiceDraft = "draft"
	InvoiceSent  = "sent"
	InvoicePaid  = "paid"
)

type Facility struct {
	ID        int64
	Name      string
	Address   string
	City      string
	State     string
	Latitude  *float64
	Longitude *float64

	// Nil means the user's default terms apply.
	GracePeriodMinutes *int
	HourlyRate         *float64

	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terms resolves the facility's billing terms against the given defaults.
func (f *Facility) Terms(defaults billing.Terms) billing.Terms {
	t := defaults
	if f == nil {
		return t
	}
	if f.GracePeriodMinutes != nil {
		t.GracePeriodMinutes = *f.GracePeriodMinutes
	}
	if f.HourlyRate != nil {
		t.HourlyRate = *f.HourlyRate
	}
	return t
}

// FacilityInput carries the editable facility fields.
type FacilityInput struct {
	Name               string
	Address            string
	City               string
	State              string
	Latitude           *float64
	Longitude          *float64
	GracePeriodMinutes *int
	HourlyRate         *float64
}

type Broker struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DetentionEvent struct {
	ID            int64
	FacilityID    int64
	BrokerID      *int64
	LoadNumber    string
	EventType     string
	ArrivalTime   time.Time
	DepartureTime *time.Time

	GracePeriodMinutes int
	HourlyRate         float64
	DetentionMinutes   int64
	TotalAmount        float64

	Status    string
	InvoiceID *int64
	Notes     string
	CreatedAt time.Time
}

// Terms returns the terms snapshotted onto the event at check-in.
func (e *DetentionEvent) Terms() billing.Terms {
	return billing.Terms{GracePeriodMinutes: e.GracePeriodMinutes, HourlyRate: e.HourlyRate}
}

// DwellSeconds is arrival to departure, or zero while the event is active.
func (e *DetentionEvent) DwellSeconds() int64 {
	if e.DepartureTime == nil {
		return 0
	}
	d := int64(e.DepartureTime.Sub(e.ArrivalTime).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// CheckIn describes a new arrival at a facility.
type CheckIn struct {
	FacilityID int64
	BrokerID   *int64
	LoadNumber string
	EventType  string
	Arrival    time.Time
	Terms      billing.Terms
	Notes      string
	CreatedAt  time.Time // defaults to the wall clock
}

type LocationPoint struct {
	ID             int64
	EventID        int64
	Kind           string
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	RecordedAt     time.Time
}

type Photo struct {
	ID        int64
	EventID   int64
	Path      string
	Caption   string
	Latitude  *float64
	Longitude *float64
	TakenAt   time.Time
}

type Invoice struct {
	ID             int64
	Number         string
	BrokerID       *int64
	RecipientEmail string
	TotalAmount    float64
	Status         string
	DueDate        time.Time
	CreatedAt      time.Time
	SentAt         *time.Time
	PaidAt         *time.Time
}

// NewInvoice is the input to CreateInvoice.
type NewInvoice struct {
	Number         string
	BrokerID       *int64
	RecipientEmail string
	EventIDs       []int64
	DueDate        time.Time
	CreatedAt      time.Time
}

type Setting struct {
	Key   string
	Value string
}

// EventFilter is used to filter detention events in queries.
type EventFilter struct {
	FacilityID *int64
	BrokerID   *int64
	Status     string
	From       *time.Time
	To         *time.Time
	Uninvoiced bool
	Limit      int
}

// DailySummary represents aggregated detention per facility per day.
type DailySummary struct {
	Date             string
	FacilityID       int64
	FacilityName     string
	DwellSeconds     int64
	DetentionMinutes int64
	Earnings         float64
	EventCount       int
}

// Stats aggregates completed events over a period.
type Stats struct {
	TotalEvents         int
	EventsWithDetention int
	DetentionRate       float64 // percent of events that ran past grace
	AvgDwellMinutes     float64
	AvgDetentionMinutes float64
	TotalBilled         float64
	TotalPaid           float64
	Outstanding         float64
}

// FacilityStats aggregates completed events at a single facility.
type FacilityStats struct {
	FacilityID          int64
	FacilityName        string
	EventCount          int
	AvgDwellMinutes     float64
	AvgDetentionMinutes float64
	DetentionRate       float64
	TotalEarnings       float64
}
