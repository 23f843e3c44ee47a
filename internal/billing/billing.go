// Package billing computes detention timer and settlement amounts.
//
// Everything in this package is a pure function of its inputs. Callers own
// scheduling (for example a one-second display refresh) and supply "now".
package billing

import (
	"math"
	"time"
)

const (
	// DefaultGracePeriodMinutes is the free time after arrival before
	// detention starts accruing.
	DefaultGracePeriodMinutes = 120
	// DefaultHourlyRate is the detention rate in currency units per hour.
	DefaultHourlyRate = 75.0
)

// Terms are the billing scalars a detention event is settled under.
type Terms struct {
	GracePeriodMinutes int
	HourlyRate         float64
}

// DefaultTerms is used wherever a caller has no facility or user override.
var DefaultTerms = Terms{
	GracePeriodMinutes: DefaultGracePeriodMinutes,
	HourlyRate:         DefaultHourlyRate,
}

// TimerState is the live view of a detention event at a given instant.
type TimerState struct {
	ElapsedSeconds     int64
	GracePeriodSeconds int64
	DetentionSeconds   int64
	IsInGracePeriod    bool
	IsDetentionActive  bool
	CurrentEarnings    float64
}

// GraceRemainingSeconds is how much of the grace period is left, never negative.
func (s TimerState) GraceRemainingSeconds() int64 {
	if !s.IsInGracePeriod {
		return 0
	}
	return s.GracePeriodSeconds - s.ElapsedSeconds
}

// Settlement is the invoiced result of a completed detention event.
type Settlement struct {
	DetentionMinutes int64
	TotalAmount      float64
}

// ComputeTimerState derives the live timer state between arrival and now.
// Sub-second precision is kept until the final cent rounding.
func ComputeTimerState(arrival, now time.Time, t Terms) TimerState {
	elapsed := int64(math.Floor(now.Sub(arrival).Seconds()))
	if elapsed < 0 {
		elapsed = 0
	}

	grace := int64(t.GracePeriodMinutes) * 60

	detention := elapsed - grace
	if detention < 0 {
		detention = 0
	}

	hours := float64(detention) / 3600

	return TimerState{
		ElapsedSeconds:     elapsed,
		GracePeriodSeconds: grace,
		DetentionSeconds:   detention,
		IsInGracePeriod:    elapsed < grace,
		IsDetentionActive:  detention > 0,
		CurrentEarnings:    roundCents(hours * t.HourlyRate),
	}
}

// ComputeDefaultTimerState is ComputeTimerState under DefaultTerms.
func ComputeDefaultTimerState(arrival, now time.Time) TimerState {
	return ComputeTimerState(arrival, now, DefaultTerms)
}

// ComputeDetentionAmount settles a completed event. Detention is rounded to
// whole minutes before it is priced, which keeps invoice lines auditable.
func ComputeDetentionAmount(arrival, departure time.Time, t Terms) Settlement {
	total := departure.Sub(arrival).Minutes()

	over := total - float64(t.GracePeriodMinutes)
	if over < 0 {
		over = 0
	}
	minutes := int64(roundHalfUp(over))

	hours := float64(minutes) / 60

	return Settlement{
		DetentionMinutes: minutes,
		TotalAmount:      roundCents(hours * t.HourlyRate),
	}
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// roundCents rounds money half-up to two places and never goes below zero.
func roundCents(amount float64) float64 {
	v := roundHalfUp(amount*100) / 100
	if v <= 0 {
		return 0
	}
	return v
}
