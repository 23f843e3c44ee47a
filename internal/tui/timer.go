package tui

import (
	"context"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/logger"
	"github.com/sadopc/dwell/internal/store"
	"github.com/sadopc/dwell/internal/tracker"
)

// timerModel keeps the live detention snapshot separate from display.
// The tracker owns the event; the model only caches the last evaluation.
type timerModel struct {
	tracker *tracker.Service
	snap    *tracker.Snapshot
}

func newTimerModel(t *tracker.Service) timerModel {
	return timerModel{tracker: t}
}

// load picks up an event left open by a previous session.
func (t *timerModel) load() error {
	snap, err := t.tracker.Active(context.Background())
	if err != nil {
		return err
	}
	t.snap = snap
	return nil
}

func (t *timerModel) checkIn(facilityID int64, loadNumber, eventType string) (*store.DetentionEvent, error) {
	ctx := context.Background()
	e, err := t.tracker.CheckIn(ctx, tracker.CheckInRequest{
		FacilityID: facilityID,
		LoadNumber: loadNumber,
		EventType:  eventType,
	})
	if err != nil {
		return nil, err
	}
	t.snap, err = t.tracker.Active(ctx)
	return e, err
}

func (t *timerModel) checkOut() (*store.DetentionEvent, error) {
	if t.snap == nil {
		return nil, nil
	}
	e, err := t.tracker.CheckOut(context.Background(), t.snap.Event.ID, nil)
	if err != nil {
		return nil, err
	}
	t.snap = nil
	return e, nil
}

// tick re-evaluates the running event. Failures keep the last snapshot.
func (t *timerModel) tick() {
	if t.snap == nil {
		return
	}
	snap, err := t.tracker.Tick(context.Background())
	if err != nil {
		logger.Warnf(context.Background(), "timer tick: %v", err)
		return
	}
	t.snap = snap
}

func (t timerModel) running() bool {
	return t.snap != nil
}

func (t timerModel) state() billing.TimerState {
	if t.snap == nil {
		return billing.TimerState{}
	}
	return t.snap.Timer
}

func (t timerModel) facilityName() string {
	if t.snap == nil || t.snap.Facility == nil {
		return ""
	}
	return t.snap.Facility.Name
}

func (t timerModel) event() *store.DetentionEvent {
	if t.snap == nil {
		return nil
	}
	return t.snap.Event
}
