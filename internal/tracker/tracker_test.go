package tracker

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sadopc/dwell/internal/notify"
	"github.com/sadopc/dwell/internal/store"
)

var base = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *store.Store
	pub   *notify.FakePublisher
	clock *FixedClock
	fac   *store.Facility
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	f, err := s.CreateFacility(store.FacilityInput{Name: "Kroger Mid-Atlantic DC"})
	if err != nil {
		t.Fatal(err)
	}
	pub := notify.NewFakePublisher()
	clock := NewFixedClock(base)
	return &fixture{svc: New(s, pub, clock), store: s, pub: pub, clock: clock, fac: f}
}

func (fx *fixture) checkIn(t *testing.T) *store.DetentionEvent {
	t.Helper()
	e, err := fx.svc.CheckIn(context.Background(), CheckInRequest{FacilityID: fx.fac.ID, LoadNumber: "884213"})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	return e
}

// ============================================================
// Check in / check out
// ============================================================

func TestCheckInUsesDefaults(t *testing.T) {
	fx := newFixture(t)
	e := fx.checkIn(t)

	if !e.ArrivalTime.Equal(base) {
		t.Fatalf("arrival = %v, want clock time", e.ArrivalTime)
	}
	if e.GracePeriodMinutes != 120 || e.HourlyRate != 75 {
		t.Fatalf("terms = %d/%v, want defaults", e.GracePeriodMinutes, e.HourlyRate)
	}
	if got := fx.pub.Types(); !reflect.DeepEqual(got, []notify.EventType{notify.CheckedIn}) {
		t.Fatalf("published %v", got)
	}
	if fx.pub.Events[0].Facility != "Kroger Mid-Atlantic DC" || fx.pub.Events[0].LoadNumber != "884213" {
		t.Fatalf("unexpected event: %+v", fx.pub.Events[0])
	}
}

func TestCheckInUsesFacilityOverride(t *testing.T) {
	fx := newFixture(t)
	grace, rate := 60, 90.0
	if err := fx.store.UpdateFacility(fx.fac.ID, store.FacilityInput{Name: fx.fac.Name, GracePeriodMinutes: &grace, HourlyRate: &rate}); err != nil {
		t.Fatal(err)
	}
	fx.store.SetSetting(store.SettingHourlyRate, "50")

	e := fx.checkIn(t)
	if e.GracePeriodMinutes != 60 || e.HourlyRate != 90 {
		t.Fatalf("terms = %d/%v, want facility override", e.GracePeriodMinutes, e.HourlyRate)
	}
}

func TestCheckInUsesSettingsDefaults(t *testing.T) {
	fx := newFixture(t)
	fx.store.SetSetting(store.SettingGracePeriod, "90")
	fx.store.SetSetting(store.SettingHourlyRate, "65")

	e := fx.checkIn(t)
	if e.GracePeriodMinutes != 90 || e.HourlyRate != 65 {
		t.Fatalf("terms = %d/%v, want stored defaults", e.GracePeriodMinutes, e.HourlyRate)
	}
}

func TestCheckInWithLocationAndArrival(t *testing.T) {
	fx := newFixture(t)
	arrival := base.Add(-30 * time.Minute)
	e, err := fx.svc.CheckIn(context.Background(), CheckInRequest{
		FacilityID: fx.fac.ID,
		EventType:  store.EventPickup,
		Arrival:    &arrival,
		Location:   &Location{Latitude: 39.28, Longitude: -76.61, AccuracyMeters: 8},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !e.ArrivalTime.Equal(arrival) || e.EventType != store.EventPickup {
		t.Fatalf("unexpected event: %+v", e)
	}

	points, _ := fx.store.ListLocations(e.ID)
	if len(points) != 1 || points[0].Kind != store.LocationArrival {
		t.Fatalf("expected one arrival fix, got %+v", points)
	}
}

func TestCheckInRejectsBadLocation(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.CheckIn(context.Background(), CheckInRequest{
		FacilityID: fx.fac.ID,
		Location:   &Location{Latitude: 91, Longitude: 0},
	})
	if !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
	if active, _ := fx.store.GetActiveEvent(); active != nil {
		t.Fatal("rejected check-in must not open an event")
	}
	if len(fx.pub.Events) != 0 {
		t.Fatal("nothing should be published")
	}
}

func TestCheckInArchivedFacility(t *testing.T) {
	fx := newFixture(t)
	fx.store.ArchiveFacility(fx.fac.ID)
	_, err := fx.svc.CheckIn(context.Background(), CheckInRequest{FacilityID: fx.fac.ID})
	if !errors.Is(err, ErrFacilityArchived) {
		t.Fatalf("expected ErrFacilityArchived, got %v", err)
	}
}

func TestCheckInTwice(t *testing.T) {
	fx := newFixture(t)
	fx.checkIn(t)
	_, err := fx.svc.CheckIn(context.Background(), CheckInRequest{FacilityID: fx.fac.ID})
	if !errors.Is(err, store.ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
}

func TestCheckOut(t *testing.T) {
	fx := newFixture(t)
	e := fx.checkIn(t)

	fx.clock.Advance(4 * time.Hour)
	done, err := fx.svc.CheckOut(context.Background(), e.ID, &Location{Latitude: 39.3, Longitude: -76.6})
	if err != nil {
		t.Fatal(err)
	}
	if done.DetentionMinutes != 120 || done.TotalAmount != 150 {
		t.Fatalf("settlement = %d min / %v", done.DetentionMinutes, done.TotalAmount)
	}

	last := fx.pub.Events[len(fx.pub.Events)-1]
	if last.Type != notify.CheckedOut || last.Amount != 150 || last.ElapsedSeconds != 4*3600 || last.DetentionSeconds != 2*3600 {
		t.Fatalf("unexpected checked_out event: %+v", last)
	}

	points, _ := fx.store.ListLocations(e.ID)
	if len(points) != 1 || points[0].Kind != store.LocationDeparture {
		t.Fatalf("expected one departure fix, got %+v", points)
	}

	snap, err := fx.svc.Active(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("no event should be active: %+v %v", snap, err)
	}
}

func TestCheckOutTwice(t *testing.T) {
	fx := newFixture(t)
	e := fx.checkIn(t)
	fx.svc.CheckOut(context.Background(), e.ID, nil)
	_, err := fx.svc.CheckOut(context.Background(), e.ID, nil)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPublishFailureDoesNotBlock(t *testing.T) {
	fx := newFixture(t)
	fx.pub.PublishError = errors.New("broker unreachable")

	e := fx.checkIn(t)
	fx.clock.Advance(time.Hour)
	if _, err := fx.svc.CheckOut(context.Background(), e.ID, nil); err != nil {
		t.Fatalf("check out should succeed without the broker: %v", err)
	}
}

// ============================================================
// Live timer
// ============================================================

func TestActiveSnapshot(t *testing.T) {
	fx := newFixture(t)
	fx.checkIn(t)
	fx.clock.Advance(2*time.Hour + 30*time.Minute)

	snap, err := fx.svc.Active(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Facility.ID != fx.fac.ID || !snap.At.Equal(fx.clock.Now()) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	tm := snap.Timer
	if tm.ElapsedSeconds != 9000 || tm.DetentionSeconds != 1800 || !tm.IsDetentionActive || tm.IsInGracePeriod {
		t.Fatalf("timer = %+v", tm)
	}
	if tm.CurrentEarnings != 37.5 {
		t.Fatalf("earnings = %v, want 37.5", tm.CurrentEarnings)
	}
}

func TestTickNotifications(t *testing.T) {
	fx := newFixture(t)
	fx.checkIn(t)
	ctx := context.Background()

	steps := []struct {
		at   time.Duration
		want []notify.EventType
	}{
		{0, nil},
		{time.Hour + 45*time.Minute, nil}, // exactly 15 minutes left
		{time.Hour + 45*time.Minute + time.Second, []notify.EventType{notify.GraceWarning}},
		{time.Hour + 50*time.Minute, nil},
		{2 * time.Hour, nil}, // grace just ended, nothing billable yet
		{2*time.Hour + time.Second, []notify.EventType{notify.DetentionStarted}},
		{3 * time.Hour, nil},
	}

	for _, st := range steps {
		fx.pub.Reset()
		fx.clock.Set(base.Add(st.at))
		if _, err := fx.svc.Tick(ctx); err != nil {
			t.Fatalf("tick at %v: %v", st.at, err)
		}
		got := fx.pub.Types()
		if len(got) == 0 {
			got = nil
		}
		if !reflect.DeepEqual(got, st.want) {
			t.Fatalf("at %v published %v, want %v", st.at, got, st.want)
		}
	}
}

func TestTickLateCheckInSkipsGraceWarning(t *testing.T) {
	fx := newFixture(t)
	arrival := base.Add(-3 * time.Hour)
	if _, err := fx.svc.CheckIn(context.Background(), CheckInRequest{FacilityID: fx.fac.ID, Arrival: &arrival}); err != nil {
		t.Fatal(err)
	}
	fx.pub.Reset()

	fx.svc.Tick(context.Background())
	if got := fx.pub.Types(); !reflect.DeepEqual(got, []notify.EventType{notify.DetentionStarted}) {
		t.Fatalf("published %v", got)
	}
	if fx.pub.Events[0].Amount != 75 {
		t.Fatalf("amount = %v, want 75", fx.pub.Events[0].Amount)
	}
}

func TestTickNoActiveEvent(t *testing.T) {
	fx := newFixture(t)
	snap, err := fx.svc.Tick(context.Background())
	if err != nil || snap != nil {
		t.Fatalf("expected nil snapshot, got %+v %v", snap, err)
	}
}

func TestTickForgetsDeletedEvent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	e := fx.checkIn(t)
	fx.clock.Advance(3 * time.Hour)
	fx.svc.Tick(ctx)
	if len(fx.svc.sent) != 1 {
		t.Fatalf("tracked events = %d, want 1", len(fx.svc.sent))
	}

	if err := fx.store.DeleteEvent(e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	fx.svc.Tick(ctx)
	if len(fx.svc.sent) != 0 {
		t.Fatalf("deleted event still tracked: %d entries", len(fx.svc.sent))
	}

	next := fx.checkIn(t)
	fx.clock.Advance(time.Minute)
	fx.svc.Tick(ctx)
	if _, ok := fx.svc.sent[e.ID]; ok || len(fx.svc.sent) != 1 {
		t.Fatalf("only event %d should be tracked, got %v", next.ID, fx.svc.sent)
	}
}

func TestCheckInStampsClockTime(t *testing.T) {
	fx := newFixture(t)
	arrival := base.Add(-30 * time.Minute)
	e, err := fx.svc.CheckIn(context.Background(), CheckInRequest{FacilityID: fx.fac.ID, Arrival: &arrival})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if !e.CreatedAt.Equal(base) {
		t.Fatalf("created_at = %v, want clock time %v", e.CreatedAt, base)
	}
}

func TestTickResetsForNextEvent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	e := fx.checkIn(t)
	fx.clock.Advance(3 * time.Hour)
	fx.svc.Tick(ctx)
	fx.svc.CheckOut(ctx, e.ID, nil)

	fx.checkIn(t)
	fx.clock.Advance(3 * time.Hour)
	fx.pub.Reset()
	fx.svc.Tick(ctx)
	if got := fx.pub.Types(); !reflect.DeepEqual(got, []notify.EventType{notify.DetentionStarted}) {
		t.Fatalf("second event should announce again, got %v", got)
	}
}

// ============================================================
// Evidence
// ============================================================

func TestRecordLocation(t *testing.T) {
	fx := newFixture(t)
	e := fx.checkIn(t)
	ctx := context.Background()

	p, err := fx.svc.RecordLocation(ctx, e.ID, "", Location{Latitude: 39.2, Longitude: -76.5})
	if err != nil {
		t.Fatal(err)
	}
	if p.Kind != store.LocationTrack || !p.RecordedAt.Equal(base) {
		t.Fatalf("unexpected point: %+v", p)
	}

	if _, err := fx.svc.RecordLocation(ctx, e.ID, "teleport", Location{}); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation for kind, got %v", err)
	}
	if _, err := fx.svc.RecordLocation(ctx, e.ID, "", Location{Longitude: -181}); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation for longitude, got %v", err)
	}
	if _, err := fx.svc.RecordLocation(ctx, 999, "", Location{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachPhoto(t *testing.T) {
	fx := newFixture(t)
	e := fx.checkIn(t)
	ctx := context.Background()

	if _, err := fx.svc.AttachPhoto(ctx, e.ID, "  ", "", nil); !errors.Is(err, ErrEmptyPhotoPath) {
		t.Fatalf("expected ErrEmptyPhotoPath, got %v", err)
	}

	p, err := fx.svc.AttachPhoto(ctx, e.ID, "/sdcard/DCIM/gate.jpg", "gate line", &Location{Latitude: 39.2, Longitude: -76.5})
	if err != nil {
		t.Fatal(err)
	}
	if p.Latitude == nil || *p.Latitude != 39.2 || p.Caption != "gate line" {
		t.Fatalf("unexpected photo: %+v", p)
	}
}

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		loc   Location
		valid bool
	}{
		{Location{Latitude: 0, Longitude: 0}, true},
		{Location{Latitude: 90, Longitude: 180}, true},
		{Location{Latitude: -90, Longitude: -180}, true},
		{Location{Latitude: 90.01}, false},
		{Location{Longitude: 180.5}, false},
		{Location{AccuracyMeters: -1}, false},
	}
	for _, tt := range tests {
		err := tt.loc.Validate()
		if (err == nil) != tt.valid {
			t.Errorf("Validate(%+v) = %v, valid=%v", tt.loc, err, tt.valid)
		}
	}
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(base)
	c.Advance(90 * time.Second)
	if !c.Now().Equal(base.Add(90 * time.Second)) {
		t.Fatalf("Advance: %v", c.Now())
	}
	c.Set(base)
	if !c.Now().Equal(base) {
		t.Fatalf("Set: %v", c.Now())
	}
}
