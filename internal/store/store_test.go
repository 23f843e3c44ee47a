package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/dwell/internal/billing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newFacility(t *testing.T, s *Store, name string) *Facility {
	t.Helper()
	f, err := s.CreateFacility(FacilityInput{Name: name, City: "Fontana", State: "CA"})
	if err != nil {
		t.Fatalf("create facility: %v", err)
	}
	return f
}

// settle is a test helper that checks in at arrival and out after dwell.
func settle(t *testing.T, s *Store, facilityID int64, arrival time.Time, dwell time.Duration, terms billing.Terms) *DetentionEvent {
	t.Helper()
	e, err := s.CheckIn(CheckIn{FacilityID: facilityID, LoadNumber: "L-1", Arrival: arrival, Terms: terms})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	e, err = s.CheckOut(e.ID, arrival.Add(dwell))
	if err != nil {
		t.Fatalf("check out: %v", err)
	}
	return e
}

func ptr[T any](v T) *T { return &v }

// ============================================================
// Store initialization
// ============================================================

func TestNewMemory(t *testing.T) {
	s, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var version int
	s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if version != 1 {
		t.Fatalf("expected user_version 1, got %d", version)
	}
}

func TestNewWithPath(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/sub/dwell.db"
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Reopen should succeed and not re-migrate
	s2, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	s2.Close()
}

func TestDefaultDBPath(t *testing.T) {
	path, err := DefaultDBPath()
	if err != nil {
		t.Fatal(err)
	}
	if path == "" {
		t.Fatal("empty path")
	}
}

func TestPragmasConfigured(t *testing.T) {
	s := newTestStore(t)

	var fk int
	s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if fk != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fk)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

// ============================================================
// Facilities
// ============================================================

func TestCreateAndGetFacility(t *testing.T) {
	s := newTestStore(t)
	f, err := s.CreateFacility(FacilityInput{
		Name:      "Walmart DC 6094",
		Address:   "1 Distribution Way",
		City:      "Fontana",
		State:     "CA",
		Latitude:  ptr(34.09),
		Longitude: ptr(-117.43),
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.ID == 0 || f.Name != "Walmart DC 6094" || f.City != "Fontana" {
		t.Fatalf("unexpected facility: %+v", f)
	}
	if f.Latitude == nil || *f.Latitude != 34.09 {
		t.Fatalf("latitude = %v", f.Latitude)
	}
	if f.GracePeriodMinutes != nil || f.HourlyRate != nil {
		t.Fatal("terms should be unset")
	}
	if f.CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be set")
	}

	got, err := s.GetFacilityByName("Walmart DC 6094")
	if err != nil || got.ID != f.ID {
		t.Fatalf("GetFacilityByName: %v %+v", err, got)
	}
}

func TestFacilityTerms(t *testing.T) {
	f := &Facility{}
	if got := f.Terms(billing.DefaultTerms); got != billing.DefaultTerms {
		t.Fatalf("no overrides should use defaults, got %+v", got)
	}

	f.GracePeriodMinutes = ptr(60)
	got := f.Terms(billing.DefaultTerms)
	if got.GracePeriodMinutes != 60 || got.HourlyRate != 75 {
		t.Fatalf("grace override: %+v", got)
	}

	f.HourlyRate = ptr(100.0)
	got = f.Terms(billing.DefaultTerms)
	if got.HourlyRate != 100 {
		t.Fatalf("rate override: %+v", got)
	}

	var nilFacility *Facility
	if nilFacility.Terms(billing.DefaultTerms) != billing.DefaultTerms {
		t.Fatal("nil facility should use defaults")
	}
}

func TestCreateFacilityDuplicateName(t *testing.T) {
	s := newTestStore(t)
	newFacility(t, s, "Dup")
	if _, err := s.CreateFacility(FacilityInput{Name: "Dup"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetFacilityNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFacility(999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAndArchiveFacilities(t *testing.T) {
	s := newTestStore(t)
	newFacility(t, s, "Zeta")
	a := newFacility(t, s, "Alpha")

	list, _ := s.ListFacilities(false)
	if len(list) != 2 || list[0].Name != "Alpha" {
		t.Fatalf("expected 2 facilities sorted by name, got %+v", list)
	}

	if err := s.ArchiveFacility(a.ID); err != nil {
		t.Fatal(err)
	}
	list, _ = s.ListFacilities(false)
	if len(list) != 1 {
		t.Fatal("archived facility should be hidden")
	}
	list, _ = s.ListFacilities(true)
	if len(list) != 2 {
		t.Fatal("archived facility should appear with includeArchived")
	}

	if err := s.ArchiveFacility(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("archive missing facility: %v", err)
	}
}

func TestUpdateFacility(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "Old")
	err := s.UpdateFacility(f.ID, FacilityInput{Name: "New", GracePeriodMinutes: ptr(90), HourlyRate: ptr(60.0)})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetFacility(f.ID)
	if got.Name != "New" || *got.GracePeriodMinutes != 90 || *got.HourlyRate != 60 {
		t.Fatalf("update failed: %+v", got)
	}
}

func TestUpsertFacility(t *testing.T) {
	s := newTestStore(t)
	f, created, err := s.UpsertFacility(FacilityInput{Name: "Kroger", HourlyRate: ptr(50.0)})
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}

	g, created, err := s.UpsertFacility(FacilityInput{Name: "Kroger", HourlyRate: ptr(65.0)})
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	if g.ID != f.ID || *g.HourlyRate != 65 {
		t.Fatalf("upsert should update in place: %+v", g)
	}
}

// ============================================================
// Brokers
// ============================================================

func TestBrokerCRUD(t *testing.T) {
	s := newTestStore(t)
	b, err := s.CreateBroker("CH Robinson", "ap@chr.example", "555-0100")
	if err != nil {
		t.Fatal(err)
	}
	if b.Email != "ap@chr.example" {
		t.Fatalf("unexpected broker: %+v", b)
	}

	if err := s.UpdateBroker(b.ID, "CHR", "billing@chr.example", ""); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetBroker(b.ID)
	if got.Name != "CHR" || got.Email != "billing@chr.example" {
		t.Fatalf("update failed: %+v", got)
	}

	s.ArchiveBroker(b.ID)
	list, _ := s.ListBrokers(false)
	if len(list) != 0 {
		t.Fatal("archived broker should be hidden")
	}
	list, _ = s.ListBrokers(true)
	if len(list) != 1 {
		t.Fatal("archived broker should appear with includeArchived")
	}

	if _, err := s.CreateBroker("CHR", "", ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.GetBroker(999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// ============================================================
// Detention events
// ============================================================

func TestCheckInAndOut(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")

	e, err := s.CheckIn(CheckIn{FacilityID: f.ID, LoadNumber: " 12345 ", Arrival: base, Terms: billing.DefaultTerms})
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != StatusActive || e.DepartureTime != nil {
		t.Fatalf("new event should be active: %+v", e)
	}
	if e.LoadNumber != "12345" {
		t.Fatalf("load number should be trimmed, got %q", e.LoadNumber)
	}
	if e.EventType != EventDelivery {
		t.Fatalf("default event type = %q", e.EventType)
	}
	if !e.ArrivalTime.Equal(base) {
		t.Fatalf("arrival = %v", e.ArrivalTime)
	}

	active, _ := s.GetActiveEvent()
	if active == nil || active.ID != e.ID {
		t.Fatal("expected the new event to be active")
	}

	done, err := s.CheckOut(e.ID, base.Add(4*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %q", done.Status)
	}
	if done.DetentionMinutes != 120 || done.TotalAmount != 150 {
		t.Fatalf("settlement = %d min / %v", done.DetentionMinutes, done.TotalAmount)
	}
	if done.DwellSeconds() != 4*3600 {
		t.Fatalf("dwell = %d", done.DwellSeconds())
	}

	active, _ = s.GetActiveEvent()
	if active != nil {
		t.Fatal("no event should be active")
	}
}

func TestCheckInUsesSnapshotTerms(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")

	e := settle(t, s, f.ID, base, 3*time.Hour+30*time.Minute, billing.Terms{GracePeriodMinutes: 120, HourlyRate: 100})
	if e.DetentionMinutes != 90 || e.TotalAmount != 150 {
		t.Fatalf("settlement = %d min / %v", e.DetentionMinutes, e.TotalAmount)
	}
	if e.Terms().HourlyRate != 100 {
		t.Fatal("terms should be stored on the event")
	}
}

func TestCheckInTwice(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")

	if _, err := s.CheckIn(CheckIn{FacilityID: f.ID, Arrival: base, Terms: billing.DefaultTerms}); err != nil {
		t.Fatal(err)
	}
	_, err := s.CheckIn(CheckIn{FacilityID: f.ID, Arrival: base, Terms: billing.DefaultTerms})
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
}

func TestCheckInBadInput(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")

	if _, err := s.CheckIn(CheckIn{FacilityID: f.ID, EventType: "layover", Arrival: base}); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if _, err := s.CheckIn(CheckIn{FacilityID: 999, Arrival: base}); err == nil {
		t.Fatal("expected foreign key error for missing facility")
	}
}

func TestCheckOutTwice(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e := settle(t, s, f.ID, base, time.Hour, billing.DefaultTerms)

	_, err := s.CheckOut(e.ID, base.Add(2*time.Hour))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCheckOutConcurrent(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e, err := s.CheckIn(CheckIn{FacilityID: f.ID, Arrival: base, Terms: billing.DefaultTerms})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CheckOut(e.ID, base.Add(time.Duration(3+i)*time.Hour))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrInvalidTransition):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d checkouts succeeded, want 1", ok)
	}
}

func TestCheckInCreatedAt(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	created := base.Add(-5 * time.Minute)

	e, err := s.CheckIn(CheckIn{FacilityID: f.ID, Arrival: base, Terms: billing.DefaultTerms, CreatedAt: created})
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if !e.CreatedAt.Equal(created) {
		t.Fatalf("created_at = %v, want %v", e.CreatedAt, created)
	}
}

func TestCheckOutNonExistent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CheckOut(999, base)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckOutBeforeArrival(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e := settle(t, s, f.ID, base, -time.Hour, billing.DefaultTerms)
	if e.DetentionMinutes != 0 || e.TotalAmount != 0 {
		t.Fatalf("departure before arrival should settle to zero: %+v", e)
	}
	if e.DwellSeconds() != 0 {
		t.Fatal("dwell should clamp to zero")
	}
}

func TestUpdateEventNotes(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e := settle(t, s, f.ID, base, time.Hour, billing.DefaultTerms)

	if err := s.UpdateEventNotes(e.ID, "door 14, no lumper"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetEvent(e.ID)
	if got.Notes != "door 14, no lumper" {
		t.Fatalf("notes = %q", got.Notes)
	}
	if err := s.UpdateEventNotes(999, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListEventsFilters(t *testing.T) {
	s := newTestStore(t)
	a := newFacility(t, s, "A")
	b := newFacility(t, s, "B")

	settle(t, s, a.ID, base, time.Hour, billing.DefaultTerms)
	settle(t, s, b.ID, base.Add(24*time.Hour), 3*time.Hour, billing.DefaultTerms)
	settle(t, s, a.ID, base.Add(48*time.Hour), 5*time.Hour, billing.DefaultTerms)

	all, _ := s.ListEvents(EventFilter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if !all[0].ArrivalTime.After(all[1].ArrivalTime) {
		t.Fatal("events should be newest first")
	}

	byFacility, _ := s.ListEvents(EventFilter{FacilityID: &a.ID})
	if len(byFacility) != 2 {
		t.Fatalf("facility filter: got %d", len(byFacility))
	}

	from := base.Add(12 * time.Hour)
	to := base.Add(36 * time.Hour)
	ranged, _ := s.ListEvents(EventFilter{From: &from, To: &to})
	if len(ranged) != 1 || ranged[0].FacilityID != b.ID {
		t.Fatalf("date filter: %+v", ranged)
	}

	limited, _ := s.ListEvents(EventFilter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limit: got %d", len(limited))
	}

	completed, _ := s.ListEvents(EventFilter{Status: StatusCompleted, Uninvoiced: true})
	if len(completed) != 3 {
		t.Fatalf("status filter: got %d", len(completed))
	}
}

func TestDeleteEvent(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e := settle(t, s, f.ID, base, 3*time.Hour, billing.DefaultTerms)
	s.AddLocation(LocationPoint{EventID: e.ID, Latitude: 1, Longitude: 1, RecordedAt: base})

	if err := s.DeleteEvent(e.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetEvent(e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("event should be gone")
	}
	points, _ := s.ListLocations(e.ID)
	if len(points) != 0 {
		t.Fatal("locations should cascade")
	}
}

func TestDeleteInvoicedEvent(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e := settle(t, s, f.ID, base, 3*time.Hour, billing.DefaultTerms)
	s.CreateInvoice(NewInvoice{Number: "INV-1", EventIDs: []int64{e.ID}, DueDate: base})

	if err := s.DeleteEvent(e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

// ============================================================
// Evidence
// ============================================================

func TestLocations(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e := settle(t, s, f.ID, base, time.Hour, billing.DefaultTerms)

	p, err := s.AddLocation(LocationPoint{EventID: e.ID, Kind: LocationArrival, Latitude: 34.1, Longitude: -117.4, AccuracyMeters: 5, RecordedAt: base})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == 0 {
		t.Fatal("expected ID")
	}
	s.AddLocation(LocationPoint{EventID: e.ID, Latitude: 34.2, Longitude: -117.5, RecordedAt: base.Add(time.Minute)})

	points, _ := s.ListLocations(e.ID)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Kind != LocationArrival || points[1].Kind != LocationTrack {
		t.Fatalf("kinds = %q, %q", points[0].Kind, points[1].Kind)
	}

	if _, err := s.AddLocation(LocationPoint{EventID: 999, RecordedAt: base}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPhotos(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e := settle(t, s, f.ID, base, time.Hour, billing.DefaultTerms)

	if _, err := s.AddPhoto(Photo{EventID: e.ID, Path: "/photos/bol.jpg", Caption: "BOL", TakenAt: base}); err != nil {
		t.Fatal(err)
	}
	s.AddPhoto(Photo{EventID: e.ID, Path: "/photos/gate.jpg", Latitude: ptr(34.1), Longitude: ptr(-117.4), TakenAt: base.Add(time.Minute)})

	photos, _ := s.ListPhotos(e.ID)
	if len(photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(photos))
	}
	if photos[0].Latitude != nil {
		t.Fatal("first photo has no coordinates")
	}
	if photos[1].Latitude == nil || *photos[1].Latitude != 34.1 {
		t.Fatal("second photo coordinates lost")
	}
}

// ============================================================
// Invoices
// ============================================================

func TestInvoiceLifecycle(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	b, _ := s.CreateBroker("TQL", "ap@tql.example", "")
	e1 := settle(t, s, f.ID, base, 4*time.Hour, billing.DefaultTerms)
	e2 := settle(t, s, f.ID, base.Add(24*time.Hour), 2*time.Hour+20*time.Minute, billing.DefaultTerms)

	inv, err := s.CreateInvoice(NewInvoice{
		Number:         "INV-20240101-ABCD",
		BrokerID:       &b.ID,
		RecipientEmail: b.Email,
		EventIDs:       []int64{e1.ID, e2.ID},
		DueDate:        base.Add(30 * 24 * time.Hour),
		CreatedAt:      base,
	})
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != InvoiceDraft || inv.TotalAmount != 175 {
		t.Fatalf("unexpected invoice: %+v", inv)
	}

	events, _ := s.InvoiceEvents(inv.ID)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Status != StatusInvoiced || e.InvoiceID == nil || *e.InvoiceID != inv.ID {
			t.Fatalf("event not invoiced: %+v", e)
		}
	}

	if err := s.MarkInvoiceSent(inv.ID, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetInvoiceByNumber("INV-20240101-ABCD")
	if got.Status != InvoiceSent || got.SentAt == nil {
		t.Fatalf("invoice should be sent: %+v", got)
	}

	if err := s.MarkInvoicePaid(inv.ID, base.Add(48*time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetInvoice(inv.ID)
	if got.Status != InvoicePaid || got.PaidAt == nil {
		t.Fatalf("invoice should be paid: %+v", got)
	}
	events, _ = s.InvoiceEvents(inv.ID)
	for _, e := range events {
		if e.Status != StatusPaid {
			t.Fatalf("event should be paid: %+v", e)
		}
	}

	if err := s.MarkInvoicePaid(inv.ID, base); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("paying twice: %v", err)
	}
	if err := s.MarkInvoiceSent(inv.ID, base); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("sending paid invoice: %v", err)
	}
}

func TestCreateInvoiceRejectsUnsettled(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	done := settle(t, s, f.ID, base, 4*time.Hour, billing.DefaultTerms)
	active, _ := s.CheckIn(CheckIn{FacilityID: f.ID, Arrival: base.Add(24 * time.Hour), Terms: billing.DefaultTerms})

	_, err := s.CreateInvoice(NewInvoice{Number: "X", EventIDs: []int64{done.ID, active.ID}, DueDate: base})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	// Nothing should have moved.
	got, _ := s.GetEvent(done.ID)
	if got.Status != StatusCompleted || got.InvoiceID != nil {
		t.Fatal("failed invoice must not touch events")
	}
	list, _ := s.ListInvoices("")
	if len(list) != 0 {
		t.Fatal("failed invoice must not be stored")
	}
}

func TestCreateInvoiceRepeatedEvent(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e := settle(t, s, f.ID, base, 4*time.Hour, billing.DefaultTerms)

	_, err := s.CreateInvoice(NewInvoice{Number: "X", EventIDs: []int64{e.ID, e.ID, e.ID}, DueDate: base})
	if !errors.Is(err, ErrRepeatedEvent) {
		t.Fatalf("expected ErrRepeatedEvent, got %v", err)
	}

	got, _ := s.GetEvent(e.ID)
	if got.Status != StatusCompleted || got.InvoiceID != nil {
		t.Fatalf("event should stay completed: %+v", got)
	}
	list, _ := s.ListInvoices("")
	if len(list) != 0 {
		t.Fatalf("no invoice should be stored, got %d", len(list))
	}

	inv, err := s.CreateInvoice(NewInvoice{Number: "Y", EventIDs: []int64{e.ID}, DueDate: base})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.TotalAmount != e.TotalAmount {
		t.Fatalf("total = %v, want %v", inv.TotalAmount, e.TotalAmount)
	}
}

func TestCreateInvoiceErrors(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateInvoice(NewInvoice{Number: "X"}); !errors.Is(err, ErrNoEvents) {
		t.Fatalf("expected ErrNoEvents, got %v", err)
	}
	if _, err := s.CreateInvoice(NewInvoice{Number: "X", EventIDs: []int64{42}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOverdueInvoices(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e1 := settle(t, s, f.ID, base, 4*time.Hour, billing.DefaultTerms)
	e2 := settle(t, s, f.ID, base.Add(24*time.Hour), 4*time.Hour, billing.DefaultTerms)
	e3 := settle(t, s, f.ID, base.Add(48*time.Hour), 4*time.Hour, billing.DefaultTerms)

	overdue, _ := s.CreateInvoice(NewInvoice{Number: "A", EventIDs: []int64{e1.ID}, DueDate: base.Add(24 * time.Hour)})
	notDue, _ := s.CreateInvoice(NewInvoice{Number: "B", EventIDs: []int64{e2.ID}, DueDate: base.Add(90 * 24 * time.Hour)})
	s.CreateInvoice(NewInvoice{Number: "C", EventIDs: []int64{e3.ID}, DueDate: base}) // stays draft
	s.MarkInvoiceSent(overdue.ID, base)
	s.MarkInvoiceSent(notDue.ID, base)

	list, err := s.ListOverdueInvoices(base.Add(10 * 24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Number != "A" {
		t.Fatalf("expected only A overdue, got %+v", list)
	}

	sent, _ := s.ListInvoices(InvoiceSent)
	if len(sent) != 2 {
		t.Fatalf("expected 2 sent invoices, got %d", len(sent))
	}
}

// ============================================================
// Statistics
// ============================================================

func TestGetDailySummary(t *testing.T) {
	s := newTestStore(t)
	a := newFacility(t, s, "A")
	b := newFacility(t, s, "B")
	settle(t, s, a.ID, base, 3*time.Hour, billing.DefaultTerms)
	settle(t, s, a.ID, base.Add(5*time.Hour), 4*time.Hour, billing.DefaultTerms)
	settle(t, s, b.ID, base.Add(24*time.Hour), time.Hour, billing.DefaultTerms)
	s.CheckIn(CheckIn{FacilityID: b.ID, Arrival: base.Add(2 * time.Hour), Terms: billing.DefaultTerms})

	summaries, err := s.GetDailySummary(base.Add(-10*time.Hour), base.Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 rows (running event excluded), got %+v", summaries)
	}

	first := summaries[0]
	if first.Date != "2024-01-01" || first.FacilityName != "A" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if first.EventCount != 2 || first.DwellSeconds != 7*3600 {
		t.Fatalf("dwell aggregation: %+v", first)
	}
	if first.DetentionMinutes != 180 || first.Earnings != 225 {
		t.Fatalf("detention aggregation: %+v", first)
	}
	if summaries[1].Date != "2024-01-02" || summaries[1].Earnings != 0 {
		t.Fatalf("unexpected second row: %+v", summaries[1])
	}
}

func TestGetDailySummaryEmpty(t *testing.T) {
	s := newTestStore(t)
	summaries, err := s.GetDailySummary(base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 0 {
		t.Fatal("expected no rows")
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")
	e1 := settle(t, s, f.ID, base, 4*time.Hour, billing.DefaultTerms)
	settle(t, s, f.ID, base.Add(24*time.Hour), 2*time.Hour, billing.DefaultTerms)
	settle(t, s, f.ID, base.Add(48*time.Hour), 3*time.Hour, billing.DefaultTerms)
	settle(t, s, f.ID, base.Add(72*time.Hour), time.Hour, billing.DefaultTerms)

	inv, _ := s.CreateInvoice(NewInvoice{Number: "P", EventIDs: []int64{e1.ID}, DueDate: base})
	s.MarkInvoicePaid(inv.ID, base)

	st, err := s.GetStats(time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalEvents != 4 || st.EventsWithDetention != 2 {
		t.Fatalf("counts: %+v", st)
	}
	if st.DetentionRate != 50 {
		t.Fatalf("DetentionRate = %v, want 50", st.DetentionRate)
	}
	if st.AvgDwellMinutes != 150 {
		t.Fatalf("AvgDwellMinutes = %v, want 150", st.AvgDwellMinutes)
	}
	if st.AvgDetentionMinutes != 45 {
		t.Fatalf("AvgDetentionMinutes = %v, want 45", st.AvgDetentionMinutes)
	}
	if st.TotalBilled != 225 || st.TotalPaid != 150 || st.Outstanding != 75 {
		t.Fatalf("money: %+v", st)
	}

	ranged, _ := s.GetStats(base.Add(36*time.Hour), time.Time{})
	if ranged.TotalEvents != 2 {
		t.Fatalf("ranged TotalEvents = %d, want 2", ranged.TotalEvents)
	}
}

func TestGetStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	st, err := s.GetStats(time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalEvents != 0 || st.DetentionRate != 0 || st.AvgDwellMinutes != 0 {
		t.Fatalf("expected zero stats, got %+v", st)
	}
}

func TestGetFacilityStats(t *testing.T) {
	s := newTestStore(t)
	quick := newFacility(t, s, "Quick")
	slow := newFacility(t, s, "Slow")
	settle(t, s, quick.ID, base, time.Hour, billing.DefaultTerms)
	settle(t, s, slow.ID, base.Add(24*time.Hour), 5*time.Hour, billing.DefaultTerms)
	settle(t, s, slow.ID, base.Add(48*time.Hour), 3*time.Hour, billing.DefaultTerms)

	stats, err := s.GetFacilityStats()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 || stats[0].FacilityName != "Slow" {
		t.Fatalf("expected Slow first, got %+v", stats)
	}
	if stats[0].EventCount != 2 || stats[0].AvgDwellMinutes != 240 || stats[0].DetentionRate != 100 {
		t.Fatalf("slow stats: %+v", stats[0])
	}
	if stats[0].TotalEarnings != 300 {
		t.Fatalf("slow earnings = %v, want 300", stats[0].TotalEarnings)
	}
	if stats[1].DetentionRate != 0 {
		t.Fatalf("quick stats: %+v", stats[1])
	}
}

func TestGetTodayEarnings(t *testing.T) {
	s := newTestStore(t)
	f := newFacility(t, s, "DC")

	total, err := s.GetTodayEarnings(base)
	if err != nil || total != 0 {
		t.Fatalf("empty: %v %v", total, err)
	}

	settle(t, s, f.ID, base, 3*time.Hour, billing.DefaultTerms)
	settle(t, s, f.ID, base.Add(-48*time.Hour), 4*time.Hour, billing.DefaultTerms)

	total, _ = s.GetTodayEarnings(base.Add(9 * time.Hour))
	if total != 75 {
		t.Fatalf("today earnings = %v, want 75", total)
	}
	total, _ = s.GetTodayEarnings(base.Add(-48 * time.Hour))
	if total != 150 {
		t.Fatalf("earnings two days back = %v, want 150", total)
	}
	total, _ = s.GetTodayEarnings(base.Add(24 * time.Hour))
	if total != 0 {
		t.Fatalf("next day earnings = %v, want 0", total)
	}
}

// ============================================================
// Settings
// ============================================================

func TestSettingsDefaults(t *testing.T) {
	s := newTestStore(t)
	defaults := map[string]string{
		SettingGracePeriod:    "120",
		SettingHourlyRate:     "75",
		SettingInvoiceDueDays: "30",
	}
	for k, want := range defaults {
		got, err := s.GetSetting(k)
		if err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
		if got != want {
			t.Fatalf("%s = %q, want %q", k, got, want)
		}
	}

	if s.DefaultTerms() != billing.DefaultTerms {
		t.Fatalf("DefaultTerms = %+v", s.DefaultTerms())
	}
	if s.InvoiceDueDays() != 30 {
		t.Fatalf("InvoiceDueDays = %d", s.InvoiceDueDays())
	}
}

func TestSetDefaultTerms(t *testing.T) {
	s := newTestStore(t)
	want := billing.Terms{GracePeriodMinutes: 90, HourlyRate: 62.5}
	if err := s.SetDefaultTerms(want); err != nil {
		t.Fatal(err)
	}
	if got := s.DefaultTerms(); got != want {
		t.Fatalf("DefaultTerms = %+v, want %+v", got, want)
	}
}

func TestDefaultTermsIgnoresGarbage(t *testing.T) {
	s := newTestStore(t)
	s.SetSetting(SettingGracePeriod, "two hours")
	s.SetSetting(SettingHourlyRate, "-5")
	s.SetSetting(SettingInvoiceDueDays, "")

	if s.DefaultTerms() != billing.DefaultTerms {
		t.Fatalf("DefaultTerms = %+v", s.DefaultTerms())
	}
	if s.InvoiceDueDays() != 30 {
		t.Fatal("empty due days should fall back")
	}
}

func TestGetSettingNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetSetting("nope"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if s.SettingOr("nope", "x") != "x" {
		t.Fatal("SettingOr should return fallback")
	}
}

func TestGetAllSettings(t *testing.T) {
	s := newTestStore(t)
	settings, err := s.GetAllSettings()
	if err != nil {
		t.Fatal(err)
	}
	if len(settings) != 7 {
		t.Fatalf("expected 7 settings, got %d", len(settings))
	}
	for i := 1; i < len(settings); i++ {
		if settings[i].Key < settings[i-1].Key {
			t.Fatal("settings should be sorted by key")
		}
	}
}

func TestCloseStore(t *testing.T) {
	s, _ := NewMemory()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ListFacilities(false); err == nil {
		t.Fatal("expected error after close")
	}
}
