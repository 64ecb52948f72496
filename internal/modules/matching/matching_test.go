// README: Matching unit tests covering the scorer and assignment with in-memory fakes.
package matching

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"vrent/internal/config"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/booking/bookingtest"
	"vrent/internal/modules/notify"
	"vrent/internal/modules/pricing"
	"vrent/internal/types"
)

// ---------------------------------------------------------------------------
// Unit tests: Score / SelectAgent (pure functions, no external dependencies)
// ---------------------------------------------------------------------------

func approx(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %.4f, got %.4f", want, got)
	}
}

// A is 2km out with a perfect rating; B is 8km out, rated 4.0, more
// experienced and specialised in the booked category.
func TestScore_SpecializationOutweighsProximity(t *testing.T) {
	a := Candidate{Agent: Agent{ID: "a", Rating: 5.0, CompletedJobs: 50, Active: true, Available: true}, DistanceKm: 2}
	b := Candidate{Agent: Agent{ID: "b", Rating: 4.0, CompletedJobs: 200, Specializations: []string{"suv"}, Active: true, Available: true}, DistanceKm: 8}

	approx(t, Score(a, "suv"), 40+15+26)
	approx(t, Score(b, "suv"), 32+30+14+10)

	got := SelectAgent([]Candidate{a, b}, "suv")
	if got == nil || got.Agent.ID != "b" {
		t.Fatalf("expected b to win, got %+v", got)
	}

	// Without the category bonus A leads 81 to 76.
	got = SelectAgent([]Candidate{a, b}, "sedan")
	if got == nil || got.Agent.ID != "a" {
		t.Fatalf("expected a to win without specialisation, got %+v", got)
	}
}

func TestScore_Clamps(t *testing.T) {
	far := Candidate{Agent: Agent{Rating: 9, CompletedJobs: 10_000}, DistanceKm: 40}
	approx(t, Score(far, ""), 40+30+0)

	none := Candidate{Agent: Agent{Rating: -1}, DistanceKm: 0}
	approx(t, Score(none, ""), 30)
}

func TestSelectAgent_FiltersInactiveAndBusy(t *testing.T) {
	cands := []Candidate{
		{Agent: Agent{ID: "off", Rating: 5, CompletedJobs: 100, Active: false, Available: true}},
		{Agent: Agent{ID: "busy", Rating: 5, CompletedJobs: 100, Active: true, Available: false}},
		{Agent: Agent{ID: "ok", Rating: 1, Active: true, Available: true}, DistanceKm: 14},
	}
	got := SelectAgent(cands, "")
	if got == nil || got.Agent.ID != "ok" {
		t.Fatalf("expected ok, got %+v", got)
	}
	if got := SelectAgent(cands[:2], ""); got != nil {
		t.Fatalf("expected nil when nobody is eligible, got %+v", got)
	}
	if got := SelectAgent(nil, ""); got != nil {
		t.Fatalf("expected nil for no candidates, got %+v", got)
	}
}

func TestSelectAgent_TieBreaks(t *testing.T) {
	base := Agent{Rating: 4, CompletedJobs: 40, Active: true, Available: true}
	x, y, z := base, base, base
	x.ID, x.ActiveJobs = "x", 2
	y.ID, y.ActiveJobs = "y", 1
	z.ID, z.ActiveJobs = "w", 1
	got := SelectAgent([]Candidate{{Agent: x, DistanceKm: 3}, {Agent: y, DistanceKm: 3}, {Agent: z, DistanceKm: 3}}, "")
	if got == nil || got.Agent.ID != "w" {
		t.Fatalf("expected fewest jobs then lowest id (w), got %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Integration tests: AssignBooking with in-memory agent store and bookings
// ---------------------------------------------------------------------------

type memAgents struct {
	mu      sync.Mutex
	agents  map[types.ID]*Agent
	stolen  map[types.ID]bool
	claims  []types.ID
	release []types.ID
}

func newMemAgents(agents ...Agent) *memAgents {
	m := &memAgents{agents: make(map[types.ID]*Agent), stolen: make(map[types.ID]bool)}
	for i := range agents {
		a := agents[i]
		m.agents[a.ID] = &a
	}
	return m
}

func (m *memAgents) Nearby(_ context.Context, _ types.Point, _ float64, _ int) ([]Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Agent
	for _, a := range m.agents {
		out = append(out, *a)
	}
	return out, nil
}

func (m *memAgents) Claim(_ context.Context, id types.ID, maxJobs int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims = append(m.claims, id)
	a, ok := m.agents[id]
	if !ok {
		return false, ErrAgentNotFound
	}
	if m.stolen[id] || !a.Available || (maxJobs > 0 && a.ActiveJobs >= maxJobs) {
		return false, nil
	}
	a.ActiveJobs++
	if maxJobs > 0 && a.ActiveJobs >= maxJobs {
		a.Available = false
	}
	return true, nil
}

func (m *memAgents) Release(_ context.Context, id types.ID, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release = append(m.release, id)
	if a, ok := m.agents[id]; ok && a.ActiveJobs > 0 {
		a.ActiveJobs--
		a.Available = true
	}
	return nil
}

type fixedDistances struct {
	km  map[types.Point]float64
	err error
}

func (f fixedDistances) DistancesKm(_ context.Context, _ types.Point, dests []types.Point) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(dests))
	for i, d := range dests {
		out[i] = f.km[d]
	}
	return out, nil
}

var (
	pickup = types.Point{Lat: 12.9716, Lng: 77.5946}
	posA   = types.Point{Lat: 12.9800, Lng: 77.6000}
	posB   = types.Point{Lat: 13.0300, Lng: 77.6300}
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type bookingFixture struct {
	svc   *booking.Service
	clock *bookingtest.Clock
}

func newBookingFixture(t *testing.T, n *recorder) *bookingFixture {
	t.Helper()
	store := bookingtest.NewStore()
	store.PutVehicle(bookingtest.SampleVehicle("veh-1"))
	clock := bookingtest.NewClock(time.Date(2026, 10, 19, 9, 0, 0, 0, bookingtest.IST))
	quoter := pricing.NewService(store.Vehicles(), config.BillingConfig{Currency: "INR", TaxBps: 1800}, bookingtest.IST)
	svc := booking.NewService(store, store.Vehicles(), quoter, n, booking.Policy{NoShowTimeout: time.Hour})
	svc.SetClock(clock.Now)
	return &bookingFixture{svc: svc, clock: clock}
}

var renter = booking.Actor{ID: "renter-1", Role: booking.RoleRenter}

// confirmed books veh-1 for four hours from start and confirms it.
func (f *bookingFixture) confirmed(t *testing.T, start time.Time) *booking.Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), booking.CreateCommand{
		VehicleID: "veh-1", RenterID: renter.ID, StartAt: start, EndAt: start.Add(4 * time.Hour),
		RateType: pricing.RateHourly, PickupLocation: pickup, RequiredCategory: "suv", Actor: renter,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	b, err = f.svc.Confirm(context.Background(), booking.TransitionCommand{BookingID: b.ID, Actor: renter})
	if err != nil {
		t.Fatalf("confirm booking: %v", err)
	}
	return b
}

func newBookings(t *testing.T, n *recorder) (*booking.Service, *booking.Booking) {
	t.Helper()
	f := newBookingFixture(t, n)
	return f.svc, f.confirmed(t, time.Date(2026, 10, 20, 10, 0, 0, 0, bookingtest.IST))
}

func scenarioAgents() (Agent, Agent) {
	a := Agent{ID: "agent-a", Rating: 5.0, CompletedJobs: 50, Position: posA, Active: true, Available: true}
	b := Agent{ID: "agent-b", Rating: 4.0, CompletedJobs: 200, Position: posB, Specializations: []string{"suv"}, Active: true, Available: true}
	return a, b
}

func TestAssignBooking_PicksHighestScoreAndNotifies(t *testing.T) {
	rec := &recorder{}
	bookings, b := newBookings(t, rec)
	a, bb := scenarioAgents()
	agents := newMemAgents(a, bb)
	dist := fixedDistances{km: map[types.Point]float64{posA: 2, posB: 8}}
	svc := NewService(agents, bookings, dist, config.MatchingConfig{RadiusKm: 15, MaxCandidates: 20, MaxJobsPerAgent: 1, UseRoadDistance: true})

	got, err := svc.AssignBooking(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.AssignedAgentID == nil || *got.AssignedAgentID != "agent-b" {
		t.Fatalf("expected agent-b, got %v", got.AssignedAgentID)
	}
	if agents.agents["agent-b"].Available {
		t.Fatal("agent at job limit should be marked unavailable")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var assigned bool
	for _, e := range rec.events {
		if e.Kind == notify.KindDriverAssigned && e.AgentID != nil && *e.AgentID == "agent-b" {
			assigned = true
		}
	}
	if !assigned {
		t.Fatalf("expected driver_assigned event, got %+v", rec.events)
	}

	if _, err := svc.AssignBooking(context.Background(), b.ID); !errors.Is(err, booking.ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned on second run, got %v", err)
	}
}

func TestAssignBooking_FallsBackWhenClaimLost(t *testing.T) {
	bookings, b := newBookings(t, &recorder{})
	a, bb := scenarioAgents()
	agents := newMemAgents(a, bb)
	agents.stolen["agent-b"] = true
	dist := fixedDistances{km: map[types.Point]float64{posA: 2, posB: 8}}
	svc := NewService(agents, bookings, dist, config.MatchingConfig{RadiusKm: 15, MaxJobsPerAgent: 3, UseRoadDistance: true})

	got, err := svc.AssignBooking(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if *got.AssignedAgentID != "agent-a" {
		t.Fatalf("expected fallback to agent-a, got %s", *got.AssignedAgentID)
	}
	if len(agents.claims) != 2 || agents.claims[0] != "agent-b" {
		t.Fatalf("expected claim on b then a, got %v", agents.claims)
	}
}

func TestAssignBooking_NoAgent(t *testing.T) {
	bookings, b := newBookings(t, &recorder{})
	off := Agent{ID: "agent-off", Rating: 5, Position: posA, Active: false, Available: true}
	svc := NewService(newMemAgents(off), bookings, nil, config.MatchingConfig{RadiusKm: 15})

	if _, err := svc.AssignBooking(context.Background(), b.ID); !errors.Is(err, ErrNoAgentAvailable) {
		t.Fatalf("expected ErrNoAgentAvailable, got %v", err)
	}

	n, err := svc.AssignPending(context.Background(), 10)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 assigned without error, got %d, %v", n, err)
	}
}

func TestAssignBooking_HaversineFallback(t *testing.T) {
	bookings, b := newBookings(t, &recorder{})
	a, bb := scenarioAgents()
	svc := NewService(newMemAgents(a, bb), bookings, fixedDistances{err: errors.New("quota")},
		config.MatchingConfig{RadiusKm: 15, UseRoadDistance: true})

	cands, err := svc.Candidates(context.Background(), pickup)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	for _, c := range cands {
		if c.DistanceKm <= 0 || c.DistanceKm > 10 {
			t.Fatalf("unexpected straight-line distance %.2f for %s", c.DistanceKm, c.Agent.ID)
		}
	}

	n, err := svc.AssignPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("assign pending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 assignment, got %d", n)
	}
	got, _ := bookings.Get(context.Background(), b.ID)
	if got.AssignedAgentID == nil {
		t.Fatal("expected booking to be assigned")
	}
}

func TestAssignBooking_SlotFreedWhenBookingCompletes(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t, &recorder{})
	only := Agent{ID: "agent-a", Rating: 4.5, CompletedJobs: 30, Position: posA, Active: true, Available: true}
	agents := newMemAgents(only)
	svc := NewService(agents, f.svc, nil, config.MatchingConfig{RadiusKm: 15, MaxJobsPerAgent: 1})
	f.svc.SetAgentReleaser(svc)
	staff := booking.Actor{ID: "agent-a", Role: booking.RoleAgent}

	b1 := f.confirmed(t, time.Date(2026, 10, 20, 10, 0, 0, 0, bookingtest.IST))
	b2 := f.confirmed(t, time.Date(2026, 10, 21, 10, 0, 0, 0, bookingtest.IST))
	if _, err := svc.AssignBooking(ctx, b1.ID); err != nil {
		t.Fatalf("assign b1: %v", err)
	}
	if _, err := svc.AssignBooking(ctx, b2.ID); !errors.Is(err, ErrNoAgentAvailable) {
		t.Fatalf("agent at capacity must not take b2, got %v", err)
	}

	f.clock.Set(b1.StartAt)
	b1, err := f.svc.Pickup(ctx, booking.HandoverCommand{
		BookingID: b1.ID, Code: b1.Codes.Pickup.Code, Odometer: 1000, Fuel: booking.FuelFull, Actor: staff,
	})
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	f.clock.Advance(3 * time.Hour)
	if _, err := f.svc.Return(ctx, booking.ReturnCommand{HandoverCommand: booking.HandoverCommand{
		BookingID: b1.ID, Code: b1.Codes.Drop.Code, Odometer: 1030, Fuel: booking.FuelFull, Actor: staff,
	}}); err != nil {
		t.Fatalf("return: %v", err)
	}
	if a := agents.agents["agent-a"]; a.ActiveJobs != 0 || !a.Available {
		t.Fatalf("expected freed agent after return, got jobs=%d available=%v", a.ActiveJobs, a.Available)
	}

	got, err := svc.AssignBooking(ctx, b2.ID)
	if err != nil {
		t.Fatalf("assign b2: %v", err)
	}
	if *got.AssignedAgentID != "agent-a" {
		t.Fatalf("expected agent-a on b2, got %s", *got.AssignedAgentID)
	}
}

func TestAssignTo_ReassignAndCancelReleaseSlots(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t, &recorder{})
	a, bb := scenarioAgents()
	agents := newMemAgents(a, bb)
	svc := NewService(agents, f.svc, nil, config.MatchingConfig{RadiusKm: 15, MaxJobsPerAgent: 2})
	f.svc.SetAgentReleaser(svc)
	admin := booking.Actor{ID: "admin-1", Role: booking.RoleAdmin}

	b := f.confirmed(t, time.Date(2026, 10, 20, 10, 0, 0, 0, bookingtest.IST))
	if _, err := svc.AssignTo(ctx, b.ID, "agent-a", admin); err != nil {
		t.Fatalf("assign a: %v", err)
	}
	if _, err := svc.AssignTo(ctx, b.ID, "agent-b", admin); err != nil {
		t.Fatalf("reassign b: %v", err)
	}
	if _, err := svc.AssignTo(ctx, b.ID, "agent-b", admin); err != nil {
		t.Fatalf("repeat assign b: %v", err)
	}
	if got := agents.agents["agent-a"].ActiveJobs; got != 0 {
		t.Fatalf("replaced agent should be released, has %d jobs", got)
	}
	if got := agents.agents["agent-b"].ActiveJobs; got != 1 {
		t.Fatalf("repeat assignment must not claim twice, agent-b has %d jobs", got)
	}

	if _, err := f.svc.Cancel(ctx, booking.CancelCommand{BookingID: b.ID, Reason: "plans changed", Actor: admin}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := agents.agents["agent-b"].ActiveJobs; got != 0 {
		t.Fatalf("cancel should release agent-b, has %d jobs", got)
	}

	busy := Agent{ID: "agent-busy", Active: true, Available: false}
	agents.agents[busy.ID] = &busy
	b2 := f.confirmed(t, time.Date(2026, 10, 22, 10, 0, 0, 0, bookingtest.IST))
	if _, err := svc.AssignTo(ctx, b2.ID, busy.ID, admin); !errors.Is(err, ErrAgentBusy) {
		t.Fatalf("expected ErrAgentBusy, got %v", err)
	}
}
