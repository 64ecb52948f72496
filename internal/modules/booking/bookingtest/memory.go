// README: In-memory booking and vehicle stores with the same compare-and-set semantics as the PostgreSQL store.
package bookingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"vrent/internal/modules/booking"
	"vrent/internal/modules/pricing"
	"vrent/internal/modules/vehicle"
	"vrent/internal/types"
)

type Store struct {
	mu       sync.Mutex
	bookings map[types.ID]*booking.Booking
	vehicles map[types.ID]*vehicle.Vehicle

	// BeforeUpdate, when set, runs at the start of every Update outside the
	// lock. Tests use it to interleave concurrent writers.
	BeforeUpdate func(id types.ID)
}

func NewStore() *Store {
	return &Store{
		bookings: make(map[types.ID]*booking.Booking),
		vehicles: make(map[types.ID]*vehicle.Vehicle),
	}
}

func (s *Store) Create(_ context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id types.ID) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *Store) Update(_ context.Context, b *booking.Booking, expected int, avail *booking.AvailabilityChange) (bool, error) {
	if s.BeforeUpdate != nil {
		s.BeforeUpdate(b.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[b.ID]
	if !ok {
		return false, booking.ErrNotFound
	}
	if cur.Version != expected {
		return false, nil
	}
	var v *vehicle.Vehicle
	if avail != nil {
		v, ok = s.vehicles[avail.VehicleID]
		if !ok || v.AvailabilityVersion != avail.ExpectedVersion {
			return false, nil
		}
	}
	next := b.Clone()
	next.Version = expected + 1
	s.bookings[b.ID] = next
	if v != nil {
		v.Available = avail.Available
		v.AvailabilityVersion++
	}
	b.Version = expected + 1
	return true, nil
}

func (s *Store) List(_ context.Context, f booking.Filter) ([]*booking.Booking, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*booking.Booking
	for _, b := range s.bookings {
		if matches(b, f) {
			all = append(all, b.Clone())
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartAt.Equal(all[j].StartAt) {
			return all[i].StartAt.After(all[j].StartAt)
		}
		return all[i].ID < all[j].ID
	})
	total := len(all)
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *Store) ListNoShowCandidates(_ context.Context, startedBefore time.Time, limit int) ([]*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*booking.Booking
	for _, b := range s.bookings {
		if (b.Status == booking.StatusConfirmed || b.Status == booking.StatusOngoing) &&
			b.ActualStartAt == nil && b.StartAt.Before(startedBefore) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(b *booking.Booking, f booking.Filter) bool {
	if f.AgentID != nil && !idEq(b.AssignedAgentID, *f.AgentID) && !idEq(b.BookedBy, *f.AgentID) {
		return false
	}
	if f.RenterID != nil && b.RenterID != *f.RenterID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if b.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && b.StartAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !b.StartAt.Before(*f.To) {
		return false
	}
	if f.DisputeStatus != "" {
		found := false
		for _, d := range b.Disputes {
			if d.Status == f.DisputeStatus {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if f.ExtensionStatus != "" {
		found := false
		for _, e := range b.Extensions {
			if e.Status == f.ExtensionStatus {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if f.Unassigned && b.AssignedAgentID != nil {
		return false
	}
	if f.OfflineOnly && !b.Source.Offline() {
		return false
	}
	return true
}

func idEq(p *types.ID, id types.ID) bool {
	return p != nil && *p == id
}

// PutVehicle stores a copy of v.
func (s *Store) PutVehicle(v *vehicle.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.vehicles[v.ID] = &cp
}

// Vehicles is the vehicle-side view of the store.
func (s *Store) Vehicles() Vehicles {
	return Vehicles{s: s}
}

type Vehicles struct {
	s *Store
}

func (v Vehicles) Get(_ context.Context, id types.ID) (*vehicle.Vehicle, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	veh, ok := v.s.vehicles[id]
	if !ok {
		return nil, vehicle.ErrNotFound
	}
	cp := *veh
	return &cp, nil
}

func (v Vehicles) Entry(ctx context.Context, id types.ID) (pricing.CatalogEntry, error) {
	veh, err := v.Get(ctx, id)
	if err != nil {
		return pricing.CatalogEntry{}, err
	}
	return veh.CatalogEntry(), nil
}
