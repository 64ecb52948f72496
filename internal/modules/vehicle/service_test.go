package vehicle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrent/internal/modules/pricing"
	"vrent/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	vehicles map[types.ID]*Vehicle
}

func newMemStore() *memStore {
	return &memStore{vehicles: map[types.ID]*Vehicle{}}
}

func (m *memStore) Create(_ context.Context, v *Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.vehicles[v.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) List(_ context.Context, _ ListFilter) ([]*Vehicle, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Vehicle
	for _, v := range m.vehicles {
		cp := *v
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memStore) AppendMaintenance(_ context.Context, id types.ID, e MaintenanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	v.Maintenance = append(v.Maintenance, e)
	return nil
}

func (m *memStore) SetActive(_ context.Context, id types.ID, active bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	v.Active = active
	return nil
}

func validCommand() CreateCommand {
	return CreateCommand{
		OwnerID:        "owner1",
		Name:           "Activa 6G",
		Category:       "scooter",
		RegistrationNo: "KA01AB1234",
		Zone:           "blr-central",
		Plans: pricing.RatePlans{
			Hourly: &pricing.HourlyPlan{RatePerHourFuelExcluded: 5000, RatePerHourFuelIncluded: 6000, FreeKmPerHour: 10, OveragePerKm: 500},
		},
		Deposit:            100000,
		RequiredPaymentBps: 2500,
	}
}

func TestCreate_Valid(t *testing.T) {
	svc := NewService(newMemStore(), "INR")
	v, err := svc.Create(context.Background(), validCommand())
	require.NoError(t, err)
	assert.True(t, v.Available)
	assert.True(t, v.Active)
	assert.Equal(t, "INR", v.Currency)

	entry, err := svc.Entry(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), entry.Deposit)
	assert.NotNil(t, entry.Plans.Hourly)
}

func TestCreate_RejectsNegativeAndMissing(t *testing.T) {
	svc := NewService(newMemStore(), "INR")

	cmd := validCommand()
	cmd.Plans.Hourly.OveragePerKm = -1
	_, err := svc.Create(context.Background(), cmd)
	assert.True(t, errors.Is(err, ErrInvalidVehicle), "negative overage must be rejected, got %v", err)

	cmd = validCommand()
	cmd.RequiredPaymentBps = 12000
	_, err = svc.Create(context.Background(), cmd)
	assert.True(t, errors.Is(err, ErrInvalidVehicle))

	cmd = validCommand()
	cmd.Plans = pricing.RatePlans{}
	_, err = svc.Create(context.Background(), cmd)
	assert.True(t, errors.Is(err, ErrNoRatePlans))

	cmd = validCommand()
	cmd.Plans.Daily = &pricing.DailyPlan{Rates: []pricing.DailyRate{{Day: "caturday", Rate: 1}}}
	_, err = svc.Create(context.Background(), cmd)
	assert.True(t, errors.Is(err, ErrInvalidVehicle), "unknown daily row must be rejected")
}

func TestEntry_InactiveVehicleHidden(t *testing.T) {
	svc := NewService(newMemStore(), "INR")
	v, err := svc.Create(context.Background(), validCommand())
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(context.Background(), v.ID, false))

	_, err = svc.Entry(context.Background(), v.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAddMaintenance(t *testing.T) {
	svc := NewService(newMemStore(), "INR")
	v, err := svc.Create(context.Background(), validCommand())
	require.NoError(t, err)

	require.NoError(t, svc.AddMaintenance(context.Background(), v.ID, MaintenanceEntry{Kind: MaintenanceService, Odometer: 12000}))
	assert.Error(t, svc.AddMaintenance(context.Background(), v.ID, MaintenanceEntry{Kind: "polish"}))

	got, err := svc.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, got.Maintenance, 1)
	assert.False(t, got.Maintenance[0].At.IsZero())
}
