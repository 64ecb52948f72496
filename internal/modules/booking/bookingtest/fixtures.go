package bookingtest

import (
	"sync"
	"time"

	"vrent/internal/modules/pricing"
	"vrent/internal/modules/vehicle"
	"vrent/internal/types"
)

var IST = time.FixedZone("IST", 5*3600+1800)

// SampleVehicle has an hourly plan and a 24h block plan at 1680.00 with 300
// km, 40.00 per extra hour and 10.00 per extra km.
func SampleVehicle(id types.ID) *vehicle.Vehicle {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, IST)
	return &vehicle.Vehicle{
		ID:             id,
		OwnerID:        "owner-1",
		Name:           "Swift Dzire",
		Category:       "sedan",
		RegistrationNo: "KA01AB1234",
		Zone:           "blr-central",
		Currency:       types.DefaultCurrency,
		Plans: pricing.RatePlans{
			Hourly: &pricing.HourlyPlan{
				RatePerHourFuelIncluded: 6000,
				RatePerHourFuelExcluded: 5000,
				FreeKmPerHour:           10,
				OveragePerKm:            800,
			},
			TwentyFourHour: &pricing.BlockPlan{
				BaseRate:                   168000,
				IncludedKm:                 300,
				OveragePerKm:               1000,
				OveragePerHourFuelIncluded: 4500,
				OveragePerHourFuelExcluded: 4000,
			},
		},
		RefuelChargePerQuarter: 25000,
		Available:              true,
		Active:                 true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// Clock is a settable time source for services under test.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
