package extension_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrent/internal/apperr"
	"vrent/internal/config"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/booking/bookingtest"
	"vrent/internal/modules/extension"
	"vrent/internal/modules/notify"
	"vrent/internal/modules/pricing"
	"vrent/internal/types"
)

var (
	renter = booking.Actor{ID: "renter-1", Role: booking.RoleRenter}
	agent  = booking.Actor{ID: "agent-1", Role: booking.RoleAgent}

	start = time.Date(2026, 10, 20, 10, 0, 0, 0, bookingtest.IST)
)

type fixture struct {
	store    *bookingtest.Store
	clock    *bookingtest.Clock
	bookings *booking.Service
	ext      *extension.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := bookingtest.NewStore()
	store.PutVehicle(bookingtest.SampleVehicle("veh-1"))
	clock := bookingtest.NewClock(time.Date(2026, 10, 19, 9, 0, 0, 0, bookingtest.IST))
	quoter := pricing.NewService(store.Vehicles(), config.BillingConfig{Currency: "INR", TaxBps: 1800}, bookingtest.IST)

	bookings := booking.NewService(store, store.Vehicles(), quoter, notify.Nop{}, booking.Policy{NoShowTimeout: 2 * time.Hour})
	bookings.SetClock(clock.Now)
	ext := extension.NewService(store, store.Vehicles(), quoter, notify.Nop{}, 2*time.Hour)
	ext.SetClock(clock.Now)
	return &fixture{store: store, clock: clock, bookings: bookings, ext: ext}
}

func (f *fixture) confirmed(t *testing.T, rate pricing.RateType, end time.Time) *booking.Booking {
	t.Helper()
	ctx := context.Background()
	b, err := f.bookings.Create(ctx, booking.CreateCommand{
		VehicleID: "veh-1", RenterID: renter.ID, StartAt: start, EndAt: end, RateType: rate, Actor: renter,
	})
	require.NoError(t, err)
	b, err = f.bookings.Confirm(ctx, booking.TransitionCommand{BookingID: b.ID, Actor: renter})
	require.NoError(t, err)
	return b
}

// Two extra hours at 50.00 per hour with 18% GST, approved and never paid.
func TestExtension_ApprovedThenExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmed(t, pricing.RateHourly, start.Add(3*time.Hour))

	ext, err := f.ext.Request(ctx, extension.RequestCommand{BookingID: b.ID, NewEndAt: start.Add(5 * time.Hour), Actor: renter})
	require.NoError(t, err)
	assert.Equal(t, booking.ExtensionPending, ext.Status)
	assert.Equal(t, int64(2), ext.AdditionalHours)
	assert.Equal(t, int64(10000), ext.AdditionalAmount)
	assert.Equal(t, int64(1800), ext.AdditionalTax)
	assert.Equal(t, int64(20), ext.AdditionalKmLimit)

	b, err = f.ext.Approve(ctx, extension.DecideCommand{BookingID: b.ID, ExtensionID: ext.ID, Actor: agent})
	require.NoError(t, err)
	assert.True(t, b.EndAt.Equal(start.Add(5*time.Hour)))
	require.NotNil(t, b.OriginalEndAt)
	assert.True(t, b.OriginalEndAt.Equal(start.Add(3*time.Hour)))

	f.clock.Advance(time.Hour)
	n, err := f.ext.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(90 * time.Minute)
	n, err = f.ext.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	e, ok := got.Extension(ext.ID)
	require.True(t, ok)
	assert.Equal(t, booking.ExtensionExpired, e.Status)
	assert.True(t, got.EndAt.Equal(start.Add(5*time.Hour)), "expired extension keeps the extended end")
	assert.True(t, got.Flags.ExtensionPaymentOverdue)
	assert.Zero(t, got.TotalExtensionHours)

	_, err = f.ext.Pay(ctx, extension.PayCommand{BookingID: b.ID, ExtensionID: ext.ID, Amount: 11800, Instrument: booking.InstrumentCash, Actor: agent})
	assert.ErrorIs(t, err, extension.ErrInvalidState)
}

func TestExtension_PayRequotesProvisionalBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmed(t, pricing.RateHourly, start.Add(3*time.Hour))

	ext, err := f.ext.Request(ctx, extension.RequestCommand{BookingID: b.ID, NewEndAt: start.Add(5 * time.Hour), Actor: renter})
	require.NoError(t, err)
	_, err = f.ext.Approve(ctx, extension.DecideCommand{BookingID: b.ID, ExtensionID: ext.ID, Actor: agent})
	require.NoError(t, err)

	_, err = f.ext.Pay(ctx, extension.PayCommand{
		BookingID: b.ID, ExtensionID: ext.ID, Amount: 10000, Instrument: booking.InstrumentUPI, ProcessorRef: "upi-ext", Actor: renter,
	})
	assert.ErrorIs(t, err, extension.ErrAmountMismatch)

	pay := extension.PayCommand{
		BookingID: b.ID, ExtensionID: ext.ID, Amount: 11800, Instrument: booking.InstrumentUPI, ProcessorRef: "upi-ext", Actor: renter,
	}
	b, err = f.ext.Pay(ctx, pay)
	require.NoError(t, err)

	e, _ := b.Extension(ext.ID)
	assert.Equal(t, booking.ExtensionPaid, e.Status)
	assert.Equal(t, int64(2), b.TotalExtensionHours)
	assert.Equal(t, int64(11800), b.TotalExtensionAmount)
	// 5 hours at 50.00 plus 18%
	assert.Equal(t, int64(29500), b.Billing.TotalBill)
	require.Len(t, b.Payments, 1)
	assert.Equal(t, booking.PurposeExtension, b.Payments[0].Purpose)

	b, err = f.ext.Pay(ctx, pay)
	require.NoError(t, err)
	assert.Len(t, b.Payments, 1)
}

func TestExtension_BlockPlanUsesOverageRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmed(t, pricing.RateTwentyFourHour, start.Add(24*time.Hour))

	ext, err := f.ext.Request(ctx, extension.RequestCommand{BookingID: b.ID, NewEndAt: start.Add(26*time.Hour + 10*time.Minute), Actor: renter})
	require.NoError(t, err)
	assert.Equal(t, int64(3), ext.AdditionalHours)
	assert.Equal(t, int64(12000), ext.AdditionalAmount)
	assert.Equal(t, int64(2160), ext.AdditionalTax)
	assert.Equal(t, int64(36), ext.AdditionalKmLimit)
}

func TestExtension_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.confirmed(t, pricing.RateHourly, start.Add(3*time.Hour))

	_, err := f.ext.Request(ctx, extension.RequestCommand{BookingID: b.ID, NewEndAt: start.Add(3 * time.Hour), Actor: renter})
	assert.ErrorIs(t, err, apperr.ErrInvalidTimeRange)

	_, err = f.ext.Request(ctx, extension.RequestCommand{
		BookingID: b.ID, NewEndAt: start.Add(4 * time.Hour), Actor: booking.Actor{ID: "someone-else", Role: booking.RoleRenter},
	})
	assert.ErrorIs(t, err, booking.ErrForbidden)

	first, err := f.ext.Request(ctx, extension.RequestCommand{BookingID: b.ID, NewEndAt: start.Add(4 * time.Hour), Actor: renter})
	require.NoError(t, err)
	_, err = f.ext.Request(ctx, extension.RequestCommand{BookingID: b.ID, NewEndAt: start.Add(6 * time.Hour), Actor: renter})
	assert.ErrorIs(t, err, extension.ErrAlreadyOpen)

	_, err = f.ext.Approve(ctx, extension.DecideCommand{BookingID: b.ID, ExtensionID: first.ID, Actor: renter})
	assert.ErrorIs(t, err, booking.ErrForbidden)
	_, err = f.ext.Approve(ctx, extension.DecideCommand{BookingID: b.ID, ExtensionID: types.ID("missing"), Actor: agent})
	assert.ErrorIs(t, err, extension.ErrNotFound)

	pending, total, err := f.ext.ListPending(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, b.ID, pending[0].ID)

	b, err = f.ext.Reject(ctx, extension.DecideCommand{BookingID: b.ID, ExtensionID: first.ID, Reason: "vehicle booked next", Actor: agent})
	require.NoError(t, err)
	assert.True(t, b.EndAt.Equal(start.Add(3*time.Hour)))
	_, err = f.ext.Approve(ctx, extension.DecideCommand{BookingID: b.ID, ExtensionID: first.ID, Actor: agent})
	assert.ErrorIs(t, err, extension.ErrInvalidState)

	_, err = f.ext.Request(ctx, extension.RequestCommand{BookingID: b.ID, NewEndAt: start.Add(4 * time.Hour), Actor: renter})
	require.NoError(t, err)

	_, err = f.bookings.Cancel(ctx, booking.CancelCommand{BookingID: b.ID, Actor: renter})
	require.NoError(t, err)
	_, err = f.ext.Request(ctx, extension.RequestCommand{BookingID: b.ID, NewEndAt: start.Add(8 * time.Hour), Actor: renter})
	assert.ErrorIs(t, err, booking.ErrInvalidState)
}
