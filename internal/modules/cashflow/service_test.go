package cashflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrent/internal/apperr"
	"vrent/internal/config"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/booking/bookingtest"
	"vrent/internal/modules/cashflow"
	"vrent/internal/modules/notify"
	"vrent/internal/modules/pricing"
	"vrent/internal/types"
)

var (
	agent = booking.Actor{ID: "agent-7", Role: booking.RoleAgent}
	admin = booking.Actor{ID: "admin-1", Role: booking.RoleAdmin}
	now   = time.Date(2026, 10, 20, 18, 0, 0, 0, bookingtest.IST)
)

type memLedger struct {
	mu       sync.Mutex
	entries  []cashflow.Entry
	balances map[types.ID]*cashflow.Balance
	failures int
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[types.ID]*cashflow.Balance)}
}

func (l *memLedger) Credit(_ context.Context, e cashflow.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return apperr.External("DB_ERROR", errors.New("connection reset"))
	}
	for _, x := range l.entries {
		if x.ID == e.ID {
			return nil
		}
	}
	l.entries = append(l.entries, e)
	b := l.balance(e.AgentID)
	b.Collected += e.Amount
	b.UpdatedAt = e.At
	return nil
}

func (l *memLedger) HandOver(_ context.Context, e cashflow.Entry) (cashflow.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.balance(e.AgentID)
	if b.OnHand() <= 0 {
		return cashflow.Entry{}, cashflow.ErrNothingToHandOver
	}
	e.Amount = b.OnHand()
	b.HandedOver += e.Amount
	l.entries = append(l.entries, e)
	return e, nil
}

func (l *memLedger) Balance(_ context.Context, agentID types.ID) (cashflow.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.balance(agentID), nil
}

func (l *memLedger) Entries(_ context.Context, agentID types.ID, from, to time.Time) ([]cashflow.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []cashflow.Entry
	for _, e := range l.entries {
		if e.AgentID == agentID && !e.At.Before(from) && e.At.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) Agents(context.Context) ([]types.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.ID
	for id := range l.balances {
		out = append(out, id)
	}
	return out, nil
}

func (l *memLedger) balance(id types.ID) *cashflow.Balance {
	b, ok := l.balances[id]
	if !ok {
		b = &cashflow.Balance{AgentID: id}
		l.balances[id] = b
	}
	return b
}

type fixture struct {
	store  *bookingtest.Store
	ledger *memLedger
	svc    *cashflow.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := bookingtest.NewStore()
	ledger := newMemLedger()
	svc := cashflow.NewService(store, ledger, notify.Nop{},
		config.BillingConfig{Currency: "INR", TaxBps: 1800},
		config.BookingConfig{LedgerRetryAttempts: 3},
	)
	svc.SetClock(func() time.Time { return now })
	return &fixture{store: store, ledger: ledger, svc: svc}
}

// offline puts an offline booking whose bill is 1982.00.
func (f *fixture) offline(t *testing.T, id types.ID) {
	t.Helper()
	seller := types.ID("seller-1")
	b := &booking.Booking{
		ID:        id,
		VehicleID: "veh-1",
		RenterID:  "renter-1",
		BookedBy:  &seller,
		Source:    booking.SourceOfflineSeller,
		RateType:  pricing.RateHourly,
		StartAt:   now.Add(-4 * time.Hour),
		EndAt:     now,
		Status:    booking.StatusCompleted,
		Billing:   pricing.Billing{Subtotal: 167966, Tax: 30234, TotalBill: 198200, Final: true},
		CashFlow:  &booking.CashFlowDetails{IsOffline: true, Collections: []booking.CashCollection{}},
		Version:   1,
	}
	b.RefreshBalances()
	require.NoError(t, f.store.Create(context.Background(), b))
}

func TestRecordCollection_SplitCashAndOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.offline(t, "bk-1")

	details, err := f.svc.RecordCollection(ctx, cashflow.CollectionCommand{
		BookingID: "bk-1", CollectionID: "col-1", Cash: 100000, Online: 50000, OnlineRef: "upi-881", Actor: agent,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), details.CashReceived)
	assert.Equal(t, int64(50000), details.OnlinePaymentAmount)
	assert.Equal(t, int64(48200), details.PendingCash)
	require.NotNil(t, details.CollectedBy)
	assert.Equal(t, agent.ID, *details.CollectedBy)

	b, err := f.store.Get(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPartial, b.PaymentStatus)
	require.Len(t, b.Payments, 2)
	assert.Equal(t, booking.InstrumentCash, b.Payments[0].Instrument)
	assert.Equal(t, booking.InstrumentUPI, b.Payments[1].Instrument)
	assert.Equal(t, "upi-881", b.Payments[1].ProcessorRef)

	bal, err := f.svc.Balance(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), bal.Collected)
	assert.Equal(t, int64(100000), bal.OnHand())

	// A retried request with the same collection id changes nothing.
	_, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{
		BookingID: "bk-1", CollectionID: "col-1", Cash: 100000, Online: 50000, OnlineRef: "upi-881", Actor: agent,
	})
	require.NoError(t, err)
	bal, _ = f.svc.Balance(ctx, agent.ID)
	assert.Equal(t, int64(100000), bal.Collected)
	b, _ = f.store.Get(ctx, "bk-1")
	assert.Len(t, b.Payments, 2)

	details, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-1", Cash: 48200, Actor: agent})
	require.NoError(t, err)
	assert.Zero(t, details.PendingCash)
	b, _ = f.store.Get(ctx, "bk-1")
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
}

func TestRecordCollection_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.offline(t, "bk-1")

	_, err := f.svc.RecordCollection(ctx, cashflow.CollectionCommand{
		BookingID: "bk-1", Cash: 100, Actor: booking.Actor{ID: "renter-1", Role: booking.RoleRenter},
	})
	assert.ErrorIs(t, err, booking.ErrForbidden)

	_, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-1", Online: 100, Actor: agent})
	assert.ErrorIs(t, err, cashflow.ErrInvalidCollection)

	_, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-1", Cash: -5, Actor: agent})
	assert.ErrorIs(t, err, cashflow.ErrInvalidCollection)

	_, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-1", Cash: 198201, Actor: agent})
	assert.ErrorIs(t, err, cashflow.ErrOverpayment)
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))

	online := &booking.Booking{
		ID: "bk-2", VehicleID: "veh-1", RenterID: "renter-1", Source: booking.SourceOnline,
		Status: booking.StatusConfirmed, Billing: pricing.Billing{TotalBill: 1000}, Version: 1,
	}
	require.NoError(t, f.store.Create(ctx, online))
	_, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-2", Cash: 1000, Actor: agent})
	assert.ErrorIs(t, err, cashflow.ErrNotOffline)
	assert.Equal(t, apperr.KindPolicy, apperr.KindOf(err))

	_, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "missing", Cash: 1000, Actor: agent})
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestRecordCollection_RetriesLedgerCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.offline(t, "bk-1")
	f.ledger.failures = 2

	_, err := f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-1", Cash: 20000, Actor: agent})
	require.NoError(t, err)
	bal, _ := f.svc.Balance(ctx, agent.ID)
	assert.Equal(t, int64(20000), bal.Collected)

	f.ledger.failures = 5
	_, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-1", Cash: 10000, Actor: agent})
	assert.ErrorIs(t, err, cashflow.ErrLedgerUnavailable)
}

func TestHandOverAndReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.offline(t, "bk-1")
	f.offline(t, "bk-2")

	_, err := f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-1", Cash: 60000, Actor: agent})
	require.NoError(t, err)
	_, err = f.svc.RecordCollection(ctx, cashflow.CollectionCommand{BookingID: "bk-2", Cash: 40000, Actor: agent})
	require.NoError(t, err)

	_, err = f.svc.HandOver(ctx, cashflow.HandOverCommand{AgentID: agent.ID, ReceiptNo: "R-1", Actor: agent})
	assert.ErrorIs(t, err, booking.ErrForbidden)

	e, err := f.svc.HandOver(ctx, cashflow.HandOverCommand{AgentID: agent.ID, ReceiptNo: "R-1", Actor: admin})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), e.Amount)
	assert.Equal(t, cashflow.EntryHandover, e.Kind)

	_, err = f.svc.HandOver(ctx, cashflow.HandOverCommand{AgentID: agent.ID, ReceiptNo: "R-2", Actor: admin})
	assert.ErrorIs(t, err, cashflow.ErrNothingToHandOver)

	r, err := f.svc.Reconcile(ctx, agent.ID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(100000), r.Collected)
	assert.Equal(t, int64(100000), r.HandedOver)
	assert.Zero(t, r.Outstanding)
	assert.Zero(t, r.OnHand)
	assert.Len(t, r.Entries, 3)

	_, err = f.svc.Reconcile(ctx, agent.ID, now, now)
	assert.ErrorIs(t, err, apperr.ErrInvalidTimeRange)

	all, err := f.svc.ReconcileAll(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, agent.ID, all[0].AgentID)
}

func TestCreditCash_IdempotentByEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.failures = 1

	require.NoError(t, f.svc.CreditCash(ctx, agent.ID, "bk-1", "pay-1", 11800))
	require.NoError(t, f.svc.CreditCash(ctx, agent.ID, "bk-1", "pay-1", 11800))
	bal, _ := f.svc.Balance(ctx, agent.ID)
	assert.Equal(t, int64(11800), bal.Collected)

	err := f.svc.CreditCash(ctx, agent.ID, "bk-1", "pay-2", 0)
	assert.ErrorIs(t, err, cashflow.ErrInvalidCollection)
}
