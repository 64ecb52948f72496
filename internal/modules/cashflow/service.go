// README: Cash-flow service: offline collections on the booking plus the agent sub-ledger.
package cashflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vrent/internal/apperr"
	"vrent/internal/config"
	"vrent/internal/logger"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/notify"
	"vrent/internal/types"
)

var (
	ErrNotOffline        = apperr.Policy("NOT_OFFLINE_BOOKING", "cash collections apply to offline bookings only")
	ErrOverpayment       = apperr.Policy("OVERPAYMENT_NOT_ALLOWED", "collection exceeds the amount due")
	ErrInvalidCollection = apperr.Validation("INVALID_COLLECTION", "collection is invalid")
	ErrNothingToHandOver = apperr.Policy("NOTHING_TO_HAND_OVER", "agent holds no cash")
	ErrLedgerUnavailable = apperr.New(apperr.KindExternal, "LEDGER_UNAVAILABLE", "cash ledger update failed")
)

type Service struct {
	store     booking.Repository
	ledger    Ledger
	notifier  notify.Notifier
	tolerance int64
	attempts  int
	backoff   time.Duration
	now       func() time.Time
	log       *slog.Logger
}

func NewService(store booking.Repository, ledger Ledger, notifier notify.Notifier, billing config.BillingConfig, policy config.BookingConfig) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	attempts := policy.LedgerRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Service{
		store:     store,
		ledger:    ledger,
		notifier:  notifier,
		tolerance: billing.OverpaymentTolerance,
		attempts:  attempts,
		backoff:   policy.LedgerRetryBackoff(),
		now:       time.Now,
		log:       logger.WithService("cashflow"),
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type CollectionCommand struct {
	BookingID types.ID
	// CollectionID makes a retried request idempotent; empty means new.
	CollectionID types.ID
	Cash         int64
	Online       int64
	OnlineRef    string
	Actor        booking.Actor
}

// RecordCollection adds cash and/or online money to an offline booking and
// credits the collecting agent's ledger with the cash part.
func (s *Service) RecordCollection(ctx context.Context, cmd CollectionCommand) (*booking.CashFlowDetails, error) {
	if cmd.Actor.Role != booking.RoleAgent && cmd.Actor.Role != booking.RoleAdmin {
		return nil, booking.ErrForbidden
	}
	switch {
	case cmd.Cash < 0 || cmd.Online < 0:
		return nil, ErrInvalidCollection.WithMessage("amounts must not be negative")
	case cmd.Cash+cmd.Online == 0:
		return nil, ErrInvalidCollection.WithMessage("nothing collected")
	case cmd.Online > 0 && cmd.OnlineRef == "":
		return nil, ErrInvalidCollection.WithMessage("online part needs a payment reference")
	}
	if cmd.CollectionID == "" {
		cmd.CollectionID = types.NewID()
	}

	var details booking.CashFlowDetails
	err := s.retry(ctx, func() error {
		b, err := s.store.Get(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		if b.CashFlow == nil || !b.CashFlow.IsOffline {
			return ErrNotOffline
		}
		if b.Status == booking.StatusCancelled || b.Status == booking.StatusNoShow {
			return booking.ErrInvalidState.WithMessage("cannot collect on a %s booking", b.Status)
		}
		for _, c := range b.CashFlow.Collections {
			if c.ID == cmd.CollectionID || (cmd.OnlineRef != "" && c.OnlineRef == cmd.OnlineRef) {
				details = *b.CashFlow
				return nil
			}
		}

		due := b.AmountDue()
		paid := b.CashFlow.CashReceived + b.CashFlow.OnlinePaymentAmount + cmd.Cash + cmd.Online
		if paid-due > s.tolerance {
			return ErrOverpayment.WithMessage("due %d, would be paid %d", due, paid)
		}

		now := s.now()
		expected := b.Version
		agent := cmd.Actor.ID
		b.CashFlow.Collections = append(b.CashFlow.Collections, booking.CashCollection{
			ID:          cmd.CollectionID,
			Cash:        cmd.Cash,
			Online:      cmd.Online,
			OnlineRef:   cmd.OnlineRef,
			CollectedBy: agent,
			At:          now,
		})
		b.CashFlow.CashReceived += cmd.Cash
		b.CashFlow.OnlinePaymentAmount += cmd.Online
		b.CashFlow.CollectedBy = &agent
		b.CashFlow.CollectedAt = &now
		if cmd.Cash > 0 {
			b.Payments = append(b.Payments, booking.Payment{
				ID: types.NewID(), Amount: cmd.Cash, Instrument: booking.InstrumentCash,
				CollectedBy: &agent, Status: booking.PaymentStateSuccess, Purpose: booking.PurposeBooking, At: now,
			})
		}
		if cmd.Online > 0 {
			b.Payments = append(b.Payments, booking.Payment{
				ID: types.NewID(), Amount: cmd.Online, Instrument: booking.InstrumentUPI, ProcessorRef: cmd.OnlineRef,
				Status: booking.PaymentStateSuccess, Purpose: booking.PurposeBooking, At: now,
			})
		}
		b.RefreshBalances()
		b.Record(b.Status, cmd.Actor, now, "offline collection")

		ok, err := s.store.Update(ctx, b, expected, nil)
		if err != nil {
			return err
		}
		if !ok {
			return booking.ErrConflict
		}
		details = *b.CashFlow
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cmd.Cash > 0 {
		bookingID := cmd.BookingID
		entry := Entry{
			ID:        cmd.CollectionID,
			AgentID:   cmd.Actor.ID,
			BookingID: &bookingID,
			Kind:      EntryCollection,
			Amount:    cmd.Cash,
			At:        s.now(),
		}
		if err := s.retry(ctx, func() error { return s.ledger.Credit(ctx, entry) }); err != nil {
			s.log.ErrorContext(ctx, "agent ledger credit failed", "booking_id", cmd.BookingID, "collection_id", cmd.CollectionID, "error", err)
			return &details, ErrLedgerUnavailable.Wrap(err)
		}
	}
	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.KindPaymentRecorded,
		BookingID: cmd.BookingID,
		Status:    "collected",
		Actor:     cmd.Actor.ID,
		Timestamp: s.now(),
		Data:      map[string]string{"collection_id": string(cmd.CollectionID)},
	})
	return &details, nil
}

// CreditCash books cash an agent took outside RecordCollection, such as an
// extension paid at the counter. entryID is the payment id.
func (s *Service) CreditCash(ctx context.Context, agentID, bookingID, entryID types.ID, amount int64) error {
	if agentID == "" || entryID == "" || amount <= 0 {
		return ErrInvalidCollection.WithMessage("agent, entry and a positive amount are required")
	}
	entry := Entry{
		ID:        entryID,
		AgentID:   agentID,
		BookingID: &bookingID,
		Kind:      EntryCollection,
		Amount:    amount,
		At:        s.now(),
	}
	if err := s.retry(ctx, func() error { return s.ledger.Credit(ctx, entry) }); err != nil {
		return ErrLedgerUnavailable.Wrap(err)
	}
	return nil
}

// retry reruns fn on version conflicts and external failures.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	backoff := s.backoff
	var err error
	for attempt := 0; attempt < s.attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, booking.ErrConflict) && apperr.KindOf(err) != apperr.KindExternal {
			return err
		}
		if attempt == s.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

type HandOverCommand struct {
	AgentID   types.ID
	ReceiptNo string
	Actor     booking.Actor
}

// HandOver records that an agent delivered all cash on hand to accounts.
func (s *Service) HandOver(ctx context.Context, cmd HandOverCommand) (Entry, error) {
	if cmd.Actor.Role != booking.RoleAdmin {
		return Entry{}, booking.ErrForbidden
	}
	if cmd.AgentID == "" || cmd.ReceiptNo == "" {
		return Entry{}, ErrInvalidCollection.WithMessage("agent and receipt number are required")
	}
	by := cmd.Actor.ID
	e, err := s.ledger.HandOver(ctx, Entry{
		ID:         types.NewID(),
		AgentID:    cmd.AgentID,
		Kind:       EntryHandover,
		ReceivedBy: &by,
		ReceiptNo:  cmd.ReceiptNo,
		At:         s.now(),
	})
	if err != nil {
		return Entry{}, err
	}
	s.log.InfoContext(ctx, "cash handed over", "agent_id", cmd.AgentID, "amount", e.Amount, "receipt_no", cmd.ReceiptNo)
	return e, nil
}

func (s *Service) Balance(ctx context.Context, agentID types.ID) (Balance, error) {
	return s.ledger.Balance(ctx, agentID)
}

// Reconcile aggregates an agent's collections and handovers inside [from, to).
func (s *Service) Reconcile(ctx context.Context, agentID types.ID, from, to time.Time) (Report, error) {
	if !to.After(from) {
		return Report{}, apperr.ErrInvalidTimeRange
	}
	entries, err := s.ledger.Entries(ctx, agentID, from, to)
	if err != nil {
		return Report{}, err
	}
	bal, err := s.ledger.Balance(ctx, agentID)
	if err != nil {
		return Report{}, err
	}
	r := Report{AgentID: agentID, From: from, To: to, OnHand: bal.OnHand(), Entries: entries}
	for _, e := range entries {
		switch e.Kind {
		case EntryCollection:
			r.Collected += e.Amount
		case EntryHandover:
			r.HandedOver += e.Amount
		}
	}
	r.Outstanding = r.Collected - r.HandedOver
	return r, nil
}

// ReconcileAll builds a report for every agent that ever held cash.
func (s *Service) ReconcileAll(ctx context.Context, from, to time.Time) ([]Report, error) {
	agents, err := s.ledger.Agents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0, len(agents))
	for _, id := range agents {
		r, err := s.Reconcile(ctx, id, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
