// README: Payment recording; idempotent per processor reference and retried on version conflicts.
package booking

import (
	"context"
	"errors"
	"time"

	"vrent/internal/apperr"
	"vrent/internal/modules/notify"
	"vrent/internal/types"
)

var (
	ErrInvalidPayment = apperr.Validation("INVALID_PAYMENT", "payment is invalid")
	ErrPaymentSettled = apperr.Conflict("PAYMENT_ALREADY_SETTLED", "payment already reached a final state")
)

type PaymentCommand struct {
	BookingID    types.ID
	Amount       int64
	Instrument   Instrument
	ProcessorRef string
	Status       PaymentState
	Purpose      PaymentPurpose
	CollectedBy  *types.ID
	Actor        Actor
}

// RecordPayment appends or settles a payment. Replaying the same processor
// reference with the same status is a no-op that returns the stored payment.
func (s *Service) RecordPayment(ctx context.Context, cmd PaymentCommand) (*Payment, error) {
	if cmd.Status == "" {
		cmd.Status = PaymentStateSuccess
	}
	if cmd.Purpose == "" {
		cmd.Purpose = PurposeBooking
	}
	switch {
	case cmd.Amount <= 0:
		return nil, ErrInvalidPayment.WithMessage("amount must be positive")
	case !cmd.Instrument.Valid():
		return nil, ErrInvalidPayment.WithMessage("unknown instrument %q", cmd.Instrument)
	case cmd.Instrument != InstrumentCash && cmd.ProcessorRef == "":
		return nil, ErrInvalidPayment.WithMessage("processor reference is required for %s", cmd.Instrument)
	}
	switch cmd.Status {
	case PaymentStatePending, PaymentStateSuccess, PaymentStateFailed:
	default:
		return nil, ErrInvalidPayment.WithMessage("unknown payment status %q", cmd.Status)
	}

	var (
		out     Payment
		changed bool
		settled *Booking
	)
	err := s.retry(ctx, func() error {
		b, err := s.store.Get(ctx, cmd.BookingID)
		if err != nil {
			return err
		}
		if b.Status == StatusCancelled && cmd.Status == PaymentStateSuccess && cmd.Purpose != PurposeDeposit {
			return ErrInvalidState.WithMessage("booking is cancelled")
		}
		now := s.now()
		p, ok, err := upsertPayment(b, cmd, now)
		if err != nil {
			return err
		}
		out, changed = *p, ok
		if !ok {
			return nil
		}
		expected := b.Version
		b.ApplyOfflinePayment(*p)
		b.RefreshBalances()
		b.Record(b.Status, cmd.Actor, now, "payment "+string(p.Status))
		if err := s.save(ctx, b, expected, nil); err != nil {
			return err
		}
		settled = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.creditAgentCash(ctx, settled, out)
		s.notifier.Notify(ctx, notify.Event{
			Kind:      notify.KindPaymentRecorded,
			BookingID: cmd.BookingID,
			Status:    string(out.Status),
			Actor:     cmd.Actor.ID,
			Timestamp: out.At,
			Data:      map[string]string{"payment_id": string(out.ID), "purpose": string(out.Purpose)},
		})
	}
	return &out, nil
}

func upsertPayment(b *Booking, cmd PaymentCommand, now time.Time) (*Payment, bool, error) {
	if cmd.ProcessorRef != "" {
		for i := range b.Payments {
			p := &b.Payments[i]
			if p.ProcessorRef != cmd.ProcessorRef {
				continue
			}
			if p.Status == cmd.Status {
				return p, false, nil
			}
			if p.Status != PaymentStatePending {
				return nil, false, ErrPaymentSettled.WithMessage("payment %s is %s", p.ID, p.Status)
			}
			p.Status = cmd.Status
			p.At = now
			return p, true, nil
		}
	}
	b.Payments = append(b.Payments, Payment{
		ID:           types.NewID(),
		Amount:       cmd.Amount,
		Instrument:   cmd.Instrument,
		ProcessorRef: cmd.ProcessorRef,
		CollectedBy:  cmd.CollectedBy,
		Status:       cmd.Status,
		Purpose:      cmd.Purpose,
		At:           now,
	})
	return &b.Payments[len(b.Payments)-1], true, nil
}

// retry reruns fn while it loses the version check, backing off between
// attempts.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	backoff := s.policy.PaymentRetryBackoff
	var err error
	for attempt := 0; attempt < s.policy.PaymentRetryAttempts; attempt++ {
		if err = fn(); !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == s.policy.PaymentRetryAttempts-1 {
			break
		}
		s.log.DebugContext(ctx, "retrying after version conflict", "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
