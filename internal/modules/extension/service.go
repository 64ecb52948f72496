// README: Extension workflow: request, approve or reject, pay, and expire unpaid approvals.
package extension

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vrent/internal/apperr"
	"vrent/internal/logger"
	"vrent/internal/modules/booking"
	"vrent/internal/modules/notify"
	"vrent/internal/modules/pricing"
	"vrent/internal/types"
)

var (
	ErrNotFound       = apperr.NotFound("EXTENSION_NOT_FOUND", "extension not found")
	ErrAlreadyOpen    = apperr.Conflict("EXTENSION_ALREADY_OPEN", "booking already has an open extension")
	ErrInvalidState   = apperr.Conflict("INVALID_EXTENSION_STATE", "extension is not in the expected state")
	ErrInvalidRequest = apperr.Validation("INVALID_EXTENSION_REQUEST", "extension request is invalid")
	ErrAmountMismatch = apperr.Validation("EXTENSION_AMOUNT_MISMATCH", "payment does not match the extension amount")
)

type Service struct {
	store    booking.Repository
	vehicles booking.VehicleReader
	pricing  booking.Quoter
	notifier notify.Notifier
	cash     booking.CashLedger
	grace    time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewService wires the workflow. grace is how long an approved extension
// may stay unpaid before it expires.
func NewService(store booking.Repository, vehicles booking.VehicleReader, quoter booking.Quoter, notifier notify.Notifier, grace time.Duration) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    store,
		vehicles: vehicles,
		pricing:  quoter,
		notifier: notifier,
		grace:    grace,
		now:      time.Now,
		log:      logger.WithService("extension"),
	}
}

// SetCashLedger lets cash extension payments on offline bookings reach the
// collecting agent's ledger.
func (s *Service) SetCashLedger(l booking.CashLedger) {
	s.cash = l
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type RequestCommand struct {
	BookingID types.ID
	NewEndAt  time.Time
	Reason    string
	Actor     booking.Actor
}

type DecideCommand struct {
	BookingID   types.ID
	ExtensionID types.ID
	Reason      string
	Actor       booking.Actor
}

type PayCommand struct {
	BookingID    types.ID
	ExtensionID  types.ID
	Amount       int64
	Instrument   booking.Instrument
	ProcessorRef string
	Actor        booking.Actor
}

// Request prices the extra window hour by hour from the booking's plan and
// records a pending extension.
func (s *Service) Request(ctx context.Context, cmd RequestCommand) (*booking.Extension, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != booking.StatusConfirmed && b.Status != booking.StatusOngoing {
		return nil, booking.ErrInvalidState.WithMessage("cannot extend a %s booking", b.Status)
	}
	if cmd.Actor.Role == booking.RoleRenter && cmd.Actor.ID != b.RenterID {
		return nil, booking.ErrForbidden
	}
	if !cmd.NewEndAt.After(b.EndAt) {
		return nil, apperr.ErrInvalidTimeRange.WithMessage("new end must be after the current end %s", b.EndAt.Format(time.RFC3339))
	}
	for _, e := range b.Extensions {
		if e.Status.Open() {
			return nil, ErrAlreadyOpen
		}
	}

	v, err := s.vehicles.Get(ctx, b.VehicleID)
	if err != nil {
		return nil, err
	}
	sel, err := pricing.Select(v.Plans, pricing.SelectRequest{
		Start:        b.StartAt,
		End:          b.EndAt,
		RateType:     b.RateType,
		FuelIncluded: b.FuelIncluded,
		Location:     s.pricing.Location(),
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	inc := pricing.IncrementalSelection(sel)
	bill, err := pricing.Compose(pricing.ComposeInput{
		Selection: inc,
		Elapsed:   cmd.NewEndAt.Sub(b.EndAt),
		TaxBps:    s.pricing.TaxBps(),
		Currency:  b.Billing.Currency,
		At:        now,
	})
	if err != nil {
		return nil, err
	}

	expected := b.Version
	b.Extensions = append(b.Extensions, booking.Extension{
		ID:                types.NewID(),
		Status:            booking.ExtensionPending,
		PreviousEndAt:     b.EndAt,
		RequestedEndAt:    cmd.NewEndAt,
		AdditionalHours:   bill.BillableHours,
		AdditionalAmount:  bill.Subtotal,
		AdditionalTax:     bill.Tax,
		AdditionalKmLimit: inc.FreeKmPerHour * bill.BillableHours,
		Reason:            cmd.Reason,
		RequestedBy:       cmd.Actor.ID,
		RequestedAt:       now,
	})
	ext := b.Extensions[len(b.Extensions)-1]
	b.Record(b.Status, cmd.Actor, now, "extension requested")
	if err := s.save(ctx, b, expected); err != nil {
		return nil, err
	}
	s.publish(ctx, notify.KindExtensionRequested, b, ext, cmd.Actor)
	return &ext, nil
}

// Approve moves EndAt to the requested end. OriginalEndAt keeps the end
// agreed at booking time across any number of extensions.
func (s *Service) Approve(ctx context.Context, cmd DecideCommand) (*booking.Booking, error) {
	return s.decide(ctx, cmd, func(b *booking.Booking, e *booking.Extension) {
		e.Status = booking.ExtensionApproved
		if b.OriginalEndAt == nil {
			end := b.EndAt
			b.OriginalEndAt = &end
		}
		b.EndAt = e.RequestedEndAt
	})
}

func (s *Service) Reject(ctx context.Context, cmd DecideCommand) (*booking.Booking, error) {
	return s.decide(ctx, cmd, func(_ *booking.Booking, e *booking.Extension) {
		e.Status = booking.ExtensionRejected
		e.RejectionReason = cmd.Reason
	})
}

func (s *Service) decide(ctx context.Context, cmd DecideCommand, apply func(*booking.Booking, *booking.Extension)) (*booking.Booking, error) {
	if cmd.Actor.Role != booking.RoleAdmin && cmd.Actor.Role != booking.RoleAgent {
		return nil, booking.ErrForbidden
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	e, ok := b.Extension(cmd.ExtensionID)
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status != booking.ExtensionPending {
		return nil, ErrInvalidState.WithMessage("extension is %s", e.Status)
	}
	if b.Status != booking.StatusConfirmed && b.Status != booking.StatusOngoing {
		return nil, booking.ErrInvalidState.WithMessage("cannot extend a %s booking", b.Status)
	}

	now := s.now()
	expected := b.Version
	by := cmd.Actor.ID
	e.DecidedBy = &by
	e.DecidedAt = &now
	apply(b, e)
	out := *e
	b.Record(b.Status, cmd.Actor, now, "extension "+string(out.Status))
	if err := s.save(ctx, b, expected); err != nil {
		return nil, err
	}
	s.publish(ctx, notify.KindExtensionDecided, b, out, cmd.Actor)
	return b, nil
}

// Pay settles an approved extension. The payment must match the extension
// amount plus tax exactly; replaying the same processor reference is a no-op.
func (s *Service) Pay(ctx context.Context, cmd PayCommand) (*booking.Booking, error) {
	if !cmd.Instrument.Valid() {
		return nil, booking.ErrInvalidPayment.WithMessage("unknown instrument %q", cmd.Instrument)
	}
	if cmd.Instrument != booking.InstrumentCash && cmd.ProcessorRef == "" {
		return nil, booking.ErrInvalidPayment.WithMessage("processor reference is required for %s", cmd.Instrument)
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	e, ok := b.Extension(cmd.ExtensionID)
	if !ok {
		return nil, ErrNotFound
	}
	if e.Status == booking.ExtensionPaid && cmd.ProcessorRef != "" {
		for _, p := range b.Payments {
			if e.PaymentID != nil && p.ID == *e.PaymentID && p.ProcessorRef == cmd.ProcessorRef {
				return b, nil
			}
		}
	}
	if e.Status != booking.ExtensionApproved {
		return nil, ErrInvalidState.WithMessage("extension is %s", e.Status)
	}
	if cmd.Amount != e.AmountDue() {
		return nil, ErrAmountMismatch.WithMessage("expected %d, got %d", e.AmountDue(), cmd.Amount)
	}

	now := s.now()
	expected := b.Version
	p := booking.Payment{
		ID:           types.NewID(),
		Amount:       cmd.Amount,
		Instrument:   cmd.Instrument,
		ProcessorRef: cmd.ProcessorRef,
		Status:       booking.PaymentStateSuccess,
		Purpose:      booking.PurposeExtension,
		At:           now,
	}
	if cmd.Actor.Role == booking.RoleAgent {
		by := cmd.Actor.ID
		p.CollectedBy = &by
	}
	b.Payments = append(b.Payments, p)
	b.ApplyOfflinePayment(p)
	e.Status = booking.ExtensionPaid
	e.PaymentID = &p.ID
	e.PaidAt = &now
	b.TotalExtensionHours += e.AdditionalHours
	b.TotalExtensionAmount += e.AmountDue()
	b.Flags.ExtensionPaymentOverdue = false

	if !b.Billing.Final {
		if err := s.requote(ctx, b, now); err != nil {
			return nil, err
		}
	}
	b.RefreshBalances()
	b.Record(b.Status, cmd.Actor, now, "extension paid")
	if err := s.save(ctx, b, expected); err != nil {
		return nil, err
	}
	if agentID, ok := b.AgentCash(p); ok && s.cash != nil {
		if err := s.cash.CreditCash(ctx, agentID, b.ID, p.ID, p.Amount); err != nil {
			s.log.ErrorContext(ctx, "agent ledger credit failed", "booking_id", b.ID, "payment_id", p.ID, "error", err)
		}
	}
	return b, nil
}

// requote refreshes the provisional bill over the extended window.
func (s *Service) requote(ctx context.Context, b *booking.Booking, at time.Time) error {
	v, err := s.vehicles.Get(ctx, b.VehicleID)
	if err != nil {
		return err
	}
	q, err := s.pricing.QuoteEntry(v.CatalogEntry(), pricing.QuoteRequest{
		VehicleID:    b.VehicleID,
		Start:        b.StartAt,
		End:          b.EndAt,
		RateType:     b.RateType,
		FuelIncluded: b.FuelIncluded,
		Addons:       b.Addons,
		Discount:     b.Discount,
	}, at)
	if err != nil {
		return err
	}
	b.Billing = q.Billing
	return nil
}

// ExpireOverdue expires approved extensions left unpaid past the grace
// window. The booking keeps the extended EndAt and is flagged as overdue.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	var ids []types.ID
	for page := 1; ; page++ {
		list, total, err := s.store.List(ctx, booking.Filter{ExtensionStatus: booking.ExtensionApproved, Page: page, Limit: 100})
		if err != nil {
			return 0, err
		}
		for _, b := range list {
			ids = append(ids, b.ID)
		}
		if len(list) == 0 || page*100 >= total {
			break
		}
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		n, err := s.expireBooking(ctx, id)
		switch {
		case err == nil:
			expired += n
		case errors.Is(err, booking.ErrConflict):
			s.log.DebugContext(ctx, "extension expiry lost to a concurrent update", "booking_id", id)
		default:
			s.log.WarnContext(ctx, "extension expiry failed", "booking_id", id, "error", err)
		}
	}
	return expired, nil
}

func (s *Service) expireBooking(ctx context.Context, id types.ID) (int, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	now := s.now()
	expected := b.Version
	var done []booking.Extension
	for i := range b.Extensions {
		e := &b.Extensions[i]
		if e.Status != booking.ExtensionApproved || e.DecidedAt == nil || now.Before(e.DecidedAt.Add(s.grace)) {
			continue
		}
		e.Status = booking.ExtensionExpired
		e.ExpiredAt = &now
		done = append(done, *e)
	}
	if len(done) == 0 {
		return 0, nil
	}
	b.Flags.ExtensionPaymentOverdue = true
	b.Record(b.Status, booking.SystemActor, now, "extension payment overdue")
	if err := s.save(ctx, b, expected); err != nil {
		return 0, err
	}
	for _, e := range done {
		s.publish(ctx, notify.KindExtensionExpired, b, e, booking.SystemActor)
	}
	return len(done), nil
}

// ListPending returns bookings with an extension waiting for a decision.
func (s *Service) ListPending(ctx context.Context, page, limit int) ([]*booking.Booking, int, error) {
	return s.store.List(ctx, booking.Filter{ExtensionStatus: booking.ExtensionPending, Page: page, Limit: limit})
}

func (s *Service) save(ctx context.Context, b *booking.Booking, expected int) error {
	ok, err := s.store.Update(ctx, b, expected, nil)
	if err != nil {
		return err
	}
	if !ok {
		return booking.ErrConflict
	}
	return nil
}

func (s *Service) publish(ctx context.Context, kind notify.Kind, b *booking.Booking, e booking.Extension, actor booking.Actor) {
	s.notifier.Notify(ctx, notify.Event{
		Kind:      kind,
		BookingID: b.ID,
		Status:    string(e.Status),
		Actor:     actor.ID,
		Timestamp: b.UpdatedAt,
		AgentID:   b.AssignedAgentID,
		Data:      map[string]string{"extension_id": string(e.ID)},
	})
}
