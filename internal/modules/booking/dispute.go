// README: Disputes and the refund lifecycle attached to a booking.
package booking

import (
	"context"
	"strings"

	"vrent/internal/apperr"
	"vrent/internal/modules/notify"
	"vrent/internal/types"
)

var (
	ErrDisputeNotFound = apperr.NotFound("DISPUTE_NOT_FOUND", "dispute not found")
	ErrInvalidDispute  = apperr.Validation("INVALID_DISPUTE", "dispute is invalid")
	ErrDisputeClosed   = apperr.Conflict("DISPUTE_CLOSED", "dispute is already closed")
	ErrRefundState     = apperr.Conflict("INVALID_REFUND_STATE", "refund is not in the expected state")
	ErrRefundAmount    = apperr.Validation("INVALID_REFUND_AMOUNT", "refund amount must be positive and within the paid amount")
)

type DisputeCommand struct {
	BookingID   types.ID
	Type        DisputeType
	Description string
	Evidence    []string
	Actor       Actor
}

type ResolveDisputeCommand struct {
	BookingID  types.ID
	DisputeID  types.ID
	Status     DisputeStatus
	Resolution string
	Actor      Actor
}

type RefundRequestCommand struct {
	BookingID types.ID
	Reason    string
	Amount    int64
	Actor     Actor
}

type RefundDecisionCommand struct {
	BookingID types.ID
	Approve   bool
	// Amount overrides the requested amount when approving; zero keeps it.
	Amount int64
	Notes  string
	Actor  Actor
}

type ProcessRefundCommand struct {
	BookingID    types.ID
	Method       Instrument
	ProcessorRef string
	Actor        Actor
}

func (s *Service) RaiseDispute(ctx context.Context, cmd DisputeCommand) (*Dispute, error) {
	switch cmd.Type {
	case DisputeDamage, DisputeBilling, DisputeService, DisputeRefund, DisputeOther:
	default:
		return nil, ErrInvalidDispute.WithMessage("unknown dispute type %q", cmd.Type)
	}
	if strings.TrimSpace(cmd.Description) == "" {
		return nil, ErrInvalidDispute.WithMessage("description is required")
	}

	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if cmd.Actor.Role == RoleRenter && cmd.Actor.ID != b.RenterID {
		return nil, ErrForbidden
	}

	now := s.now()
	expected := b.Version
	b.Disputes = append(b.Disputes, Dispute{
		ID:          types.NewID(),
		Type:        cmd.Type,
		Description: cmd.Description,
		RaisedBy:    cmd.Actor.ID,
		Status:      DisputeOpen,
		Evidence:    cmd.Evidence,
		At:          now,
	})
	d := b.Disputes[len(b.Disputes)-1]
	b.Record(b.Status, cmd.Actor, now, "dispute raised: "+string(cmd.Type))
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.KindDisputeRaised,
		BookingID: b.ID,
		Status:    string(b.Status),
		Actor:     cmd.Actor.ID,
		Timestamp: now,
		Data:      map[string]string{"dispute_id": string(d.ID), "type": string(d.Type)},
	})
	return &d, nil
}

func (s *Service) ResolveDispute(ctx context.Context, cmd ResolveDisputeCommand) (*Dispute, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	switch cmd.Status {
	case DisputeUnderReview, DisputeResolved, DisputeRejected:
	default:
		return nil, ErrInvalidDispute.WithMessage("cannot move a dispute to %q", cmd.Status)
	}

	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	d, ok := b.Dispute(cmd.DisputeID)
	if !ok {
		return nil, ErrDisputeNotFound
	}
	if d.Status == DisputeResolved || d.Status == DisputeRejected {
		return nil, ErrDisputeClosed
	}

	now := s.now()
	expected := b.Version
	d.Status = cmd.Status
	d.Resolution = cmd.Resolution
	if cmd.Status != DisputeUnderReview {
		by := cmd.Actor.ID
		d.ResolvedBy = &by
		d.ResolvedAt = &now
	}
	out := *d
	b.Record(b.Status, cmd.Actor, now, "dispute "+string(cmd.Status))
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestRefund opens a refund on a closed booking. A rejected refund may be
// requested again.
func (s *Service) RequestRefund(ctx context.Context, cmd RefundRequestCommand) (*Booking, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.Terminal() {
		return nil, ErrInvalidState.WithMessage("refunds need a closed booking, got %s", b.Status)
	}
	if cmd.Actor.Role == RoleRenter && cmd.Actor.ID != b.RenterID {
		return nil, ErrForbidden
	}
	if b.RefundStatus != RefundNone && b.RefundStatus != RefundRejected {
		return nil, ErrRefundState.WithMessage("refund is already %s", b.RefundStatus)
	}
	if cmd.Amount <= 0 || cmd.Amount > b.PaidAmount() {
		return nil, ErrRefundAmount
	}

	now := s.now()
	expected := b.Version
	b.Refund = &Refund{Reason: cmd.Reason, RequestedAmount: cmd.Amount, RequestedAt: now}
	b.RefundStatus = RefundRequested
	b.Record(b.Status, cmd.Actor, now, "refund requested")
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) DecideRefund(ctx context.Context, cmd RefundDecisionCommand) (*Booking, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.RefundStatus != RefundRequested || b.Refund == nil {
		return nil, ErrRefundState.WithMessage("refund is %s", b.RefundStatus)
	}

	now := s.now()
	expected := b.Version
	b.Refund.Notes = cmd.Notes
	b.Refund.DecidedAt = &now
	if cmd.Approve {
		amount := cmd.Amount
		if amount == 0 {
			amount = b.Refund.RequestedAmount
		}
		if amount <= 0 || amount > b.PaidAmount() {
			return nil, ErrRefundAmount
		}
		b.Refund.ApprovedAmount = amount
		b.RefundStatus = RefundApproved
	} else {
		b.RefundStatus = RefundRejected
	}
	b.Record(b.Status, cmd.Actor, now, "refund "+string(b.RefundStatus))
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (*Booking, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	if !cmd.Method.Valid() {
		return nil, ErrInvalidPayment.WithMessage("unknown refund method %q", cmd.Method)
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.RefundStatus != RefundApproved || b.Refund == nil {
		return nil, ErrRefundState.WithMessage("refund is %s", b.RefundStatus)
	}

	now := s.now()
	expected := b.Version
	by := cmd.Actor.ID
	b.Refund.Method = cmd.Method
	b.Refund.ProcessorRef = cmd.ProcessorRef
	b.Refund.ProcessedBy = &by
	b.Refund.ProcessedAt = &now
	b.RefundStatus = RefundProcessed
	b.RefreshBalances()
	b.Record(b.Status, cmd.Actor, now, "refund processed")
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	return b, nil
}
