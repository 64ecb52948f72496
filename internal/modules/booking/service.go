// README: Booking service implements the handover state machine and persistence.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"vrent/internal/apperr"
	"vrent/internal/config"
	"vrent/internal/logger"
	"vrent/internal/modules/notify"
	"vrent/internal/modules/pricing"
	"vrent/internal/modules/tripmeter"
	"vrent/internal/modules/vehicle"
	"vrent/internal/types"
)

type VehicleReader interface {
	Get(ctx context.Context, id types.ID) (*vehicle.Vehicle, error)
}

type Quoter interface {
	QuoteEntry(entry pricing.CatalogEntry, req pricing.QuoteRequest, at time.Time) (pricing.Quote, error)
	TaxBps() types.BasisPoints
	Location() *time.Location
}

// AgentReleaser gives a field agent's job slot back once their booking is
// closed or handed to someone else.
type AgentReleaser interface {
	Release(ctx context.Context, agentID types.ID) error
}

// CashLedger credits an agent's cash sub-ledger for cash taken outside the
// collection flow. entryID keeps retries idempotent.
type CashLedger interface {
	CreditCash(ctx context.Context, agentID, bookingID, entryID types.ID, amount int64) error
}

type Policy struct {
	NoShowTimeout          time.Duration
	CancellationCutoffHour int
	PaymentRetryAttempts   int
	PaymentRetryBackoff    time.Duration
}

func PolicyFromConfig(cfg config.BookingConfig) Policy {
	return Policy{
		NoShowTimeout:          cfg.NoShowTimeout(),
		CancellationCutoffHour: cfg.CancellationCutoffHour,
		PaymentRetryAttempts:   cfg.PaymentRetryAttempts,
		PaymentRetryBackoff:    cfg.PaymentRetryBackoff(),
	}
}

type Service struct {
	store    Repository
	vehicles VehicleReader
	pricing  Quoter
	notifier notify.Notifier
	agents   AgentReleaser
	cash     CashLedger
	policy   Policy
	now      func() time.Time
	log      *slog.Logger
}

func NewService(store Repository, vehicles VehicleReader, quoter Quoter, notifier notify.Notifier, policy Policy) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if policy.PaymentRetryAttempts <= 0 {
		policy.PaymentRetryAttempts = 1
	}
	return &Service{
		store:    store,
		vehicles: vehicles,
		pricing:  quoter,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
		log:      logger.WithService("booking"),
	}
}

// SetAgentReleaser is called once the matching service exists; until then
// closing a booking frees no agent slot.
func (s *Service) SetAgentReleaser(r AgentReleaser) {
	s.agents = r
}

func (s *Service) SetCashLedger(l CashLedger) {
	s.cash = l
}

// SetClock replaces the time source; jobs and tests pin it.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

var (
	ErrNotFound             = apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
	ErrInvalidState         = apperr.Conflict("INVALID_STATE_TRANSITION", "invalid state transition")
	ErrConflict             = apperr.ErrVersionConflict
	ErrBadRequest           = apperr.Validation("INVALID_BOOKING_REQUEST", "bad request")
	ErrInvalidCode          = apperr.Validation("INVALID_CODE", "verification code does not match")
	ErrCodeAlreadyUsed      = apperr.Conflict("CODE_ALREADY_USED", "verification code already used")
	ErrInsufficientUpfront  = apperr.Policy("INSUFFICIENT_UPFRONT_PAYMENT", "upfront payment below the required share")
	ErrCancellationDeadline = apperr.Policy("CANCELLATION_DEADLINE_PASSED", "cancellation deadline has passed")
	ErrVehicleUnavailable   = apperr.Conflict("VEHICLE_UNAVAILABLE", "vehicle is not available")
	ErrNoShowNotDue         = apperr.Policy("NO_SHOW_NOT_DUE", "booking is not eligible for no-show")
	ErrAlreadyAssigned      = apperr.Conflict("AGENT_ALREADY_ASSIGNED", "booking already has an agent")
	ErrForbidden            = apperr.ErrForbidden
)

type CreateCommand struct {
	VehicleID        types.ID
	RenterID         types.ID
	BookedBy         *types.ID
	Source           Source
	StartAt          time.Time
	EndAt            time.Time
	RateType         pricing.RateType
	FuelIncluded     bool
	Addons           []pricing.Addon
	Discount         *pricing.Discount
	PickupLocation   types.Point
	RequiredCategory string
	Actor            Actor
}

type TransitionCommand struct {
	BookingID types.ID
	Actor     Actor
	Note      string
}

type HandoverCommand struct {
	BookingID types.ID
	Code      string
	Odometer  int64
	Fuel      FuelLevel
	Condition string
	Notes     string
	Photos    []string
	Actor     Actor
}

type ReturnCommand struct {
	HandoverCommand
	Charges  pricing.Charges
	Override *tripmeter.ManualOverride
}

type CancelCommand struct {
	BookingID types.ID
	Reason    string
	Actor     Actor
}

type AssignCommand struct {
	BookingID types.ID
	AgentID   types.ID
	Actor     Actor
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if cmd.VehicleID == "" || cmd.RenterID == "" {
		return nil, ErrBadRequest.WithMessage("vehicle and renter are required")
	}
	if cmd.Source == "" {
		cmd.Source = SourceOnline
	}
	if !cmd.Source.Valid() {
		return nil, ErrBadRequest.WithMessage("unknown source %q", cmd.Source)
	}
	if cmd.Source.Offline() && cmd.BookedBy == nil {
		return nil, ErrBadRequest.WithMessage("offline bookings need the booking agent")
	}
	if !cmd.EndAt.After(cmd.StartAt) {
		return nil, apperr.ErrInvalidTimeRange
	}
	if !cmd.PickupLocation.Valid() {
		return nil, ErrBadRequest.WithMessage("pickup location out of range")
	}

	v, err := s.vehicles.Get(ctx, cmd.VehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, ErrVehicleUnavailable.WithMessage("vehicle %s is retired", v.ID)
	}

	now := s.now()
	quote, err := s.pricing.QuoteEntry(v.CatalogEntry(), pricing.QuoteRequest{
		VehicleID:    v.ID,
		Start:        cmd.StartAt,
		End:          cmd.EndAt,
		RateType:     cmd.RateType,
		FuelIncluded: cmd.FuelIncluded,
		Addons:       cmd.Addons,
		Discount:     cmd.Discount,
	}, now)
	if err != nil {
		return nil, err
	}

	codes, err := newCodes()
	if err != nil {
		return nil, err
	}

	category := cmd.RequiredCategory
	if category == "" {
		category = v.Category
	}
	b := &Booking{
		ID:               types.NewID(),
		VehicleID:        v.ID,
		RenterID:         cmd.RenterID,
		BookedBy:         cmd.BookedBy,
		Source:           cmd.Source,
		Zone:             v.Zone,
		PickupLocation:   cmd.PickupLocation,
		RequiredCategory: category,
		RateType:         cmd.RateType,
		FuelIncluded:     cmd.FuelIncluded,
		Addons:           cmd.Addons,
		Discount:         cmd.Discount,
		StartAt:          cmd.StartAt,
		EndAt:            cmd.EndAt,
		RefundStatus:     RefundNone,
		Codes:            codes,
		Billing:          quote.Billing,
		Extensions:       []Extension{},
		Payments:         []Payment{},
		Disputes:         []Dispute{},
		CreatedAt:        now,
	}
	if cmd.Source.Offline() {
		b.CashFlow = &CashFlowDetails{IsOffline: true, Collections: []CashCollection{}}
	}
	b.RefreshBalances()
	b.Record(StatusPending, actorOr(cmd.Actor, cmd.RenterID), now, "created")

	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, b, cmd.Actor)
	return b, nil
}

// Confirm checks the upfront payment guard and moves a pending booking to
// confirmed, or to awaiting_approval when the vehicle requires it.
func (s *Service) Confirm(ctx context.Context, cmd TransitionCommand) (*Booking, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	v, err := s.vehicles.Get(ctx, b.VehicleID)
	if err != nil {
		return nil, err
	}

	to := StatusConfirmed
	if v.RequiresApproval {
		to = StatusAwaitingApproval
	}
	if !CanTransition(b.Status, to) || b.Status != StatusPending {
		return nil, ErrInvalidState.WithMessage("cannot confirm a %s booking", b.Status)
	}
	if !v.Active {
		return nil, ErrVehicleUnavailable.WithMessage("vehicle %s is retired", v.ID)
	}

	required := types.ApplyBps(b.Billing.TotalBill, types.BasisPoints(v.RequiredPaymentBps))
	if paid := b.PaidAmount(); paid < required {
		return nil, ErrInsufficientUpfront.WithMessage("paid %d of required %d", paid, required)
	}

	expected := b.Version
	b.Record(to, cmd.Actor, s.now(), cmd.Note)
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	s.publish(ctx, b, cmd.Actor)
	return b, nil
}

// Approve is the admin step for vehicles that require approval.
func (s *Service) Approve(ctx context.Context, cmd TransitionCommand) (*Booking, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusAwaitingApproval || !CanTransition(b.Status, StatusConfirmed) {
		return nil, ErrInvalidState.WithMessage("cannot approve a %s booking", b.Status)
	}
	v, err := s.vehicles.Get(ctx, b.VehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, ErrVehicleUnavailable.WithMessage("vehicle %s is retired", v.ID)
	}
	expected := b.Version
	b.Record(StatusConfirmed, cmd.Actor, s.now(), cmd.Note)
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	s.publish(ctx, b, cmd.Actor)
	return b, nil
}

// Pickup verifies the pickup code, records the handover and takes the
// vehicle out of the pool in one conditional update.
func (s *Service) Pickup(ctx context.Context, cmd HandoverCommand) (*Booking, error) {
	if !cmd.Actor.Staff() {
		return nil, ErrForbidden
	}
	if cmd.Odometer < 0 || !cmd.Fuel.Valid() {
		return nil, ErrBadRequest.WithMessage("odometer and fuel level are required")
	}

	b, err := s.pickup(ctx, cmd)
	if errors.Is(err, ErrConflict) {
		// A concurrent presentation of the same code may have won.
		if cur, gerr := s.store.Get(ctx, cmd.BookingID); gerr == nil && cur.Codes.Pickup.Verified {
			return nil, ErrCodeAlreadyUsed
		}
	}
	return b, err
}

func (s *Service) pickup(ctx context.Context, cmd HandoverCommand) (*Booking, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if err := b.Codes.Pickup.check(cmd.Code); err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, StatusOngoing) {
		return nil, ErrInvalidState.WithMessage("cannot start a %s booking", b.Status)
	}
	v, err := s.vehicles.Get(ctx, b.VehicleID)
	if err != nil {
		return nil, err
	}
	if !v.Available || !v.Active {
		return nil, ErrVehicleUnavailable.WithMessage("vehicle %s is still out", v.ID)
	}

	now := s.now()
	expected := b.Version
	b.Codes.Pickup.consume(cmd.Actor.ID, now)
	b.ActualStartAt = &now
	b.Handover = &HandoverRecord{
		Odometer:   cmd.Odometer,
		Fuel:       cmd.Fuel,
		Condition:  cmd.Condition,
		Notes:      cmd.Notes,
		Photos:     cmd.Photos,
		RecordedBy: cmd.Actor.ID,
		RecordedAt: now,
	}
	b.Trip = &tripmeter.TripMetrics{StartOdometer: cmd.Odometer}
	b.Record(StatusOngoing, cmd.Actor, now, "pickup")

	avail := &AvailabilityChange{VehicleID: v.ID, Available: false, ExpectedVersion: v.AvailabilityVersion}
	if err := s.save(ctx, b, expected, avail); err != nil {
		return nil, err
	}
	s.publish(ctx, b, cmd.Actor)
	return b, nil
}

// Return verifies the drop code, reconciles the trip meter, composes the
// final bill from the full trip and releases the vehicle.
func (s *Service) Return(ctx context.Context, cmd ReturnCommand) (*Booking, error) {
	if !cmd.Actor.Staff() {
		return nil, ErrForbidden
	}
	if !cmd.Fuel.Valid() {
		return nil, ErrBadRequest.WithMessage("fuel level is required")
	}

	b, err := s.ret(ctx, cmd)
	if errors.Is(err, ErrConflict) {
		if cur, gerr := s.store.Get(ctx, cmd.BookingID); gerr == nil && cur.Codes.Drop.Verified {
			return nil, ErrCodeAlreadyUsed
		}
	}
	return b, err
}

func (s *Service) ret(ctx context.Context, cmd ReturnCommand) (*Booking, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if err := b.Codes.Drop.check(cmd.Code); err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, StatusCompleted) || b.ActualStartAt == nil || b.Trip == nil {
		return nil, ErrInvalidState.WithMessage("cannot return a %s booking", b.Status)
	}
	v, err := s.vehicles.Get(ctx, b.VehicleID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var override *tripmeter.ManualOverride
	if cmd.Override != nil {
		o := *cmd.Override
		o.By = cmd.Actor.ID
		o.At = now
		override = &o
	}
	trip, err := tripmeter.Reconcile(tripmeter.Input{
		StartOdometer:   b.Trip.StartOdometer,
		EndOdometer:     cmd.Odometer,
		Override:        override,
		OverrideAllowed: cmd.Actor.Role == RoleAdmin || cmd.Actor.Role == RoleAgent,
	})
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
	bill, err := pricing.Compose(pricing.ComposeInput{
		Selection:  sel,
		Elapsed:    now.Sub(*b.ActualStartAt),
		ActualKm:   trip.TotalKm,
		Addons:     b.Addons,
		Discount:   b.Discount,
		FuelCharge: refuelCharge(b, cmd.Fuel, v.RefuelChargePerQuarter),
		Charges:    cmd.Charges,
		TaxBps:     s.pricing.TaxBps(),
		Deposit:    b.Billing.Deposit,
		Currency:   b.Billing.Currency,
		Final:      true,
		At:         now,
	})
	if err != nil {
		return nil, err
	}

	expected := b.Version
	b.Codes.Drop.consume(cmd.Actor.ID, now)
	b.ActualEndAt = &now
	b.Trip = &trip
	b.Billing = bill
	b.Return = &ReturnRecord{
		HandoverRecord: HandoverRecord{
			Odometer:   cmd.Odometer,
			Fuel:       cmd.Fuel,
			Condition:  cmd.Condition,
			Notes:      cmd.Notes,
			Photos:     cmd.Photos,
			RecordedBy: cmd.Actor.ID,
			RecordedAt: now,
		},
		Charges:               cmd.Charges,
		Submitted:             true,
		VehicleAvailableAgain: true,
	}
	b.RefreshBalances()
	b.Record(StatusCompleted, cmd.Actor, now, "return")

	avail := &AvailabilityChange{VehicleID: v.ID, Available: true, ExpectedVersion: v.AvailabilityVersion}
	if err := s.save(ctx, b, expected, avail); err != nil {
		return nil, err
	}
	s.releaseAgent(ctx, b.ID, b.AssignedAgentID)
	s.publish(ctx, b, cmd.Actor)
	return b, nil
}

func refuelCharge(b *Booking, returned FuelLevel, perQuarter int64) int64 {
	if b.FuelIncluded || b.Handover == nil || perQuarter <= 0 {
		return 0
	}
	start, ok := b.Handover.Fuel.Quarters()
	if !ok {
		return 0
	}
	end, ok := returned.Quarters()
	if !ok || end >= start {
		return 0
	}
	return (start - end) * perQuarter
}

// Cancel is allowed before pickup. Block and daily rentals must cancel by
// the cut-off hour on the start date; hourly rentals cancel immediately.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Booking, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, StatusCancelled) {
		return nil, ErrInvalidState.WithMessage("cannot cancel a %s booking", b.Status)
	}
	if cmd.Actor.Role == RoleRenter && cmd.Actor.ID != b.RenterID {
		return nil, ErrForbidden
	}

	now := s.now()
	if deadline, ok := s.cancellationDeadline(b); ok && cmd.Actor.Role != RoleAdmin && now.After(deadline) {
		return nil, ErrCancellationDeadline.WithMessage("deadline was %s", deadline.Format(time.RFC3339))
	}

	expected := b.Version
	if paid := b.PaidAmount(); paid > 0 {
		b.Refund = &Refund{
			Reason:          "cancelled: " + strings.TrimSpace(cmd.Reason),
			RequestedAmount: paid,
			RequestedAt:     now,
		}
		b.RefundStatus = RefundRequested
	}
	b.Record(StatusCancelled, cmd.Actor, now, cmd.Reason)
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	s.releaseAgent(ctx, b.ID, b.AssignedAgentID)
	s.publish(ctx, b, cmd.Actor)
	return b, nil
}

func (s *Service) cancellationDeadline(b *Booking) (time.Time, bool) {
	if b.RateType == pricing.RateHourly {
		return time.Time{}, false
	}
	loc := s.pricing.Location()
	st := b.StartAt.In(loc)
	return time.Date(st.Year(), st.Month(), st.Day(), s.policy.CancellationCutoffHour, 0, 0, 0, loc), true
}

// MarkNoShow closes a booking whose pickup never happened within the
// configured timeout after the scheduled start.
func (s *Service) MarkNoShow(ctx context.Context, cmd TransitionCommand) (*Booking, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(b.Status, StatusNoShow) {
		return nil, ErrInvalidState.WithMessage("cannot mark a %s booking as no-show", b.Status)
	}
	now := s.now()
	if b.ActualStartAt != nil || b.Handover != nil || now.Before(b.StartAt.Add(s.policy.NoShowTimeout)) {
		return nil, ErrNoShowNotDue
	}
	expected := b.Version
	b.Record(StatusNoShow, cmd.Actor, now, "pickup not completed in time")
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	s.releaseAgent(ctx, b.ID, b.AssignedAgentID)
	s.publish(ctx, b, cmd.Actor)
	return b, nil
}

// SweepNoShows marks overdue bookings. A booking that a human moved in the
// meantime loses nothing: the sweep gives up on conflict.
func (s *Service) SweepNoShows(ctx context.Context) (int, error) {
	candidates, err := s.store.ListNoShowCandidates(ctx, s.now().Add(-s.policy.NoShowTimeout), 200)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			return marked, ctx.Err()
		}
		_, err := s.MarkNoShow(ctx, TransitionCommand{BookingID: c.ID, Actor: SystemActor})
		switch {
		case err == nil:
			marked++
		case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState), errors.Is(err, ErrNoShowNotDue):
			s.log.DebugContext(ctx, "no-show sweep skipped booking", "booking_id", c.ID, "reason", apperr.CodeOf(err))
		default:
			s.log.WarnContext(ctx, "no-show sweep failed", "booking_id", c.ID, "error", err)
		}
	}
	return marked, nil
}

// AssignAgent records the field agent chosen for the handover.
func (s *Service) AssignAgent(ctx context.Context, cmd AssignCommand) (*Booking, error) {
	if cmd.AgentID == "" {
		return nil, ErrBadRequest.WithMessage("agent is required")
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case StatusPending, StatusAwaitingApproval, StatusConfirmed:
	default:
		return nil, ErrInvalidState.WithMessage("cannot assign an agent to a %s booking", b.Status)
	}
	if b.AssignedAgentID != nil && cmd.Actor.Role != RoleAdmin {
		return nil, ErrAlreadyAssigned
	}

	if b.AssignedAgentID != nil && *b.AssignedAgentID == cmd.AgentID {
		return b, nil
	}

	expected := b.Version
	previous := b.AssignedAgentID
	agent := cmd.AgentID
	b.AssignedAgentID = &agent
	b.Record(b.Status, cmd.Actor, s.now(), "agent assigned: "+string(agent))
	if err := s.save(ctx, b, expected, nil); err != nil {
		return nil, err
	}
	s.releaseAgent(ctx, b.ID, previous)
	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.KindDriverAssigned,
		BookingID: b.ID,
		Status:    string(b.Status),
		Actor:     cmd.Actor.ID,
		Timestamp: b.UpdatedAt,
		AgentID:   &agent,
	})
	return b, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Booking, int, error) {
	return s.store.List(ctx, f)
}

// ListByAgent returns bookings booked by or assigned to agentID that start
// inside [from, to).
func (s *Service) ListByAgent(ctx context.Context, agentID types.ID, from, to time.Time, page, limit int) ([]*Booking, int, error) {
	if !to.After(from) {
		return nil, 0, apperr.ErrInvalidTimeRange
	}
	return s.store.List(ctx, Filter{AgentID: &agentID, From: &from, To: &to, Page: page, Limit: limit})
}

func (s *Service) ListOpenDisputes(ctx context.Context, page, limit int) ([]*Booking, int, error) {
	return s.store.List(ctx, Filter{DisputeStatus: DisputeOpen, Page: page, Limit: limit})
}

// ListUnassigned returns confirmed bookings still waiting for an agent.
func (s *Service) ListUnassigned(ctx context.Context, limit int) ([]*Booking, error) {
	out, _, err := s.store.List(ctx, Filter{Statuses: []Status{StatusConfirmed}, Unassigned: true, Limit: limit})
	return out, err
}

func (s *Service) save(ctx context.Context, b *Booking, expected int, avail *AvailabilityChange) error {
	ok, err := s.store.Update(ctx, b, expected, avail)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// releaseAgent runs after the booking commit; a failure leaves the agent
// one slot short until an admin resets availability, so it is only logged.
func (s *Service) releaseAgent(ctx context.Context, bookingID types.ID, agentID *types.ID) {
	if s.agents == nil || agentID == nil {
		return
	}
	if err := s.agents.Release(ctx, *agentID); err != nil {
		s.log.ErrorContext(ctx, "release agent slot", "booking_id", bookingID, "agent_id", *agentID, "error", err)
	}
}

// creditAgentCash runs after the booking commit. The cash is already on the
// booking, so a ledger failure is logged for the reconciliation run.
func (s *Service) creditAgentCash(ctx context.Context, b *Booking, p Payment) {
	agentID, ok := b.AgentCash(p)
	if !ok || s.cash == nil {
		return
	}
	if err := s.cash.CreditCash(ctx, agentID, b.ID, p.ID, p.Amount); err != nil {
		s.log.ErrorContext(ctx, "agent ledger credit failed", "booking_id", b.ID, "payment_id", p.ID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, b *Booking, actor Actor) {
	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.KindBookingStatusChanged,
		BookingID: b.ID,
		Status:    string(b.Status),
		Actor:     actor.ID,
		Timestamp: b.UpdatedAt,
		AgentID:   b.AssignedAgentID,
	})
}

func actorOr(a Actor, renter types.ID) Actor {
	if a.ID == "" {
		return Actor{ID: renter, Role: RoleRenter}
	}
	return a
}
