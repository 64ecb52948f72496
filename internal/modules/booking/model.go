// README: Booking aggregate, embedded sub-records and the status transition table.
package booking

import (
	"time"

	"vrent/internal/modules/pricing"
	"vrent/internal/modules/tripmeter"
	"vrent/internal/types"
)

type Status string

const (
	StatusNone             Status = "none"
	StatusPending          Status = "pending"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusConfirmed        Status = "confirmed"
	StatusOngoing          Status = "ongoing"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
	StatusNoShow           Status = "no_show"
)

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:          {StatusAwaitingApproval, StatusConfirmed, StatusCancelled},
	StatusAwaitingApproval: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:        {StatusOngoing, StatusCancelled, StatusNoShow},
	StatusOngoing:          {StatusCompleted, StatusNoShow},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal statuses only accept audit data (history, payments, disputes, refunds).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type Source string

const (
	SourceOnline        Source = "online"
	SourceOfflineSeller Source = "offline_seller"
	SourceOfflineWorker Source = "offline_worker"
	SourceAdmin         Source = "admin"
)

func (s Source) Valid() bool {
	switch s {
	case SourceOnline, SourceOfflineSeller, SourceOfflineWorker, SourceAdmin:
		return true
	}
	return false
}

func (s Source) Offline() bool {
	return s == SourceOfflineSeller || s == SourceOfflineWorker
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = "none"
	RefundRequested RefundStatus = "requested"
	RefundApproved  RefundStatus = "approved"
	RefundProcessed RefundStatus = "processed"
	RefundRejected  RefundStatus = "rejected"
)

type Role string

const (
	RoleRenter Role = "renter"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

type Actor struct {
	ID   types.ID `json:"id"`
	Role Role     `json:"role"`
}

var SystemActor = Actor{ID: "system", Role: RoleSystem}

func (a Actor) Staff() bool {
	return a.Role == RoleAdmin || a.Role == RoleAgent || a.Role == RoleSystem
}

type VerificationCode struct {
	Code       string     `json:"code"`
	Verified   bool       `json:"verified"`
	VerifiedBy *types.ID  `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

type Codes struct {
	Pickup VerificationCode `json:"pickup"`
	Drop   VerificationCode `json:"drop"`
}

type FuelLevel string

const (
	FuelFull          FuelLevel = "full"
	FuelThreeQuarters FuelLevel = "three_quarters"
	FuelHalf          FuelLevel = "half"
	FuelQuarter       FuelLevel = "quarter"
	FuelEmpty         FuelLevel = "empty"
	FuelUnknown       FuelLevel = "unknown"
)

// Quarters returns the level in quarters of a tank; ok is false for unknown.
func (f FuelLevel) Quarters() (int64, bool) {
	switch f {
	case FuelFull:
		return 4, true
	case FuelThreeQuarters:
		return 3, true
	case FuelHalf:
		return 2, true
	case FuelQuarter:
		return 1, true
	case FuelEmpty:
		return 0, true
	}
	return 0, false
}

func (f FuelLevel) Valid() bool {
	if f == FuelUnknown {
		return true
	}
	_, ok := f.Quarters()
	return ok
}

type HandoverRecord struct {
	Odometer   int64     `json:"odometer"`
	Fuel       FuelLevel `json:"fuel"`
	Condition  string    `json:"condition"`
	Notes      string    `json:"notes"`
	Photos     []string  `json:"photos"`
	RecordedBy types.ID  `json:"recorded_by"`
	RecordedAt time.Time `json:"recorded_at"`
}

type ReturnRecord struct {
	HandoverRecord
	Charges               pricing.Charges `json:"charges"`
	Submitted             bool            `json:"submitted"`
	VehicleAvailableAgain bool            `json:"vehicle_available_again"`
}

type ExtensionStatus string

const (
	ExtensionPending  ExtensionStatus = "pending"
	ExtensionApproved ExtensionStatus = "approved"
	ExtensionRejected ExtensionStatus = "rejected"
	ExtensionPaid     ExtensionStatus = "paid"
	ExtensionExpired  ExtensionStatus = "expired"
)

// Open extensions block a new request.
func (s ExtensionStatus) Open() bool {
	return s == ExtensionPending || s == ExtensionApproved
}

type Extension struct {
	ID                types.ID        `json:"id"`
	Status            ExtensionStatus `json:"status"`
	PreviousEndAt     time.Time       `json:"previous_end_at"`
	RequestedEndAt    time.Time       `json:"requested_end_at"`
	AdditionalHours   int64           `json:"additional_hours"`
	AdditionalAmount  int64           `json:"additional_amount"`
	AdditionalTax     int64           `json:"additional_tax"`
	AdditionalKmLimit int64           `json:"additional_km_limit"`
	Reason            string          `json:"reason"`
	RequestedBy       types.ID        `json:"requested_by"`
	RequestedAt       time.Time       `json:"requested_at"`
	DecidedBy         *types.ID       `json:"decided_by,omitempty"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty"`
	RejectionReason   string          `json:"rejection_reason,omitempty"`
	PaymentID         *types.ID       `json:"payment_id,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	ExpiredAt         *time.Time      `json:"expired_at,omitempty"`
}

// AmountDue is what the renter pays to settle the extension.
func (e Extension) AmountDue() int64 {
	return e.AdditionalAmount + e.AdditionalTax
}

type Instrument string

const (
	InstrumentUPI    Instrument = "upi"
	InstrumentCash   Instrument = "cash"
	InstrumentCard   Instrument = "card"
	InstrumentWallet Instrument = "wallet"
	InstrumentBank   Instrument = "bank"
	InstrumentCheque Instrument = "cheque"
)

func (i Instrument) Valid() bool {
	switch i {
	case InstrumentUPI, InstrumentCash, InstrumentCard, InstrumentWallet, InstrumentBank, InstrumentCheque:
		return true
	}
	return false
}

type PaymentState string

const (
	PaymentStatePending PaymentState = "pending"
	PaymentStateSuccess PaymentState = "success"
	PaymentStateFailed  PaymentState = "failed"
)

type PaymentPurpose string

const (
	PurposeBooking   PaymentPurpose = "booking"
	PurposeExtension PaymentPurpose = "extension"
	PurposeDeposit   PaymentPurpose = "deposit"
)

type Payment struct {
	ID           types.ID       `json:"id"`
	Amount       int64          `json:"amount"`
	Instrument   Instrument     `json:"instrument"`
	ProcessorRef string         `json:"processor_ref,omitempty"`
	CollectedBy  *types.ID      `json:"collected_by,omitempty"`
	Status       PaymentState   `json:"status"`
	Purpose      PaymentPurpose `json:"purpose"`
	At           time.Time      `json:"at"`
}

type CashCollection struct {
	ID          types.ID  `json:"id"`
	Cash        int64     `json:"cash"`
	Online      int64     `json:"online"`
	OnlineRef   string    `json:"online_ref,omitempty"`
	CollectedBy types.ID  `json:"collected_by"`
	At          time.Time `json:"at"`
}

// CashFlowDetails tracks offline collections. After every change
// CashReceived + OnlinePaymentAmount + PendingCash equals the amount due.
type CashFlowDetails struct {
	IsOffline           bool             `json:"is_offline"`
	CashReceived        int64            `json:"cash_received"`
	OnlinePaymentAmount int64            `json:"online_payment_amount"`
	PendingCash         int64            `json:"pending_cash"`
	CollectedBy         *types.ID        `json:"collected_by,omitempty"`
	CollectedAt         *time.Time       `json:"collected_at,omitempty"`
	Collections         []CashCollection `json:"collections"`
}

type DisputeType string

const (
	DisputeDamage  DisputeType = "damage"
	DisputeBilling DisputeType = "billing"
	DisputeService DisputeType = "service"
	DisputeRefund  DisputeType = "refund"
	DisputeOther   DisputeType = "other"
)

type DisputeStatus string

const (
	DisputeOpen        DisputeStatus = "open"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
	DisputeRejected    DisputeStatus = "rejected"
)

type Dispute struct {
	ID          types.ID      `json:"id"`
	Type        DisputeType   `json:"type"`
	Description string        `json:"description"`
	RaisedBy    types.ID      `json:"raised_by"`
	Status      DisputeStatus `json:"status"`
	Resolution  string        `json:"resolution,omitempty"`
	Evidence    []string      `json:"evidence,omitempty"`
	At          time.Time     `json:"at"`
	ResolvedBy  *types.ID     `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

type Refund struct {
	Reason          string     `json:"reason"`
	RequestedAmount int64      `json:"requested_amount"`
	ApprovedAmount  int64      `json:"approved_amount"`
	Method          Instrument `json:"method,omitempty"`
	ProcessorRef    string     `json:"processor_ref,omitempty"`
	ProcessedBy     *types.ID  `json:"processed_by,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	RequestedAt     time.Time  `json:"requested_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}

type HistoryEntry struct {
	Status Status    `json:"status"`
	Actor  types.ID  `json:"actor"`
	Role   Role      `json:"role"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

type Flags struct {
	ExtensionPaymentOverdue bool `json:"extension_payment_overdue"`
}

type Booking struct {
	ID               types.ID               `json:"id"`
	VehicleID        types.ID               `json:"vehicle_id"`
	RenterID         types.ID               `json:"renter_id"`
	BookedBy         *types.ID              `json:"booked_by,omitempty"`
	Source           Source                 `json:"source"`
	Zone             string                 `json:"zone"`
	PickupLocation   types.Point            `json:"pickup_location"`
	RequiredCategory string                 `json:"required_category"`
	RateType         pricing.RateType       `json:"rate_type"`
	FuelIncluded     bool                   `json:"fuel_included"`
	Addons           []pricing.Addon        `json:"addons,omitempty"`
	Discount         *pricing.Discount      `json:"discount,omitempty"`
	StartAt          time.Time              `json:"start_at"`
	EndAt            time.Time              `json:"end_at"`
	OriginalEndAt    *time.Time             `json:"original_end_at,omitempty"`
	ActualStartAt    *time.Time             `json:"actual_start_at,omitempty"`
	ActualEndAt      *time.Time             `json:"actual_end_at,omitempty"`
	Status           Status                 `json:"status"`
	PaymentStatus    PaymentStatus          `json:"payment_status"`
	RefundStatus     RefundStatus           `json:"refund_status"`
	Version          int                    `json:"version"`
	AssignedAgentID  *types.ID              `json:"assigned_agent_id,omitempty"`
	Codes            Codes                  `json:"codes"`
	Handover         *HandoverRecord        `json:"handover,omitempty"`
	Return           *ReturnRecord          `json:"return,omitempty"`
	Trip             *tripmeter.TripMetrics `json:"trip,omitempty"`
	Billing          pricing.Billing        `json:"billing"`
	Extensions       []Extension            `json:"extensions"`
	// TotalExtensionHours and TotalExtensionAmount only count paid extensions.
	TotalExtensionHours  int64           `json:"total_extension_hours"`
	TotalExtensionAmount int64           `json:"total_extension_amount"`
	Payments             []Payment       `json:"payments"`
	CashFlow             *CashFlowDetails `json:"cash_flow,omitempty"`
	Disputes             []Dispute       `json:"disputes"`
	Refund               *Refund         `json:"refund,omitempty"`
	History              []HistoryEntry  `json:"history"`
	Flags                Flags           `json:"flags"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// AmountDue is the current bill plus deposit.
func (b *Booking) AmountDue() int64 {
	return b.Billing.AmountDue()
}

// PaidAmount sums successful payments of any purpose.
func (b *Booking) PaidAmount() int64 {
	var paid int64
	for _, p := range b.Payments {
		if p.Status == PaymentStateSuccess {
			paid += p.Amount
		}
	}
	return paid
}

// RefreshBalances recomputes the derived payment status and offline pending
// cash. It must run after any change to the bill or to payments.
func (b *Booking) RefreshBalances() {
	due := b.AmountDue()
	paid := b.PaidAmount()
	switch {
	case b.RefundStatus == RefundProcessed:
		b.PaymentStatus = PaymentRefunded
	case paid <= 0:
		b.PaymentStatus = PaymentUnpaid
	case paid >= due:
		b.PaymentStatus = PaymentPaid
	default:
		b.PaymentStatus = PaymentPartial
	}
	if b.CashFlow != nil {
		b.CashFlow.PendingCash = due - b.CashFlow.CashReceived - b.CashFlow.OnlinePaymentAmount
	}
}

// ApplyOfflinePayment mirrors a settled payment taken outside the collection
// flow (extension, gateway callback, staff-recorded) into the offline cash
// flow so pending cash and the overpayment guard account for it. Callers run
// RefreshBalances afterwards.
func (b *Booking) ApplyOfflinePayment(p Payment) {
	if b.CashFlow == nil || p.Status != PaymentStateSuccess {
		return
	}
	c := CashCollection{ID: p.ID, At: p.At}
	if p.CollectedBy != nil {
		c.CollectedBy = *p.CollectedBy
	}
	if p.Instrument == InstrumentCash {
		c.Cash = p.Amount
		b.CashFlow.CashReceived += p.Amount
	} else {
		c.Online = p.Amount
		c.OnlineRef = p.ProcessorRef
		b.CashFlow.OnlinePaymentAmount += p.Amount
	}
	b.CashFlow.Collections = append(b.CashFlow.Collections, c)
}

// AgentCash reports whether p is cash an agent now holds for an offline
// booking, and which agent.
func (b *Booking) AgentCash(p Payment) (types.ID, bool) {
	if b.CashFlow == nil || p.Status != PaymentStateSuccess || p.Instrument != InstrumentCash || p.CollectedBy == nil {
		return "", false
	}
	return *p.CollectedBy, true
}

// Record appends a history entry and, when to differs, moves the status.
func (b *Booking) Record(to Status, actor Actor, at time.Time, note string) {
	b.Status = to
	b.History = append(b.History, HistoryEntry{
		Status: to,
		Actor:  actor.ID,
		Role:   actor.Role,
		At:     at,
		Note:   note,
	})
	b.UpdatedAt = at
}

func (b *Booking) Extension(id types.ID) (*Extension, bool) {
	for i := range b.Extensions {
		if b.Extensions[i].ID == id {
			return &b.Extensions[i], true
		}
	}
	return nil, false
}

func (b *Booking) Dispute(id types.ID) (*Dispute, bool) {
	for i := range b.Disputes {
		if b.Disputes[i].ID == id {
			return &b.Disputes[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so callers can mutate without touching a shared
// instance.
func (b *Booking) Clone() *Booking {
	cp := *b
	cp.Addons = append([]pricing.Addon(nil), b.Addons...)
	cp.Extensions = append([]Extension(nil), b.Extensions...)
	cp.Payments = append([]Payment(nil), b.Payments...)
	cp.Disputes = append([]Dispute(nil), b.Disputes...)
	cp.History = append([]HistoryEntry(nil), b.History...)
	if b.Discount != nil {
		d := *b.Discount
		cp.Discount = &d
	}
	if b.Handover != nil {
		h := *b.Handover
		h.Photos = append([]string(nil), b.Handover.Photos...)
		cp.Handover = &h
	}
	if b.Return != nil {
		r := *b.Return
		r.Photos = append([]string(nil), b.Return.Photos...)
		cp.Return = &r
	}
	if b.Trip != nil {
		t := *b.Trip
		cp.Trip = &t
	}
	if b.CashFlow != nil {
		c := *b.CashFlow
		c.Collections = append([]CashCollection(nil), b.CashFlow.Collections...)
		cp.CashFlow = &c
	}
	if b.Refund != nil {
		r := *b.Refund
		cp.Refund = &r
	}
	return &cp
}

// AvailabilityChange flips a vehicle's availability in the same unit of work
// as a booking update, guarded by the vehicle's availability version.
type AvailabilityChange struct {
	VehicleID       types.ID
	Available       bool
	ExpectedVersion int
}

type Filter struct {
	AgentID         *types.ID
	RenterID        *types.ID
	Statuses        []Status
	From            *time.Time
	To              *time.Time
	DisputeStatus   DisputeStatus
	ExtensionStatus ExtensionStatus
	Unassigned      bool
	OfflineOnly     bool
	Page            int
	Limit           int
}
