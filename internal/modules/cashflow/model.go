// README: Agent cash ledger records and the reconciliation view.
package cashflow

import (
	"context"
	"time"

	"vrent/internal/types"
)

type EntryKind string

const (
	EntryCollection EntryKind = "collection"
	EntryHandover   EntryKind = "handover"
)

type Entry struct {
	ID         types.ID  `json:"id"`
	AgentID    types.ID  `json:"agent_id"`
	BookingID  *types.ID `json:"booking_id,omitempty"`
	Kind       EntryKind `json:"kind"`
	Amount     int64     `json:"amount"`
	ReceivedBy *types.ID `json:"received_by,omitempty"`
	ReceiptNo  string    `json:"receipt_no,omitempty"`
	At         time.Time `json:"at"`
}

// Balance is an agent's running position across all offline bookings.
type Balance struct {
	AgentID    types.ID  `json:"agent_id"`
	Collected  int64     `json:"collected"`
	HandedOver int64     `json:"handed_over"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (b Balance) OnHand() int64 {
	return b.Collected - b.HandedOver
}

// Report aggregates one agent's ledger over a date range.
type Report struct {
	AgentID     types.ID  `json:"agent_id"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Collected   int64     `json:"collected"`
	HandedOver  int64     `json:"handed_over"`
	Outstanding int64     `json:"outstanding"`
	OnHand      int64     `json:"on_hand"`
	Entries     []Entry   `json:"entries"`
}

// Ledger is the per-agent cash sub-ledger. Credit is idempotent by entry ID
// and must update the running balance with an atomic increment.
type Ledger interface {
	Credit(ctx context.Context, e Entry) error
	// HandOver moves the agent's whole on-hand balance to accounts and
	// returns the recorded entry.
	HandOver(ctx context.Context, e Entry) (Entry, error)
	Balance(ctx context.Context, agentID types.ID) (Balance, error)
	Entries(ctx context.Context, agentID types.ID, from, to time.Time) ([]Entry, error)
	Agents(ctx context.Context) ([]types.ID, error)
}
