// README: Notification events produced by booking transitions; delivery is fire-and-forget.
package notify

import (
	"context"
	"time"

	"vrent/internal/types"
)

type Kind string

const (
	KindBookingStatusChanged Kind = "booking_status_changed"
	KindDriverAssigned       Kind = "driver_assigned"
	KindExtensionRequested   Kind = "extension_requested"
	KindExtensionDecided     Kind = "extension_decided"
	KindExtensionExpired     Kind = "extension_expired"
	KindPaymentRecorded      Kind = "payment_recorded"
	KindDisputeRaised        Kind = "dispute_raised"
)

type Event struct {
	Kind      Kind              `json:"kind"`
	BookingID types.ID          `json:"booking_id"`
	Status    string            `json:"status"`
	Actor     types.ID          `json:"actor"`
	Timestamp time.Time         `json:"timestamp"`
	AgentID   *types.ID         `json:"agent_id,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Publisher delivers one event. Implementations may block on I/O.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Notifier is what services depend on; it must never block a transition.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
