// README: FCM push for events addressed to a field agent's device.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"vrent/internal/types"
)

// TokenLookup resolves an agent's registered device token.
type TokenLookup interface {
	DeviceToken(ctx context.Context, agentID types.ID) (string, error)
}

// messageSender is the subset of *messaging.Client used here.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMPublisher struct {
	client messageSender
	tokens TokenLookup
}

func NewFCMPublisher(client *messaging.Client, tokens TokenLookup) *FCMPublisher {
	return &FCMPublisher{client: client, tokens: tokens}
}

// Publish only acts on driver_assigned; other kinds are ignored.
func (p *FCMPublisher) Publish(ctx context.Context, e Event) error {
	if e.Kind != KindDriverAssigned || e.AgentID == nil {
		return nil
	}
	token, err := p.tokens.DeviceToken(ctx, *e.AgentID)
	if err != nil {
		return fmt.Errorf("device token for %s: %w", *e.AgentID, err)
	}
	if token == "" {
		return nil
	}
	msg := &messaging.Message{
		Token: token,
		Data: map[string]string{
			"type":       string(e.Kind),
			"booking_id": string(e.BookingID),
			"status":     e.Status,
		},
		Notification: &messaging.Notification{
			Title: "New handover assigned",
			Body:  fmt.Sprintf("Booking %s has been assigned to you.", e.BookingID),
		},
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm send to agent %s: %w", *e.AgentID, err)
	}
	return nil
}
