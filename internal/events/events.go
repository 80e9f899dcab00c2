// Package events publishes security-relevant auth events. Delivery is best effort:
// a failed publish is logged and never fails the request that caused it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/storefront/backend/auth-service/pkg/logger"
)

type Type string

const (
	UserRegistered        Type = "user.registered"
	UserCreatedViaOAuth   Type = "user.created_via_oauth"
	AccountLinked         Type = "account.linked"
	SessionLogoutAll      Type = "session.logout_all"
	SessionReuseDetected  Type = "session.reuse_detected"
	SessionRevokedByAdmin Type = "session.revoked_by_admin"
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	UserID     int64          `json:"userId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

func New(t Type, userID int64, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, e Event) error {
	logger.InfoFields("auth_event", logger.Fields{"event": string(e.Type), "user_id": e.UserID, "event_id": e.ID})
	return nil
}

// SendTimeout bounds how long Send may hold up the caller.
const SendTimeout = 2 * time.Second

// Send publishes e and logs, rather than returns, any failure.
func Send(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()
	if err := p.Publish(ctx, e); err != nil {
		logger.WarnFields("auth_event_publish_failed", logger.Fields{"event": string(e.Type), "user_id": e.UserID, "error": err})
	}
}
