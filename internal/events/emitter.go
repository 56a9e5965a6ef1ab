// Package events delivers domain events for significant state transitions.
// Emission is fire-and-forget: callers never depend on it for correctness.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the install and promotion engines.
const (
	TypePackageInstallCompleted = "package_install_completed"
	TypePackageInstallNoop      = "package_install_noop"
	TypePackageInstallRejected  = "package_install_rejected"
	TypePackagePromoted         = "package_promoted"
	TypeIntentCreated           = "promotion_intent_created"
	TypeIntentPreviewed         = "promotion_intent_previewed"
	TypeIntentApproved          = "promotion_intent_approved"
	TypeIntentExecuted          = "promotion_intent_executed"
	TypeIntentRejected          = "promotion_intent_rejected"
	TypeNotificationSent        = "promotion_notification_sent"
	TypeNotificationFailed      = "promotion_notification_failed"
)

// Event is the envelope published for every domain event.
type Event struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	TenantID string      `json:"tenantId"`
	Payload  interface{} `json:"payload"`
	Ts       time.Time   `json:"ts"`
}

// Emitter publishes domain events. Implementations must not let delivery
// failures reach the caller; they log and move on.
type Emitter interface {
	Emit(ctx context.Context, eventType, tenantID string, payload interface{})
}

// NewEvent stamps an envelope with a fresh id and timestamp.
func NewEvent(eventType, tenantID string, payload interface{}) Event {
	return Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		TenantID: tenantID,
		Payload:  payload,
		Ts:       time.Now().UTC(),
	}
}

// NoopEmitter drops all events. Used in tests and when no broker is
// configured.
type NoopEmitter struct{}

func (NoopEmitter) Emit(ctx context.Context, eventType, tenantID string, payload interface{}) {}
