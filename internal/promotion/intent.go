package promotion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Schredly/packgraph/internal/auth"
	"github.com/Schredly/packgraph/internal/events"
	"github.com/Schredly/packgraph/internal/models"
	"github.com/Schredly/packgraph/internal/store"
	"github.com/Schredly/packgraph/internal/webhook"
)

// IntentService drives the promotion-intent state machine:
// draft -> previewed -> approved -> executed, with rejected reachable from
// previewed and approved. Every transition loads the persisted status first;
// invalid transitions fail with a 409-class error before any mutation.
type IntentService struct {
	store    store.Store
	promoter *Engine
	webhooks webhook.Sender
	events   events.Emitter
	log      zerolog.Logger
}

func NewIntentService(st store.Store, promoter *Engine, webhooks webhook.Sender, emitter events.Emitter, log zerolog.Logger) *IntentService {
	return &IntentService{
		store:    st,
		promoter: promoter,
		webhooks: webhooks,
		events:   emitter,
		log:      log,
	}
}

// CreateIntentInput describes a new promotion request.
type CreateIntentInput struct {
	ProjectID         string
	FromEnvironmentID string
	ToEnvironmentID   string
	CreatedBy         string
}

// Create validates both environments and persists a draft intent.
func (s *IntentService) Create(ctx context.Context, tenantID string, in CreateIntentInput) (models.PromotionIntent, error) {
	if _, err := s.store.GetEnvironment(ctx, tenantID, in.FromEnvironmentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PromotionIntent{}, auth.NewStatusError(http.StatusNotFound, "ENVIRONMENT_NOT_FOUND", fmt.Sprintf("source environment %q does not exist", in.FromEnvironmentID))
		}
		return models.PromotionIntent{}, err
	}
	if _, err := s.store.GetEnvironment(ctx, tenantID, in.ToEnvironmentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PromotionIntent{}, auth.NewStatusError(http.StatusNotFound, "ENVIRONMENT_NOT_FOUND", fmt.Sprintf("target environment %q does not exist", in.ToEnvironmentID))
		}
		return models.PromotionIntent{}, err
	}

	intent, err := s.store.CreatePromotionIntent(ctx, store.PromotionIntentInput{
		TenantID:          tenantID,
		ProjectID:         in.ProjectID,
		FromEnvironmentID: in.FromEnvironmentID,
		ToEnvironmentID:   in.ToEnvironmentID,
		Status:            models.IntentStatusDraft,
		CreatedBy:         in.CreatedBy,
	})
	if err != nil {
		return models.PromotionIntent{}, fmt.Errorf("create promotion intent: %w", err)
	}
	s.events.Emit(ctx, events.TypeIntentCreated, tenantID, intentEventPayload(intent))
	return intent, nil
}

// Get returns one intent by id.
func (s *IntentService) Get(ctx context.Context, tenantID, id string) (models.PromotionIntent, error) {
	intent, err := s.store.GetPromotionIntent(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PromotionIntent{}, auth.NewStatusError(http.StatusNotFound, "INTENT_NOT_FOUND", fmt.Sprintf("promotion intent %q does not exist", id))
		}
		return models.PromotionIntent{}, err
	}
	return intent, nil
}

// List returns a project's intents, newest-first.
func (s *IntentService) List(ctx context.Context, tenantID, projectID string) ([]models.PromotionIntent, error) {
	return s.store.ListPromotionIntents(ctx, tenantID, projectID)
}

// Preview computes the environment diff and moves the intent to previewed.
// Re-previewing an already previewed intent refreshes the diff. If the target
// environment requires approval and carries a webhook URL, a best-effort
// notification goes out; its failure never blocks the transition.
func (s *IntentService) Preview(ctx context.Context, tenantID, id string) (models.PromotionIntent, error) {
	intent, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return models.PromotionIntent{}, err
	}
	if intent.Status != models.IntentStatusDraft && intent.Status != models.IntentStatusPreviewed {
		return models.PromotionIntent{}, transitionError(intent.Status, "preview")
	}

	diff, err := s.promoter.DiffEnvironments(ctx, tenantID, intent.FromEnvironmentID, intent.ToEnvironmentID)
	if err != nil {
		return models.PromotionIntent{}, err
	}

	update := store.PromotionIntentUpdate{
		ID:       id,
		TenantID: tenantID,
		Status:   strPtr(models.IntentStatusPreviewed),
		Diff:     &diff,
	}

	target, err := s.store.GetEnvironment(ctx, tenantID, intent.ToEnvironmentID)
	if err != nil {
		return models.PromotionIntent{}, fmt.Errorf("load target environment: %w", err)
	}
	if target.RequiresPromotionApproval && target.PromotionWebhookURL != nil {
		s.notify(ctx, &update, tenantID, *target.PromotionWebhookURL, map[string]interface{}{
			"event":    "promotion_intent_previewed",
			"intentId": intent.ID,
			"diff":     diff,
		})
	}

	updated, err := s.store.UpdatePromotionIntent(ctx, update)
	if err != nil {
		return models.PromotionIntent{}, fmt.Errorf("persist preview: %w", err)
	}
	s.events.Emit(ctx, events.TypeIntentPreviewed, tenantID, intentEventPayload(updated))
	return updated, nil
}

// Approve moves a previewed intent to approved. Agent actors may not approve;
// the guard rejects them with a 403 before any mutation.
func (s *IntentService) Approve(ctx context.Context, tenantID, id string, actor auth.Actor) (models.PromotionIntent, error) {
	if err := auth.RequireNotAgent(actor, "approve promotion intent"); err != nil {
		return models.PromotionIntent{}, err
	}
	intent, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return models.PromotionIntent{}, err
	}
	if intent.Status != models.IntentStatusPreviewed {
		return models.PromotionIntent{}, transitionError(intent.Status, "approve")
	}

	now := time.Now().UTC()
	updated, err := s.store.UpdatePromotionIntent(ctx, store.PromotionIntentUpdate{
		ID:         id,
		TenantID:   tenantID,
		Status:     strPtr(models.IntentStatusApproved),
		ApprovedBy: strPtr(actor.ID),
		ApprovedAt: &now,
	})
	if err != nil {
		return models.PromotionIntent{}, fmt.Errorf("persist approval: %w", err)
	}
	s.events.Emit(ctx, events.TypeIntentApproved, tenantID, intentEventPayload(updated))
	return updated, nil
}

// Execute runs the promotion for an approved intent and persists the result.
// The intent reaches executed regardless of the webhook outcome.
func (s *IntentService) Execute(ctx context.Context, tenantID, id, executedBy string) (models.PromotionIntent, error) {
	intent, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return models.PromotionIntent{}, err
	}
	if intent.Status != models.IntentStatusApproved {
		return models.PromotionIntent{}, transitionError(intent.Status, "execute")
	}

	result, err := s.promoter.PromotePackages(ctx, tenantID, intent.ProjectID, intent.FromEnvironmentID, intent.ToEnvironmentID, PromoteOptions{
		PromotedBy: executedBy,
	})
	if err != nil {
		return models.PromotionIntent{}, err
	}

	update := store.PromotionIntentUpdate{
		ID:       id,
		TenantID: tenantID,
		Status:   strPtr(models.IntentStatusExecuted),
		Result:   &result,
	}

	target, err := s.store.GetEnvironment(ctx, tenantID, intent.ToEnvironmentID)
	if err != nil {
		return models.PromotionIntent{}, fmt.Errorf("load target environment: %w", err)
	}
	if target.PromotionWebhookURL != nil {
		s.notify(ctx, &update, tenantID, *target.PromotionWebhookURL, map[string]interface{}{
			"event":    "promotion_intent_executed",
			"intentId": intent.ID,
			"result":   result,
		})
	}

	updated, err := s.store.UpdatePromotionIntent(ctx, update)
	if err != nil {
		return models.PromotionIntent{}, fmt.Errorf("persist execution: %w", err)
	}
	s.events.Emit(ctx, events.TypeIntentExecuted, tenantID, intentEventPayload(updated))
	return updated, nil
}

// Reject moves a previewed or approved intent to rejected. Agent actors may
// not reject.
func (s *IntentService) Reject(ctx context.Context, tenantID, id string, actor auth.Actor) (models.PromotionIntent, error) {
	if err := auth.RequireNotAgent(actor, "reject promotion intent"); err != nil {
		return models.PromotionIntent{}, err
	}
	intent, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return models.PromotionIntent{}, err
	}
	if intent.Status != models.IntentStatusPreviewed && intent.Status != models.IntentStatusApproved {
		return models.PromotionIntent{}, transitionError(intent.Status, "reject")
	}

	updated, err := s.store.UpdatePromotionIntent(ctx, store.PromotionIntentUpdate{
		ID:       id,
		TenantID: tenantID,
		Status:   strPtr(models.IntentStatusRejected),
	})
	if err != nil {
		return models.PromotionIntent{}, fmt.Errorf("persist rejection: %w", err)
	}
	s.events.Emit(ctx, events.TypeIntentRejected, tenantID, intentEventPayload(updated))
	return updated, nil
}

// notify delivers one best-effort webhook call and folds the outcome into the
// pending intent update. Success clears any stored error; failure records it.
// Either way the caller's primary transition proceeds.
func (s *IntentService) notify(ctx context.Context, update *store.PromotionIntentUpdate, tenantID, url string, payload map[string]interface{}) {
	now := time.Now().UTC()
	update.NotificationLastAttemptAt = &now

	res := s.webhooks.Send(ctx, url, payload)
	if res.Success {
		update.NotificationStatus = strPtr(models.NotificationStatusSent)
		update.NotificationLastError = strPtr("")
		s.events.Emit(ctx, events.TypeNotificationSent, tenantID, map[string]interface{}{
			"intentId": update.ID,
			"url":      url,
		})
		return
	}
	update.NotificationStatus = strPtr(models.NotificationStatusFailed)
	update.NotificationLastError = strPtr(res.Error)
	s.log.Warn().Str("intentId", update.ID).Str("error", res.Error).Msg("promotion notification failed")
	s.events.Emit(ctx, events.TypeNotificationFailed, tenantID, map[string]interface{}{
		"intentId": update.ID,
		"url":      url,
		"error":    res.Error,
	})
}

func transitionError(current, action string) error {
	return auth.NewStatusError(http.StatusConflict, "INVALID_INTENT_TRANSITION", fmt.Sprintf("cannot %s an intent in status %q", action, current))
}

func intentEventPayload(intent models.PromotionIntent) map[string]interface{} {
	return map[string]interface{}{
		"intentId":          intent.ID,
		"projectId":         intent.ProjectID,
		"fromEnvironmentId": intent.FromEnvironmentID,
		"toEnvironmentId":   intent.ToEnvironmentID,
		"status":            intent.Status,
	}
}

func strPtr(s string) *string { return &s }
