// Package orchestrator turns a detected conflict into an applied strategy or
// a suggestion for the user, recording each attempt as a saga.
package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/negotiator"
)

// Store is the slice of storage.Provider the orchestrator reads and writes.
type Store interface {
	GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error)
	GetAlert(ctx context.Context, userID, id string) (models.ScheduleAlert, error)
	AddAlert(ctx context.Context, alert models.ScheduleAlert) error
	UpdateAlertStatus(ctx context.Context, userID, id string, status models.AlertStatus) error

	AddBlock(ctx context.Context, block models.ScheduleBlock) error
	GetBlock(ctx context.Context, userID, id string) (models.ScheduleBlock, error)
	UpdateBlock(ctx context.Context, block models.ScheduleBlock) error
	DeleteBlock(ctx context.Context, userID, id string) error

	AddResolutionAttempt(ctx context.Context, attempt models.ResolutionAttempt) error
	ListResolutionAttempts(ctx context.Context, userID, alertID string) ([]models.ResolutionAttempt, error)
}

// Negotiator produces validated strategies for an alert.
type Negotiator interface {
	NegotiateAlert(ctx context.Context, userID, alertID, date, timezone string) (*negotiator.Proposal, error)
}

// Publisher emits agent events. *eventbus.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, userID string, eventType constants.EventType, source string, payload interface{}) string
}

type Outcome string

const (
	OutcomeResolved     Outcome = "resolved"
	OutcomeSuggested    Outcome = "suggested"
	OutcomeNotPending   Outcome = "not_pending"
	OutcomeManualReview Outcome = "manual_review"
)

type ResolveRequest struct {
	UserID   string `json:"userId"`
	AlertID  string `json:"alertId"`
	Date     string `json:"date"`
	Timezone string `json:"timezone"`
}

type ResolveResult struct {
	Outcome    Outcome `json:"outcome"`
	StrategyID string  `json:"strategyId,omitempty"`
	Selection  string  `json:"selection,omitempty"`
	Applied    int     `json:"applied"`
	Skipped    int     `json:"skipped"`
}

type Orchestrator struct {
	store      Store
	negotiator Negotiator
	events     Publisher
	now        func() time.Time
	newID      func() string
}

func New(store Store, n Negotiator, events Publisher) *Orchestrator {
	return &Orchestrator{
		store:      store,
		negotiator: n,
		events:     events,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Resolve handles one pending alert. With auto-resolve off it only records a
// suggestion. Otherwise it negotiates, selects and applies a strategy; a
// store failure rolls applied operations back and returns the error, and a
// failed rollback hands the alert to manual review instead.
func (o *Orchestrator) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResult, error) {
	log := logger.For("orchestrator")

	if req.UserID == "" {
		return nil, errors.MissingField("userId")
	}
	if req.AlertID == "" {
		return nil, errors.MissingField("alertId")
	}

	alert, err := o.store.GetAlert(ctx, req.UserID, req.AlertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert.Status != models.AlertPending {
		log.Info("Alert is no longer pending", "alert_id", alert.ID, "status", alert.Status)
		return &ResolveResult{Outcome: OutcomeNotPending}, nil
	}

	// A previous run may have applied a strategy and failed before closing
	// the alert.
	attempts, err := o.store.ListResolutionAttempts(ctx, req.UserID, alert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resolution attempts: %w", err)
	}
	for _, a := range attempts {
		switch a.State {
		case models.AttemptApplied:
			log.Info("Finishing previously applied strategy", "alert_id", alert.ID, "strategy_id", a.StrategyID)
			return o.finish(ctx, alert, a.StrategyID, a.Applied+a.Skipped, a.Applied, a.Skipped)
		case models.AttemptPartiallyApplied:
			return &ResolveResult{Outcome: OutcomeManualReview, StrategyID: a.StrategyID, Applied: a.Applied, Skipped: a.Skipped}, nil
		}
	}

	prefs, err := o.store.GetPreferences(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if !prefs.AutoResolve {
		o.events.Publish(ctx, req.UserID, constants.EventDecisionRecorded, constants.SourceOrchestrator,
			models.DecisionRecordedPayload{
				AlertID: alert.ID,
				Outcome: models.OutcomeSuggestion,
				Reason:  "auto-resolve is disabled",
			})
		logger.Decision(log, "Left alert for the user", "alert_id", alert.ID)
		return &ResolveResult{Outcome: OutcomeSuggested}, nil
	}

	proposal, err := o.negotiator.NegotiateAlert(ctx, req.UserID, alert.ID, req.Date, req.Timezone)
	if err != nil {
		return nil, err
	}

	strategy, reason := SelectStrategy(proposal.Strategies, prefs.ResolutionStyle)
	logger.Decision(log, "Selected strategy",
		"alert_id", alert.ID, "strategy_id", strategy.ID, "reason", reason, "operations", len(strategy.Operations))

	res := apply(ctx, o.store, req.UserID, strategy, log)
	if res.failure != nil {
		return o.rollback(ctx, alert, strategy, res)
	}

	if err := o.record(ctx, alert, strategy, models.AttemptApplied, len(res.applied), res.skipped, ""); err != nil {
		return nil, err
	}
	result, err := o.finish(ctx, alert, strategy.ID, len(strategy.Operations), len(res.applied), res.skipped)
	if result != nil {
		result.Selection = reason
	}
	return result, err
}

// finish closes the alert and announces the resolution.
func (o *Orchestrator) finish(ctx context.Context, alert models.ScheduleAlert, strategyID string, operations, applied, skipped int) (*ResolveResult, error) {
	if err := o.store.UpdateAlertStatus(ctx, alert.UserID, alert.ID, models.AlertResolved); err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}
	o.events.Publish(ctx, alert.UserID, constants.EventConflictResolved, constants.SourceOrchestrator,
		models.ConflictResolvedPayload{
			AlertID:        alert.ID,
			StrategyID:     strategyID,
			OperationCount: operations,
			Applied:        applied,
			Skipped:        skipped,
		})

	logger.For("orchestrator").Info("Alert resolved",
		"alert_id", alert.ID, "strategy_id", strategyID, "applied", applied, "skipped", skipped)
	return &ResolveResult{Outcome: OutcomeResolved, StrategyID: strategyID, Applied: applied, Skipped: skipped}, nil
}

func (o *Orchestrator) rollback(ctx context.Context, alert models.ScheduleAlert, s models.Strategy, res applyResult) (*ResolveResult, error) {
	log := logger.For("orchestrator")
	log.Error("Strategy application failed", "alert_id", alert.ID, "strategy_id", s.ID, "applied", len(res.applied), "error", res.failure)

	compErr := compensate(ctx, o.store, res.applied, log)
	if compErr == nil {
		if err := o.record(ctx, alert, s, models.AttemptCompensated, 0, res.skipped, res.failure.Error()); err != nil {
			log.Error("Failed to record compensated attempt", "alert_id", alert.ID, "error", err)
		}
		return nil, fmt.Errorf("strategy %s rolled back: %w", s.ID, res.failure)
	}

	reason := fmt.Sprintf("%v; rollback: %v", res.failure, compErr)
	if err := o.record(ctx, alert, s, models.AttemptPartiallyApplied, len(res.applied), res.skipped, reason); err != nil {
		log.Error("Failed to record partial attempt", "alert_id", alert.ID, "error", err)
	}
	o.requestReview(ctx, alert, s.ID, reason)

	return &ResolveResult{
		Outcome:    OutcomeManualReview,
		StrategyID: s.ID,
		Applied:    len(res.applied),
		Skipped:    res.skipped,
	}, nil
}

// requestReview publishes a manual-review decision and raises a warning
// alert next to the original one.
func (o *Orchestrator) requestReview(ctx context.Context, alert models.ScheduleAlert, strategyID, reason string) {
	log := logger.For("orchestrator")

	payload := models.DecisionRecordedPayload{
		AlertID: alert.ID,
		Outcome: models.OutcomeManualReview,
		Reason:  reason,
	}
	if strategyID != "" {
		payload.StrategyIDs = []string{strategyID}
	}
	o.events.Publish(ctx, alert.UserID, constants.EventDecisionRecorded, constants.SourceOrchestrator, payload)

	now := o.now().UTC()
	warning := models.ScheduleAlert{
		ID:              o.newID(),
		UserID:          alert.UserID,
		Type:            models.AlertWarning,
		Message:         "Your schedule could not be adjusted automatically. Please review the affected blocks.",
		Severity:        alert.Severity,
		RelatedBlockIDs: alert.RelatedBlockIDs,
		CalendarEventID: alert.CalendarEventID,
		Status:          models.AlertPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.AddAlert(ctx, warning); err != nil {
		log.Error("Failed to raise review alert", "alert_id", alert.ID, "error", err)
		return
	}
	logger.Decision(log, "Requested manual review", "alert_id", alert.ID, "review_alert_id", warning.ID, "reason", reason)
}

func (o *Orchestrator) record(ctx context.Context, alert models.ScheduleAlert, s models.Strategy, state models.AttemptState, applied, skipped int, reason string) error {
	attempt := models.ResolutionAttempt{
		ID:            o.newID(),
		UserID:        alert.UserID,
		AlertID:       alert.ID,
		StrategyID:    s.ID,
		State:         state,
		Applied:       applied,
		Skipped:       skipped,
		FailureReason: reason,
		CreatedAt:     o.now().UTC(),
	}
	if err := o.store.AddResolutionAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record resolution attempt: %w", err)
	}
	return nil
}

// HandleEvent consumes schedule.conflict.detected. Transient failures leave
// the event pending; answers that would fail the same way again go to manual
// review and acknowledge the event.
func (o *Orchestrator) HandleEvent(ctx context.Context, event models.AgentEvent) error {
	log := logger.For("orchestrator")

	var payload models.ConflictDetectedPayload
	if err := event.DecodePayload(&payload); err != nil {
		log.Warn("Dropping undecodable conflict event", "event_id", event.ID, "error", err)
		return nil
	}

	_, err := o.Resolve(ctx, ResolveRequest{
		UserID:   event.UserID,
		AlertID:  payload.AlertID,
		Date:     payload.Date,
		Timezone: payload.Timezone,
	})
	if err == nil {
		return nil
	}

	var (
		val   *errors.ValidationError
		guard *errors.GuardrailViolationError
	)
	switch {
	case stderrors.As(err, &val), stderrors.Is(err, errors.ErrNotFound):
		log.Warn("Dropping conflict event", "event_id", event.ID, "error", err)
		return nil
	case stderrors.As(err, &guard), !errors.IsRetryable(err):
		alert, getErr := o.store.GetAlert(ctx, event.UserID, payload.AlertID)
		if getErr != nil {
			return getErr
		}
		o.requestReview(ctx, alert, "", err.Error())
		return nil
	}
	return err
}
