// Package negotiator asks the reasoning service for remediation strategies
// and refuses any answer that breaks its contract or the scheduling policy.
package negotiator

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/daycontext"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/reasoning"
	"github.com/julianstephens/daylitd/internal/utils"
)

// Store is what NegotiateAlert reads.
type Store interface {
	daycontext.Store
	GetAlert(ctx context.Context, userID, id string) (models.ScheduleAlert, error)
}

// Request is everything one negotiation needs.
type Request struct {
	Alert  models.ScheduleAlert
	Blocks []models.ScheduleBlock // the conflicting blocks
	Day    *daycontext.DayContext
}

// Proposal is a validated negotiation with the context it was made in.
type Proposal struct {
	Alert      models.ScheduleAlert   `json:"alert"`
	Blocks     []models.ScheduleBlock `json:"blocks"`
	Day        *daycontext.DayContext `json:"-"`
	Strategies []models.Strategy      `json:"strategies"`
}

type Negotiator struct {
	store   Store
	days    *daycontext.Builder
	decider reasoning.Decider
	now     func() time.Time
}

func New(store Store, decider reasoning.Decider) *Negotiator {
	return &Negotiator{
		store:   store,
		days:    daycontext.NewBuilder(store),
		decider: decider,
		now:     time.Now,
	}
}

// NegotiateAlert loads the alert and its day, then negotiates. An empty date
// means today in the resolved zone.
func (n *Negotiator) NegotiateAlert(ctx context.Context, userID, alertID, date, timezone string) (*Proposal, error) {
	log := logger.For("negotiator")

	if userID == "" {
		return nil, errors.MissingField("userId")
	}
	if alertID == "" {
		return nil, errors.MissingField("alertId")
	}

	alert, err := n.store.GetAlert(ctx, userID, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}

	if date == "" {
		tz := timezone
		if tz == "" {
			prefs, err := n.store.GetPreferences(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("failed to load preferences: %w", err)
			}
			tz = prefs.Timezone
		}
		date = n.now().In(utils.ResolveLocation(tz)).Format(constants.DateFormat)
	}

	day, err := n.days.Build(ctx, userID, date, timezone)
	if err != nil {
		return nil, err
	}

	blocks := make([]models.ScheduleBlock, 0, len(alert.RelatedBlockIDs))
	for _, id := range alert.RelatedBlockIDs {
		b, ok := day.Block(id)
		if !ok {
			log.Warn("Alert references a block outside the day", "alert_id", alert.ID, "block_id", id, "date", date)
			continue
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return nil, errors.Validation(errors.CodeInvalidField, "alertId",
			"alert %s references no existing blocks on %s", alert.ID, date)
	}

	strategies, err := n.Negotiate(ctx, Request{Alert: alert, Blocks: blocks, Day: day})
	if err != nil {
		return nil, err
	}
	return &Proposal{Alert: alert, Blocks: blocks, Day: day, Strategies: strategies}, nil
}

// Negotiate requests exactly three strategies and validates them. Any
// contract or policy failure rejects the whole answer.
func (n *Negotiator) Negotiate(ctx context.Context, req Request) ([]models.Strategy, error) {
	log := logger.For("negotiator")

	if req.Day == nil {
		return nil, errors.MissingField("day")
	}

	var resp response
	if err := n.decider.Decide(ctx, buildPrompt(req), &resp); err != nil {
		return nil, err
	}

	strategies, err := validate(resp)
	if err != nil {
		logger.Decision(log, "Rejected negotiation", "alert_id", req.Alert.ID, "error", err)
		return nil, err
	}

	for _, s := range strategies {
		if err := checkPolicy(s, req.Day, log); err != nil {
			logger.Decision(log, "Rejected negotiation on policy", "alert_id", req.Alert.ID, "strategy_id", s.ID, "error", err)
			return nil, err
		}
	}

	logger.Decision(log, "Accepted negotiation", "alert_id", req.Alert.ID, "strategies", len(strategies))
	return strategies, nil
}

type response struct {
	Strategies []rawStrategy `json:"strategies"`
}

type rawStrategy struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Impact      string                 `json:"impact"`
	Action      string                 `json:"action"`
	Operations  []models.OperationWire `json:"operations"`
}

func (r rawStrategy) missingFields() []string {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{"id", r.ID},
		{"title", r.Title},
		{"description", r.Description},
		{"impact", r.Impact},
		{"action", r.Action},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func validate(resp response) ([]models.Strategy, error) {
	if len(resp.Strategies) != constants.StrategiesPerNegotiation {
		err := errors.Guardrail(errors.CodeInvalidStrategyCount,
			"expected %d strategies, got %d", constants.StrategiesPerNegotiation, len(resp.Strategies))
		err.Details = map[string]interface{}{"count": len(resp.Strategies)}
		return nil, err
	}

	seen := map[string]bool{}
	strategies := make([]models.Strategy, 0, len(resp.Strategies))
	for i, raw := range resp.Strategies {
		if missing := raw.missingFields(); len(missing) > 0 {
			err := errors.Guardrail(errors.CodeMissingStrategyField,
				"strategy %d is missing %v", i, missing)
			err.Details = map[string]interface{}{"index": i, "missing": missing}
			return nil, err
		}
		if seen[raw.ID] {
			return nil, errors.Guardrail(errors.CodeInvalidResponseShape, "strategy id %q is repeated", raw.ID)
		}
		seen[raw.ID] = true

		ops, err := models.DecodeOperations(raw.Operations)
		if err != nil {
			return nil, errors.Guardrail(errors.CodeInvalidResponseShape, "strategy %s: %v", raw.ID, err)
		}

		impact, ok := models.ParseImpact(raw.Impact)
		if !ok {
			impact = models.Impact(raw.Impact)
		}
		strategies = append(strategies, models.Strategy{
			ID:          raw.ID,
			Title:       raw.Title,
			Description: raw.Description,
			Impact:      impact,
			Action:      models.StrategyAction(raw.Action),
			Operations:  ops,
		})
	}
	return strategies, nil
}
