package reasoning

import (
	"context"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/retry"
)

// Decider turns a prompt into a decoded proposal.
type Decider interface {
	Decide(ctx context.Context, prompt string, out interface{}) error
}

// Service combines a Client with the retry policy and JSON repair.
type Service struct {
	client Client
	model  string
	policy retry.Policy
	config GenerationConfig
}

// NewService wraps client. An empty model uses the default model.
func NewService(client Client, model string, policy retry.Policy) *Service {
	if model == "" {
		model = constants.DefaultReasoningModel
	}
	temperature := 0.2
	return &Service{
		client: client,
		model:  model,
		policy: policy,
		config: GenerationConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
		},
	}
}

// Decide calls the reasoning service under the retry policy and decodes the
// answer into out. Transport failures are retried; a response that cannot
// be decoded even after repair is a guardrail violation and is not.
func (s *Service) Decide(ctx context.Context, prompt string, out interface{}) error {
	log := logger.For("reasoning")

	text, err := retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.client.Generate(ctx, Request{
			Model:            s.model,
			Prompt:           prompt,
			GenerationConfig: s.config,
		})
	})
	if err != nil {
		log.Error("Reasoning call failed", "model", s.model, "error", err)
		return err
	}

	if err := DecodeJSON(text, out); err != nil {
		logger.Decision(log, "Rejected undecodable reasoning response", "model", s.model, "error", err)
		return err
	}
	return nil
}
