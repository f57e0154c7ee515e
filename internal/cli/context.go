package cli

import (
	"fmt"
	"net/http"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/eventbus"
	"github.com/julianstephens/daylitd/internal/guardian"
	"github.com/julianstephens/daylitd/internal/keyring"
	"github.com/julianstephens/daylitd/internal/logger"
	"github.com/julianstephens/daylitd/internal/negotiator"
	"github.com/julianstephens/daylitd/internal/orchestrator"
	"github.com/julianstephens/daylitd/internal/reasoning"
	"github.com/julianstephens/daylitd/internal/retry"
	"github.com/julianstephens/daylitd/internal/storage"
)

// Reasoning configures the reasoning-service client.
type Reasoning struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

type Context struct {
	Store     storage.Provider
	Reasoning Reasoning
	// StateDir holds the sweeper lockfile.
	StateDir string
	// SubscriptionsFile overrides the default subscription table when set.
	SubscriptionsFile string
	// Decider replaces the HTTP reasoning client when set.
	Decider reasoning.Decider
}

// Subscriptions returns the configured subscription table.
func (c *Context) Subscriptions() (eventbus.Subscriptions, error) {
	if c.SubscriptionsFile == "" {
		return eventbus.DefaultSubscriptions(), nil
	}
	return eventbus.LoadSubscriptions(c.SubscriptionsFile)
}

// RetryPolicy is the policy reasoning calls run under.
func (c *Context) RetryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	if c.Reasoning.MaxRetries > 0 {
		policy.MaxRetries = c.Reasoning.MaxRetries
	}
	return policy
}

func (c *Context) decider() reasoning.Decider {
	if c.Decider != nil {
		return c.Decider
	}

	apiKey := keyring.Resolve(c.Reasoning.APIKey, keyring.ReasoningAPIKey)
	if apiKey == "" {
		logger.Warn("No reasoning API key configured; reasoning calls will be rejected upstream")
	}
	baseURL := c.Reasoning.BaseURL
	if baseURL == "" {
		baseURL = constants.DefaultReasoningBaseURL
	}

	client := reasoning.NewHTTPClient(&http.Client{}, baseURL, apiKey)
	return reasoning.NewService(client, c.Reasoning.Model, c.RetryPolicy())
}

// Pipeline is the component graph of one process.
type Pipeline struct {
	Bus          *eventbus.Bus
	Local        *eventbus.LocalDispatcher
	Guardian     *guardian.Guardian
	Negotiator   *negotiator.Negotiator
	Orchestrator *orchestrator.Orchestrator
}

// Pipeline wires the components over the context's store. The built-in
// subscribers are always registered locally; remote, when non-nil, replaces
// the local dispatcher for delivery. With local delivery every subscriber in
// the table must have a handler in this process.
func (c *Context) Pipeline(remote eventbus.Dispatcher) (*Pipeline, error) {
	subs, err := c.Subscriptions()
	if err != nil {
		return nil, err
	}

	local := eventbus.NewLocalDispatcher()
	var dispatcher eventbus.Dispatcher = local
	if remote != nil {
		dispatcher = remote
	}

	bus := eventbus.New(c.Store, subs, dispatcher)
	decider := c.decider()
	neg := negotiator.New(c.Store, decider)
	p := &Pipeline{
		Bus:          bus,
		Local:        local,
		Guardian:     guardian.New(c.Store, decider, bus),
		Negotiator:   neg,
		Orchestrator: orchestrator.New(c.Store, neg, bus),
	}

	local.Register(constants.SubscriberGuardian, eventbus.HandlerFunc(p.Guardian.HandleEvent))
	local.Register(constants.SubscriberOrchestrator, eventbus.HandlerFunc(p.Orchestrator.HandleEvent))

	if remote == nil {
		for _, name := range subs.Names() {
			if _, ok := local.Handler(name); !ok {
				return nil, fmt.Errorf("subscriber %q has no local handler; remove it from the subscription table or use --dispatch=http", name)
			}
		}
	}
	return p, nil
}
