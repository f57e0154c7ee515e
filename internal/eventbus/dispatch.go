package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/julianstephens/daylitd/internal/models"
)

// Dispatcher delivers one event to one named subscriber. A nil error is an
// acknowledgement.
type Dispatcher interface {
	Dispatch(ctx context.Context, subscriber string, event models.AgentEvent) error
}

// Handler consumes events in-process.
type Handler interface {
	Handle(ctx context.Context, event models.AgentEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event models.AgentEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event models.AgentEvent) error {
	return f(ctx, event)
}

// LocalDispatcher routes events to handlers registered in this process.
type LocalDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewLocalDispatcher() *LocalDispatcher {
	return &LocalDispatcher{handlers: map[string]Handler{}}
}

// Register binds name to h, replacing any previous handler.
func (d *LocalDispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Handler returns the handler registered under name.
func (d *LocalDispatcher) Handler(name string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[name]
	return h, ok
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, subscriber string, event models.AgentEvent) error {
	h, ok := d.Handler(subscriber)
	if !ok {
		return fmt.Errorf("no handler registered for subscriber %q", subscriber)
	}
	return h.Handle(ctx, event)
}

// HTTPDispatcher POSTs each event as JSON to
// {baseURL}/v1/subscribers/{name} with a bearer token.
type HTTPDispatcher struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewHTTPDispatcher(client *http.Client, baseURL, token string) *HTTPDispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDispatcher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, subscriber string, event models.AgentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	endpoint := d.baseURL + "/v1/subscribers/" + url.PathEscape(subscriber)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach subscriber %s: %w", subscriber, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("subscriber %s answered HTTP %d: %s", subscriber, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
