package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julianstephens/daylitd/internal/constants"
	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/eventbus"
	"github.com/julianstephens/daylitd/internal/guardian"
	"github.com/julianstephens/daylitd/internal/models"
	"github.com/julianstephens/daylitd/internal/negotiator"
	"github.com/julianstephens/daylitd/internal/orchestrator"
)

const token = "test-token"

type fakeChecker struct {
	res *guardian.CheckResult
	err error
}

func (f fakeChecker) Check(context.Context, guardian.CheckRequest) (*guardian.CheckResult, error) {
	return f.res, f.err
}

type fakeNegotiator struct{ err error }

func (f fakeNegotiator) NegotiateAlert(context.Context, string, string, string, string) (*negotiator.Proposal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &negotiator.Proposal{Strategies: []models.Strategy{{ID: "s1", Operations: []models.Operation{}}}}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(context.Context, orchestrator.ResolveRequest) (*orchestrator.ResolveResult, error) {
	return &orchestrator.ResolveResult{Outcome: orchestrator.OutcomeResolved, StrategyID: "s1", Applied: 2}, nil
}

type fakeEvents struct {
	published []constants.EventType
	processed int
}

func (f *fakeEvents) Publish(_ context.Context, _ string, t constants.EventType, _ string, _ interface{}) string {
	f.published = append(f.published, t)
	return "evt-1"
}

func (f *fakeEvents) ProcessEvents(context.Context) (int, error) {
	return f.processed, nil
}

type response struct {
	Success bool `json:"success"`
	Error   struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
	Status    string            `json:"status"`
	EventID   string            `json:"eventId"`
	Processed int               `json:"processed"`
	Outcome   string            `json:"outcome"`
	Strategy  []json.RawMessage `json:"strategies"`
}

func newTestServer(checker fakeChecker, neg fakeNegotiator, events *fakeEvents, subs *eventbus.LocalDispatcher) http.Handler {
	return New(Deps{
		Guardian:     checker,
		Negotiator:   neg,
		Orchestrator: fakeResolver{},
		Events:       events,
		Subscribers:  subs,
	}, ":0", token).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, auth bool) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
	}
	return w.Code, resp
}

func TestEndpoints(t *testing.T) {
	events := &fakeEvents{processed: 4}
	subs := eventbus.NewLocalDispatcher()
	var delivered string
	subs.Register("guardian", eventbus.HandlerFunc(func(_ context.Context, e models.AgentEvent) error {
		delivered = e.ID
		return nil
	}))
	h := newTestServer(
		fakeChecker{res: &guardian.CheckResult{Status: guardian.StatusConflict, AlertID: "a1", OverlappingBlockIDs: []string{"b1"}}},
		fakeNegotiator{},
		events,
		subs,
	)

	t.Run("health needs no auth", func(t *testing.T) {
		code, resp := do(t, h, http.MethodGet, "/health", "", false)
		if code != http.StatusOK || resp.Status != "ok" {
			t.Errorf("health = %d %+v", code, resp)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		code, resp := do(t, h, http.MethodPost, "/v1/guardian/check", `{}`, false)
		if code != http.StatusUnauthorized || resp.Success || resp.Error.Code != string(errors.CodeUnauthorized) {
			t.Errorf("unauthenticated = %d %+v", code, resp)
		}
	})

	t.Run("check", func(t *testing.T) {
		code, resp := do(t, h, http.MethodPost, "/v1/guardian/check", `{"userId":"u1","calendarEventId":"c1"}`, true)
		if code != http.StatusOK || !resp.Success || resp.Status != string(guardian.StatusConflict) {
			t.Errorf("check = %d %+v", code, resp)
		}
	})

	t.Run("negotiate", func(t *testing.T) {
		code, resp := do(t, h, http.MethodPost, "/v1/negotiator/negotiate", `{"userId":"u1","alertId":"a1"}`, true)
		if code != http.StatusOK || len(resp.Strategy) != 1 {
			t.Errorf("negotiate = %d %+v", code, resp)
		}
	})

	t.Run("resolve", func(t *testing.T) {
		code, resp := do(t, h, http.MethodPost, "/v1/orchestrator/resolve", `{"userId":"u1","alertId":"a1"}`, true)
		if code != http.StatusOK || resp.Outcome != string(orchestrator.OutcomeResolved) {
			t.Errorf("resolve = %d %+v", code, resp)
		}
	})

	t.Run("publish", func(t *testing.T) {
		code, resp := do(t, h, http.MethodPost, "/v1/events",
			`{"userId":"u1","eventType":"calendar.event.synced","payload":{"calendarEventId":"c1"}}`, true)
		if code != http.StatusOK || resp.EventID != "evt-1" {
			t.Errorf("publish = %d %+v", code, resp)
		}
	})

	t.Run("publish unknown type", func(t *testing.T) {
		code, resp := do(t, h, http.MethodPost, "/v1/events", `{"userId":"u1","eventType":"nope"}`, true)
		if code != http.StatusBadRequest || resp.Error.Code != string(errors.CodeInvalidField) {
			t.Errorf("publish = %d %+v", code, resp)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		code, _ := do(t, h, http.MethodPost, "/v1/guardian/check", `{`, true)
		if code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", code)
		}
	})

	t.Run("process", func(t *testing.T) {
		code, resp := do(t, h, http.MethodPost, "/v1/events/process", "", true)
		if code != http.StatusOK || resp.Processed != 4 {
			t.Errorf("process = %d %+v", code, resp)
		}
	})

	t.Run("subscriber", func(t *testing.T) {
		code, resp := do(t, h, http.MethodPost, "/v1/subscribers/guardian", `{"id":"evt-9","userId":"u1"}`, true)
		if code != http.StatusOK || !resp.Success || delivered != "evt-9" {
			t.Errorf("subscriber = %d %+v delivered=%q", code, resp, delivered)
		}
	})

	t.Run("unknown subscriber", func(t *testing.T) {
		code, _ := do(t, h, http.MethodPost, "/v1/subscribers/nobody", `{}`, true)
		if code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", code)
		}
	})

	if len(events.published) != 1 || events.published[0] != constants.EventCalendarSynced {
		t.Errorf("published = %v", events.published)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      errors.Code
		retryable bool
	}{
		{"validation", errors.MissingField("userId"), http.StatusBadRequest, errors.CodeMissingField, false},
		{"not found", errors.ErrNotFound, http.StatusNotFound, errors.CodeNotFound, false},
		{"guardrail", errors.Guardrail(errors.CodeInvalidStrategyCount, "got 2"), http.StatusUnprocessableEntity, errors.CodeInvalidStrategyCount, false},
		{"rate limited", errors.NewExternalServiceError(429, "quota"), http.StatusTooManyRequests, errors.CodeUpstreamRateLimited, true},
		{"unavailable", errors.NewExternalServiceError(502, "bad gateway"), http.StatusServiceUnavailable, errors.CodeUpstreamUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(fakeChecker{}, fakeNegotiator{err: tt.err}, &fakeEvents{}, eventbus.NewLocalDispatcher())
			code, resp := do(t, h, http.MethodPost, "/v1/negotiator/negotiate", `{"userId":"u1","alertId":"a1"}`, true)
			if code != tt.status || resp.Error.Code != string(tt.code) || resp.Error.Retryable != tt.retryable {
				t.Errorf("got %d %+v, want %d %s retryable=%t", code, resp.Error, tt.status, tt.code, tt.retryable)
			}
			if strings.Contains(resp.Error.Message, "quota") || strings.Contains(resp.Error.Message, "bad gateway") {
				t.Errorf("message leaks upstream text: %q", resp.Error.Message)
			}
		})
	}
}
