package reasoning

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/retry"
)

func TestHTTPClientGenerate(t *testing.T) {
	var gotPath, gotKey string
	var gotBody wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.Client(), srv.URL+"/", "secret")
	text, err := client.Generate(context.Background(), Request{Model: "test-model", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != `{"a":1}` {
		t.Errorf("Generate() = %q, want concatenated parts", text)
	}
	if gotPath != "/models/test-model:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "hello" {
		t.Errorf("request body = %+v", gotBody)
	}
}

func TestHTTPClientErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"quota"}}`, true},
		{"server error", http.StatusInternalServerError, "oops", true},
		{"unavailable", http.StatusServiceUnavailable, "", true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad prompt"}}`, false},
		{"forbidden", http.StatusForbidden, "denied", false},
		{"empty body", http.StatusOK, "", true},
		{"not json", http.StatusOK, "<html>", true},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.Client(), srv.URL, "").Generate(context.Background(), Request{Model: "m"})
			var ext *errors.ExternalServiceError
			if !stderrors.As(err, &ext) {
				t.Fatalf("expected ExternalServiceError, got %v", err)
			}
			if ext.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", ext.Retryable, tt.retryable)
			}
		})
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTPClient(srv.Client(), srv.URL, "").Generate(ctx, Request{Model: "m"})

	var ext *errors.ExternalServiceError
	if !stderrors.As(err, &ext) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if !ext.Retryable {
		t.Error("hung upstream should be retryable")
	}
	status, code, _, retryable := errors.Describe(err)
	if status != http.StatusServiceUnavailable || code != errors.CodeUpstreamUnavailable || !retryable {
		t.Errorf("Describe() = (%d, %s, %v), want (503, %s, true)", status, code, retryable, errors.CodeUpstreamUnavailable)
	}
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`},
		{"no braces", "  nothing  ", "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepairJSON(tt.input); got != tt.want {
				t.Errorf("RepairJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeJSONRejectsUnrepairable(t *testing.T) {
	var out map[string]interface{}
	err := DecodeJSON("I cannot help with that", &out)

	var guard *errors.GuardrailViolationError
	if !stderrors.As(err, &guard) {
		t.Fatalf("expected guardrail violation, got %v", err)
	}
	if guard.Code != errors.CodeInvalidResponseShape {
		t.Errorf("Code = %s, want %s", guard.Code, errors.CodeInvalidResponseShape)
	}
}

type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
}

func (c *scriptedClient) Generate(_ context.Context, _ Request) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return "", errors.NewExternalServiceError(http.StatusInternalServerError, "script exhausted")
}

func noWaitPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func TestServiceDecideRetriesThenRepairs(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{errors.NewExternalServiceError(http.StatusServiceUnavailable, "busy")},
		responses: []string{"", "```json\n{\"severity\": 4}\n```"},
	}
	svc := NewService(client, "", noWaitPolicy())

	var out struct {
		Severity int `json:"severity"`
	}
	if err := svc.Decide(context.Background(), "prompt", &out); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if out.Severity != 4 {
		t.Errorf("Severity = %d, want 4", out.Severity)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

func TestServiceDecideGuardrailNotRetried(t *testing.T) {
	client := &scriptedClient{responses: []string{"no json here", `{"ok":true}`}}
	svc := NewService(client, "m", noWaitPolicy())

	var out map[string]interface{}
	err := svc.Decide(context.Background(), "prompt", &out)
	if err == nil || !strings.Contains(err.Error(), string(errors.CodeInvalidResponseShape)) {
		t.Fatalf("Decide() error = %v, want invalid response shape", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}
