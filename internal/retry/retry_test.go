package retry

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/julianstephens/daylitd/internal/errors"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func testPolicy(s *recordingSleeper) Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Timeout:    time.Second,
		Sleep:      s.sleep,
	}
}

func TestDoAlwaysServerErrorUsesFullBudget(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	upstream := errors.NewExternalServiceError(http.StatusInternalServerError, "boom")

	_, err := Do(context.Background(), testPolicy(s), func(context.Context) (string, error) {
		calls++
		return "", upstream
	})

	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
	if err != upstream {
		t.Errorf("Do() error = %v, want last upstream error unchanged", err)
	}
	if len(s.delays) != 2 {
		t.Fatalf("delays = %v, want 2 waits", s.delays)
	}
	for i := 1; i < len(s.delays); i++ {
		if s.delays[i] < s.delays[i-1] {
			t.Errorf("delays not monotonic: %v", s.delays)
		}
	}
}

func TestDoRateLimitedSurfacesRetryable(t *testing.T) {
	s := &recordingSleeper{}
	_, err := Do(context.Background(), testPolicy(s), func(context.Context) (int, error) {
		return 0, errors.NewExternalServiceError(http.StatusTooManyRequests, "slow down")
	})

	var ext *errors.ExternalServiceError
	if !stderrors.As(err, &ext) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if !ext.Retryable || !ext.IsRateLimited() {
		t.Errorf("expected retryable rate-limit error, got %+v", ext)
	}
	if status := errors.HTTPStatus(err); status != http.StatusTooManyRequests {
		t.Errorf("HTTPStatus() = %d, want 429", status)
	}
}

func TestDoNonRetryableShortCircuits(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	_, err := Do(context.Background(), testPolicy(s), func(context.Context) (int, error) {
		calls++
		return 0, errors.NewExternalServiceError(http.StatusBadRequest, "bad prompt")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
	if len(s.delays) != 0 {
		t.Errorf("expected no waits, got %v", s.delays)
	}
}

func TestDoGuardrailNotRetried(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	_, _ = Do(context.Background(), testPolicy(s), func(context.Context) (int, error) {
		calls++
		return 0, errors.Guardrail(errors.CodeInvalidResponseShape, "not json")
	})
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	s := &recordingSleeper{}
	calls := 0
	got, err := Do(context.Background(), testPolicy(s), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.NewExternalServiceError(http.StatusServiceUnavailable, "warming up")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Errorf("got %q after %d calls, want ok after 2", got, calls)
	}
}

func TestDoPerAttemptTimeout(t *testing.T) {
	s := &recordingSleeper{}
	p := testPolicy(s)
	p.Timeout = 10 * time.Millisecond
	calls := 0

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want deadline exceeded", err)
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3 (timeouts count as attempts)", calls)
	}
}

func TestDoStopsWhenParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}

	_, err := Do(ctx, p, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.NewExternalServiceError(http.StatusBadGateway, "down")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestPolicyBudget(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   time.Duration
	}{
		{"three attempts", Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 8 * time.Second, Timeout: 30 * time.Second}, 93 * time.Second},
		{"single attempt", Policy{MaxRetries: 1, BaseDelay: time.Second, Timeout: 30 * time.Second}, 30 * time.Second},
		{"zero attempts counts as one", Policy{Timeout: 5 * time.Second}, 5 * time.Second},
		{"capped backoff", Policy{MaxRetries: 4, BaseDelay: 2 * time.Second, MaxDelay: 3 * time.Second, Timeout: 10 * time.Second}, 48 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Budget(); got != tt.want {
				t.Errorf("Budget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second}
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 0},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 3 * time.Second},
		{10, 3 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.retry); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}
