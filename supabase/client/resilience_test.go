package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/R3E-Network/social_layer/pkg/metrics"
)

func fastPolicy(retries int, codes ...int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		RetryOn:    codes,
	}
}

func newTestTransport(policy RetryPolicy, breaker BreakerConfig, m *metrics.Metrics) *retryTransport {
	return newRetryTransport(&http.Client{}, EnhancedConfig{
		Config:  Config{Metrics: m},
		Retry:   policy,
		Breaker: breaker,
	})
}

// countingServer answers with statuses[i] for the i-th call and the last status afterwards.
func countingServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		if n > len(statuses) {
			n = len(statuses)
		}
		w.WriteHeader(statuses[n-1])
		_, _ = w.Write([]byte(`{"message":"attempt"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// =============================================================================
// Retry policy
// =============================================================================

func TestRetryPolicy_DelayDoublesUpToMax(t *testing.T) {
	p := RetryPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond}

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond, 35 * time.Millisecond}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Errorf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryPolicy_JitterStaysInBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := p.delay(1)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("delay(1) = %v outside jitter range", d)
		}
	}
}

func TestDefaultRetryPolicy_RetriesGatewayFailuresOnly(t *testing.T) {
	p := DefaultRetryPolicy()
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !p.retryStatus(code) {
			t.Errorf("retryStatus(%d) = false", code)
		}
	}
	for _, code := range []int{400, 401, 404, 409} {
		if p.retryStatus(code) {
			t.Errorf("retryStatus(%d) = true", code)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryableError(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{"dial failure", context.Background(), &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"read failure", context.Background(), &net.OpError{Op: "read", Err: errors.New("reset")}, false},
		{"timeout", context.Background(), timeoutErr{}, true},
		{"plain error", context.Background(), errors.New("boom"), false},
		{"caller canceled", canceled, timeoutErr{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.ctx, tt.err); got != tt.want {
				t.Errorf("retryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Breaker
// =============================================================================

func newClockedBreaker(cfg BreakerConfig) (*breaker, *time.Time, *[]BreakerState) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var changes []BreakerState
	b := newBreaker(cfg, func(s BreakerState) { changes = append(changes, s) })
	b.now = func() time.Time { return now }
	return b, &now, &changes
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _, _ := newClockedBreaker(BreakerConfig{Threshold: 2, Cooldown: time.Minute})

	_ = b.allow()
	b.finish(outcomeFailure)
	_ = b.allow()
	b.finish(outcomeSuccess)
	_ = b.allow()
	b.finish(outcomeFailure)
	if b.current() != BreakerClosed {
		t.Fatal("a success in between resets the failure count")
	}

	_ = b.allow()
	b.finish(outcomeFailure)
	if b.current() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.current())
	}
	if err := b.allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("allow() = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_SingleTrialAfterCooldown(t *testing.T) {
	b, now, changes := newClockedBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Minute})
	_ = b.allow()
	b.finish(outcomeFailure)

	*now = now.Add(time.Minute)
	if err := b.allow(); err != nil {
		t.Fatalf("trial allow() = %v", err)
	}
	if err := b.allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("second caller during trial = %v, want ErrBreakerOpen", err)
	}

	b.finish(outcomeFailure)
	if b.current() != BreakerOpen {
		t.Fatalf("failed trial state = %v, want open", b.current())
	}

	*now = now.Add(time.Minute)
	_ = b.allow()
	b.finish(outcomeSuccess)
	if b.current() != BreakerClosed {
		t.Fatalf("successful trial state = %v, want closed", b.current())
	}

	want := []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerOpen, BreakerHalfOpen, BreakerClosed}
	if len(*changes) != len(want) {
		t.Fatalf("changes = %v, want %v", *changes, want)
	}
	for i := range want {
		if (*changes)[i] != want[i] {
			t.Fatalf("changes = %v, want %v", *changes, want)
		}
	}
}

func TestBreaker_AbortedTrialKeepsCooldownElapsed(t *testing.T) {
	b, now, _ := newClockedBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Minute})
	_ = b.allow()
	b.finish(outcomeFailure)

	*now = now.Add(time.Minute)
	_ = b.allow()
	b.finish(outcomeAborted)
	if b.current() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.current())
	}
	if err := b.allow(); err != nil {
		t.Fatalf("next caller should become the trial, got %v", err)
	}
}

func TestBreaker_ZeroThresholdDisables(t *testing.T) {
	b, _, changes := newClockedBreaker(BreakerConfig{})
	for i := 0; i < 10; i++ {
		if err := b.allow(); err != nil {
			t.Fatalf("allow() = %v", err)
		}
		b.finish(outcomeFailure)
	}
	if len(*changes) != 0 {
		t.Fatalf("disabled breaker changed state: %v", *changes)
	}
}

// =============================================================================
// Transport
// =============================================================================

func TestRetryTransport_ReplaysBodyOnRetry(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	rt := newTestTransport(fastPolicy(2, http.StatusBadGateway), DefaultBreakerConfig(), nil)
	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"content":"hi"}`))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"content":"hi"}` {
		t.Errorf("bodies = %q", bodies)
	}
}

func TestRetryTransport_UnreplayableBodyFails(t *testing.T) {
	srv, calls := countingServer(t, http.StatusServiceUnavailable)

	rt := newTestTransport(fastPolicy(2, http.StatusServiceUnavailable), DefaultBreakerConfig(), nil)
	req, _ := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader("x")))
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("RoundTrip() should fail when the body cannot be sent again")
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
}

func TestRetryTransport_ReturnsLastRetryableResponse(t *testing.T) {
	srv, calls := countingServer(t, http.StatusTooManyRequests)
	m := metrics.New("rt")

	rt := newTestTransport(fastPolicy(2, http.StatusTooManyRequests), DefaultBreakerConfig(), m)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"message":"attempt"}` {
		t.Errorf("body = %q, want the gateway error body", body)
	}
	if atomic.LoadInt32(calls) != 3 {
		t.Errorf("calls = %d, want 3", *calls)
	}
	if v := testutil.ToFloat64(m.GatewayRetries().WithLabelValues("429")); v != 2 {
		t.Errorf("retries = %v, want 2", v)
	}
}

func TestRetryTransport_ClientErrorsAreNotRetried(t *testing.T) {
	srv, calls := countingServer(t, http.StatusConflict)

	rt := newTestTransport(DefaultRetryPolicy(), BreakerConfig{Threshold: 1, Cooldown: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodPost, srv.URL, nil)
		resp, err := rt.RoundTrip(req)
		if err != nil {
			t.Fatalf("RoundTrip() error: %v", err)
		}
		resp.Body.Close()
	}
	if atomic.LoadInt32(calls) != 3 {
		t.Errorf("calls = %d, want 3", *calls)
	}
	if rt.breaker.current() != BreakerClosed {
		t.Error("conflicts must not open the breaker")
	}
}

func TestRetryTransport_OpenBreakerSkipsGateway(t *testing.T) {
	srv, calls := countingServer(t, http.StatusServiceUnavailable)
	m := metrics.New("rt")

	rt := newTestTransport(fastPolicy(0, http.StatusServiceUnavailable), BreakerConfig{Threshold: 1, Cooldown: time.Hour}, m)
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("first RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("second RoundTrip() = %v, want ErrBreakerOpen", err)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}

	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil {
		t.Fatalf("WriteText() error: %v", err)
	}
	if !strings.Contains(buf.String(), "rt_gateway_circuit_state 1") {
		t.Errorf("circuit gauge not open:\n%s", buf.String())
	}
}

func TestRetryTransport_CancelDuringBackoffIsNotAFailure(t *testing.T) {
	srv, _ := countingServer(t, http.StatusServiceUnavailable)

	policy := fastPolicy(3, http.StatusServiceUnavailable)
	policy.BaseDelay = time.Hour
	policy.MaxDelay = time.Hour
	rt := newTestTransport(policy, BreakerConfig{Threshold: 1, Cooldown: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if _, err := rt.RoundTrip(req); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RoundTrip() = %v, want deadline exceeded", err)
	}
	if rt.breaker.current() != BreakerClosed {
		t.Error("caller cancellation must not open the breaker")
	}
}

func TestRetryTransport_RateLimitHonoursContext(t *testing.T) {
	srv, calls := countingServer(t, http.StatusOK)

	rt := newRetryTransport(&http.Client{}, EnhancedConfig{Retry: DefaultRetryPolicy(), RateLimit: 0.5})
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("first RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ = http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Error("second RoundTrip() should fail while waiting on the limiter")
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
}

// =============================================================================
// Enhanced client
// =============================================================================

func TestNewEnhanced_RetriesThroughGateway(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"e1"}]`))
	}))
	defer srv.Close()

	c, err := NewEnhanced(EnhancedConfig{
		Config:           Config{URL: srv.URL, APIKey: "anon"},
		Retry:            fastPolicy(2, http.StatusServiceUnavailable),
		Breaker:          DefaultBreakerConfig(),
		EnableResilience: true,
	})
	if err != nil {
		t.Fatalf("NewEnhanced() error: %v", err)
	}

	resp, err := c.From("events").Select("id").Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestNewEnhanced_DisabledSendsOnce(t *testing.T) {
	srv, calls := countingServer(t, http.StatusServiceUnavailable)

	c, err := NewEnhanced(EnhancedConfig{
		Config: Config{URL: srv.URL, APIKey: "anon"},
		Retry:  fastPolicy(3, http.StatusServiceUnavailable),
	})
	if err != nil {
		t.Fatalf("NewEnhanced() error: %v", err)
	}
	_, _ = c.From("events").Select("id").Execute(context.Background())
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
}

func TestNewEnhanced_Validation(t *testing.T) {
	if _, err := NewEnhanced(EnhancedConfig{}); err == nil {
		t.Error("NewEnhanced() should require URL")
	}
	if _, err := NewEnhanced(EnhancedConfig{Config: Config{URL: "http://x"}}); err == nil {
		t.Error("NewEnhanced() should require APIKey")
	}
}
