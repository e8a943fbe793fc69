package client

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/social_layer/pkg/metrics"
)

// =============================================================================
// Retry policy
// =============================================================================

// RetryPolicy controls how failed gateway calls are repeated.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// BaseDelay is the wait before the first retry; it doubles for each further retry.
	BaseDelay time.Duration
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration
	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64
	// RetryOn lists response statuses worth another attempt.
	RetryOn []int
}

// DefaultRetryPolicy retries rate limiting and gateway-side failures three times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Jitter:     0.2,
		RetryOn: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// delay returns the wait before retry number n (starting at 1).
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n && (p.MaxDelay <= 0 || d < p.MaxDelay); i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(float64(d) * p.Jitter * (rand.Float64()*2 - 1))
	}
	return d
}

func (p RetryPolicy) retryStatus(code int) bool {
	return slices.Contains(p.RetryOn, code)
}

// retryableError reports transport failures that did not reach the gateway or timed out.
// Cancellation by the caller is never retried.
func retryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// =============================================================================
// Breaker
// =============================================================================

// BreakerState is the breaker position, exported as a gauge value.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// ErrBreakerOpen is returned without contacting the gateway after repeated failures.
var ErrBreakerOpen = errors.New("gateway unavailable after repeated failures")

// BreakerConfig controls when the gateway stops being called.
type BreakerConfig struct {
	// Threshold is the number of consecutive failed calls that opens the breaker. Zero disables it.
	Threshold int
	// Cooldown is how long the breaker stays open before one trial call is let through.
	Cooldown time.Duration
}

// DefaultBreakerConfig opens after five failed calls and retries after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

type outcome int

const (
	outcomeAborted outcome = iota
	outcomeSuccess
	outcomeFailure
)

type breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
	onChange func(BreakerState)
}

func newBreaker(cfg BreakerConfig, onChange func(BreakerState)) *breaker {
	return &breaker{cfg: cfg, now: time.Now, onChange: onChange}
}

// allow admits a call. While half-open only the single trial call is in flight.
func (b *breaker) allow() error {
	if b.cfg.Threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrBreakerOpen
		}
		b.set(BreakerHalfOpen)
	case BreakerHalfOpen:
		return ErrBreakerOpen
	}
	return nil
}

// finish records the result of an admitted call. An aborted trial call reopens the
// breaker with its original open time so the next call becomes the trial.
func (b *breaker) finish(o outcome) {
	if b.cfg.Threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch o {
	case outcomeSuccess:
		b.failures = 0
		b.set(BreakerClosed)
	case outcomeFailure:
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			b.set(BreakerOpen)
		}
	case outcomeAborted:
		if b.state == BreakerHalfOpen {
			b.set(BreakerOpen)
		}
	}
}

func (b *breaker) set(s BreakerState) {
	if b.state == s {
		return
	}
	b.state = s
	if b.onChange != nil {
		b.onChange(s)
	}
}

func (b *breaker) current() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// =============================================================================
// Transport
// =============================================================================

// retryTransport sends each request through the breaker, the rate limiter and the retry policy.
// The response of the last attempt is returned as is, so error bodies stay readable.
type retryTransport struct {
	next    *http.Client
	policy  RetryPolicy
	breaker *breaker
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

func newRetryTransport(next *http.Client, cfg EnhancedConfig) *retryTransport {
	t := &retryTransport{
		next:    next,
		policy:  cfg.Retry,
		metrics: cfg.Metrics,
	}
	m := cfg.Metrics
	t.breaker = newBreaker(cfg.Breaker, func(s BreakerState) { m.SetCircuitState(int(s)) })
	if cfg.RateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(math.Ceil(cfg.RateLimit)))
	}
	return t
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := t.breaker.allow(); err != nil {
		return nil, err
	}
	result := outcomeAborted
	defer func() { t.breaker.finish(result) }()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, t.policy.delay(attempt)); err != nil {
				return nil, err
			}
			again, err := rewind(req)
			if err != nil {
				result = outcomeFailure
				return nil, err
			}
			req = again
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		last := attempt >= t.policy.MaxRetries
		resp, err := t.next.Do(req)
		if err != nil {
			if !last && retryableError(ctx, err) {
				t.metrics.RecordGatewayRetry("network")
				continue
			}
			if ctx.Err() == nil {
				result = outcomeFailure
			}
			return nil, err
		}
		if !t.policy.retryStatus(resp.StatusCode) {
			result = outcomeSuccess
			return resp, nil
		}
		if last {
			result = outcomeFailure
			return resp, nil
		}
		discard(resp)
		t.metrics.RecordGatewayRetry(strconv.Itoa(resp.StatusCode))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// discard drains a little of an abandoned body so the connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}

// rewind returns a copy of req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// =============================================================================
// Enhanced client
// =============================================================================

// EnhancedConfig adds retry, breaker and rate limit settings to Config.
type EnhancedConfig struct {
	Config
	Retry            RetryPolicy
	Breaker          BreakerConfig
	RateLimit        float64
	EnableResilience bool
}

// NewEnhanced creates a client whose requests go through retryTransport when resilience is enabled.
func NewEnhanced(cfg EnhancedConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}

	base := cfg.HTTPClient
	if base == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		base = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	if cfg.EnableResilience {
		cfg.Config.HTTPClient = &http.Client{Transport: newRetryTransport(base, cfg)}
	} else {
		cfg.Config.HTTPClient = base
	}
	return New(cfg.Config)
}
