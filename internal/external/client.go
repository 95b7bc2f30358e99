// Package external is the boundary between surfcast and third-party HTTP
// forecast services. All outbound HTTP calls go through BaseClient, which
// applies circuit breaking, transport-level retries for throttling and 5xx
// responses, request id propagation and error mapping.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"surfcast/internal/types"
)

// RetryPolicy configures transport-level retries. MaxRetries counts retries
// after the first attempt; zero disables them.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// BreakerSettings tunes the circuit breaker of a BaseClient.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures trips the breaker when exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns the breaker tuning used for forecast APIs.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// BaseClient wraps an *http.Client and a circuit breaker.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(context.Context, time.Duration) error
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the wait used between retries. Tests use it to avoid
// real delays.
func WithSleepFunc(fn func(context.Context, time.Duration) error) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// NewBaseClient creates a BaseClient with its own circuit breaker.
func NewBaseClient(
	httpClient *http.Client,
	breaker BreakerSettings,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	threshold := breaker.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breaker.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return NewBaseClientWithBreaker(httpClient, cb, retryPolicy, userAgent, opts...)
}

// NewBaseClientWithBreaker creates a BaseClient with a caller-provided circuit
// breaker.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	bc := &BaseClient{
		client:      httpClient,
		breaker:     breaker,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     sleepContext,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BreakerState reports the current circuit breaker state.
func (c *BaseClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Do sends req through the breaker, stamping X-Request-ID and User-Agent.
// 429 and 5xx answers are retried per the RetryPolicy, waiting as long as
// Retry-After asks within its bounds. Every other status, 202 and 4xx
// included, is handed back untouched with the body left for the caller.
//
// Failure comes back as a *types.AppError carrying an upstream code.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if id := types.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if err := makeReplayable(req); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
	}

	var (
		last    *http.Response
		lastErr error
	)
	for attempt := 0; attempt <= c.retryPolicy.MaxRetries; attempt++ {
		if attempt > 0 {
			if last != nil {
				last.Body.Close()
			}
			if err := c.sleepFn(ctx, c.computeBackoff(attempt-1, last)); err != nil {
				lastErr, last = err, nil
				break
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					lastErr, last = err, nil
					break
				}
				req.Body = body
			}
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			if retryableStatus(r.StatusCode) {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}
		last, lastErr = resp, err
		if breakerRejected(err) || ctx.Err() != nil {
			break
		}
	}

	if last != nil {
		last.Body.Close()
	}
	return nil, c.mapError(last, lastErr)
}

// makeReplayable gives req a GetBody so retries can resend it.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(buf))
	return nil
}

// computeBackoff picks the wait before retry number attempt+1. A Retry-After
// header wins, clamped to [MinWait, MaxWait]. Otherwise the wait is drawn
// uniformly between MinWait and MinWait*2^attempt, capped at MaxWait.
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	lo, hi := c.retryPolicy.MinWait, c.retryPolicy.MaxWait
	if resp != nil {
		if wait, ok := ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return min(max(wait, lo), hi)
		}
	}

	ceiling := hi
	if attempt < 32 {
		if grown := lo << attempt; grown > 0 && grown < hi {
			ceiling = grown
		}
	}
	if ceiling <= lo {
		return lo
	}
	return lo + rand.N(ceiling-lo)
}

// ParseRetryAfter reads a Retry-After value in delta-seconds or HTTP-date
// form.
func ParseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at), true
	}
	return 0, false
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	code, msg := types.ErrCodeUpstreamUnavailable, "upstream request failed"
	switch {
	case breakerRejected(err):
		msg = "circuit breaker is open; upstream service unavailable"
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		code, msg = types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded"
	case resp != nil && resp.StatusCode >= 500:
		msg = fmt.Sprintf("upstream returned %d after retries", resp.StatusCode)
	}
	return types.NewAppError(code, msg, err)
}
