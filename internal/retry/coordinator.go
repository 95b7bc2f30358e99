// Package retry wraps forecast-producing operations with bounded,
// server-signalled retries.
//
// Only an explicit *types.RetrySignal makes the coordinator loop. Any other
// error is a hard failure and is returned to the caller unchanged. Attempts
// are strictly sequential and every wait honors context cancellation.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"surfcast/internal/types"
)

// Strategy selects how the wait between retry-signalled attempts grows.
type Strategy string

const (
	// StrategyFixed waits Backoff between every attempt.
	StrategyFixed Strategy = "fixed"
	// StrategyExponential doubles the wait after every attempt, up to MaxBackoff.
	StrategyExponential Strategy = "exponential"
)

// Defaults applied when a Policy field is zero.
const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 5 * time.Second
	DefaultMaxBackoff = 60 * time.Second
)

// Policy configures a Coordinator.
type Policy struct {
	// MaxRetries is the maximum number of attempts, including the first.
	MaxRetries int
	Backoff    time.Duration
	// MaxBackoff caps both exponential growth and upstream Retry-After hints.
	MaxBackoff time.Duration
	Strategy   Strategy
}

// DefaultPolicy returns the fixed 5s, 3-attempt policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
		MaxBackoff: DefaultMaxBackoff,
		Strategy:   StrategyFixed,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	if p.Strategy == "" {
		p.Strategy = StrategyFixed
	}
	return p
}

// Request identifies the forecast being fetched.
type Request struct {
	Region string
	Date   string
}

// Operation performs one fetch attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int, req Request) (*types.CanonicalForecast, error)

// Coordinator runs Operations under a Policy.
type Coordinator struct {
	policy Policy
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator. A nil clock uses the real clock and a
// nil logger uses slog.Default().
func NewCoordinator(policy Policy, clock clockwork.Clock, logger *slog.Logger) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		policy: policy.withDefaults(),
		clock:  clock,
		logger: logger,
	}
}

// Policy returns the effective policy after defaults.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Do calls op until it returns a forecast, a hard error, or the attempt budget
// is spent. Exhaustion is reported as *types.RetryExhausted.
func (c *Coordinator) Do(ctx context.Context, req Request, op Operation) (*types.CanonicalForecast, error) {
	var last *types.RetrySignal

	for attempt := 1; attempt <= c.policy.MaxRetries; attempt++ {
		forecast, err := op(ctx, attempt, req)
		if err == nil {
			return forecast, nil
		}

		var signal *types.RetrySignal
		if !errors.As(err, &signal) {
			return nil, err
		}
		signal.Attempt = attempt
		last = signal

		if attempt == c.policy.MaxRetries {
			break
		}

		wait := c.Delay(attempt, signal)
		c.logger.InfoContext(ctx, "upstream asked to retry",
			"region", req.Region,
			"date", req.Date,
			"attempt", attempt,
			"wait", wait.String(),
			"reason", signal.Reason,
		)

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	c.logger.WarnContext(ctx, "retry budget exhausted",
		"region", req.Region,
		"date", req.Date,
		"attempts", c.policy.MaxRetries,
	)
	return nil, &types.RetryExhausted{Attempts: c.policy.MaxRetries, Last: last}
}

// Delay returns the wait before the attempt following attempt. A Retry-After
// hint longer than the computed backoff wins, capped at MaxBackoff.
func (c *Coordinator) Delay(attempt int, signal *types.RetrySignal) time.Duration {
	wait := c.policy.Backoff
	if c.policy.Strategy == StrategyExponential {
		for i := 1; i < attempt && wait < c.policy.MaxBackoff; i++ {
			wait *= 2
		}
	}
	if signal != nil && signal.RetryAfter > wait {
		wait = signal.RetryAfter
	}
	if wait > c.policy.MaxBackoff {
		wait = c.policy.MaxBackoff
	}
	return wait
}

func (c *Coordinator) sleep(ctx context.Context, d time.Duration) error {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
