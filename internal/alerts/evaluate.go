package alerts

import (
	"context"

	"golang.org/x/sync/errgroup"

	"surfcast/internal/types"
)

// Outcome is the evaluation of one alert by EvaluateAll. Err is set when the
// alert could not be evaluated; Result is then unmatched.
type Outcome struct {
	Alert  types.AlertConfig
	Result types.MatchResult
	Err    error
}

// EvaluateAll evaluates every active alert that targets the forecast's
// region and date, in parallel. Other alerts are skipped. Outcomes keep the
// order of alerts. Per-alert failures are reported in Outcome.Err; the
// returned error is only set when ctx ends first.
func (e *Engine) EvaluateAll(ctx context.Context, f types.CanonicalForecast, alerts []types.AlertConfig) ([]Outcome, error) {
	relevant := make([]types.AlertConfig, 0, len(alerts))
	for _, a := range alerts {
		if a.Active && a.Region == f.Region && a.ForecastDate == f.Date {
			relevant = append(relevant, a)
		}
	}

	outcomes := make([]Outcome, len(relevant))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range relevant {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.Evaluate(f, a)
			outcomes[i] = Outcome{Alert: a, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
