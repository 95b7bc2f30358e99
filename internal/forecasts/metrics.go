package forecasts

import (
	"time"

	"surfcast/internal/types"
)

// Cache tiers reported to Metrics.
const (
	TierMemory = "memory"
	TierStore  = "store"
)

// Fetch outcomes reported to Metrics.
const (
	OutcomeSuccess   = "success"
	OutcomePending   = "pending"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

// Metrics receives forecast service measurements. The Prometheus
// implementation lives in internal/observability.
type Metrics interface {
	FetchCompleted(source types.SourceID, outcome string, elapsed time.Duration)
	CacheLookup(tier string, hit bool)
}

type noopMetrics struct{}

func (noopMetrics) FetchCompleted(types.SourceID, string, time.Duration) {}
func (noopMetrics) CacheLookup(string, bool)                            {}
