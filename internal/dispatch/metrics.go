package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"surfcast/internal/types"
)

// Metric names emitted by CloudWatchRunMetrics.
const (
	MetricForecastFetch        = "ForecastFetch"
	MetricForecastFetchLatency = "ForecastFetchLatency"
	MetricCacheLookup          = "ForecastCacheLookup"
	MetricAlertsEvaluated      = "AlertsEvaluated"
	MetricAlertsMatched        = "AlertsMatched"
	MetricAlertsFailed         = "AlertsFailed"

	DimSource = "Source"
	DimResult = "Result"
	DimTier   = "Tier"
	DimRegion = "Region"
)

// maxDatumsPerPut is the CloudWatch PutMetricData limit.
const maxDatumsPerPut = 1000

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRunMetrics collects the measurements of one alert run and sends
// them in bulk on Flush. It satisfies the forecast service's metrics hook, so
// the alert runner reports fetches and cache lookups through it as well.
//
// Metrics emitted:
//   - ForecastFetch: Dims {Source, Result}
//   - ForecastFetchLatency: Dims {Source}, milliseconds
//   - ForecastCacheLookup: Dims {Tier, Result=hit|miss}
//   - AlertsEvaluated, AlertsMatched, AlertsFailed: Dims {Region}
type CloudWatchRunMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	mu      sync.Mutex
	pending []cwtypes.MetricDatum
}

// NewCloudWatchRunMetrics creates metrics publishing to namespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRunMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRunMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// FetchCompleted records one forecast fetch outcome.
func (m *CloudWatchRunMetrics) FetchCompleted(source types.SourceID, outcome string, elapsed time.Duration) {
	m.add(
		datum(MetricForecastFetch, 1, cwtypes.StandardUnitCount, DimSource, string(source), DimResult, outcome),
		datum(MetricForecastFetchLatency, float64(elapsed.Milliseconds()), cwtypes.StandardUnitMilliseconds, DimSource, string(source)),
	)
}

// CacheLookup records a forecast cache hit or miss.
func (m *CloudWatchRunMetrics) CacheLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.add(datum(MetricCacheLookup, 1, cwtypes.StandardUnitCount, DimTier, tier, DimResult, result))
}

// AlertsEvaluated records the alert counts of one region.
func (m *CloudWatchRunMetrics) AlertsEvaluated(region string, evaluated, matched, failed int) {
	m.add(
		datum(MetricAlertsEvaluated, float64(evaluated), cwtypes.StandardUnitCount, DimRegion, region),
		datum(MetricAlertsMatched, float64(matched), cwtypes.StandardUnitCount, DimRegion, region),
		datum(MetricAlertsFailed, float64(failed), cwtypes.StandardUnitCount, DimRegion, region),
	)
}

func (m *CloudWatchRunMetrics) add(d ...cwtypes.MetricDatum) {
	m.mu.Lock()
	m.pending = append(m.pending, d...)
	m.mu.Unlock()
}

// Flush sends everything collected so far. Failed batches are logged and
// dropped; metrics never fail a run.
func (m *CloudWatchRunMetrics) Flush(ctx context.Context) {
	m.mu.Lock()
	data := m.pending
	m.pending = nil
	m.mu.Unlock()

	for start := 0; start < len(data); start += maxDatumsPerPut {
		end := min(start+maxDatumsPerPut, len(data))
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: data[start:end],
		}
		if _, err := m.client.PutMetricData(ctx, input); err != nil {
			m.logger.ErrorContext(ctx, "failed to publish run metrics",
				"error", err.Error(),
				"datums", end-start,
			)
		}
	}
}

// datum builds a MetricDatum; dims are name/value pairs.
func datum(name string, value float64, unit cwtypes.StandardUnit, dims ...string) cwtypes.MetricDatum {
	if len(dims)%2 != 0 {
		panic(fmt.Sprintf("dispatch: odd dimension list for %s", name))
	}
	d := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
	}
	for i := 0; i < len(dims); i += 2 {
		d.Dimensions = append(d.Dimensions, cwtypes.Dimension{
			Name:  aws.String(dims[i]),
			Value: aws.String(dims[i+1]),
		})
	}
	return d
}
