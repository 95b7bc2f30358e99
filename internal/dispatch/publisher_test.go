package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surfcast/internal/types"
)

const testQueue = "https://sqs.eu-west-1.amazonaws.com/123/surfcast-notifications"

// mockSQSSender records all SendMessage calls for verification.
type mockSQSSender struct {
	calls     []*sqs.SendMessageInput
	returnErr error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &sqs.SendMessageOutput{}, nil
}


func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPublisher(sender SQSSender, queue string) *Publisher {
	return NewPublisher(sender, queue, discardLogger(),
		WithPublisherClock(types.FixedClock{T: time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)}),
		WithIDGenerator(func() string { return "msg-1" }),
	)
}

func matchedResult() (types.AlertConfig, types.MatchResult) {
	alert := types.AlertConfig{
		ID:                 "alert-7",
		UserID:             "user-3",
		Region:             "hossegor",
		ForecastDate:       "2026-03-14",
		Active:             true,
		NotificationMethod: types.NotifyEmail,
		ContactInfo:        "surfer@example.com",
		AlertType:          types.AlertTypeVariables,
		Properties:         types.Criteria{{Property: types.PropWindSpeed, Target: 10, Range: 2}},
	}
	result := types.MatchResult{
		Matched: true,
		AlertID: "alert-7",
		Forecast: types.CanonicalForecast{
			Region: "hossegor",
			Date:   "2026-03-14",
			Wind:   types.Wind{SpeedKmh: 12, DirectionDeg: 90},
			Swell:  types.Swell{HeightM: 1.4, PeriodS: 11, DirectionDeg: 290},
			Source: types.SourceWindfinder,
		},
		PerPropertyDelta: []types.PropertyDelta{
			{Property: types.PropWindSpeed, Observed: 12, Target: 10, Range: 2, Available: true, WithinRange: true},
		},
		Reason: "all criteria within range",
	}
	return alert, result
}

func TestPublisher_PublishMatched(t *testing.T) {
	sender := &mockSQSSender{}
	pub := newTestPublisher(sender, testQueue)
	alert, result := matchedResult()

	sent, err := pub.Publish(context.Background(), alert, result)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, sender.calls, 1)

	input := sender.calls[0]
	assert.Equal(t, testQueue, *input.QueueUrl)
	assert.Nil(t, input.MessageGroupId, "standard queues take no group id")
	assert.Equal(t, "alert-7:2026-03-14", *input.MessageAttributes["dedup_key"].StringValue)
	assert.Equal(t, "email", *input.MessageAttributes["notification_method"].StringValue)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(*input.MessageBody), &body))
	assert.Equal(t, "msg-1", body["message_id"])
	assert.Equal(t, "alert-7", body["alert_id"])
	assert.Equal(t, "user-3", body["user_id"])
	assert.Equal(t, true, body["matched"])
	assert.Equal(t, "surfer@example.com", body["contact_info"])
	assert.Equal(t, "alert-7:2026-03-14", body["dedup_key"])
	assert.Equal(t, "2026-03-14T06:00:00Z", body["evaluated_at"])
	assert.NotContains(t, body, "computed_stars")

	forecast := body["forecast"].(map[string]any)
	assert.Equal(t, "hossegor", forecast["region"])
	assert.Len(t, body["per_property"], 1)
}

func TestPublisher_CarriesRunID(t *testing.T) {
	sender := &mockSQSSender{}
	pub := newTestPublisher(sender, testQueue)
	alert, result := matchedResult()

	ctx := types.WithRunID(context.Background(), "run-7")
	_, err := pub.Publish(ctx, alert, result)
	require.NoError(t, err)
	require.Len(t, sender.calls, 1)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(*sender.calls[0].MessageBody), &body))
	assert.Equal(t, "run-7", body["run_id"])

	// Without a run in context the field is omitted.
	_, err = pub.Publish(context.Background(), alert, result)
	require.NoError(t, err)
	require.Len(t, sender.calls, 2)
	body = nil
	require.NoError(t, json.Unmarshal([]byte(*sender.calls[1].MessageBody), &body))
	assert.NotContains(t, body, "run_id")
}

func TestPublisher_UnmatchedIsNotSent(t *testing.T) {
	sender := &mockSQSSender{}
	pub := newTestPublisher(sender, testQueue)
	alert, result := matchedResult()
	result.Matched = false

	sent, err := pub.Publish(context.Background(), alert, result)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, sender.calls)
}

func TestPublisher_FIFOQueueDeduplicates(t *testing.T) {
	sender := &mockSQSSender{}
	pub := newTestPublisher(sender, testQueue+".fifo")
	alert, result := matchedResult()

	_, err := pub.Publish(context.Background(), alert, result)
	require.NoError(t, err)
	require.Len(t, sender.calls, 1)

	input := sender.calls[0]
	require.NotNil(t, input.MessageDeduplicationId)
	assert.Equal(t, "alert-7:2026-03-14", *input.MessageDeduplicationId)
	assert.Equal(t, "user-3", *input.MessageGroupId)
}

func TestPublisher_RatingCarriesStars(t *testing.T) {
	sender := &mockSQSSender{}
	pub := newTestPublisher(sender, testQueue)
	alert, result := matchedResult()
	stars := 5
	alert.AlertType = types.AlertTypeRating
	alert.StarRating = types.StarsFive
	result.PerPropertyDelta = nil
	result.ComputedStars = &stars

	_, err := pub.Publish(context.Background(), alert, result)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(*sender.calls[0].MessageBody), &msg))
	require.NotNil(t, msg.ComputedStars)
	assert.Equal(t, 5, *msg.ComputedStars)
	assert.Empty(t, msg.PerProperty)
}

func TestPublisher_SendFailure(t *testing.T) {
	sender := &mockSQSSender{returnErr: errors.New("throttled")}
	pub := newTestPublisher(sender, testQueue)
	alert, result := matchedResult()

	sent, err := pub.Publish(context.Background(), alert, result)
	assert.False(t, sent)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalQueue, appErr.Code)
}

func TestDedupKeyStablePerDay(t *testing.T) {
	alert, result := matchedResult()
	a := NewMessage("one", alert, result, time.Now())
	b := NewMessage("two", alert, result, time.Now().Add(time.Hour))
	assert.Equal(t, a.DedupKey, b.DedupKey)
	assert.NotEqual(t, a.MessageID, b.MessageID)
}
