// Package dispatch hands alert match decisions to the notification pipeline.
// Templating, transport and delivery bookkeeping belong to the downstream
// consumer; this package only decides the payload and enqueues it.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"surfcast/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Message is the notification hand-off payload.
type Message struct {
	MessageID          string                   `json:"message_id"`
	AlertID            string                   `json:"alert_id"`
	UserID             string                   `json:"user_id"`
	Matched            bool                     `json:"matched"`
	NotificationMethod types.NotificationMethod `json:"notification_method"`
	ContactInfo        string                   `json:"contact_info,omitempty"`
	Forecast           types.CanonicalForecast  `json:"forecast"`
	PerProperty        []types.PropertyDelta    `json:"per_property,omitempty"`
	ComputedStars      *int                     `json:"computed_stars,omitempty"`
	Reason             string                   `json:"reason"`
	// DedupKey is stable per alert and forecast day; consumers drop repeats.
	DedupKey    string    `json:"dedup_key"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	// RunID is the alert run that produced the match, when known.
	RunID string `json:"run_id,omitempty"`
}

// DedupKey identifies one alert firing for one forecast day.
func DedupKey(alertID, date string) string {
	return alertID + ":" + date
}

// NewMessage builds the payload for a match result.
func NewMessage(id string, alert types.AlertConfig, result types.MatchResult, now time.Time) Message {
	return Message{
		MessageID:          id,
		AlertID:            alert.ID,
		UserID:             alert.UserID,
		Matched:            result.Matched,
		NotificationMethod: alert.NotificationMethod,
		ContactInfo:        alert.ContactInfo,
		Forecast:           result.Forecast,
		PerProperty:        result.PerPropertyDelta,
		ComputedStars:      result.ComputedStars,
		Reason:             result.Reason,
		DedupKey:           DedupKey(alert.ID, result.Forecast.Date),
		EvaluatedAt:        now.UTC(),
	}
}

// Publisher enqueues matched results on the notification queue. FIFO queues
// additionally get SQS-level deduplication on the dedup key.
type Publisher struct {
	client   SQSSender
	queueURL string
	fifo     bool
	clock    types.Clock
	newID    func() string
	logger   *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithPublisherClock overrides the clock stamped on messages.
func WithPublisherClock(c types.Clock) PublisherOption {
	return func(p *Publisher) { p.clock = c }
}

// WithIDGenerator overrides message id generation.
func WithIDGenerator(fn func() string) PublisherOption {
	return func(p *Publisher) { p.newID = fn }
}

// NewPublisher creates a Publisher targeting queueURL.
func NewPublisher(client SQSSender, queueURL string, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		client:   client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		clock:    types.RealClock{},
		newID:    uuid.NewString,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues result when it matched and reports whether a message was
// sent. Unmatched results are never handed off.
func (p *Publisher) Publish(ctx context.Context, alert types.AlertConfig, result types.MatchResult) (bool, error) {
	if !result.Matched {
		return false, nil
	}

	msg := NewMessage(p.newID(), alert, result, p.clock.Now())
	msg.RunID = types.GetRunID(ctx)
	body, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("dispatch: failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"dedup_key": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.DedupKey),
			},
			"notification_method": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.NotificationMethod)),
			},
		},
	}
	if p.fifo {
		input.MessageGroupId = aws.String(alert.UserID)
		input.MessageDeduplicationId = aws.String(msg.DedupKey)
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalQueue,
			fmt.Sprintf("failed to send match for alert %s", alert.ID), err)
	}

	p.logger.InfoContext(ctx, "match published",
		"message_id", msg.MessageID,
		"alert_id", msg.AlertID,
		"user_id", msg.UserID,
		"dedup_key", msg.DedupKey,
		"run_id", msg.RunID,
		"notification_method", string(msg.NotificationMethod),
	)
	return true, nil
}
