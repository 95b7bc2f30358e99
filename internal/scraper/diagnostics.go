package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"surfcast/internal/types"
)

// Capture is the evidence collected from a failed extraction.
type Capture struct {
	Source     types.SourceID
	Region     string
	URL        string
	Reason     types.ExtractionReason
	Screenshot []byte
	HTML       string
	At         time.Time
}

// Diagnostics stores failure captures for operators.
type Diagnostics interface {
	Capture(ctx context.Context, c Capture) error
}

// S3PutClient abstracts the S3 PutObject operation for testability.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Diagnostics writes the screenshot as PNG and the HTML snapshot as
// zstd-compressed text under
// diagnostics/<source>/<date>/<region>/<time>-<reason>.{png,html.zst}.
type S3Diagnostics struct {
	client S3PutClient
	bucket string
	prefix string
	enc    *zstd.Encoder
	logger *slog.Logger
}

// NewS3Diagnostics creates an S3-backed Diagnostics. An empty prefix defaults
// to "diagnostics".
func NewS3Diagnostics(client S3PutClient, bucket, prefix string, logger *slog.Logger) (*S3Diagnostics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "diagnostics"
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &S3Diagnostics{
		client: client,
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/"),
		enc:    enc,
		logger: logger,
	}, nil
}

// KeyBase returns the object key without extension for a capture.
func (d *S3Diagnostics) KeyBase(c Capture) string {
	region := strings.ReplaceAll(strings.ToLower(c.Region), " ", "-")
	return fmt.Sprintf("%s/%s/%s/%s/%s-%s",
		d.prefix,
		c.Source,
		c.At.UTC().Format(types.DateLayout),
		region,
		c.At.UTC().Format("150405"),
		c.Reason,
	)
}

// Capture uploads whatever evidence the capture holds.
func (d *S3Diagnostics) Capture(ctx context.Context, c Capture) error {
	base := d.KeyBase(c)

	if len(c.Screenshot) > 0 {
		if err := d.put(ctx, base+".png", c.Screenshot, "image/png", ""); err != nil {
			return err
		}
	}
	if c.HTML != "" {
		// EncodeAll is safe for concurrent use on a shared encoder.
		compressed := d.enc.EncodeAll([]byte(c.HTML), nil)
		if err := d.put(ctx, base+".html.zst", compressed, "text/html", "zstd"); err != nil {
			return err
		}
	}

	d.logger.InfoContext(ctx, "extraction diagnostics stored",
		"bucket", d.bucket,
		"key", base,
		"source", string(c.Source),
		"reason", string(c.Reason),
	)
	return nil
}

func (d *S3Diagnostics) put(ctx context.Context, key string, body []byte, contentType, encoding string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}
	if encoding != "" {
		input.ContentEncoding = aws.String(encoding)
	}
	if _, err := d.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", d.bucket, key, err)
	}
	return nil
}
