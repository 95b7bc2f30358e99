package main

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// ValidationResult is the outcome of checking one operator input.
type ValidationResult struct {
	Valid   bool
	Message string
}

func valid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: true, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

// DatabaseConnector opens and immediately closes a connection to a DSN.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector connects with pgx.
type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// RedisPinger authenticates against a Redis server with a password.
type RedisPinger interface {
	Ping(ctx context.Context, addr, password string) error
}

// GoRedisPinger pings with a short-lived go-redis client.
type GoRedisPinger struct{}

func (GoRedisPinger) Ping(ctx context.Context, addr, password string) error {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	defer client.Close()
	return client.Ping(ctx).Err()
}

// Validator checks operator input before it is written to SSM.
type Validator struct {
	dbConn    DatabaseConnector
	redis     RedisPinger
	redisAddr string
	timeout   time.Duration
}

// NewValidator returns a Validator with live connectors. redisAddr may be
// empty, in which case Redis passwords are stored unverified.
func NewValidator(redisAddr string) *Validator {
	return NewValidatorWithDeps(PgxConnector{}, GoRedisPinger{}, redisAddr)
}

// NewValidatorWithDeps is NewValidator with injected connectors. A nil
// connector skips the live check.
func NewValidatorWithDeps(dbConn DatabaseConnector, pinger RedisPinger, redisAddr string) *Validator {
	return &Validator{dbConn: dbConn, redis: pinger, redisAddr: redisAddr, timeout: 10 * time.Second}
}

// ValidateDatabaseURL checks the DSN shape and, when a connector is set,
// that it accepts a connection.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, raw string) ValidationResult {
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("not a valid URL: %v", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return invalid("scheme must be postgres:// or postgresql://, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return invalid("missing host")
	}
	if strings.Trim(u.Path, "/") == "" {
		return invalid("missing database name")
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return invalid("missing password in connection string")
	}
	if v.dbConn == nil {
		return valid("format ok (connection not tested)")
	}

	connCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	if err := v.dbConn.Connect(connCtx, raw); err != nil {
		return invalid("connection failed: %v", err)
	}
	return valid("connected to %s", u.Hostname())
}

// ValidateRedisPassword pings the configured Redis address with the password.
func (v *Validator) ValidateRedisPassword(ctx context.Context, password string) ValidationResult {
	if v.redis == nil || v.redisAddr == "" {
		return valid("stored without a connection test (no --redis-addr)")
	}
	pingCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	if err := v.redis.Ping(pingCtx, v.redisAddr, password); err != nil {
		return invalid("redis at %s rejected the password: %v", v.redisAddr, err)
	}
	return valid("authenticated against %s", v.redisAddr)
}

var sqsQueueURL = regexp.MustCompile(`^https://sqs\.[a-z0-9-]+\.amazonaws\.com/\d{12}/[A-Za-z0-9_-]+\.fifo$`)

// ValidateQueueURL requires an SQS FIFO queue URL, since dispatch relies on
// message group ordering and deduplication.
func (v *Validator) ValidateQueueURL(_ context.Context, raw string) ValidationResult {
	if !sqsQueueURL.MatchString(raw) {
		return invalid("expected https://sqs.<region>.amazonaws.com/<account>/<name>.fifo")
	}
	return valid("FIFO queue URL")
}

var s3BucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// ValidateBucketName applies the S3 bucket naming rules.
func (v *Validator) ValidateBucketName(_ context.Context, name string) ValidationResult {
	if !s3BucketName.MatchString(name) || strings.Contains(name, "..") {
		return invalid("%q is not a valid S3 bucket name", name)
	}
	return valid("bucket name ok")
}
