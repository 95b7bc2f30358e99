package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMClient is the subset of the SSM API the bootstrap tool uses.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMManager reads and writes surfcast parameters under /{env}/surfcast/.
// Secret values are never logged; only their length is.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

const ssmOperationTimeout = 15 * time.Second

// NewSSMManager creates a manager backed by a real SSM client.
func NewSSMManager(bctx *BootstrapContext) *SSMManager {
	return NewSSMManagerWithClient(ssm.NewFromConfig(bctx.AWSConfig), bctx.Environment, bctx.Logger)
}

// NewSSMManagerWithClient creates a manager with an injected client.
func NewSSMManagerWithClient(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSMManager{client: client, env: env, logger: logger}
}

// SSMPath returns the full parameter path for a category/key pair, e.g.
// "database/url" becomes "/prod/surfcast/database/url".
func (m *SSMManager) SSMPath(categoryAndKey string) string {
	return fmt.Sprintf("/%s/surfcast/%s", m.env, categoryAndKey)
}

// ParameterExists reports whether path already holds a value. The value
// itself is not decrypted.
func (m *SSMManager) ParameterExists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(path)})
	var notFound *ssmtypes.ParameterNotFound
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup %s: %w", path, err)
	}
}

// PutSecret stores value as a SecureString. Without overwrite an existing
// parameter makes it fail with a wrapped *ssmtypes.ParameterAlreadyExists.
func (m *SSMManager) PutSecret(ctx context.Context, path, value string, overwrite bool) error {
	return m.put(ctx, path, value, ssmtypes.ParameterTypeSecureString, overwrite)
}

// PutString stores a plaintext parameter, replacing any previous value.
func (m *SSMManager) PutString(ctx context.Context, path, value string) error {
	return m.put(ctx, path, value, ssmtypes.ParameterTypeString, true)
}

func (m *SSMManager) put(ctx context.Context, path, value string, kind ssmtypes.ParameterType, overwrite bool) error {
	switch {
	case path == "":
		return errors.New("empty parameter path")
	case value == "":
		return fmt.Errorf("empty value for %s", path)
	}

	ctx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	out, err := m.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      kind,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", path, err)
	}

	logger := m.logger.With("path", path, "type", string(kind), "version", out.Version)
	if kind == ssmtypes.ParameterTypeSecureString {
		logger.Info("parameter stored", "value_length", len(value))
	} else {
		logger.Info("parameter stored", "value", value)
	}
	return nil
}
