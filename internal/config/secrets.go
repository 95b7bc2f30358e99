package config

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SecretProvider resolves parameter paths to their plaintext values in bulk.
// Paths the backend does not know are reported as an error.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// GetParameters accepts at most this many names per call.
const ssmBatchLimit = 10

type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider reads SecureString parameters from Parameter Store. The
// parameters live in the same region as the binary that reads them.
type SSMProvider struct {
	region string
	client ssmClient // built on first use when nil
}

func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{region: region}
}

func newSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{region: region, client: client}
}

func (p *SSMProvider) connect(ctx context.Context) error {
	if p.client != nil {
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("config: aws setup for parameter store in %s: %w", p.region, err)
	}
	p.client = ssm.NewFromConfig(awsCfg)
	return nil
}

// GetParametersBatch decrypts keys in chunks of ssmBatchLimit. Cancellation
// is honoured between chunks. Unknown names from every chunk are collected
// and returned together.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}
	if err := p.connect(ctx); err != nil {
		return nil, err
	}

	var unknown []string
	sent := 0
	for chunk := range slices.Chunk(keys, ssmBatchLimit) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("config: parameter lookup interrupted after %d of %d: %w", sent, len(keys), err)
		}
		out, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          chunk,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("config: GetParameters for %d names (offset %d): %w", len(chunk), sent, err)
		}
		for _, param := range out.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			values[*param.Name] = *param.Value
		}
		unknown = append(unknown, out.InvalidParameters...)
		sent += len(chunk)
	}

	if len(unknown) > 0 {
		return nil, fmt.Errorf("config: unknown parameters %v", unknown)
	}
	return values, nil
}

const redacted = "***REDACTED***"

// SecretString holds a credential. Its value never reaches logs, fmt output
// or JSON; call Unmask at the point of use.
type SecretString string

func (s SecretString) String() string { return redacted }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (s SecretString) LogValue() slog.Value { return slog.StringValue(redacted) }

// Unmask returns the plaintext.
func (s SecretString) Unmask() string { return string(s) }
