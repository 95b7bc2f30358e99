package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig for every failure it reports.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

const (
	// FOO_SSM_PARAM=/env/surfcast/foo fills FOO from Parameter Store.
	ssmParamSuffix = "_SSM_PARAM"
	localEnv       = "local"
	resolveTimeout = 30 * time.Second
)

// Set with -ldflags "-X surfcast/internal/config.version=..." and likewise
// for commit and buildTime.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func NewBuildInfo() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}

// loaderDeps stands in for the process environment in tests.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func osDeps() loaderDeps {
	return loaderDeps{lookupEnv: os.LookupEnv, setEnv: os.Setenv, environ: os.Environ}
}

// LoadConfig pins the process to UTC, reads an optional .env file, fills
// *_SSM_PARAM targets through provider (skipped when APP_ENV=local), then
// decodes and validates the environment. provider may be nil when nothing
// needs resolving.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, osDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// A missing .env is normal outside development. Existing variables win.
	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{Type: ErrParsing, Message: "failed to process environment configuration", Err: err}
	}
	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	return &cfg, nil
}

// ssmBinding ties a parameter path to the variable it fills.
type ssmBinding struct {
	envVar string
	path   string
}

// pendingBindings lists *_SSM_PARAM pointers whose target variable is still
// unset. A variable already in the environment (or .env) is never replaced.
func pendingBindings(deps loaderDeps) []ssmBinding {
	var out []ssmBinding
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || path == "" {
			continue
		}
		target, isPointer := strings.CutSuffix(key, ssmParamSuffix)
		if !isPointer {
			continue
		}
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		out = append(out, ssmBinding{envVar: target, path: path})
	}
	return out
}

func bindingVars(bindings []ssmBinding) string {
	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.envVar
	}
	return strings.Join(names, ", ")
}

// resolveSSMParams fetches every pending binding in one provider call and
// exports the values so envconfig sees them.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	bindings := pendingBindings(deps)
	if len(bindings) == 0 {
		return nil
	}
	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "no secret provider configured to resolve " + bindingVars(bindings),
		}
	}

	paths := make([]string, len(bindings))
	for i, b := range bindings {
		paths[i] = b.path
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	values, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []ssmBinding
	for _, b := range bindings {
		value, ok := values[b.path]
		if !ok {
			missing = append(missing, b)
			continue
		}
		if err := deps.setEnv(b.envVar, value); err != nil {
			return &ConfigError{Type: ErrSSMResolution, Message: "failed to export " + b.envVar, Err: err}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Type: ErrSSMResolution, Message: "SSM parameters not found for: " + bindingVars(missing)}
	}
	return nil
}
