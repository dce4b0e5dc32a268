// Package config loads the preview pipeline configuration.
//
// Sources, first match wins: the SSM parameter named by PREVIEW_CONFIG_SSM_PARAM,
// the file named by PREVIEW_CONFIG_FILE, then the embedded defaults. Documents
// are overlaid on the defaults, so they only need the fields they change.
// A few environment variables override individual fields afterwards.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fpang/object-previews/internal/formats"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Environment variables read by FromEnvironment and ApplyEnv.
const (
	EnvSSMParam     = "PREVIEW_CONFIG_SSM_PARAM"
	EnvFile         = "PREVIEW_CONFIG_FILE"
	EnvHighTarget   = "PREVIEW_HIGH_RESOURCE_TARGET"
	EnvLowTarget    = "PREVIEW_LOW_RESOURCE_TARGET"
	EnvCheckTarget  = "PREVIEW_CHECKER_TARGET"
	EnvDuration     = "PREVIEW_DURATION"
	EnvAudio        = "PREVIEW_AUDIO"
	EnvEventBusName = "PREVIEW_EVENT_BUS_NAME"
)

// Target roles served by the worker.
const (
	RoleGenerator = "generator"
	RoleTagSync   = "tagsync"
	RoleScanner   = "scanner"
)

type ProviderLimits struct {
	MaxMemoryMB int64 `yaml:"max_memory_mb"`
	MaxDiskMB   int64 `yaml:"max_disk_mb"`
}

type Target struct {
	MemoryMB       int64  `yaml:"memory_mb"`
	TimeoutSeconds int64  `yaml:"timeout_seconds"`
	Role           string `yaml:"role"`
}

type Formats struct {
	Video    []string `yaml:"video"`
	Image    []string `yaml:"image"`
	Document []string `yaml:"document"`
}

type Config struct {
	PreviewDuration       int  `yaml:"preview_duration"`
	PreviewAudio          bool `yaml:"preview_audio"`
	ThumbnailMaxDimension int  `yaml:"thumbnail_max_dimension"`
	FrameMaxDimension     int  `yaml:"frame_max_dimension"`
	URLExpirySeconds      int  `yaml:"url_expiry_seconds"`

	HighResourceTarget string `yaml:"high_resource_target"`
	LowResourceTarget  string `yaml:"low_resource_target"`
	CheckerTarget      string `yaml:"checker_target"`

	Encoders  []string                  `yaml:"encoders"`
	Providers map[string]ProviderLimits `yaml:"providers"`
	Targets   map[string]Target         `yaml:"targets"`
	Formats   Formats                   `yaml:"formats"`

	EventBus string `yaml:"event_bus"`
}

// Default returns the embedded configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded defaults.yaml is invalid: %v", err))
	}
	return &cfg
}

// Parse overlays a YAML (or JSON) document on the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse preview config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a configuration file. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preview config: %w", err)
	}
	return Parse(data)
}

// ParameterGetter is the subset of the SSM client used to load configuration.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSSM reads the configuration document from an SSM parameter.
func LoadSSM(ctx context.Context, client ParameterGetter, name string) (*Config, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("read SSM parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, fmt.Errorf("SSM parameter %s has no value", name)
	}
	return Parse([]byte(*out.Parameter.Value))
}

// FromEnvironment resolves the configuration source from the environment,
// applies overrides and validates the result. ssmClient may be nil when no
// SSM parameter is configured.
func FromEnvironment(ctx context.Context, ssmClient ParameterGetter) (*Config, error) {
	var (
		cfg    *Config
		err    error
		source = "defaults"
	)
	switch {
	case os.Getenv(EnvSSMParam) != "":
		if ssmClient == nil {
			return nil, fmt.Errorf("%s set but no SSM client available", EnvSSMParam)
		}
		source = "ssm:" + os.Getenv(EnvSSMParam)
		cfg, err = LoadSSM(ctx, ssmClient, os.Getenv(EnvSSMParam))
	case os.Getenv(EnvFile) != "":
		source = "file:" + os.Getenv(EnvFile)
		cfg, err = Load(os.Getenv(EnvFile))
	default:
		cfg = Default()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("source", source).Msg("Preview config loaded")
	return cfg, nil
}

// ApplyEnv applies per-field environment overrides.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvHighTarget); v != "" {
		c.HighResourceTarget = v
	}
	if v := os.Getenv(EnvLowTarget); v != "" {
		c.LowResourceTarget = v
	}
	if v := os.Getenv(EnvCheckTarget); v != "" {
		c.CheckerTarget = v
	}
	if v := os.Getenv(EnvEventBusName); v != "" {
		c.EventBus = v
	}
	if v := os.Getenv(EnvDuration); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDuration, v, err)
		}
		c.PreviewDuration = d
	}
	if v := os.Getenv(EnvAudio); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvAudio, v, err)
		}
		c.PreviewAudio = b
	}
	return nil
}

// Validate checks fields that would otherwise fail later in an invocation.
func (c *Config) Validate() error {
	var errs []error
	if c.HighResourceTarget == "" || c.LowResourceTarget == "" {
		errs = append(errs, errors.New("high_resource_target and low_resource_target are required"))
	}
	if c.ThumbnailMaxDimension <= 0 || c.FrameMaxDimension <= 0 {
		errs = append(errs, errors.New("thumbnail dimensions must be positive"))
	}
	if c.URLExpirySeconds <= 0 {
		errs = append(errs, errors.New("url_expiry_seconds must be positive"))
	}
	if len(c.Formats.Video)+len(c.Formats.Image)+len(c.Formats.Document) == 0 {
		errs = append(errs, errors.New("formats must list at least one extension"))
	}
	for name, t := range c.Targets {
		switch t.Role {
		case RoleGenerator, RoleTagSync, RoleScanner:
		default:
			errs = append(errs, fmt.Errorf("target %s: unknown role %q", name, t.Role))
		}
		if t.TimeoutSeconds <= 0 {
			errs = append(errs, fmt.Errorf("target %s: timeout_seconds must be positive", name))
		}
		if t.MemoryMB <= 0 {
			errs = append(errs, fmt.Errorf("target %s: memory_mb must be positive", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid preview config: %w", errors.Join(errs...))
	}
	return nil
}

// FormatTable builds the extension table.
func (c *Config) FormatTable() *formats.Table {
	return formats.NewTable(c.Formats.Video, c.Formats.Image, c.Formats.Document)
}

// Limits returns the resource overrides for a storage provider.
func (c *Config) Limits(provider string) ProviderLimits {
	return c.Providers[provider]
}

// TargetMemory maps every configured target to its memory size in MiB.
func (c *Config) TargetMemory() map[string]int64 {
	out := make(map[string]int64, len(c.Targets))
	for name, t := range c.Targets {
		out[name] = t.MemoryMB
	}
	return out
}
