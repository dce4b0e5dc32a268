// Package lambdaboot holds the cold-start composition shared by every entry
// point: AWS clients, configuration, the storage backend, the invoker, the
// transcoder toolchain and the startup log. Helpers fatal on error, since a
// function that cannot initialize must not accept events.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/config"
	"github.com/fpang/object-previews/internal/formats"
	"github.com/fpang/object-previews/internal/invoke"
	"github.com/fpang/object-previews/internal/logging"
	"github.com/fpang/object-previews/internal/notify"
	"github.com/fpang/object-previews/internal/objstore"
	"github.com/fpang/object-previews/internal/preview"
	"github.com/fpang/object-previews/internal/transcode"
)

// Environment variables read at cold start.
const (
	EnvStorageProvider   = "STORAGE_PROVIDER"
	EnvInvoker           = "PREVIEW_INVOKER"
	EnvNATSURL           = "NATS_URL"
	EnvGCSServiceAccount = "GCS_SERVICE_ACCOUNT_EMAIL"
	EnvGCSPrivateKey     = "GCS_PRIVATE_KEY"
	EnvFFmpeg            = "FFMPEG_PATH"
	EnvFFprobe           = "FFPROBE_PATH"
	EnvConvert           = "CONVERT_PATH"
	EnvNotify            = "PREVIEW_NOTIFY"
)

// Invoker transports.
const (
	InvokerLambda = "lambda"
	InvokerNATS   = "nats"
)

// AWSClients holds the AWS config and the clients every function shares.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// LoadConfig resolves the preview configuration. ssmClient may be nil.
func LoadConfig(ssmClient *ssm.Client) *config.Config {
	start := time.Now()
	var getter config.ParameterGetter
	if ssmClient != nil {
		getter = ssmClient
	}
	cfg, err := config.FromEnvironment(context.Background(), getter)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid preview configuration")
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("Preview configuration loaded")
	return cfg
}

// ParseProvider maps STORAGE_PROVIDER to a provider, defaulting to S3.
func ParseProvider(raw string) (objstore.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "s3", "aws":
		return objstore.ProviderS3, nil
	case "gcs", "gcp":
		return objstore.ProviderGCS, nil
	case "memory":
		return objstore.ProviderMemory, nil
	default:
		return "", fmt.Errorf("unknown storage provider %q", raw)
	}
}

// InitStore builds the storage backend named by STORAGE_PROVIDER. This is
// the only place that branches on provider.
func InitStore(ctx context.Context, awsCfg aws.Config) objstore.Store {
	provider, err := ParseProvider(os.Getenv(EnvStorageProvider))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid storage provider")
	}

	switch provider {
	case objstore.ProviderGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create GCS client")
		}
		account, key := os.Getenv(EnvGCSServiceAccount), os.Getenv(EnvGCSPrivateKey)
		if account != "" && key != "" {
			log.Debug().Str("serviceAccount", account).Msg("GCS URL signing enabled")
			return objstore.NewSignedGCS(client, account, key)
		}
		return objstore.NewGCS(client)
	case objstore.ProviderMemory:
		log.Warn().Msg("Using in-memory storage, nothing will persist")
		return objstore.NewMemory()
	default:
		client := s3.NewFromConfig(awsCfg)
		return objstore.NewS3(client, s3.NewPresignClient(client))
	}
}

// InitInvoker builds the invoker named by PREVIEW_INVOKER (lambda by default).
func InitInvoker(awsCfg aws.Config, cfg *config.Config, name string) invoke.Invoker {
	switch os.Getenv(EnvInvoker) {
	case InvokerNATS:
		url := logging.EnvOrDefault(EnvNATSURL, "nats://127.0.0.1:4222")
		nc, err := invoke.Connect(url, name)
		if err != nil {
			log.Fatal().Err(err).Str("url", url).Msg("Failed to connect to NATS")
		}
		return invoke.NewNATS(nc, cfg.TargetMemory())
	case "", InvokerLambda:
		return invoke.NewLambda(lambdasvc.NewFromConfig(awsCfg))
	default:
		log.Fatal().Str("invoker", os.Getenv(EnvInvoker)).Msg("Unknown invoker")
		return nil
	}
}

// InitNotifier returns an EventBridge notifier when PREVIEW_NOTIFY is "true".
func InitNotifier(awsCfg aws.Config, cfg *config.Config) notify.Notifier {
	if os.Getenv(EnvNotify) != "true" {
		return notify.Nop{}
	}
	return notify.NewEventBridge(eventbridge.NewFromConfig(awsCfg), cfg.EventBus)
}

// GeneratorOptions returns the Generator options shared by every entry point
// that generates previews: the notifier, and a per-run disk measurement
// unless the provider pins the disk ceiling.
func GeneratorOptions(awsCfg aws.Config, cfg *config.Config, provider objstore.Provider) []preview.Option {
	opts := []preview.Option{preview.WithNotifier(InitNotifier(awsCfg, cfg))}
	if cfg.Limits(provider.String()).MaxDiskMB == 0 {
		opts = append(opts, preview.WithDiskMeasure(budget.FreeDisk))
	}
	return opts
}

// Ceilings detects the invocation's memory and disk ceilings, applying the
// configured overrides for provider.
func Ceilings(cfg *config.Config, provider objstore.Provider) budget.Ceilings {
	limits := cfg.Limits(provider.String())
	c, err := budget.DetectCeilings(os.TempDir(), limits.MaxMemoryMB, limits.MaxDiskMB)
	if err != nil {
		log.Fatal().Err(err).Str("provider", provider.String()).Msg("Failed to detect resource ceilings")
	}
	log.Debug().
		Int64("memoryBytes", c.MemoryBytes).
		Int64("diskBytes", c.DiskBytes).
		Msg("Resource ceilings detected")
	return c
}

// InitToolchain negotiates the video encoder once and builds the transcoder.
// Without a usable encoder the baseline is kept and video runs fail later.
func InitToolchain(ctx context.Context, cfg *config.Config) *transcode.Toolchain {
	ffmpeg := os.Getenv(EnvFFmpeg)
	encoder, err := transcode.NegotiateEncoder(ctx, ffmpeg, cfg.Encoders)
	if err != nil {
		log.Warn().Err(err).Msg("Encoder negotiation failed, keeping the baseline encoder")
	}
	return transcode.NewToolchain(transcode.Options{
		FFmpeg:                ffmpeg,
		FFprobe:               os.Getenv(EnvFFprobe),
		Convert:               os.Getenv(EnvConvert),
		Encoder:               encoder,
		ThumbnailMaxDimension: cfg.ThumbnailMaxDimension,
		FrameMaxDimension:     cfg.FrameMaxDimension,
	})
}

// FormatSummary lists the extensions handled per kind for the startup log,
// e.g. "video=.mp4,.mov image=.png document=.pdf".
func FormatSummary(table *formats.Table) string {
	parts := make([]string, 0, 3)
	for _, kind := range []formats.Kind{formats.KindVideo, formats.KindImage, formats.KindDocument} {
		parts = append(parts, string(kind)+"="+strings.Join(table.Extensions(kind), ","))
	}
	return strings.Join(parts, " ")
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
