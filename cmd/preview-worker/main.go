// Package main runs the preview functions as long-lived workers on NATS
// instead of Lambda. Every configured target becomes a queue subscription;
// the target's role decides which handler serves it.
//
// Examples:
//
//	preview-worker --nats-url nats://localhost:4222
//	preview-worker --target previews-video --target previews-filter
package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/config"
	"github.com/fpang/object-previews/internal/invoke"
	"github.com/fpang/object-previews/internal/lambdaboot"
	"github.com/fpang/object-previews/internal/logging"
	"github.com/fpang/object-previews/internal/preview"
	"github.com/fpang/object-previews/internal/scanner"
	"github.com/fpang/object-previews/internal/tagsync"
	"github.com/fpang/object-previews/internal/transcode"
)

var (
	natsURLFlag string
	targetsFlag []string
)

var rootCmd = &cobra.Command{
	Use:   "preview-worker",
	Short: "Serve preview targets from a NATS queue",
	Long: `preview-worker subscribes to one NATS queue per configured target and
handles invocations the same way the Lambda functions do. Several workers may
serve the same target; each invocation is delivered to one of them.`,
	RunE: runWorker,
}

func init() {
	rootCmd.Flags().StringVar(&natsURLFlag, "nats-url", logging.EnvOrDefault(lambdaboot.EnvNATSURL, nats.DefaultURL), "NATS server URL")
	rootCmd.Flags().StringSliceVar(&targetsFlag, "target", nil, "Targets to serve (default: every configured target)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	logging.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aws := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(aws.SSM)
	store := lambdaboot.InitStore(ctx, aws.Config)

	nc, err := invoke.Connect(natsURLFlag, "preview-worker")
	if err != nil {
		return err
	}
	defer nc.Drain()
	inv := invoke.NewNATS(nc, cfg.TargetMemory())
	table := cfg.FormatTable()

	names := make([]string, 0, len(cfg.Targets))
	for name := range cfg.Targets {
		if len(targetsFlag) == 0 || slices.Contains(targetsFlag, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	startup := lambdaboot.StartupLog("preview-worker", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		SSMParam("config", os.Getenv(config.EnvSSMParam)).
		Config("provider", store.Provider().String()).
		Config("formats", lambdaboot.FormatSummary(cfg.FormatTable())).
		Config("nats", natsURLFlag)

	var toolchain *transcode.Toolchain
	for _, name := range names {
		target := cfg.Targets[name]
		var handle invoke.Handler
		switch target.Role {
		case config.RoleGenerator:
			if toolchain == nil {
				toolchain = lambdaboot.InitToolchain(ctx, cfg)
			}
			// Workers are not Lambda functions, so the target's configured
			// memory stands in for the function memory size.
			limits := cfg.Limits(store.Provider().String())
			memoryMiB := limits.MaxMemoryMB
			if memoryMiB == 0 {
				memoryMiB = target.MemoryMB
			}
			ceilings, err := budget.DetectCeilings(os.TempDir(), memoryMiB, limits.MaxDiskMB)
			if err != nil {
				return err
			}
			g := preview.New(store, toolchain, table, preview.Settings{
				PreviewDuration: cfg.PreviewDuration,
				PreviewAudio:    cfg.PreviewAudio,
				URLExpiry:       time.Duration(cfg.URLExpirySeconds) * time.Second,
				Ceilings:        ceilings,
			}, lambdaboot.GeneratorOptions(aws.Config, cfg, store.Provider())...)
			handle = func(ctx context.Context, payload []byte) error {
				_, err := g.HandleEvent(ctx, payload)
				return err
			}
		case config.RoleTagSync:
			s := tagsync.New(store, inv, table, cfg.HighResourceTarget, cfg.LowResourceTarget)
			handle = func(ctx context.Context, payload []byte) error {
				_, err := s.Handle(ctx, payload)
				return err
			}
		case config.RoleScanner:
			s := scanner.New(store, inv, table, cfg.HighResourceTarget, cfg.LowResourceTarget)
			handle = func(ctx context.Context, payload []byte) error {
				_, err := s.Handle(ctx, payload)
				return err
			}
		default:
			log.Warn().Str("target", name).Str("role", target.Role).Msg("Skipping target with unknown role")
			continue
		}

		timeout := time.Duration(target.TimeoutSeconds) * time.Second
		if _, err := invoke.Serve(ctx, nc, name, timeout, handle); err != nil {
			return err
		}
		startup.Target(target.Role+":"+name, strconv.FormatInt(target.MemoryMB, 10)+"MiB")
	}
	if toolchain != nil {
		startup.Config("encoder", toolchain.Encoder())
	}
	startup.Log()

	<-ctx.Done()
	log.Info().Msg("Shutting down, draining subscriptions")
	return nil
}
