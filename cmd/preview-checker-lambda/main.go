// Package main provides the Lambda entry point for the backfill scan. Each
// invocation walks one chunk of a bucket path, dispatches objects that have
// no preview and re-invokes itself with a checkpoint when time runs low.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/object-previews/internal/config"
	"github.com/fpang/object-previews/internal/lambdaboot"
	"github.com/fpang/object-previews/internal/logging"
	"github.com/fpang/object-previews/internal/scanner"
)

var (
	scan      *scanner.Scanner
	coldStart = true
)

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(aws.SSM)
	store := lambdaboot.InitStore(context.Background(), aws.Config)
	inv := lambdaboot.InitInvoker(aws.Config, cfg, "preview-checker")

	scan = scanner.New(store, inv, cfg.FormatTable(), cfg.HighResourceTarget, cfg.LowResourceTarget)

	lambdaboot.StartupLog("preview-checker-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		SSMParam("config", os.Getenv(config.EnvSSMParam)).
		Target("high", cfg.HighResourceTarget).
		Target("low", cfg.LowResourceTarget).
		Config("provider", store.Provider().String()).
		Config("formats", lambdaboot.FormatSummary(cfg.FormatTable())).
		Log()
}

func handler(ctx context.Context, raw json.RawMessage) (*scanner.Summary, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "preview-checker-lambda").Msg("Cold start, first invocation")
	}
	return scan.Handle(ctx, raw)
}

func main() {
	lambda.Start(handler)
}
