// Package main provides the Lambda entry point subscribed to bucket
// notifications. Created objects are routed to the preview target that fits
// their kind; removed objects have their preview tags cleared.
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
	"github.com/fpang/object-previews/internal/tagsync"
)

var (
	synchronizer *tagsync.Synchronizer
	coldStart    = true
)

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(aws.SSM)
	store := lambdaboot.InitStore(context.Background(), aws.Config)
	inv := lambdaboot.InitInvoker(aws.Config, cfg, "preview-filter")

	synchronizer = tagsync.New(store, inv, cfg.FormatTable(), cfg.HighResourceTarget, cfg.LowResourceTarget)

	lambdaboot.StartupLog("preview-filter-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		SSMParam("config", os.Getenv(config.EnvSSMParam)).
		Target("high", cfg.HighResourceTarget).
		Target("low", cfg.LowResourceTarget).
		Config("provider", store.Provider().String()).
		Config("formats", lambdaboot.FormatSummary(cfg.FormatTable())).
		Log()
}

func handler(ctx context.Context, raw json.RawMessage) ([]tagsync.Outcome, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "preview-filter-lambda").Msg("Cold start, first invocation")
	}
	return synchronizer.Handle(ctx, raw)
}

func main() {
	lambda.Start(handler)
}
