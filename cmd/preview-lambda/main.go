// Package main provides the Lambda entry point for preview generation.
//
// It is deployed twice: as the high-resource target for video and as the
// low-resource target for images and documents. Both receive object-created
// notifications forwarded by preview-filter-lambda or preview-checker-lambda
// and write a thumbnail (and, for video, a clip) under previews/.
//
// Container: includes ffmpeg, ffprobe and ImageMagick.
package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/object-previews/internal/config"
	"github.com/fpang/object-previews/internal/lambdaboot"
	"github.com/fpang/object-previews/internal/logging"
	"github.com/fpang/object-previews/internal/preview"
)

var (
	generator *preview.Generator
	coldStart = true
)

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(aws.SSM)
	store := lambdaboot.InitStore(context.Background(), aws.Config)
	ceilings := lambdaboot.Ceilings(cfg, store.Provider())
	tx := lambdaboot.InitToolchain(context.Background(), cfg)

	generator = preview.New(store, tx, cfg.FormatTable(), preview.Settings{
		PreviewDuration: cfg.PreviewDuration,
		PreviewAudio:    cfg.PreviewAudio,
		URLExpiry:       time.Duration(cfg.URLExpirySeconds) * time.Second,
		Ceilings:        ceilings,
	}, lambdaboot.GeneratorOptions(aws.Config, cfg, store.Provider())...)

	lambdaboot.StartupLog("preview-lambda", initStart).
		CommitHash(commitHash).
		BuildTime(buildTime).
		SSMParam("config", os.Getenv(config.EnvSSMParam)).
		Config("provider", store.Provider().String()).
		Config("formats", lambdaboot.FormatSummary(cfg.FormatTable())).
		Config("encoder", tx.Encoder()).
		Config("previewDuration", strconv.Itoa(cfg.PreviewDuration)).
		Config("memoryBytes", strconv.FormatInt(ceilings.MemoryBytes, 10)).
		Config("diskBytes", strconv.FormatInt(ceilings.DiskBytes, 10)).
		Feature("previewAudio", cfg.PreviewAudio).
		Feature("notifications", os.Getenv(lambdaboot.EnvNotify) == "true").
		Log()
}

func handler(ctx context.Context, raw json.RawMessage) ([]preview.Result, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "preview-lambda").Msg("Cold start, first invocation")
	}
	return generator.HandleEvent(ctx, raw)
}

func main() {
	lambda.Start(handler)
}
