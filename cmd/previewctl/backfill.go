package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/object-previews/internal/events"
	"github.com/fpang/object-previews/internal/lambdaboot"
	"github.com/fpang/object-previews/internal/scanner"
)

var (
	backfillBucket string
	backfillPath   string
	backfillLocal  bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Queue previews for every object under a path that has none",
	Long: `backfill starts the checker target with a fresh checkpoint. With --local the
scan runs in this process instead; previews are still dispatched to the
configured generator targets.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillBucket, "bucket", "", "Bucket to scan")
	backfillCmd.Flags().StringVar(&backfillPath, "path", "", "Key prefix to scan (empty for the whole bucket)")
	backfillCmd.Flags().BoolVar(&backfillLocal, "local", false, "Scan in this process instead of invoking the checker")
	_ = backfillCmd.MarkFlagRequired("bucket")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cp := events.Checkpoint{Bucket: backfillBucket, Path: backfillPath}

	aws := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(aws.SSM)
	inv := lambdaboot.InitInvoker(aws.Config, cfg, "previewctl")

	if !backfillLocal {
		if err := inv.InvokeAsync(ctx, cfg.CheckerTarget, cp); err != nil {
			return fmt.Errorf("failed to start %s: %w", cfg.CheckerTarget, err)
		}
		log.Info().
			Str("target", cfg.CheckerTarget).
			Str("bucket", cp.Bucket).
			Str("path", cp.Path).
			Msg("Backfill started")
		return nil
	}

	store := lambdaboot.InitStore(ctx, aws.Config)
	s := scanner.New(store, inv, cfg.FormatTable(), cfg.HighResourceTarget, cfg.LowResourceTarget)
	summary, err := s.Scan(ctx, cp)
	if err != nil {
		return err
	}
	return printJSON(cmd, summary)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
