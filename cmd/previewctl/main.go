// Package main provides previewctl, an operator CLI for the preview
// pipeline: start a backfill, generate one preview locally, and inspect the
// strategy and encoder decisions a function would make.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/fpang/object-previews/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "previewctl",
	Short: "Operate the object preview pipeline",
	Long: `previewctl drives the object preview pipeline from a workstation.

Examples:
  previewctl backfill --bucket media --path videos/
  previewctl backfill --bucket media --path "" --local
  previewctl generate --bucket media --key clips/a.mov --memory-mib 3008
  previewctl budget --key clips/a.mov --size 2147483648 --memory-mib 1024
  previewctl encoders`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
