package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/object-previews/internal/config"
	"github.com/fpang/object-previews/internal/lambdaboot"
	"github.com/fpang/object-previews/internal/transcode"
)

var encodersCmd = &cobra.Command{
	Use:   "encoders",
	Short: "Show which video encoder this host's ffmpeg would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnvironment(cmd.Context(), nil)
		if err != nil {
			return err
		}
		encoder, err := transcode.NegotiateEncoder(cmd.Context(), os.Getenv(lambdaboot.EnvFFmpeg), cfg.Encoders)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Preferences: %v\nSelected:    %s\n", cfg.Encoders, encoder)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodersCmd)
}
