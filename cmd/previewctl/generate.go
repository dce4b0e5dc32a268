package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/events"
	"github.com/fpang/object-previews/internal/lambdaboot"
	"github.com/fpang/object-previews/internal/preview"
)

var (
	generateBucket    string
	generateKey       string
	generateMemoryMiB int64
	generateDiskMiB   int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the preview of one object in this process",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateBucket, "bucket", "", "Bucket holding the object")
	generateCmd.Flags().StringVar(&generateKey, "key", "", "Object key")
	generateCmd.Flags().Int64Var(&generateMemoryMiB, "memory-mib", 1024, "Memory ceiling to budget for")
	generateCmd.Flags().Int64Var(&generateDiskMiB, "disk-mib", 0, "Disk ceiling to budget for (0 = free space of the temp dir)")
	_ = generateCmd.MarkFlagRequired("bucket")
	_ = generateCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	aws := lambdaboot.InitAWS()
	cfg := lambdaboot.LoadConfig(aws.SSM)
	store := lambdaboot.InitStore(ctx, aws.Config)
	ceilings, err := budget.DetectCeilings(os.TempDir(), generateMemoryMiB, generateDiskMiB)
	if err != nil {
		return err
	}

	var opts []preview.Option
	if generateDiskMiB == 0 {
		opts = append(opts, preview.WithDiskMeasure(budget.FreeDisk))
	}
	g := preview.New(store, lambdaboot.InitToolchain(ctx, cfg), cfg.FormatTable(), preview.Settings{
		PreviewDuration: cfg.PreviewDuration,
		PreviewAudio:    cfg.PreviewAudio,
		URLExpiry:       time.Duration(cfg.URLExpirySeconds) * time.Second,
		Ceilings:        ceilings,
	}, opts...)
	res, err := g.Generate(ctx, events.ObjectEvent{
		Action:    events.ActionCreated,
		Container: generateBucket,
		Key:       generateKey,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}
