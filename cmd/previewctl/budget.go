package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/formats"
)

var (
	budgetKey       string
	budgetSize      int64
	budgetMemoryMiB int64
	budgetDiskMiB   int64
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Show the fetch strategy chosen for an object size",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := formats.Default().Classify(budgetKey)
		return describeBudget(cmd.OutOrStdout(), kind, budgetSize, budget.CeilingsMiB(budgetMemoryMiB, budgetDiskMiB))
	},
}

func init() {
	budgetCmd.Flags().StringVar(&budgetKey, "key", "", "Object key, used to classify the kind")
	budgetCmd.Flags().Int64Var(&budgetSize, "size", 0, "Object size in bytes")
	budgetCmd.Flags().Int64Var(&budgetMemoryMiB, "memory-mib", 1024, "Memory ceiling")
	budgetCmd.Flags().Int64Var(&budgetDiskMiB, "disk-mib", 512, "Disk ceiling")
	_ = budgetCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(budgetCmd)
}

// describeBudget writes the budget and the decision for size. Video on a
// store without URL signing is decided again from its header at run time.
func describeBudget(w io.Writer, kind formats.Kind, size int64, c budget.Ceilings) error {
	if kind == formats.KindUnknown {
		return fmt.Errorf("unsupported object kind")
	}
	b := budget.Effective(c)
	fmt.Fprintf(w, "Kind:          %s\n", kind)
	fmt.Fprintf(w, "Memory budget: %d bytes\n", b.Memory)
	fmt.Fprintf(w, "Disk budget:   %d bytes\n", b.Disk)

	strategy, err := budget.Decide(size, b)
	if err != nil {
		fmt.Fprintf(w, "Decision:      rejected (%v)\n", err)
		return nil
	}
	fmt.Fprintf(w, "Decision:      %s\n", strategy.Method())
	if kind == formats.KindVideo {
		fmt.Fprintf(w, "Stream length: %d bytes without URL signing\n", budget.StreamLength(size, b))
	}
	return nil
}
