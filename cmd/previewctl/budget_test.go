package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fpang/object-previews/internal/budget"
	"github.com/fpang/object-previews/internal/formats"
)

func TestDescribeBudget(t *testing.T) {
	ceilings := budget.CeilingsMiB(1024, 512)

	tests := []struct {
		name string
		kind formats.Kind
		size int64
		want []string
	}{
		{"small image streams", formats.KindImage, 10 * budget.MiB, []string{"Decision:      pipe"}},
		{"large document rejected", formats.KindDocument, 400 * budget.MiB, []string{"rejected"}},
		{"video shows stream length", formats.KindVideo, 100 * budget.MiB, []string{"pipe", "Stream length: 104857600 bytes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := describeBudget(&buf, tt.kind, tt.size, ceilings); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestDescribeBudgetUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	if err := describeBudget(&buf, formats.KindUnknown, 1, budget.CeilingsMiB(1024, 512)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
