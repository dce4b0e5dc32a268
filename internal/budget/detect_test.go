package budget

import "testing"

func TestDetectCeilingsOverrides(t *testing.T) {
	c, err := DetectCeilings(t.TempDir(), 2048, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != CeilingsMiB(2048, 512) {
		t.Errorf("got %+v", c)
	}
}

func TestDetectCeilingsFromEnv(t *testing.T) {
	t.Setenv(LambdaMemoryEnv, "1024")

	c, err := DetectCeilings(t.TempDir(), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.MemoryBytes != 1024*MiB {
		t.Errorf("MemoryBytes = %d", c.MemoryBytes)
	}
	if c.DiskBytes <= 0 {
		t.Errorf("expected positive disk ceiling, got %d", c.DiskBytes)
	}
}

func TestDetectCeilingsErrors(t *testing.T) {
	t.Setenv(LambdaMemoryEnv, "")
	if _, err := DetectCeilings(t.TempDir(), 0, 1); err == nil {
		t.Error("expected error when memory is unknown")
	}

	t.Setenv(LambdaMemoryEnv, "lots")
	if _, err := DetectCeilings(t.TempDir(), 0, 1); err == nil {
		t.Error("expected error for non-numeric memory")
	}
}

func TestFreeDisk(t *testing.T) {
	free, err := FreeDisk(t.TempDir())
	if err != nil {
		t.Fatalf("FreeDisk: %v", err)
	}
	if free <= 0 {
		t.Errorf("expected free space, got %d", free)
	}
	if _, err := FreeDisk("/nonexistent/preview-dir"); err == nil {
		t.Error("expected error for a missing directory")
	}
}
