package budget

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// LambdaMemoryEnv carries the function memory size in MiB on AWS Lambda.
const LambdaMemoryEnv = "AWS_LAMBDA_FUNCTION_MEMORY_SIZE"

// DetectCeilings reads the memory ceiling from the environment and the disk
// ceiling from free space on the filesystem holding tmpDir.
// A non-zero override (in MiB) replaces the detected value.
func DetectCeilings(tmpDir string, memoryOverrideMiB, diskOverrideMiB int64) (Ceilings, error) {
	var c Ceilings

	if memoryOverrideMiB > 0 {
		c.MemoryBytes = memoryOverrideMiB * MiB
	} else {
		raw := os.Getenv(LambdaMemoryEnv)
		if raw == "" {
			return c, fmt.Errorf("%s not set and no memory override configured", LambdaMemoryEnv)
		}
		mem, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, fmt.Errorf("invalid %s %q: %w", LambdaMemoryEnv, raw, err)
		}
		c.MemoryBytes = mem * MiB
	}

	if diskOverrideMiB > 0 {
		c.DiskBytes = diskOverrideMiB * MiB
		return c, nil
	}

	free, err := FreeDisk(tmpDir)
	if err != nil {
		return c, err
	}
	c.DiskBytes = free
	return c, nil
}

// FreeDisk returns the bytes available to unprivileged writers on the
// filesystem holding dir.
func FreeDisk(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
