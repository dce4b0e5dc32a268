// Package budget decides how a source object is fetched given the memory and
// disk available to one invocation.
//
// All functions here are pure. Ceilings come from DetectCeilings or from
// provider overrides in configuration.
package budget

import (
	"bytes"
	"fmt"
	"math"

	"github.com/fpang/object-previews/internal/failure"
)

// MiB is one mebibyte.
const MiB int64 = 1 << 20

const (
	// Overhead is reserved from both ceilings for the runtime and tooling.
	Overhead = 150 * MiB
	// HeaderProbeBytes is how much of a video is fetched to look for its index.
	HeaderProbeBytes = 20 * MiB
	// IndexSearchLimit is the furthest offset at which the index counts as "near start".
	IndexSearchLimit = 200

	MinPreviewSeconds = 1
	MaxPreviewSeconds = 60
)

var indexAtom = []byte("moov")

// Strategy is how the object content reaches the transcoder.
type Strategy string

const (
	// Stream keeps content in memory (or reads it remotely) without touching disk.
	Stream Strategy = "stream"
	// Disk downloads the full object to temporary storage.
	Disk Strategy = "disk"
)

// Method is the name recorded in responses and error records.
func (s Strategy) Method() string {
	if s == Disk {
		return "local disk"
	}
	return "pipe"
}

// Ceilings are the raw resource limits of an invocation.
type Ceilings struct {
	MemoryBytes int64
	DiskBytes   int64
}

// CeilingsMiB builds Ceilings from mebibyte values.
func CeilingsMiB(memoryMiB, diskMiB int64) Ceilings {
	return Ceilings{MemoryBytes: memoryMiB * MiB, DiskBytes: diskMiB * MiB}
}

// Budget is what an invocation may spend after halving memory and
// subtracting Overhead. Values are never negative.
type Budget struct {
	Memory int64
	Disk   int64
}

// Effective derives the spendable budget from ceilings.
func Effective(c Ceilings) Budget {
	return Budget{
		Memory: max(c.MemoryBytes/2-Overhead, 0),
		Disk:   max(c.DiskBytes-Overhead, 0),
	}
}

// Decide picks a strategy for an object of size bytes.
func Decide(size int64, b Budget) (Strategy, error) {
	switch {
	case size <= b.Memory:
		return Stream, nil
	case size <= b.Disk:
		return Disk, nil
	default:
		return "", fmt.Errorf("%w: %d bytes, memory budget %d, disk budget %d; consider increasing memory or disk limits",
			failure.ErrResourceExceeded, size, b.Memory, b.Disk)
	}
}

// DecideVideo picks a strategy for a video whose first bytes were inspected.
// With the index near the start, a prefix of the file can be transcoded from
// memory even when the whole file would not fit.
func DecideVideo(size int64, b Budget, indexNearStart bool) (Strategy, error) {
	switch {
	case indexNearStart && b.Memory > 0:
		return Stream, nil
	case size <= b.Disk:
		return Disk, nil
	default:
		return "", fmt.Errorf("%w: %d bytes exceeds disk budget %d; move the moov atom to the beginning of the file",
			failure.ErrResourceExceeded, size, b.Disk)
	}
}

// StreamLength is how many leading bytes a Stream fetch reads.
func StreamLength(size int64, b Budget) int64 {
	return min(size, b.Memory)
}

// HasIndexNearStart reports whether the container index atom starts within
// the first IndexSearchLimit bytes of header (offset 0 excluded).
func HasIndexNearStart(header []byte) bool {
	off := bytes.Index(header, indexAtom)
	return off > 0 && off <= IndexSearchLimit
}

// ClampPreviewDuration bounds a configured preview length to [1, 60] seconds.
func ClampPreviewDuration(seconds int) int {
	return min(max(seconds, MinPreviewSeconds), MaxPreviewSeconds)
}

// ClipDuration is the achievable clip length in seconds when only the first
// memory bytes of a size-byte video of fullDuration seconds are available.
// The result never exceeds the clamped configured duration and is at least 1.
func ClipDuration(size, memory int64, fullDuration float64, configured int) int {
	ratio := 1.0
	if size > 0 && memory < size {
		ratio = float64(max(memory, 0)) / float64(size)
	}
	achievable := int(math.Floor(ratio * max(fullDuration, 0)))
	return max(min(achievable, ClampPreviewDuration(configured)), MinPreviewSeconds)
}
