package transcode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultEncoders is the encoder preference order. The last entry is the
// baseline used when nothing better is available.
var DefaultEncoders = []string{"libx264", "libopenh264", "libsvtav1", "libvpx-vp9"}

// NegotiateEncoder asks ffmpeg which encoders it was built with and returns
// the first entry of preferences it supports. Call once per process.
func NegotiateEncoder(ctx context.Context, ffmpegPath string, preferences []string) (string, error) {
	if len(preferences) == 0 {
		preferences = DefaultEncoders
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	output, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return "", fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	return pickEncoder(parseEncoders(output), preferences)
}

func pickEncoder(available map[string]bool, preferences []string) (string, error) {
	for _, enc := range preferences {
		if available[enc] {
			return enc, nil
		}
	}
	return "", fmt.Errorf("none of the preferred encoders %v is available", preferences)
}

// parseEncoders reads `ffmpeg -encoders` output and returns the video
// encoder names. Encoder lines start with a six character capability field
// whose first letter is V for video.
func parseEncoders(output []byte) map[string]bool {
	found := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || len(fields[0]) != 6 || fields[0][0] != 'V' {
			continue
		}
		if fields[1] == "=" {
			continue
		}
		found[fields[1]] = true
	}
	return found
}
