package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/fpang/object-previews/internal/failure"
	"github.com/rs/zerolog/log"
)

const maxOutputTail = 2048

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// run executes a tool, feeding stdin when non-nil, and returns its stdout.
// Failures are wrapped as ErrTranscodeFailed with the tail of stderr.
func run(ctx context.Context, tool, bin string, stdin io.Reader, args ...string) ([]byte, error) {
	log.Debug().Str("tool", tool).Strs("args", args).Msg("Running tool")

	var stdout, stderr bytes.Buffer
	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		log.Warn().
			Err(err).
			Str("tool", tool).
			Str("stderr", tail(stderr.Bytes())).
			Dur("duration", elapsed).
			Msg("Tool failed")
		return stdout.Bytes(), fmt.Errorf("%w: %s: %v: %s", failure.ErrTranscodeFailed, tool, err, tail(stderr.Bytes()))
	}
	if stderr.Len() > 0 {
		log.Debug().Str("tool", tool).Str("stderr", tail(stderr.Bytes())).Msg("Tool wrote diagnostics")
	}
	log.Debug().Str("tool", tool).Dur("duration", elapsed).Msg("Tool finished")
	return stdout.Bytes(), nil
}

func tail(b []byte) string {
	if len(b) > maxOutputTail {
		b = b[len(b)-maxOutputTail:]
	}
	return string(bytes.TrimSpace(b))
}

// Verify checks that a tool produced a non-empty output file.
func Verify(path, tool string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: couldn't generate preview with file '%s', something went wrong with %s",
			failure.ErrTranscodeFailed, path, tool)
	}
	return nil
}
