package transcode

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fpang/object-previews/internal/failure"
)

const (
	clipFilter       = "fps=24,scale=1280x720"
	clipVideoBitrate = "1400k"
	clipAudioBitrate = "96k"
)

// Clip implements Transcoder.
func (t *Toolchain) Clip(ctx context.Context, src Source, out string, opts ClipOptions) error {
	in, stdin := src.input("pipe:0")
	_, err := run(ctx, "ffmpeg", t.opts.FFmpeg, stdin, buildClipArgs(in, out, t.opts.Encoder, opts)...)
	return err
}

// buildClipArgs builds the ffmpeg arguments for a preview clip.
func buildClipArgs(input, output, encoder string, opts ClipOptions) []string {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-t", strconv.Itoa(opts.Duration),
		"-c:v", encoder,
		"-vf", clipFilter,
		"-b:v", clipVideoBitrate,
	}
	args = append(args, encoderTuning(encoder)...)
	if opts.Audio {
		args = append(args, "-b:a", clipAudioBitrate)
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-movflags", "+faststart", "-f", "mp4", output)
	return args
}

// encoderTuning favors speed over compression for each encoder family.
func encoderTuning(encoder string) []string {
	switch encoder {
	case "libx264":
		return []string{"-preset", "veryfast", "-pix_fmt", "yuv420p"}
	case "libsvtav1":
		return []string{"-preset", "10"}
	case "libvpx-vp9":
		return []string{"-deadline", "realtime", "-cpu-used", "8"}
	default:
		return nil
	}
}

// Frame implements Transcoder.
func (t *Toolchain) Frame(ctx context.Context, src Source, out string) error {
	in, stdin := src.input("pipe:0")
	_, err := run(ctx, "ffmpeg", t.opts.FFmpeg, stdin, buildFrameArgs(in, out, t.opts.FrameMaxDimension)...)
	return err
}

func buildFrameArgs(input, output string, maxDimension int) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", maxDimension, maxDimension),
		"-vframes", "1",
		"-f", "image2",
		output,
	}
}

// Duration implements Transcoder using ffprobe.
func (t *Toolchain) Duration(ctx context.Context, src Source) (float64, error) {
	in, stdin := src.input("pipe:0")
	output, err := run(ctx, "ffprobe", t.opts.FFprobe, stdin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		in,
	)
	if err != nil {
		return 0, err
	}
	return parseDuration(output)
}

func parseDuration(output []byte) (float64, error) {
	s := strings.TrimSpace(string(output))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: unable to get video duration %q, please check file extension", failure.ErrTranscodeFailed, s)
	}
	return d, nil
}
