// Package transcode turns source media into preview artifacts.
//
// Images are thumbnailed in pure Go (golang.org/x/image) with EXIF orientation
// from imagemeta; formats Go cannot decode fall back to ImageMagick. Documents
// use ImageMagick's first page. Videos use ffmpeg for the clip and the frame
// thumbnail and ffprobe for the duration.
//
// Every operation accepts a Source that is exactly one of an in-memory buffer,
// a local file or a remote URL, and writes its result to a local path.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/fpang/object-previews/internal/formats"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultThumbnailMaxDimension bounds image and document thumbnails.
	DefaultThumbnailMaxDimension = 800
	// DefaultFrameMaxDimension bounds the video frame thumbnail.
	DefaultFrameMaxDimension = 320
	// PosterizeLevels is the number of levels per color channel in image thumbnails.
	PosterizeLevels = 40
)

// Source is the content handed to a transcoder.
type Source struct {
	Data []byte
	Path string
	URL  string
}

// Kind describes which field of the source is set.
func (s Source) Kind() string {
	switch {
	case s.Path != "":
		return "file"
	case s.URL != "":
		return "url"
	default:
		return "buffer"
	}
}

// input returns the tool argument for s and, for buffers, the stdin reader.
// stdinArg is what the tool expects for standard input.
func (s Source) input(stdinArg string) (string, io.Reader) {
	switch {
	case s.Path != "":
		return s.Path, nil
	case s.URL != "":
		return s.URL, nil
	default:
		return stdinArg, bytesReader(s.Data)
	}
}

var errRemoteSource = errors.New("source is remote")

// bytes returns the full content of a local source.
func (s Source) bytes() ([]byte, error) {
	switch {
	case s.Path != "":
		return os.ReadFile(s.Path)
	case s.URL != "":
		return nil, errRemoteSource
	default:
		return s.Data, nil
	}
}

// ClipOptions controls video clip generation.
type ClipOptions struct {
	// Duration is the clip length in seconds.
	Duration int
	Audio    bool
}

// Transcoder produces preview files.
type Transcoder interface {
	// Thumbnail renders an image or document thumbnail as PNG.
	Thumbnail(ctx context.Context, kind formats.Kind, src Source, out string) error
	// Clip renders a short MP4 clip.
	Clip(ctx context.Context, src Source, out string, opts ClipOptions) error
	// Frame renders a single-frame PNG thumbnail of a video.
	Frame(ctx context.Context, src Source, out string) error
	// Duration returns the video duration in seconds.
	Duration(ctx context.Context, src Source) (float64, error)
}

// Options configures a Toolchain.
type Options struct {
	FFmpeg  string
	FFprobe string
	Convert string

	// Encoder is the negotiated video encoder.
	Encoder string

	ThumbnailMaxDimension int
	FrameMaxDimension     int
}

// Toolchain is the production Transcoder.
type Toolchain struct {
	opts Options
}

var _ Transcoder = (*Toolchain)(nil)

// NewToolchain fills defaults and resolves tool names against PATH.
// Missing tools are logged, not fatal: the invocation that needs them fails
// with ErrTranscodeFailed instead.
func NewToolchain(opts Options) *Toolchain {
	opts.FFmpeg = resolve(opts.FFmpeg, "ffmpeg")
	opts.FFprobe = resolve(opts.FFprobe, "ffprobe")
	opts.Convert = resolve(opts.Convert, "convert")
	if opts.ThumbnailMaxDimension <= 0 {
		opts.ThumbnailMaxDimension = DefaultThumbnailMaxDimension
	}
	if opts.FrameMaxDimension <= 0 {
		opts.FrameMaxDimension = DefaultFrameMaxDimension
	}
	if opts.Encoder == "" {
		opts.Encoder = DefaultEncoders[len(DefaultEncoders)-1]
	}
	return &Toolchain{opts: opts}
}

// Encoder returns the video encoder in use.
func (t *Toolchain) Encoder() string { return t.opts.Encoder }

func resolve(configured, name string) string {
	if configured != "" {
		return configured
	}
	path, err := exec.LookPath(name)
	if err != nil {
		log.Warn().Str("tool", name).Msg("Tool not found in PATH")
		return name
	}
	log.Debug().Str("tool", name).Str("path", path).Msg("Tool found")
	return path
}

// Thumbnail implements Transcoder.
func (t *Toolchain) Thumbnail(ctx context.Context, kind formats.Kind, src Source, out string) error {
	switch kind {
	case formats.KindImage:
		return t.imageThumbnail(ctx, src, out)
	case formats.KindDocument:
		return t.documentThumbnail(ctx, src, out)
	default:
		return fmt.Errorf("no thumbnail renderer for kind %q", kind)
	}
}
