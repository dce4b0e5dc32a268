package transcode

import (
	"context"
	"fmt"
)

// documentThumbnail renders the first page on a white background.
func (t *Toolchain) documentThumbnail(ctx context.Context, src Source, out string) error {
	in, stdin := src.input("-")
	_, err := run(ctx, "ImageMagick", t.opts.Convert, stdin, documentConvertArgs(in, out, t.opts.ThumbnailMaxDimension)...)
	return err
}

func documentConvertArgs(input, output string, maxDimension int) []string {
	return []string{
		"-size", fmt.Sprintf("x%d", maxDimension),
		"-background", "white",
		input + "[0]",
		"-flatten",
		"-thumbnail", fmt.Sprintf("%dx%d>", maxDimension, maxDimension),
		"png:" + output,
	}
}
