package transcode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// imageThumbnail decodes in Go when possible and falls back to ImageMagick
// for remote sources and formats without a Go decoder (HEIC).
func (t *Toolchain) imageThumbnail(ctx context.Context, src Source, out string) error {
	data, err := src.bytes()
	if err != nil {
		return t.convertImage(ctx, src, out)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("No Go decoder for image, using ImageMagick")
		return t.convertImage(ctx, src, out)
	}

	orientation := 1
	if format == "jpeg" || format == "tiff" {
		orientation = readOrientation(data)
	}
	thumb := renderThumbnail(img, orientation, t.opts.ThumbnailMaxDimension, PosterizeLevels)

	if err := writePNG(out, thumb); err != nil {
		return err
	}

	log.Debug().
		Str("format", format).
		Int("orientation", orientation).
		Int("orig_width", img.Bounds().Dx()).
		Int("orig_height", img.Bounds().Dy()).
		Int("new_width", thumb.Bounds().Dx()).
		Int("new_height", thumb.Bounds().Dy()).
		Msg("Thumbnail generated (pure Go)")
	return nil
}

// renderThumbnail scales img to fit maxDimension (never upscaling), applies
// the EXIF orientation and posterizes the result.
func renderThumbnail(img image.Image, orientation, maxDimension, levels int) *image.NRGBA {
	bounds := img.Bounds()
	w, h := calculateThumbnailDimensions(bounds.Dx(), bounds.Dy(), maxDimension)

	scaled := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Src, nil)

	oriented := applyOrientation(scaled, orientation)
	posterize(oriented, levels)
	return oriented
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create thumbnail: %w", err)
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode thumbnail: %w", err)
	}
	return f.Close()
}

// readOrientation returns the EXIF orientation (1-8), or 1 when absent.
func readOrientation(data []byte) int {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	o := int(exifData.Orientation)
	if o < 1 || o > 8 {
		return 1
	}
	return o
}

// calculateThumbnailDimensions calculates new dimensions maintaining aspect ratio.
func calculateThumbnailDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}

	if width > height {
		newHeight := max(int(float64(height)*float64(maxDimension)/float64(width)), 1)
		return maxDimension, newHeight
	}

	newWidth := max(int(float64(width)*float64(maxDimension)/float64(height)), 1)
	return newWidth, maxDimension
}

// applyOrientation rotates and flips img so that it displays upright for the
// given EXIF orientation.
func applyOrientation(img *image.NRGBA, orientation int) *image.NRGBA {
	if orientation <= 1 || orientation > 8 {
		return img
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	dw, dh := w, h
	if orientation >= 5 {
		dw, dh = h, w
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2:
				dx, dy = w-1-x, y
			case 3:
				dx, dy = w-1-x, h-1-y
			case 4:
				dx, dy = x, h-1-y
			case 5:
				dx, dy = y, x
			case 6:
				dx, dy = h-1-y, x
			case 7:
				dx, dy = h-1-y, w-1-x
			case 8:
				dx, dy = y, w-1-x
			}
			si := img.PixOffset(x, y)
			di := dst.PixOffset(dx, dy)
			copy(dst.Pix[di:di+4], img.Pix[si:si+4])
		}
	}
	return dst
}

// posterize reduces every color channel to levels evenly spaced values, in
// place. Alpha is left untouched.
func posterize(img *image.NRGBA, levels int) {
	if levels < 2 || levels > 255 {
		return
	}
	var table [256]uint8
	step := float64(levels - 1)
	for v := range table {
		level := int(float64(v)*step/255 + 0.5)
		table[v] = uint8(float64(level)*255/step + 0.5)
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = table[img.Pix[i]]
		img.Pix[i+1] = table[img.Pix[i+1]]
		img.Pix[i+2] = table[img.Pix[i+2]]
	}
}

// convertImage is the ImageMagick rendition of the same thumbnail.
func (t *Toolchain) convertImage(ctx context.Context, src Source, out string) error {
	in, stdin := src.input("-")
	args := imageConvertArgs(in, out, t.opts.ThumbnailMaxDimension)
	_, err := run(ctx, "ImageMagick", t.opts.Convert, stdin, args...)
	return err
}

func imageConvertArgs(input, output string, maxDimension int) []string {
	return []string{
		input + "[0]",
		"-auto-orient",
		"-thumbnail", fmt.Sprintf("%dx%d>", maxDimension, maxDimension),
		"-quality", "95",
		"+dither",
		"-posterize", fmt.Sprint(PosterizeLevels),
		"png:" + output,
	}
}
