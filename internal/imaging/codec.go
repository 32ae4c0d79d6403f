// Package imaging encodes rendered rasters into displayable image refs and
// implements the pure pixel transforms behind page edits.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spherical/pagebook/internal/domain"
)

// Format is an output encoding for rendered pages.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Encoder turns raw rasters into image refs.
type Encoder struct {
	Format  Format
	Quality int
}

// DefaultEncoder matches the viewer's JPEG output at quality 0.8.
func DefaultEncoder() Encoder {
	return Encoder{Format: FormatJPEG, Quality: 80}
}

// Encode encodes img and records its dimensions.
func (e Encoder) Encode(img image.Image) (domain.ImageRef, error) {
	var buf bytes.Buffer
	mimeType := "image/png"

	switch e.Format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return domain.ImageRef{}, fmt.Errorf("encode png: %w", err)
		}
	case FormatJPEG, "":
		quality := e.Quality
		if quality <= 0 {
			quality = 80
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return domain.ImageRef{}, fmt.Errorf("encode jpeg: %w", err)
		}
		mimeType = "image/jpeg"
	default:
		return domain.ImageRef{}, fmt.Errorf("unsupported output format %q", e.Format)
	}

	b := img.Bounds()
	return domain.ImageRef{
		MIMEType: mimeType,
		Data:     buf.Bytes(),
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// Decode decodes the pixels of ref.
func Decode(ref domain.ImageRef) (image.Image, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(ref.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// Wrap builds a ref around already-encoded image bytes without re-encoding.
// Only the header is read to obtain dimensions.
func Wrap(mimeType string, data []byte) (domain.ImageRef, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("read image header: %w", err)
	}
	return domain.ImageRef{
		MIMEType: mimeType,
		Data:     data,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}
