package imaging

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pagebook/internal/domain"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// redBlue is a 2x1 image: red on the left, blue on the right.
func redBlue() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, red)
	img.Set(1, 0, blue)
	return img
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestRotate(t *testing.T) {
	tests := []struct {
		degrees       int
		width, height int
		first, last   color.RGBA // pixel at origin, pixel at far corner
	}{
		{0, 2, 1, red, blue},
		{90, 1, 2, red, blue},
		{180, 2, 1, blue, red},
		{270, 1, 2, blue, red},
		{-90, 1, 2, blue, red},
		{450, 1, 2, red, blue},
	}

	for _, tt := range tests {
		out := Rotate(redBlue(), tt.degrees)
		b := out.Bounds()
		assert.Equal(t, tt.width, b.Dx(), "degrees %d", tt.degrees)
		assert.Equal(t, tt.height, b.Dy(), "degrees %d", tt.degrees)
		assert.Equal(t, tt.first, rgbaAt(out, 0, 0), "degrees %d", tt.degrees)
		assert.Equal(t, tt.last, rgbaAt(out, b.Dx()-1, b.Dy()-1), "degrees %d", tt.degrees)
	}
}

func TestRotate_FourQuarterTurnsIsIdentity(t *testing.T) {
	var img image.Image = redBlue()
	for i := 0; i < 4; i++ {
		img = Rotate(img, 90)
	}
	assert.Equal(t, red, rgbaAt(img, 0, 0))
	assert.Equal(t, blue, rgbaAt(img, 1, 0))
}

func TestFlipHorizontal(t *testing.T) {
	out := FlipHorizontal(redBlue())
	assert.Equal(t, blue, rgbaAt(out, 0, 0))
	assert.Equal(t, red, rgbaAt(out, 1, 0))
}

func TestCrop_UsesDisplayedOrientation(t *testing.T) {
	// Rotated 90 the image is 1x2 with red on top; cropping the bottom
	// pixel must yield blue.
	out, err := Crop(redBlue(), 90, false, domain.Rect{X: 0, Y: 1, Width: 1, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Bounds().Dx())
	assert.Equal(t, 1, out.Bounds().Dy())
	assert.Equal(t, blue, rgbaAt(out, 0, 0))
}

func TestCrop_ClipsAndRejects(t *testing.T) {
	out, err := Crop(redBlue(), 0, true, domain.Rect{X: 0, Y: 0, Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), out.Bounds())
	assert.Equal(t, blue, rgbaAt(out, 0, 0), "mirror is applied before cropping")

	_, err = Crop(redBlue(), 0, false, domain.Rect{X: 5, Y: 5, Width: 1, Height: 1})
	assert.Error(t, err)

	_, err = Crop(redBlue(), 0, false, domain.Rect{Width: 0, Height: 1})
	assert.Error(t, err)
}

func TestCrop_OffsetOrigin(t *testing.T) {
	// The sub-image holds only the blue pixel and starts at x=1.
	sub := redBlue().SubImage(image.Rect(1, 0, 2, 1))
	out, err := Crop(sub, 0, false, domain.Rect{X: 0, Y: 0, Width: 1, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1, 1), out.Bounds())
	assert.Equal(t, blue, rgbaAt(out, 0, 0))
}

func TestEncoder_PNGRoundTrip(t *testing.T) {
	ref, err := Encoder{Format: FormatPNG}.Encode(redBlue())
	require.NoError(t, err)
	assert.Equal(t, "image/png", ref.MIMEType)
	assert.Equal(t, 2, ref.Width)
	assert.Equal(t, 1, ref.Height)
	assert.True(t, strings.HasPrefix(ref.DataURI(), "data:image/png;base64,"))

	img, err := Decode(ref)
	require.NoError(t, err)
	assert.Equal(t, red, rgbaAt(img, 0, 0))
	assert.Equal(t, blue, rgbaAt(img, 1, 0))
}

func TestEncoder_JPEGDefault(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 30, 20))
	ref, err := DefaultEncoder().Encode(img)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ref.MIMEType)
	assert.Equal(t, 30, ref.Width)
	assert.Equal(t, 20, ref.Height)
}

func TestWrap(t *testing.T) {
	encoded, err := Encoder{Format: FormatPNG}.Encode(image.NewRGBA(image.Rect(0, 0, 7, 3)))
	require.NoError(t, err)

	ref, err := Wrap("image/png", encoded.Data)
	require.NoError(t, err)
	assert.Equal(t, 7, ref.Width)
	assert.Equal(t, 3, ref.Height)

	_, err = Wrap("image/png", []byte("not an image"))
	assert.Error(t, err)

	_, err = Decode(domain.ImageRef{})
	assert.Error(t, err)
}
