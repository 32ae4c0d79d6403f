package imaging

import (
	"fmt"
	"image"

	pix "github.com/disintegration/imaging"

	"github.com/spherical/pagebook/internal/domain"
)

// Rotate turns img clockwise by degrees, normalized to a right angle.
func Rotate(img image.Image, degrees int) image.Image {
	// pix rotates counter-clockwise.
	switch domain.NormalizeRotation(degrees) {
	case 90:
		return pix.Rotate270(img)
	case 180:
		return pix.Rotate180(img)
	case 270:
		return pix.Rotate90(img)
	default:
		return img
	}
}

// FlipHorizontal mirrors img around its vertical axis.
func FlipHorizontal(img image.Image) image.Image {
	return pix.FlipH(img)
}

// View applies the non-destructive display transforms: mirror first, then
// clockwise rotation.
func View(img image.Image, rotation int, mirrored bool) image.Image {
	if mirrored {
		img = FlipHorizontal(img)
	}
	return Rotate(img, rotation)
}

// Crop cuts rect out of the displayed form of src (after mirror and
// rotation). rect is in pixels of that displayed image and is clipped to its
// bounds; a rectangle that misses the image entirely is an error.
func Crop(src image.Image, rotation int, mirrored bool, rect domain.Rect) (image.Image, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("crop rectangle %+v has no area", rect)
	}

	view := View(src, rotation, mirrored)
	b := view.Bounds()
	r := image.Rect(rect.X, rect.Y, rect.X+rect.Width, rect.Y+rect.Height).
		Add(b.Min).
		Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("crop rectangle %+v lies outside the %dx%d image", rect, b.Dx(), b.Dy())
	}
	return pix.Crop(view, r), nil
}
