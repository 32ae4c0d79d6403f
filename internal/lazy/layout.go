// Package lazy renders pages as they approach the visible area.
package lazy

import "github.com/spherical/pagebook/internal/domain"

// Layout stacks page placeholders vertically in a single column.
type Layout struct {
	ColumnWidth float64
	Gap         float64
}

// DefaultLayout matches the sidebar thumbnail column.
func DefaultLayout() Layout {
	return Layout{ColumnWidth: 176, Gap: 16}
}

// Placeholder is the vertical extent reserved for a page.
type Placeholder struct {
	PageNumber int
	Top        float64
	Bottom     float64
}

// Viewport is the visible vertical window.
type Viewport struct {
	Top    float64
	Height float64
}

// Place computes placeholder positions. Rendered pages use the aspect ratio
// of their image; the rest use the advisory metadata size.
func (l Layout) Place(pages []domain.Page) []Placeholder {
	out := make([]Placeholder, len(pages))
	y := 0.0
	for i, p := range pages {
		h := l.ColumnWidth * aspect(p)
		out[i] = Placeholder{PageNumber: p.PageNumber, Top: y, Bottom: y + h}
		y += h + l.Gap
	}
	return out
}

func aspect(p domain.Page) float64 {
	if img, ok := p.EffectiveImage(); ok && img.Width > 0 {
		return float64(img.Height) / float64(img.Width)
	}
	if p.Width > 0 && p.Height > 0 {
		return p.Height / p.Width
	}
	return 1.414
}

// Intersecting returns the pages whose placeholder overlaps vp grown by
// margin on both sides.
func Intersecting(placeholders []Placeholder, vp Viewport, margin float64) []int {
	top := vp.Top - margin
	bottom := vp.Top + vp.Height + margin

	var pages []int
	for _, p := range placeholders {
		if p.Bottom >= top && p.Top <= bottom {
			pages = append(pages, p.PageNumber)
		}
	}
	return pages
}
