// Package pdftest provides a deterministic in-memory render backend for
// tests of the rendering pipeline.
package pdftest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/spherical/pagebook/internal/domain"
)

// ErrInjected is the default error returned by a failing page.
var ErrInjected = errors.New("pdftest: injected render failure")

// Backend fakes a render backend. Pages are solid images whose red channel
// encodes the page number.
type Backend struct {
	// Pages is the page count of every opened document.
	Pages int
	// Size is the native page size; Sizes overrides it per page.
	Size  image.Point
	Sizes map[int]image.Point

	// OpenErr, when set, fails every Open.
	OpenErr error
	// FailPages fail with FailErr (or ErrInjected).
	FailPages map[int]bool
	FailErr   error
	// Delay is slept before a page renders.
	Delay func(page int) time.Duration
	// Gate, when non-nil, blocks every render until it is closed.
	Gate chan struct{}

	mu          sync.Mutex
	opens       int
	closes      int
	unsafeUses  int
	renders     map[int]int
	scales      []float64
}

// NewBackend returns a backend with pages of 600x800 points.
func NewBackend(pages int) *Backend {
	return &Backend{Pages: pages, Size: image.Pt(600, 800)}
}

func (b *Backend) Open(data []byte) (domain.DocumentHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	b.opens++
	return &document{backend: b}, nil
}

// Opens returns how many handles were opened.
func (b *Backend) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// Closes returns how many handles were closed.
func (b *Backend) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// UnsafeUses counts handles closed while a render was running on them plus
// renders started on a closed handle. MuPDF handles must never see either.
func (b *Backend) UnsafeUses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsafeUses
}

// RenderCalls returns how many renders reached the backend for page.
func (b *Backend) RenderCalls(page int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renders[page]
}

// TotalRenders returns the number of renders across all pages.
func (b *Backend) TotalRenders() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.renders {
		n += c
	}
	return n
}

// Scales returns every scale requested, in call order.
func (b *Backend) Scales() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]float64(nil), b.scales...)
}

// PageSize returns the native size of page.
func (b *Backend) PageSize(page int) image.Point {
	if s, ok := b.Sizes[page]; ok {
		return s
	}
	return b.Size
}

// PageColor is the fill used for page.
func PageColor(page int) color.RGBA {
	return color.RGBA{R: uint8(page % 256), G: 0x80, B: 0x40, A: 0xff}
}

type document struct {
	backend *Backend
	once    sync.Once

	// guarded by backend.mu
	active int
	closed bool
}

func (d *document) NumPages() int {
	return d.backend.Pages
}

func (d *document) RenderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	b := d.backend
	if pageNumber < 1 || pageNumber > b.Pages {
		return nil, fmt.Errorf("page %d out of range [1, %d]", pageNumber, b.Pages)
	}

	b.mu.Lock()
	if d.closed {
		b.unsafeUses++
		b.mu.Unlock()
		return nil, errors.New("pdftest: render on closed document")
	}
	if b.renders == nil {
		b.renders = make(map[int]int)
	}
	b.renders[pageNumber]++
	b.scales = append(b.scales, scale)
	gate := b.Gate
	d.active++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		d.active--
		b.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if b.Delay != nil {
		select {
		case <-time.After(b.Delay(pageNumber)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if b.FailPages[pageNumber] {
		if b.FailErr != nil {
			return nil, b.FailErr
		}
		return nil, ErrInjected
	}

	size := b.PageSize(pageNumber)
	w := int(math.Round(float64(size.X) * scale))
	h := int(math.Round(float64(size.Y) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := PageColor(pageNumber)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = fill.R, fill.G, fill.B, fill.A
	}
	return img, nil
}

func (d *document) Close() error {
	d.once.Do(func() {
		d.backend.mu.Lock()
		d.backend.closes++
		d.closed = true
		if d.active > 0 {
			d.backend.unsafeUses++
		}
		d.backend.mu.Unlock()
	})
	return nil
}
