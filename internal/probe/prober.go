// Package probe reads the page count and approximate page sizes of a PDF
// without rendering it at display resolution.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/observability"
)

// Options controls the probe.
type Options struct {
	// Scale is the low resolution used to measure sampled pages.
	Scale float64
	// Samples is the number of leading pages measured.
	Samples int
}

// DefaultOptions measures the first five pages at 10%.
func DefaultOptions() Options {
	return Options{Scale: 0.1, Samples: 5}
}

// Prober extracts document metadata.
type Prober struct {
	backend domain.RenderBackend
	opts    Options
	logger  *observability.Logger
}

// New creates a prober. A nil logger disables logging.
func New(backend domain.RenderBackend, opts Options, logger *observability.Logger) *Prober {
	if opts.Scale <= 0 {
		opts.Scale = DefaultOptions().Scale
	}
	if opts.Samples < 1 {
		opts.Samples = DefaultOptions().Samples
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Prober{backend: backend, opts: opts, logger: logger.WithOperation("probe")}
}

// Probe opens doc, measures the first pages and extrapolates the mean size
// to the rest. The opened handle is closed before returning.
func (p *Prober) Probe(ctx context.Context, doc *domain.Document) (domain.DocumentMetadata, error) {
	start := time.Now()

	handle, err := p.backend.Open(doc.Data)
	if err != nil {
		if !domain.IsDocumentOpen(err) {
			err = domain.DocumentOpenError(domain.OpenCauseUnknown, err)
		}
		p.logger.Warn().Str("document", doc.Name).Err(err).Msg("open failed")
		return domain.DocumentMetadata{}, err
	}
	defer handle.Close()

	total := handle.NumPages()
	if total <= 0 {
		return domain.DocumentMetadata{}, domain.DocumentOpenError(domain.OpenCauseInvalidStructure,
			fmt.Errorf("%s has no pages", doc.Name))
	}

	samples := min(total, p.opts.Samples)
	pages := make([]domain.Page, total)
	var sumW, sumH float64

	for i := 0; i < samples; i++ {
		n := i + 1
		img, err := handle.RenderPage(ctx, n, p.opts.Scale)
		if err != nil {
			return domain.DocumentMetadata{}, domain.DocumentOpenError(domain.OpenCauseUnknown,
				fmt.Errorf("measure page %d: %w", n, err))
		}
		b := img.Bounds()
		w := float64(b.Dx()) / p.opts.Scale
		h := float64(b.Dy()) / p.opts.Scale
		sumW += w
		sumH += h
		pages[i] = newPage(n, w, h)
	}

	meanW := sumW / float64(samples)
	meanH := sumH / float64(samples)
	for i := samples; i < total; i++ {
		pages[i] = newPage(i+1, meanW, meanH)
	}

	p.logger.Debug().
		Str("document", doc.Name).
		Int("pages", total).
		Int("sampled", samples).
		Dur("elapsed", time.Since(start)).
		Msg("probed document")

	return domain.DocumentMetadata{
		TotalPages: total,
		Pages:      pages,
		Title:      doc.Name,
	}, nil
}

func newPage(n int, w, h float64) domain.Page {
	return domain.Page{PageMetadata: domain.PageMetadata{PageNumber: n, Width: w, Height: h}}
}
