package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/imaging"
	"github.com/spherical/pagebook/internal/observability"
)

// Options configures a Processor.
type Options struct {
	// Scale is the render scale for PDF pages.
	Scale float64
	// MaxWorkers caps the worker count. Defaults to 8.
	MaxWorkers int
	// Parallelism is the number of usable cores. Defaults to runtime.NumCPU.
	Parallelism int
	Encoder     imaging.Encoder
}

// Processor renders all units of a source in parallel.
type Processor struct {
	backend domain.RenderBackend
	opts    Options
	logger  *observability.Logger
}

// NewProcessor creates a batch processor.
func NewProcessor(backend domain.RenderBackend, opts Options, logger *observability.Logger) *Processor {
	if opts.Scale <= 0 {
		opts.Scale = 1.5
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.NumCPU()
	}
	if opts.Encoder.Format == "" {
		opts.Encoder = imaging.DefaultEncoder()
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Processor{backend: backend, opts: opts, logger: logger.WithOperation("batch")}
}

// Workers returns the number of workers used for units.
func (p *Processor) Workers(units int) int {
	return WorkerCount(p.opts.Parallelism, p.opts.MaxWorkers, units)
}

// ProcessDocument renders every page of a PDF. Each worker opens its own
// decode of the document.
func (p *Processor) ProcessDocument(ctx context.Context, doc *domain.Document, progress domain.ProgressFunc) ([]domain.BatchResultEntry, error) {
	probe, err := p.backend.Open(doc.Data)
	if err != nil {
		return nil, err
	}
	total := probe.NumPages()
	probe.Close()

	factory := func(ctx context.Context) (Worker[domain.BatchResultEntry], error) {
		handle, err := p.backend.Open(doc.Data)
		if err != nil {
			return nil, err
		}
		return &pageWorker{handle: handle, scale: p.opts.Scale, encoder: p.opts.Encoder}, nil
	}

	return p.run(ctx, doc.Name, total, factory, progress)
}

// ProcessImages wraps each image as a page, in input order.
func (p *Processor) ProcessImages(ctx context.Context, docs []*domain.Document, progress domain.ProgressFunc) ([]domain.BatchResultEntry, error) {
	factory := func(ctx context.Context) (Worker[domain.BatchResultEntry], error) {
		return imageWorker(docs), nil
	}
	return p.run(ctx, "images", len(docs), factory, progress)
}

func (p *Processor) run(ctx context.Context, source string, total int, factory WorkerFactory[domain.BatchResultEntry], progress domain.ProgressFunc) ([]domain.BatchResultEntry, error) {
	start := time.Now()
	workers := p.Workers(total)
	p.logger.Info().
		Str("source", source).
		Int("units", total).
		Int("workers", workers).
		Msg("starting batch")

	var done atomic.Int32
	onUnit := func(index int, entry domain.BatchResultEntry) {
		n := int(done.Add(1))
		if progress != nil {
			progress(domain.Progress{
				Done:    n,
				Total:   total,
				Percent: domain.Percent(n, total),
				Index:   index,
				Name:    entry.Name,
			})
		}
	}

	results, err := Run(ctx, total, workers, factory, onUnit)
	if err != nil {
		p.logger.Error().Str("source", source).Err(err).Msg("batch failed")
		return nil, domain.BatchError(fmt.Sprintf("failed to process %s", source), err)
	}

	p.logger.Info().
		Str("source", source).
		Int("units", total).
		Dur("elapsed", time.Since(start)).
		Msg("batch complete")
	return results, nil
}

type pageWorker struct {
	handle  domain.DocumentHandle
	scale   float64
	encoder imaging.Encoder
}

func (w *pageWorker) Process(ctx context.Context, index int) (domain.BatchResultEntry, error) {
	pageNumber := index + 1
	img, err := w.handle.RenderPage(ctx, pageNumber, w.scale)
	if err != nil {
		return domain.BatchResultEntry{}, domain.PageRenderError(pageNumber, err)
	}
	ref, err := w.encoder.Encode(img)
	if err != nil {
		return domain.BatchResultEntry{}, domain.PageRenderError(pageNumber, err)
	}
	return domain.BatchResultEntry{
		Index: index,
		Image: ref,
		Name:  fmt.Sprintf("Page %d", pageNumber),
	}, nil
}

func (w *pageWorker) Close() error {
	return w.handle.Close()
}

type imageWorker []*domain.Document

func (w imageWorker) Process(ctx context.Context, index int) (domain.BatchResultEntry, error) {
	doc := w[index]
	ref, err := imaging.Wrap(doc.MIMEType, doc.Data)
	if err != nil {
		return domain.BatchResultEntry{}, domain.UnsupportedFileTypeError(
			fmt.Sprintf("%s could not be read as an image: %v", doc.Name, err))
	}
	return domain.BatchResultEntry{Index: index, Image: ref, Name: doc.Name}, nil
}

func (w imageWorker) Close() error { return nil }
