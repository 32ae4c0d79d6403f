package ocr

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/observability"
)

// Options configures a Coordinator.
type Options struct {
	// Workers is the pool size. Zero means max(1, Parallelism-1).
	Workers int
	// Parallelism defaults to runtime.NumCPU.
	Parallelism int
}

// PoolSize returns the number of recognizers the options produce.
func (o Options) PoolSize() int {
	if o.Workers > 0 {
		return o.Workers
	}
	p := o.Parallelism
	if p <= 0 {
		p = runtime.NumCPU()
	}
	return max(1, p-1)
}

type job struct {
	ctx     context.Context
	index   int
	page    domain.OCRPage
	results chan<- result
}

type result struct {
	index int
	page  int
	text  string
	err   error
}

// Coordinator runs recognition jobs on a long-lived pool. The pool starts
// on the first request with content and lives until Close.
type Coordinator struct {
	factory Factory
	size    int
	logger  *observability.Logger

	// mu is held for reading by every running Recognize and for writing by
	// pool start and Close.
	mu      sync.RWMutex
	jobs    chan job
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewCoordinator creates a coordinator. No recognizer is created until the
// first non-empty Recognize call.
func NewCoordinator(factory Factory, opts Options, logger *observability.Logger) *Coordinator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Coordinator{
		factory: factory,
		size:    opts.PoolSize(),
		logger:  logger.WithOperation("ocr"),
	}
}

// Size returns the configured pool size.
func (c *Coordinator) Size() int {
	return c.size
}

// Started reports whether the worker pool exists.
func (c *Coordinator) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Recognize extracts the text of pages and returns it ordered by page
// number, each page under a "--- Page n ---" header. progress is called
// after every finished page. The first failure aborts the run.
func (c *Coordinator) Recognize(ctx context.Context, pages []domain.OCRPage, progress domain.ProgressFunc) (string, error) {
	if len(pages) == 0 {
		return "", domain.NoEligibleContentError("no pages eligible for text recognition")
	}
	if err := c.start(); err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return "", domain.OCRError("coordinator is closed", nil)
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	submitted := make(chan struct{})
	// The submitter must be gone before the read lock is released, or
	// Close could close the job channel under it.
	defer func() {
		cancel()
		<-submitted
	}()

	results := make(chan result, len(pages))
	go func() {
		defer close(submitted)
		for i, p := range pages {
			select {
			case c.jobs <- job{ctx: ctx, index: i, page: p, results: results}:
			case <-ctx.Done():
				return
			}
		}
	}()

	total := len(pages)
	texts := make([]result, 0, total)
	for len(texts) < total {
		var r result
		select {
		case r = <-results:
		case <-ctx.Done():
			return "", domain.OCRError("text recognition cancelled", ctx.Err())
		}
		if r.err != nil {
			c.logger.Warn().Int("page", r.page).Err(r.err).Msg("recognition failed")
			return "", domain.OCRError(fmt.Sprintf("failed to recognize page %d", r.page), r.err)
		}

		texts = append(texts, r)
		if progress != nil {
			done := len(texts)
			progress(domain.Progress{
				Done:    done,
				Total:   total,
				Percent: domain.Percent(done, total),
				Index:   r.index,
				Name:    fmt.Sprintf("Page %d", r.page),
			})
		}
	}

	sort.Slice(texts, func(i, j int) bool { return texts[i].page < texts[j].page })

	var sb strings.Builder
	for _, r := range texts {
		fmt.Fprintf(&sb, "--- Page %d ---\n\n%s\n\n", r.page, r.text)
	}

	c.logger.Info().Int("pages", total).Dur("elapsed", time.Since(start)).Msg("text recognition complete")
	return sb.String(), nil
}

func (c *Coordinator) start() error {
	c.mu.RLock()
	ready := c.started && !c.closed
	c.mu.RUnlock()
	if ready {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.OCRError("coordinator is closed", nil)
	}
	if c.started {
		return nil
	}

	recognizers := make([]Recognizer, 0, c.size)
	for i := 0; i < c.size; i++ {
		r, err := c.factory()
		if err != nil {
			for _, made := range recognizers {
				made.Close()
			}
			return domain.OCRError("failed to start recognizer", err)
		}
		recognizers = append(recognizers, r)
	}

	c.jobs = make(chan job)
	for _, r := range recognizers {
		c.wg.Add(1)
		go c.work(r)
	}
	c.started = true
	c.logger.Debug().Int("workers", c.size).Msg("recognizer pool started")
	return nil
}

func (c *Coordinator) work(r Recognizer) {
	defer c.wg.Done()
	defer r.Close()

	for j := range c.jobs {
		if err := j.ctx.Err(); err != nil {
			j.results <- result{index: j.index, page: j.page.PageNumber, err: err}
			continue
		}
		text, err := r.RecognizeText(j.ctx, j.page.Image)
		j.results <- result{index: j.index, page: j.page.PageNumber, text: text, err: err}
	}
}

// Close stops the pool after running requests finish and releases every
// recognizer. The coordinator cannot be used afterwards.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.started {
		close(c.jobs)
		c.wg.Wait()
	}
	return nil
}
