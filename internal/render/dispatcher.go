// Package render rasterizes single pages on demand and records the result
// in the page store.
package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/imaging"
	"github.com/spherical/pagebook/internal/observability"
	"github.com/spherical/pagebook/internal/store"
)

// DefaultScale is the display render scale.
const DefaultScale = 1.5

// ErrClosed is returned by RenderPage after Close.
var ErrClosed = errors.New("dispatcher closed")

// Dispatcher renders pages of one opened document. Concurrent requests for
// the same page share a single backend render. It only writes to the store
// generation that was current when it was created.
type Dispatcher struct {
	handle  domain.DocumentHandle
	store   *store.Store
	gen     uint64
	encoder imaging.Encoder
	scale   float64
	logger  *observability.Logger

	inflight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithScale overrides the render scale.
func WithScale(scale float64) Option {
	return func(d *Dispatcher) {
		if scale > 0 {
			d.scale = scale
		}
	}
}

// WithEncoder overrides the output encoding.
func WithEncoder(enc imaging.Encoder) Option {
	return func(d *Dispatcher) { d.encoder = enc }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher over handle for the document currently
// loaded in st. The handle is shared and not closed by the dispatcher.
func NewDispatcher(handle domain.DocumentHandle, st *store.Store, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handle:  handle,
		store:   st,
		gen:     st.Generation(),
		ctx:     ctx,
		cancel:  cancel,
		encoder: imaging.DefaultEncoder(),
		scale:   DefaultScale,
		logger:  observability.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithOperation("render")
	return d
}

// RenderPage returns the rendered image of page n, rendering it if needed.
// A page that already has an image is returned without touching the
// backend. Failures leave the page without an image so it can be retried.
func (d *Dispatcher) RenderPage(ctx context.Context, n int) (domain.ImageRef, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return domain.ImageRef{}, domain.PageRenderError(n, ErrClosed)
	}
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	page, ok := d.store.PageIn(d.gen, n)
	if !ok {
		return domain.ImageRef{}, domain.PageRenderError(n, store.ErrPageNotFound)
	}
	if page.HasImage() && !page.Loading {
		return *page.Image, nil
	}

	v, err, shared := d.inflight.Do(strconv.Itoa(n), func() (interface{}, error) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(d.ctx, cancel)
		defer stop()
		return d.render(ctx, n)
	})
	if err != nil {
		return domain.ImageRef{}, err
	}
	if shared {
		d.logger.Debug().Int("page", n).Msg("joined in-flight render")
	}
	return v.(domain.ImageRef), nil
}

func (d *Dispatcher) render(ctx context.Context, n int) (domain.ImageRef, error) {
	// A render that finished between the caller's check and this call
	// already populated the store.
	if page, ok := d.store.PageIn(d.gen, n); ok && page.HasImage() && !page.Loading {
		return *page.Image, nil
	}

	if _, err := d.store.UpdateIn(d.gen, n, func(st *domain.RenderState) { st.Loading = true }); err != nil {
		return domain.ImageRef{}, domain.PageRenderError(n, err)
	}

	start := time.Now()
	ref, err := d.rasterize(ctx, n)
	if err != nil {
		_, _ = d.store.UpdateIn(d.gen, n, func(st *domain.RenderState) { st.Loading = false })
		d.logger.Warn().Int("page", n).Err(err).Msg("render failed")
		return domain.ImageRef{}, domain.PageRenderError(n, err)
	}

	if _, err := d.store.UpdateIn(d.gen, n, func(st *domain.RenderState) {
		st.Image = &ref
		st.Loading = false
	}); err != nil {
		return domain.ImageRef{}, domain.PageRenderError(n, err)
	}

	d.logger.Debug().
		Int("page", n).
		Int("width", ref.Width).
		Int("height", ref.Height).
		Dur("elapsed", time.Since(start)).
		Msg("page rendered")
	return ref, nil
}

func (d *Dispatcher) rasterize(ctx context.Context, n int) (domain.ImageRef, error) {
	img, err := d.handle.RenderPage(ctx, n, d.scale)
	if err != nil {
		return domain.ImageRef{}, err
	}
	ref, err := d.encoder.Encode(img)
	if err != nil {
		return domain.ImageRef{}, fmt.Errorf("encode page %d: %w", n, err)
	}
	return ref, nil
}

// Close cancels in-flight renders and waits for them to return. Later
// calls to RenderPage fail with ErrClosed. The handle may be closed once
// Close returns.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// Prefetch renders pages 1..n in order. Failed pages are logged and
// skipped. It returns the number of pages that have an image afterwards.
func (d *Dispatcher) Prefetch(ctx context.Context, n int) int {
	n = min(n, d.store.Len())
	rendered := 0
	for page := 1; page <= n; page++ {
		if ctx.Err() != nil {
			break
		}
		if _, err := d.RenderPage(ctx, page); err != nil {
			if errors.Is(err, ErrClosed) {
				break
			}
			continue
		}
		rendered++
	}
	d.logger.Info().Int("requested", n).Int("rendered", rendered).Msg("prefetch complete")
	return rendered
}
