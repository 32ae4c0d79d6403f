package lazy

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/observability"
	"github.com/spherical/pagebook/internal/store"
)

// DefaultMargin is how far outside the viewport pages start loading.
const DefaultMargin = 400

// Loader dispatches renders for pages that become visible. Each visible
// page is requested once unless it already has an image or is loading.
type Loader struct {
	renderer domain.PageRenderer
	store    *store.Store
	margin   float64
	sem      *semaphore.Weighted
	onFail   func(page int, err error)
	logger   *observability.Logger

	mu      sync.Mutex
	pending map[int]bool
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Loader.
type Option func(*Loader)

// WithMargin sets the preload margin around the viewport.
func WithMargin(margin float64) Option {
	return func(l *Loader) { l.margin = margin }
}

// WithMaxInFlight caps concurrent renders. Zero means unbounded.
func WithMaxInFlight(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithFailureHandler is called for every failed render.
func WithFailureHandler(fn func(page int, err error)) Option {
	return func(l *Loader) { l.onFail = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader.
func NewLoader(renderer domain.PageRenderer, st *store.Store, opts ...Option) *Loader {
	l := &Loader{
		renderer: renderer,
		store:    st,
		margin:   DefaultMargin,
		logger:   observability.Nop(),
		pending:  make(map[int]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithOperation("lazy")
	return l
}

// Scroll dispatches renders for every page near vp and returns the pages
// dispatched.
func (l *Loader) Scroll(ctx context.Context, placeholders []Placeholder, vp Viewport) []int {
	return l.Visible(ctx, Intersecting(placeholders, vp, l.margin)...)
}

// Visible reports pages as visible. Renders run asynchronously; failures
// are logged and the page stays eligible for a later attempt.
func (l *Loader) Visible(ctx context.Context, pages ...int) []int {
	var dispatched []int
	for _, n := range pages {
		if !l.claim(n) {
			continue
		}
		dispatched = append(dispatched, n)
		go l.load(ctx, n)
	}
	if len(dispatched) > 0 {
		l.logger.Debug().Ints("pages", dispatched).Msg("dispatched renders")
	}
	return dispatched
}

// claim marks n pending and registers its render with the wait group.
func (l *Loader) claim(n int) bool {
	page, ok := l.store.Page(n)
	if !ok || page.HasImage() || page.Loading {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.pending[n] {
		return false
	}
	l.pending[n] = true
	l.wg.Add(1)
	return true
}

func (l *Loader) load(ctx context.Context, n int) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		delete(l.pending, n)
		l.mu.Unlock()
	}()

	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer l.sem.Release(1)
	}

	if _, err := l.renderer.RenderPage(ctx, n); err != nil {
		l.logger.Warn().Int("page", n).Err(err).Msg("visible page failed to render")
		if l.onFail != nil {
			l.onFail(n, err)
		}
	}
}

// Wait blocks until every dispatched render has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Close stops dispatching and waits for renders already dispatched.
func (l *Loader) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}
