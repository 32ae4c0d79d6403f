package lazy

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/pdf/pdftest"
	"github.com/spherical/pagebook/internal/render"
	"github.com/spherical/pagebook/internal/store"
)

func loadStore(n int) *store.Store {
	pages := make([]domain.Page, n)
	for i := range pages {
		pages[i] = domain.Page{PageMetadata: domain.PageMetadata{PageNumber: i + 1, Width: 600, Height: 800}}
	}
	st := store.New()
	st.Load(domain.DocumentMetadata{TotalPages: n, Pages: pages})
	return st
}

func newDispatcher(t *testing.T, backend *pdftest.Backend, st *store.Store) *render.Dispatcher {
	t.Helper()
	handle, err := backend.Open(nil)
	require.NoError(t, err)
	return render.NewDispatcher(handle, st)
}

func TestLayout_Place(t *testing.T) {
	st := loadStore(3)
	meta, _ := st.Snapshot()

	ph := DefaultLayout().Place(meta.Pages)
	require.Len(t, ph, 3)
	h := 176.0 * 800 / 600
	assert.InDelta(t, 0, ph[0].Top, 1e-9)
	assert.InDelta(t, h, ph[0].Bottom, 1e-9)
	assert.InDelta(t, h+16, ph[1].Top, 1e-9)
	assert.InDelta(t, 2*(h+16), ph[2].Top, 1e-9)
}

func TestLayout_RenderedImageWins(t *testing.T) {
	pages := []domain.Page{{
		PageMetadata: domain.PageMetadata{PageNumber: 1, Width: 600, Height: 800},
		RenderState:  domain.RenderState{Image: &domain.ImageRef{Data: []byte{1}, Width: 200, Height: 100}},
	}}
	ph := Layout{ColumnWidth: 100}.Place(pages)
	assert.InDelta(t, 50, ph[0].Bottom, 1e-9)
}

func TestIntersecting(t *testing.T) {
	ph := []Placeholder{
		{PageNumber: 1, Top: 0, Bottom: 100},
		{PageNumber: 2, Top: 200, Bottom: 300},
		{PageNumber: 3, Top: 900, Bottom: 1000},
		{PageNumber: 4, Top: 2000, Bottom: 2100},
	}
	assert.Equal(t, []int{1, 2}, Intersecting(ph, Viewport{Top: 0, Height: 300}, 0))
	assert.Equal(t, []int{1, 2, 3}, Intersecting(ph, Viewport{Top: 0, Height: 300}, 600))
	assert.Equal(t, []int{3, 4}, Intersecting(ph, Viewport{Top: 1500, Height: 100}, 500))
}

func TestLoader_Scroll(t *testing.T) {
	backend := pdftest.NewBackend(12)
	st := loadStore(12)
	l := NewLoader(newDispatcher(t, backend, st), st)

	meta, _ := st.Snapshot()
	ph := DefaultLayout().Place(meta.Pages)

	dispatched := l.Scroll(context.Background(), ph, Viewport{Top: 0, Height: 300})
	assert.Equal(t, []int{1, 2, 3}, dispatched)
	l.Wait()

	for _, n := range dispatched {
		p, _ := st.Page(n)
		assert.True(t, p.HasImage())
	}
	p4, _ := st.Page(4)
	assert.False(t, p4.HasImage())

	assert.Empty(t, l.Scroll(context.Background(), ph, Viewport{Top: 0, Height: 300}))
	assert.Equal(t, 3, backend.TotalRenders())
}

func TestLoader_LoadingPageNotDispatchedTwice(t *testing.T) {
	backend := pdftest.NewBackend(12)
	backend.Gate = make(chan struct{})
	st := loadStore(12)
	l := NewLoader(newDispatcher(t, backend, st), st)

	assert.Equal(t, []int{9}, l.Visible(context.Background(), 9))
	assert.Empty(t, l.Visible(context.Background(), 9))

	close(backend.Gate)
	l.Wait()

	assert.Empty(t, l.Visible(context.Background(), 9))
	assert.Equal(t, 1, backend.RenderCalls(9))
}

func TestLoader_FailureIsAbsorbed(t *testing.T) {
	backend := pdftest.NewBackend(3)
	backend.FailPages = map[int]bool{2: true}
	st := loadStore(3)

	var failed []int
	var mu sync.Mutex
	l := NewLoader(newDispatcher(t, backend, st), st, WithFailureHandler(func(page int, err error) {
		mu.Lock()
		failed = append(failed, page)
		mu.Unlock()
		assert.True(t, domain.IsPageRender(err))
	}))

	l.Visible(context.Background(), 1, 2, 3)
	l.Wait()
	assert.Equal(t, []int{2}, failed)

	p, _ := st.Page(2)
	assert.False(t, p.HasImage())
	assert.False(t, p.Loading)

	// A failed page is requested again next time it is visible.
	assert.Equal(t, []int{2}, l.Visible(context.Background(), 2))
	l.Wait()
}

type trackingRenderer struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (r *trackingRenderer) RenderPage(ctx context.Context, n int) (domain.ImageRef, error) {
	c := r.current.Add(1)
	for {
		p := r.peak.Load()
		if c <= p || r.peak.CompareAndSwap(p, c) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	r.current.Add(-1)
	return domain.ImageRef{}, nil
}

func TestLoader_MaxInFlight(t *testing.T) {
	st := loadStore(10)
	r := &trackingRenderer{}
	l := NewLoader(r, st, WithMaxInFlight(2))

	l.Visible(context.Background(), 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	l.Wait()

	assert.LessOrEqual(t, r.peak.Load(), int32(2))
	assert.Positive(t, r.peak.Load())
}

func TestLoader_UnknownPageIgnored(t *testing.T) {
	st := loadStore(2)
	l := NewLoader(&trackingRenderer{}, st)
	assert.Empty(t, l.Visible(context.Background(), 7))
}

func TestLoader_ClosedLoaderDispatchesNothing(t *testing.T) {
	st := loadStore(20)
	r := &trackingRenderer{}
	l := NewLoader(r, st)

	var wg sync.WaitGroup
	for n := 1; n <= 20; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Visible(context.Background(), n)
		}()
	}
	l.Close()
	wg.Wait()

	assert.Zero(t, r.current.Load(), "Close waits for every dispatched render")
	assert.Empty(t, l.Visible(context.Background(), 1, 2, 3))
}
