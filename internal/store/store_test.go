package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pagebook/internal/domain"
)

func sampleMeta(n int) domain.DocumentMetadata {
	pages := make([]domain.Page, n)
	for i := range pages {
		pages[i] = domain.Page{PageMetadata: domain.PageMetadata{PageNumber: i + 1, Width: 600, Height: 800}}
	}
	return domain.DocumentMetadata{TotalPages: n, Pages: pages, Title: "book.pdf"}
}

func TestStore_LoadAndSnapshot(t *testing.T) {
	s := New()
	_, ok := s.Snapshot()
	assert.False(t, ok)

	s.Load(sampleMeta(3))
	meta, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 3, meta.TotalPages)
	assert.Equal(t, "book.pdf", meta.Title)
	for i, p := range meta.Pages {
		assert.Equal(t, i+1, p.PageNumber)
	}

	s.Clear()
	assert.False(t, s.Loaded())
	_, ok = s.Page(1)
	assert.False(t, ok)
}

func TestStore_Update(t *testing.T) {
	s := New()
	s.Load(sampleMeta(2))

	img := &domain.ImageRef{MIMEType: "image/png", Data: []byte{1}, Width: 1, Height: 1}
	p, err := s.Update(2, func(st *domain.RenderState) {
		st.Image = img
		st.Rotation = 450
	})
	require.NoError(t, err)
	assert.Equal(t, 90, p.Rotation)
	assert.True(t, p.HasImage())

	other, _ := s.Page(1)
	assert.False(t, other.HasImage())

	_, err = s.Update(9, func(*domain.RenderState) {})
	assert.ErrorIs(t, err, ErrPageNotFound)

	s.Clear()
	_, err = s.Update(1, func(*domain.RenderState) {})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	s.Load(sampleMeta(1))
	_, err := s.Update(1, func(st *domain.RenderState) {
		st.Image = &domain.ImageRef{MIMEType: "image/png", Data: []byte{1}}
	})
	require.NoError(t, err)

	p, _ := s.Page(1)
	p.Image.MIMEType = "mutated"
	p.Rotation = 180

	again, _ := s.Page(1)
	assert.Equal(t, "image/png", again.Image.MIMEType)
	assert.Zero(t, again.Rotation)
}

func TestStore_Subscribe(t *testing.T) {
	s := New()
	s.Load(sampleMeta(2))

	var got []int
	cancel := s.Subscribe(func(p domain.Page) {
		// Reading from the store inside a callback must not deadlock.
		_, _ = s.Page(p.PageNumber)
		got = append(got, p.PageNumber)
	})

	_, _ = s.Update(1, func(st *domain.RenderState) { st.Loading = true })
	_, _ = s.Update(2, func(st *domain.RenderState) { st.Loading = true })
	cancel()
	_, _ = s.Update(1, func(st *domain.RenderState) { st.Loading = false })

	assert.Equal(t, []int{1, 2}, got)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	s := New()
	s.Load(sampleMeta(1))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(1, func(st *domain.RenderState) { st.Rotation += 90 })
		}()
	}
	wg.Wait()

	p, _ := s.Page(1)
	assert.Equal(t, 0, p.Rotation)
}

func TestStore_UpdateInRejectsReplacedDocument(t *testing.T) {
	s := New()
	s.Load(sampleMeta(2))
	gen := s.Generation()

	_, err := s.UpdateIn(gen, 1, func(st *domain.RenderState) { st.Loading = true })
	require.NoError(t, err)
	_, ok := s.PageIn(gen, 1)
	assert.True(t, ok)

	s.Load(sampleMeta(2))
	assert.NotEqual(t, gen, s.Generation())

	img := &domain.ImageRef{MIMEType: "image/png", Data: []byte{1}, Width: 1, Height: 1}
	_, err = s.UpdateIn(gen, 1, func(st *domain.RenderState) { st.Image = img })
	assert.ErrorIs(t, err, ErrStale)
	_, ok = s.PageIn(gen, 1)
	assert.False(t, ok)

	p, _ := s.Page(1)
	assert.False(t, p.HasImage())
	assert.False(t, p.Loading)

	cleared := s.Generation()
	s.Clear()
	_, err = s.UpdateIn(cleared, 1, func(*domain.RenderState) {})
	assert.ErrorIs(t, err, ErrStale)
}
