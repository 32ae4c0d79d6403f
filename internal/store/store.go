// Package store holds the normalized per-page state of the loaded document.
package store

import (
	"errors"
	"sync"

	"github.com/spherical/pagebook/internal/domain"
)

// ErrPageNotFound is returned when a page number is not in the store.
var ErrPageNotFound = errors.New("page not found")

// ErrEmpty is returned when no document is loaded.
var ErrEmpty = errors.New("no document loaded")

// ErrStale is returned by UpdateIn when the store no longer holds the
// document the caller was working on.
var ErrStale = errors.New("document was replaced")

// Store is the single source of truth for page metadata and render state.
// All reads return copies; mutation goes through Update.
type Store struct {
	mu     sync.RWMutex
	gen    uint64
	loaded bool
	title  string
	pages  []domain.Page
	index  map[int]int

	subMu  sync.Mutex
	subs   map[int]func(domain.Page)
	nextID int
}

// New creates an empty store.
func New() *Store {
	return &Store{subs: make(map[int]func(domain.Page))}
}

// Load replaces the store contents with meta.
func (s *Store) Load(meta domain.DocumentMetadata) {
	pages := make([]domain.Page, len(meta.Pages))
	index := make(map[int]int, len(meta.Pages))
	for i, p := range meta.Pages {
		pages[i] = clonePage(p)
		index[p.PageNumber] = i
	}

	s.mu.Lock()
	s.gen++
	s.loaded = true
	s.title = meta.Title
	s.pages = pages
	s.index = index
	s.mu.Unlock()
}

// Clear discards the loaded document.
func (s *Store) Clear() {
	s.mu.Lock()
	s.gen++
	s.loaded = false
	s.title = ""
	s.pages = nil
	s.index = nil
	s.mu.Unlock()
}

// Generation identifies the current contents. It changes on every Load and
// Clear.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Loaded reports whether a document is loaded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Snapshot returns a copy of the whole document.
func (s *Store) Snapshot() (domain.DocumentMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return domain.DocumentMetadata{}, false
	}

	pages := make([]domain.Page, len(s.pages))
	for i, p := range s.pages {
		pages[i] = clonePage(p)
	}
	return domain.DocumentMetadata{
		TotalPages: len(pages),
		Pages:      pages,
		Title:      s.title,
	}, true
}

// Page returns a copy of page n.
func (s *Store) Page(n int) (domain.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pageLocked(n)
}

// PageIn returns a copy of page n if the store is still at generation gen.
func (s *Store) PageIn(gen uint64, n int) (domain.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gen != gen {
		return domain.Page{}, false
	}
	return s.pageLocked(n)
}

func (s *Store) pageLocked(n int) (domain.Page, bool) {
	i, ok := s.index[n]
	if !ok {
		return domain.Page{}, false
	}
	return clonePage(s.pages[i]), true
}

// Len returns the number of pages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Update applies fn to the render state of page n under the write lock and
// returns the resulting page. Subscribers are notified after the lock is
// released.
func (s *Store) Update(n int, fn func(*domain.RenderState)) (domain.Page, error) {
	s.mu.Lock()
	return s.updateLocked(n, fn)
}

// UpdateIn is Update for writers bound to one document: it fails with
// ErrStale once the store has been reloaded or cleared since gen.
func (s *Store) UpdateIn(gen uint64, n int, fn func(*domain.RenderState)) (domain.Page, error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return domain.Page{}, ErrStale
	}
	return s.updateLocked(n, fn)
}

// updateLocked expects s.mu held and releases it.
func (s *Store) updateLocked(n int, fn func(*domain.RenderState)) (domain.Page, error) {
	if !s.loaded {
		s.mu.Unlock()
		return domain.Page{}, ErrEmpty
	}
	i, ok := s.index[n]
	if !ok {
		s.mu.Unlock()
		return domain.Page{}, ErrPageNotFound
	}

	state := s.pages[i].RenderState
	fn(&state)
	state.Rotation = domain.NormalizeRotation(state.Rotation)
	s.pages[i].RenderState = state
	updated := clonePage(s.pages[i])
	s.mu.Unlock()

	s.notify(updated)
	return updated, nil
}

// Subscribe registers fn to receive every mutated page. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(domain.Page)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(p domain.Page) {
	s.subMu.Lock()
	fns := make([]func(domain.Page), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func clonePage(p domain.Page) domain.Page {
	p.Image = cloneRef(p.Image)
	p.Cropped = cloneRef(p.Cropped)
	return p
}

// cloneRef copies the pointer, not the bytes. Encoded data is never
// mutated after creation.
func cloneRef(r *domain.ImageRef) *domain.ImageRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
