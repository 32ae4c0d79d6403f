// Package book ties the rendering pipeline together into an editable book
// session: load a source, render pages lazily or in bulk, edit them and
// recognize their text.
package book

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/pagebook/internal/batch"
	"github.com/spherical/pagebook/internal/config"
	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/edit"
	"github.com/spherical/pagebook/internal/imaging"
	"github.com/spherical/pagebook/internal/lazy"
	"github.com/spherical/pagebook/internal/observability"
	"github.com/spherical/pagebook/internal/ocr"
	"github.com/spherical/pagebook/internal/pdf"
	"github.com/spherical/pagebook/internal/probe"
	"github.com/spherical/pagebook/internal/render"
	"github.com/spherical/pagebook/internal/store"
)

// Session holds at most one loaded document.
type Session struct {
	cfg       *config.Config
	backend   domain.RenderBackend
	validator *pdf.Validator
	prober    *probe.Prober
	batch     *batch.Processor
	ocr       *ocr.Coordinator
	store     *store.Store
	overlay   *edit.Overlay
	encoder   imaging.Encoder
	layout    lazy.Layout
	events    chan<- domain.StreamEvent
	base      *observability.Logger
	logger    *observability.Logger

	mu         sync.Mutex
	kind       domain.DocumentKind
	doc        *domain.Document
	handle     domain.DocumentHandle
	dispatcher *render.Dispatcher
	loader     *lazy.Loader
	converted  []domain.BatchResultEntry
	text       string

	// loadCtx is cancelled when the current document is replaced.
	loadCtx    context.Context
	cancelLoad context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithEvents sets the channel that receives stream events. Sends never
// block; events are dropped when the channel is full.
func WithEvents(ch chan<- domain.StreamEvent) Option {
	return func(s *Session) { s.events = ch }
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.base = logger
		}
	}
}

// NewSession creates a session. recognizers builds one text recognizer per
// OCR worker.
func NewSession(cfg *config.Config, backend domain.RenderBackend, recognizers ocr.Factory, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Session{
		cfg:       cfg,
		backend:   backend,
		validator: pdf.NewValidator(),
		store:     store.New(),
		encoder:   imaging.Encoder{Format: imaging.Format(cfg.Render.Format), Quality: cfg.Render.JPEGQuality},
		layout:    lazy.Layout{ColumnWidth: cfg.Lazy.ColumnWidth, Gap: cfg.Lazy.Gap},
		base:      observability.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.base.WithOperation("session")

	s.prober = probe.New(backend, probe.Options{
		Scale:   cfg.Render.ProbeScale,
		Samples: cfg.Render.ProbeSamples,
	}, s.base)
	s.batch = batch.NewProcessor(backend, batch.Options{
		Scale:       cfg.Render.Scale,
		MaxWorkers:  cfg.Batch.MaxWorkers,
		Parallelism: cfg.Batch.Parallelism,
		Encoder:     s.encoder,
	}, s.base)
	s.ocr = ocr.NewCoordinator(recognizers, ocr.Options{
		Workers:     cfg.OCR.Workers,
		Parallelism: cfg.Batch.Parallelism,
	}, s.base)
	s.overlay = edit.NewOverlay(s.store, s.encoder, s.base)
	return s
}

// Load validates files and replaces the current document. A single PDF is
// probed and rendered on demand; images are converted immediately. Nothing
// changes when any file is rejected.
func (s *Session) Load(ctx context.Context, files []domain.SourceFile) (domain.DocumentMetadata, error) {
	kind, docs, err := s.validator.ValidateSources(files)
	if err != nil {
		s.emitError(err)
		return domain.DocumentMetadata{}, err
	}

	loadID := uuid.NewString()
	logger := s.base.With().Str("load_id", loadID).Logger()
	start := time.Now()

	s.emitEvent(domain.StreamEvent{
		Type:    domain.EventStart,
		Payload: fmt.Sprintf("Loading %s", docs[0].Name),
	})

	var meta domain.DocumentMetadata
	switch kind {
	case domain.KindPDF:
		meta, err = s.loadPDF(ctx, docs[0], logger)
	default:
		meta, err = s.loadImages(ctx, docs, logger)
	}
	if err != nil {
		logger.Error().Err(err).Msg("load failed")
		s.emitError(err)
		return domain.DocumentMetadata{}, err
	}

	logger.Info().
		Str("title", meta.Title).
		Str("kind", string(kind)).
		Int("pages", meta.TotalPages).
		Dur("elapsed", time.Since(start)).
		Msg("document loaded")
	return meta, nil
}

func (s *Session) loadPDF(ctx context.Context, doc *domain.Document, logger *observability.Logger) (domain.DocumentMetadata, error) {
	meta, err := s.prober.Probe(ctx, doc)
	if err != nil {
		return domain.DocumentMetadata{}, err
	}
	handle, err := s.backend.Open(doc.Data)
	if err != nil {
		return domain.DocumentMetadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()

	s.kind = domain.KindPDF
	s.doc = doc
	s.handle = handle
	s.loadCtx, s.cancelLoad = context.WithCancel(context.Background())
	s.store.Load(meta)
	s.dispatcher = render.NewDispatcher(handle, s.store,
		render.WithScale(s.cfg.Render.Scale),
		render.WithEncoder(s.encoder),
		render.WithLogger(logger),
	)
	s.loader = lazy.NewLoader(&notifyingRenderer{session: s, renderer: s.dispatcher}, s.store,
		lazy.WithMargin(s.cfg.Lazy.Margin),
		lazy.WithMaxInFlight(s.cfg.Lazy.MaxInFlight),
		lazy.WithLogger(logger),
	)
	return meta, nil
}

func (s *Session) loadImages(ctx context.Context, docs []*domain.Document, logger *observability.Logger) (domain.DocumentMetadata, error) {
	entries, err := s.batch.ProcessImages(ctx, docs, s.emitProgress(domain.EventBatchProgress))
	if err != nil {
		return domain.DocumentMetadata{}, err
	}

	pages := make([]domain.Page, len(entries))
	for i, e := range entries {
		img := e.Image
		pages[i] = domain.Page{
			PageMetadata: domain.PageMetadata{
				PageNumber: e.Index + 1,
				Width:      float64(img.Width),
				Height:     float64(img.Height),
			},
			RenderState: domain.RenderState{Image: &img},
		}
	}
	meta := domain.DocumentMetadata{TotalPages: len(pages), Pages: pages, Title: docs[0].Name}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.kind = domain.KindImage
	s.converted = entries
	s.store.Load(meta)

	s.emitEvent(domain.StreamEvent{
		Type:    domain.EventComplete,
		Payload: fmt.Sprintf("Converted %d images", len(pages)),
	})
	return meta, nil
}

// resetLocked releases the current document. s.mu must be held. Renders
// and conversions of the old document are cancelled and can no longer
// write to the store.
func (s *Session) resetLocked() {
	if s.cancelLoad != nil {
		s.cancelLoad()
	}
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.loader != nil {
		s.loader.Close()
	}
	if s.handle != nil {
		if err := s.handle.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close document")
		}
	}
	s.kind = ""
	s.doc = nil
	s.handle = nil
	s.dispatcher = nil
	s.loader = nil
	s.converted = nil
	s.text = ""
	s.loadCtx = nil
	s.cancelLoad = nil
	s.store.Clear()
}

// Snapshot returns the loaded document.
func (s *Session) Snapshot() (domain.DocumentMetadata, bool) {
	return s.store.Snapshot()
}

// Page returns one page.
func (s *Session) Page(n int) (domain.Page, bool) {
	return s.store.Page(n)
}

// Watch calls fn with every page that changes until cancel is called.
func (s *Session) Watch(fn func(domain.Page)) (cancel func()) {
	return s.store.Subscribe(fn)
}

func (s *Session) pipeline() (*render.Dispatcher, *lazy.Loader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher, s.loader
}

// RenderPage renders page n if it has no image yet.
func (s *Session) RenderPage(ctx context.Context, n int) (domain.ImageRef, error) {
	d, _ := s.pipeline()
	if d == nil {
		page, ok := s.store.Page(n)
		if !ok || !page.HasImage() {
			return domain.ImageRef{}, domain.PageRenderError(n, store.ErrPageNotFound)
		}
		return *page.Image, nil
	}
	return (&notifyingRenderer{session: s, renderer: d}).RenderPage(ctx, n)
}

// Prefetch renders the first n pages, or the configured count when n <= 0.
func (s *Session) Prefetch(ctx context.Context, n int) int {
	if n <= 0 {
		n = s.cfg.Lazy.PrefetchPages
	}
	d, _ := s.pipeline()
	if d == nil {
		return s.store.Len()
	}
	return d.Prefetch(ctx, n)
}

// Scroll requests renders for the pages near the viewport.
func (s *Session) Scroll(ctx context.Context, vp lazy.Viewport) []int {
	_, l := s.pipeline()
	meta, ok := s.store.Snapshot()
	if l == nil || !ok {
		return nil
	}
	return l.Scroll(ctx, s.layout.Place(meta.Pages), vp)
}

// Visible requests renders for pages reported visible.
func (s *Session) Visible(ctx context.Context, pages ...int) []int {
	_, l := s.pipeline()
	if l == nil {
		return nil
	}
	return l.Visible(ctx, pages...)
}

// WaitRenders blocks until renders started by Scroll and Visible finish.
func (s *Session) WaitRenders() {
	if _, l := s.pipeline(); l != nil {
		l.Wait()
	}
}

// ConvertAll renders every page in parallel and fills pages that have no
// image yet. It returns the converted units in page order. Loading another
// document cancels the conversion.
func (s *Session) ConvertAll(ctx context.Context) ([]domain.BatchResultEntry, error) {
	s.mu.Lock()
	kind, doc, loadCtx := s.kind, s.doc, s.loadCtx
	converted := append([]domain.BatchResultEntry(nil), s.converted...)
	gen := s.store.Generation()
	s.mu.Unlock()

	switch kind {
	case domain.KindPDF:
	case domain.KindImage:
		return converted, nil
	default:
		return nil, domain.ValidationError("no document loaded", nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(loadCtx, cancel)
	defer stop()

	entries, err := s.batch.ProcessDocument(ctx, doc, s.emitProgress(domain.EventBatchProgress))
	if loadCtx.Err() != nil {
		err = domain.BatchError(fmt.Sprintf("convert %s", doc.Name), store.ErrStale)
	}
	if err != nil {
		s.emitError(err)
		return nil, err
	}

	for _, e := range entries {
		img := e.Image
		// A lazy render still in flight keeps its Loading flag; the
		// dispatcher clears it.
		_, err := s.store.UpdateIn(gen, e.Index+1, func(st *domain.RenderState) {
			if st.Image == nil || st.Image.IsZero() {
				st.Image = &img
			}
		})
		if err != nil {
			err = domain.BatchError(fmt.Sprintf("convert %s", doc.Name), err)
			s.emitError(err)
			return nil, err
		}
	}

	s.emitEvent(domain.StreamEvent{
		Type:    domain.EventComplete,
		Payload: fmt.Sprintf("Converted %d pages", len(entries)),
	})
	return entries, nil
}

// Rotate adds delta degrees to page n.
func (s *Session) Rotate(n, delta int) (domain.Page, error) {
	return s.overlay.Rotate(n, delta)
}

// SetRotation sets the absolute rotation of page n.
func (s *Session) SetRotation(n, degrees int) (domain.Page, error) {
	return s.overlay.UpdateRotation(n, degrees)
}

// Crop cuts rect from page n as displayed.
func (s *Session) Crop(n int, rect domain.Rect) (domain.Page, error) {
	return s.overlay.Crop(n, rect)
}

// ApplyCrop stores an externally produced crop for page n.
func (s *Session) ApplyCrop(n int, cropped domain.ImageRef) (domain.Page, error) {
	return s.overlay.ApplyCrop(n, cropped)
}

// ToggleMirror flips page n horizontally.
func (s *Session) ToggleMirror(n int) (domain.Page, error) {
	return s.overlay.ToggleMirror(n)
}

// ResetEdits restores the original render of page n.
func (s *Session) ResetEdits(n int) (domain.Page, error) {
	return s.overlay.ResetEdits(n)
}

// Display returns page n as shown.
func (s *Session) Display(n int) (image.Image, error) {
	return s.overlay.Display(n)
}

// EligibleForOCR returns the pages text recognition runs on: cropped pages
// when crops are required, otherwise every page with an image.
func (s *Session) EligibleForOCR() []domain.OCRPage {
	meta, ok := s.store.Snapshot()
	if !ok {
		return nil
	}

	var pages []domain.OCRPage
	for _, p := range meta.Pages {
		if s.cfg.OCR.RequireCrop {
			if p.Cropped == nil || p.Cropped.IsZero() {
				continue
			}
			pages = append(pages, domain.OCRPage{PageNumber: p.PageNumber, Image: *p.Cropped})
			continue
		}
		if img, ok := p.EffectiveImage(); ok {
			pages = append(pages, domain.OCRPage{PageNumber: p.PageNumber, Image: img})
		}
	}
	return pages
}

// RecognizeText runs OCR over the eligible pages and keeps the result for
// ExportText.
func (s *Session) RecognizeText(ctx context.Context) (string, error) {
	pages := s.EligibleForOCR()
	text, err := s.ocr.Recognize(ctx, pages, s.emitProgress(domain.EventOCRProgress))
	if err != nil {
		s.emitError(err)
		return "", err
	}

	s.mu.Lock()
	s.text = text
	s.mu.Unlock()

	s.emitEvent(domain.StreamEvent{
		Type:    domain.EventComplete,
		Payload: fmt.Sprintf("Recognized text on %d pages", len(pages)),
	})
	return text, nil
}

// ExportText writes the last recognized text to dir and returns the path.
func (s *Session) ExportText(dir string) (string, error) {
	s.mu.Lock()
	text := s.text
	s.mu.Unlock()

	meta, ok := s.store.Snapshot()
	if !ok || text == "" {
		return "", domain.NoEligibleContentError("no recognized text to export")
	}
	return ocr.Export(dir, meta.Title, text)
}

// Clear unloads the current document.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Close unloads the document and stops the OCR pool.
func (s *Session) Close() error {
	s.Clear()
	return s.ocr.Close()
}

// notifyingRenderer reports lazy and explicit render outcomes as events.
type notifyingRenderer struct {
	session  *Session
	renderer domain.PageRenderer
}

func (r *notifyingRenderer) RenderPage(ctx context.Context, n int) (domain.ImageRef, error) {
	ref, err := r.renderer.RenderPage(ctx, n)
	if errors.Is(err, render.ErrClosed) || errors.Is(err, store.ErrStale) {
		return ref, err
	}
	if err != nil {
		r.session.emitEvent(domain.StreamEvent{
			Type:       domain.EventPageFailed,
			PageNumber: n,
			Payload:    err.Error(),
		})
		return ref, err
	}
	r.session.emitEvent(domain.StreamEvent{
		Type:       domain.EventPageRendered,
		PageNumber: n,
		Payload:    fmt.Sprintf("%dx%d", ref.Width, ref.Height),
	})
	return ref, nil
}
