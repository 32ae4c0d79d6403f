package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/pagebook/internal/domain"
)

// nativeDPI is the resolution at which a page renders at scale 1.0.
const nativeDPI = 72.0

// FitzBackend implements the render backend using go-fitz (MuPDF).
type FitzBackend struct{}

// NewFitzBackend creates a new go-fitz backed renderer
func NewFitzBackend() *FitzBackend {
	return &FitzBackend{}
}

// Open decodes a PDF held in memory. Open failures are returned as
// document_open errors carrying a classified cause.
func (b *FitzBackend) Open(data []byte) (domain.DocumentHandle, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.DocumentOpenError(ClassifyOpenError(data, err), err)
	}

	if doc.NumPage() <= 0 {
		doc.Close()
		return nil, domain.DocumentOpenError(domain.OpenCauseInvalidStructure, errors.New("document has no pages"))
	}

	return &fitzDocument{doc: doc}, nil
}

// fitzDocument serializes access to the MuPDF context, which is not safe
// for concurrent use.
type fitzDocument struct {
	mu     sync.Mutex
	doc    *fitz.Document
	closed bool
}

func (d *fitzDocument) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	return d.doc.NumPage()
}

func (d *fitzDocument) RenderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, fmt.Errorf("invalid scale %v", scale)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("document is closed")
	}
	if pageNumber < 1 || pageNumber > d.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", pageNumber, d.doc.NumPage())
	}

	img, err := d.doc.ImageDPI(pageNumber-1, nativeDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", pageNumber, err)
	}
	return img, nil
}

// Close releases the MuPDF document
func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}
