package domain

import (
	"context"
	"image"
)

// RenderBackend opens documents for rasterization.
type RenderBackend interface {
	// Open decodes document bytes. Each caller gets an independent handle.
	Open(data []byte) (DocumentHandle, error)
}

// DocumentHandle is an opened document. Handles must be safe for concurrent
// RenderPage calls.
type DocumentHandle interface {
	// NumPages returns the page count.
	NumPages() int

	// RenderPage rasterizes the 1-based page at the given scale, where 1.0
	// is the page's native size.
	RenderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error)

	// Close releases the decoded document.
	Close() error
}

// PageRenderer renders a single page on demand.
type PageRenderer interface {
	RenderPage(ctx context.Context, pageNumber int) (ImageRef, error)
}
