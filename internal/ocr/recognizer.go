// Package ocr extracts text from page images with a pool of recognizers.
//
// The Tesseract backend requires the "ocr" build tag and a local Tesseract
// installation:
//
//	go build -tags ocr ./cmd/pagebook
//
// Without the tag NewTesseract returns ErrOCRNotEnabled.
package ocr

import (
	"context"
	"errors"

	"github.com/spherical/pagebook/internal/domain"
)

// ErrOCRNotEnabled is returned when the binary was built without OCR support.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// Recognizer turns an image into text. A recognizer is used by one
// goroutine at a time.
type Recognizer interface {
	RecognizeText(ctx context.Context, img domain.ImageRef) (string, error)
	Close() error
}

// Factory creates a recognizer for one pool worker.
type Factory func() (Recognizer, error)
