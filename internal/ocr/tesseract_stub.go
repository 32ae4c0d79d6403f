//go:build !ocr

package ocr

import (
	"context"

	"github.com/spherical/pagebook/internal/domain"
)

// Enabled reports whether this build includes a recognizer.
const Enabled = false

// Tesseract is a placeholder when OCR is not enabled.
type Tesseract struct{}

// NewTesseract returns ErrOCRNotEnabled when built without the ocr tag.
func NewTesseract(language string) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

// TesseractFactory returns a factory that always fails with ErrOCRNotEnabled.
func TesseractFactory(language string) Factory {
	return func() (Recognizer, error) {
		return nil, ErrOCRNotEnabled
	}
}

// RecognizeText returns ErrOCRNotEnabled when built without the ocr tag.
func (t *Tesseract) RecognizeText(ctx context.Context, img domain.ImageRef) (string, error) {
	return "", ErrOCRNotEnabled
}

// Close is a no-op when built without the ocr tag.
func (t *Tesseract) Close() error {
	return nil
}
