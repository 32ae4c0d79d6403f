//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/spherical/pagebook/internal/domain"
)

// Enabled reports whether this build includes a recognizer.
const Enabled = true

// Tesseract recognizes text with a dedicated gosseract client.
type Tesseract struct {
	client *gosseract.Client
}

// NewTesseract creates a recognizer for the given language, such as "eng"
// or "eng+deu". Close it to release the engine.
func NewTesseract(language string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if language != "" {
		if err := client.SetLanguage(strings.Split(language, "+")...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set language %q: %w", language, err)
		}
	}
	return &Tesseract{client: client}, nil
}

// TesseractFactory returns a factory producing one client per worker.
func TesseractFactory(language string) Factory {
	return func() (Recognizer, error) {
		t, err := NewTesseract(language)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

func (t *Tesseract) RecognizeText(ctx context.Context, img domain.ImageRef) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := t.client.SetImageFromBytes(img.Data); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close releases OCR resources.
func (t *Tesseract) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
