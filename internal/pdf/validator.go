package pdf

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/spherical/pagebook/internal/domain"
)

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// Validator provides input validation for source files
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// Sniff determines the kind and MIME type of a file from its content.
func (v *Validator) Sniff(file domain.SourceFile) (domain.DocumentKind, string, error) {
	if len(file.Data) == 0 {
		return "", "", domain.UnsupportedFileTypeError(fmt.Sprintf("%s is empty", displayName(file)))
	}

	mimeType := detectContentType(file.Data)
	switch {
	case mimeType == "application/pdf":
		return domain.KindPDF, mimeType, nil
	case imageTypes[mimeType]:
		return domain.KindImage, mimeType, nil
	default:
		return "", mimeType, domain.UnsupportedFileTypeError(
			fmt.Sprintf("unsupported file type %s for %s; upload a PDF or image files", mimeType, displayName(file)))
	}
}

// ValidateSources accepts either a single PDF or one or more images. Every
// file is checked before any document is created.
func (v *Validator) ValidateSources(files []domain.SourceFile) (domain.DocumentKind, []*domain.Document, error) {
	if len(files) == 0 {
		return "", nil, domain.ValidationError("no files provided", nil)
	}

	kinds := make([]domain.DocumentKind, len(files))
	mimes := make([]string, len(files))
	pdfs := 0
	for i, f := range files {
		kind, mimeType, err := v.Sniff(f)
		if err != nil {
			return "", nil, err
		}
		kinds[i], mimes[i] = kind, mimeType
		if kind == domain.KindPDF {
			pdfs++
		}
	}

	if pdfs > 0 && len(files) > 1 {
		return "", nil, domain.UnsupportedFileTypeError("a PDF must be uploaded on its own, not mixed with other files")
	}

	docs := make([]*domain.Document, len(files))
	for i, f := range files {
		docs[i] = domain.NewDocument(displayNameAt(f, i), kinds[i], mimes[i], f.Data)
	}
	return kinds[0], docs, nil
}

// ValidateQuality validates image quality parameter
func (v *Validator) ValidateQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return domain.ValidationError(fmt.Sprintf("quality must be between 1 and 100, got %d", quality), nil)
	}
	return nil
}

// detectContentType returns the media type of data without parameters.
func detectContentType(data []byte) string {
	mimeType, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return mimeType
}

func displayName(f domain.SourceFile) string {
	if f.Name == "" {
		return "file"
	}
	return f.Name
}

func displayNameAt(f domain.SourceFile, i int) string {
	if f.Name == "" {
		return fmt.Sprintf("Image %d", i+1)
	}
	return f.Name
}
