package domain

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// DocumentKind distinguishes PDF sources from image files.
type DocumentKind string

const (
	KindPDF   DocumentKind = "pdf"
	KindImage DocumentKind = "image"
)

// SourceFile is a file handed to the session before sniffing.
type SourceFile struct {
	Name string
	Data []byte
}

// Document represents a loaded source file. It is immutable once created and
// shared read-only by every renderer of it.
type Document struct {
	ID       uuid.UUID
	Name     string
	Kind     DocumentKind
	MIMEType string
	Data     []byte
}

// NewDocument creates a document with a fresh ID.
func NewDocument(name string, kind DocumentKind, mimeType string, data []byte) *Document {
	return &Document{
		ID:       uuid.New(),
		Name:     name,
		Kind:     kind,
		MIMEType: mimeType,
		Data:     data,
	}
}

// ImageRef is an encoded raster image ready to bind to a display surface.
type ImageRef struct {
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

// IsZero reports whether the ref holds no image.
func (r ImageRef) IsZero() bool {
	return len(r.Data) == 0
}

// DataURI returns the image as a data: URI.
func (r ImageRef) DataURI() string {
	if r.IsZero() {
		return ""
	}
	return "data:" + r.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// PageMetadata describes a page. Width and height are advisory and
// superseded by the rendered image once available.
type PageMetadata struct {
	PageNumber int     `json:"page_number"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// RenderState is the mutable per-page render and edit state.
type RenderState struct {
	Image    *ImageRef `json:"-"`
	Loading  bool      `json:"is_loading"`
	Rotation int       `json:"rotation"`
	Mirrored bool      `json:"mirrored"`
	Cropped  *ImageRef `json:"-"`
}

// Page merges metadata and render state for one page.
type Page struct {
	PageMetadata
	RenderState
}

// EffectiveImage returns the crop result if present, else the raw render.
func (p Page) EffectiveImage() (ImageRef, bool) {
	if p.Cropped != nil && !p.Cropped.IsZero() {
		return *p.Cropped, true
	}
	if p.Image != nil && !p.Image.IsZero() {
		return *p.Image, true
	}
	return ImageRef{}, false
}

// HasImage reports whether the page has been rendered.
func (p Page) HasImage() bool {
	return p.Image != nil && !p.Image.IsZero()
}

// DocumentMetadata is the per-load aggregate of pages.
type DocumentMetadata struct {
	TotalPages int    `json:"total_pages"`
	Pages      []Page `json:"pages"`
	Title      string `json:"title"`
}

// BatchResultEntry is one unit produced by the batch processor. Index is
// 0-based and matches the final book page order.
type BatchResultEntry struct {
	Index int
	Image ImageRef
	Name  string
}

// Rect is a crop rectangle in pixels.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// OCRPage is one recognition job input.
type OCRPage struct {
	PageNumber int
	Image      ImageRef
}

// NormalizeRotation maps any degree value onto 0, 90, 180 or 270. Values
// that are not right angles are rounded to the nearest one.
func NormalizeRotation(degrees int) int {
	r := degrees % 360
	if r < 0 {
		r += 360
	}
	r = ((r + 45) / 90) * 90
	return r % 360
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart         EventType = "start"
	EventPageRendered  EventType = "page_rendered"
	EventPageFailed    EventType = "page_failed"
	EventBatchProgress EventType = "batch_progress"
	EventOCRProgress   EventType = "ocr_progress"
	EventError         EventType = "error"
	EventComplete      EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type       EventType   `json:"type"`
	PageNumber int         `json:"page_number,omitempty"`
	Progress   int         `json:"progress,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Progress is reported after every completed unit of a batch or OCR run.
type Progress struct {
	Done    int
	Total   int
	Percent int
	// Index is the 0-based unit that just completed; Name its label.
	Index int
	Name  string
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// Percent returns round(done/total*100).
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (done*200 + total) / (2 * total)
}
