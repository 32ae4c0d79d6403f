package domain

import (
	"errors"
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeDocumentOpen    ErrorType = "document_open"
	ErrorTypePageRender      ErrorType = "page_render"
	ErrorTypeUnsupportedFile ErrorType = "unsupported_file_type"
	ErrorTypeNoEligible      ErrorType = "no_eligible_content"
	ErrorTypeBatch           ErrorType = "batch"
	ErrorTypeOCR             ErrorType = "ocr"
	ErrorTypeConfig          ErrorType = "config"
	ErrorTypeIO              ErrorType = "io"
)

// OpenCause classifies why a document could not be opened.
type OpenCause string

const (
	OpenCausePasswordProtected OpenCause = "password_protected"
	OpenCauseInvalidStructure  OpenCause = "invalid_structure"
	OpenCauseIncompleteData    OpenCause = "incomplete_data"
	OpenCauseUnknown           OpenCause = "unknown"
)

// Message returns the user-facing explanation for the cause.
func (c OpenCause) Message() string {
	switch c {
	case OpenCausePasswordProtected:
		return "This PDF is password-protected and cannot be opened."
	case OpenCauseInvalidStructure:
		return "The PDF file structure is invalid or corrupted."
	case OpenCauseIncompleteData:
		return "The PDF file is incomplete or missing essential data."
	default:
		return "An unknown error occurred while processing the PDF."
	}
}

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error

	// Cause is set for document_open errors.
	Cause OpenCause
	// PageNumber is set for page_render errors.
	PageNumber int
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

// DocumentOpenError reports a document that could not be opened. The message
// is the human-readable text for cause.
func DocumentOpenError(cause OpenCause, err error) *DomainError {
	e := NewError(ErrorTypeDocumentOpen, cause.Message(), err)
	e.Cause = cause
	return e
}

func PageRenderError(pageNumber int, err error) *DomainError {
	e := NewError(ErrorTypePageRender, fmt.Sprintf("failed to render page %d", pageNumber), err)
	e.PageNumber = pageNumber
	return e
}

func UnsupportedFileTypeError(message string) *DomainError {
	return NewError(ErrorTypeUnsupportedFile, message, nil)
}

func NoEligibleContentError(message string) *DomainError {
	return NewError(ErrorTypeNoEligible, message, nil)
}

func BatchError(message string, err error) *DomainError {
	return NewError(ErrorTypeBatch, message, err)
}

func OCRError(message string, err error) *DomainError {
	return NewError(ErrorTypeOCR, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// IsType reports whether err is, or wraps, a DomainError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == errType
	}
	return false
}

func IsDocumentOpen(err error) bool { return IsType(err, ErrorTypeDocumentOpen) }

func IsPageRender(err error) bool { return IsType(err, ErrorTypePageRender) }

func IsUnsupportedFileType(err error) bool { return IsType(err, ErrorTypeUnsupportedFile) }

func IsNoEligibleContent(err error) bool { return IsType(err, ErrorTypeNoEligible) }

// CauseOf returns the open cause carried by a document_open error, or
// OpenCauseUnknown.
func CauseOf(err error) OpenCause {
	var de *DomainError
	if errors.As(err, &de) && de.Type == ErrorTypeDocumentOpen {
		return de.Cause
	}
	return OpenCauseUnknown
}
