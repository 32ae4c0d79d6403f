package pdf

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/spherical/pagebook/internal/domain"
)

// ClassifyOpenError works out why a document failed to open. MuPDF only
// reports password protection precisely, so the remaining cases are decided
// by a structural read with pdfcpu.
func ClassifyOpenError(data []byte, openErr error) domain.OpenCause {
	if errors.Is(openErr, fitz.ErrNeedsPassword) {
		return domain.OpenCausePasswordProtected
	}
	if len(data) == 0 {
		return domain.OpenCauseIncompleteData
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return domain.OpenCauseInvalidStructure
	}
	if !bytes.Contains(tail(data, 2048), []byte("%%EOF")) {
		return domain.OpenCauseIncompleteData
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	_, err := api.ReadContext(bytes.NewReader(data), conf)
	if err == nil {
		return domain.OpenCauseUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password"):
		return domain.OpenCausePasswordProtected
	case errors.Is(err, io.ErrUnexpectedEOF), strings.Contains(msg, "eof"):
		return domain.OpenCauseIncompleteData
	default:
		return domain.OpenCauseInvalidStructure
	}
}

func tail(data []byte, n int) []byte {
	if len(data) <= n {
		return data
	}
	return data[len(data)-n:]
}
