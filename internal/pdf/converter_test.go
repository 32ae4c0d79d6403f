package pdf

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pagebook/internal/domain"
)

// TestFitzBackend_SamplePDF renders the first page of a real document.
// Point PAGEBOOK_SAMPLE_PDF at any PDF to run it.
func TestFitzBackend_SamplePDF(t *testing.T) {
	path := os.Getenv("PAGEBOOK_SAMPLE_PDF")
	if path == "" {
		t.Skip("PAGEBOOK_SAMPLE_PDF not set")
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	handle, err := NewFitzBackend().Open(data)
	require.NoError(t, err)
	defer handle.Close()

	require.Greater(t, handle.NumPages(), 0)

	small, err := handle.RenderPage(context.Background(), 1, 0.1)
	require.NoError(t, err)
	full, err := handle.RenderPage(context.Background(), 1, 1.5)
	require.NoError(t, err)

	assert.Greater(t, full.Bounds().Dx(), small.Bounds().Dx())
	assert.InDelta(t, float64(full.Bounds().Dx())/15, float64(small.Bounds().Dx()), 2)

	_, err = handle.RenderPage(context.Background(), handle.NumPages()+1, 1)
	assert.Error(t, err)

	require.NoError(t, handle.Close())
	assert.Zero(t, handle.NumPages())
}

func TestFitzBackend_OpenGarbage(t *testing.T) {
	if os.Getenv("PAGEBOOK_SAMPLE_PDF") == "" {
		t.Skip("PAGEBOOK_SAMPLE_PDF not set; MuPDF may be unavailable")
	}

	_, err := NewFitzBackend().Open([]byte("definitely not a pdf"))
	require.Error(t, err)
	assert.True(t, domain.IsDocumentOpen(err))
	assert.Equal(t, domain.OpenCauseInvalidStructure, domain.CauseOf(err))
}
