package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRotation(t *testing.T) {
	tests := map[int]int{
		0: 0, 90: 90, 180: 180, 270: 270, 360: 0,
		-90: 270, -270: 90, 450: 90, 720: 0,
		44: 0, 46: 90, 314: 270, 316: 0,
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeRotation(in), "degrees %d", in)
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 3))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(3, 3))
	assert.Equal(t, 6, Percent(1, 17))
	assert.Equal(t, 0, Percent(1, 0))
}

func TestPage_EffectiveImage(t *testing.T) {
	raw := &ImageRef{MIMEType: "image/jpeg", Data: []byte{1}, Width: 10, Height: 20}
	crop := &ImageRef{MIMEType: "image/png", Data: []byte{2}, Width: 5, Height: 5}

	var p Page
	_, ok := p.EffectiveImage()
	assert.False(t, ok)

	p.Image = raw
	got, ok := p.EffectiveImage()
	assert.True(t, ok)
	assert.Equal(t, *raw, got)

	p.Cropped = crop
	got, _ = p.EffectiveImage()
	assert.Equal(t, *crop, got)
}

func TestImageRef_DataURI(t *testing.T) {
	assert.Empty(t, ImageRef{}.DataURI())
	ref := ImageRef{MIMEType: "image/png", Data: []byte("hi")}
	assert.Equal(t, "data:image/png;base64,aGk=", ref.DataURI())
}

func TestErrorPredicates(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", DocumentOpenError(OpenCauseIncompleteData, errors.New("eof")))
	assert.True(t, IsDocumentOpen(wrapped))
	assert.Equal(t, OpenCauseIncompleteData, CauseOf(wrapped))
	assert.Contains(t, wrapped.Error(), "incomplete")

	render := PageRenderError(4, errors.New("boom"))
	assert.True(t, IsPageRender(render))
	assert.Equal(t, 4, render.PageNumber)
	assert.Equal(t, OpenCauseUnknown, CauseOf(render))

	assert.True(t, IsUnsupportedFileType(UnsupportedFileTypeError("nope")))
	assert.True(t, IsNoEligibleContent(NoEligibleContentError("empty")))
	assert.False(t, IsNoEligibleContent(errors.New("plain")))
}
