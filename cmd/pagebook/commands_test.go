package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pagebook/internal/domain"
	"github.com/spherical/pagebook/internal/lazy"
)

func TestParsePages(t *testing.T) {
	got, err := parsePages("1, 3,9")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 9}, got)

	got, err = parsePages("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parsePages("1,x")
	assert.Error(t, err)
	_, err = parsePages("0")
	assert.Error(t, err)
}

func TestParseRect(t *testing.T) {
	r, err := parseRect("10,20,300,400")
	require.NoError(t, err)
	assert.Equal(t, &domain.Rect{X: 10, Y: 20, Width: 300, Height: 400}, r)

	r, err = parseRect("")
	require.NoError(t, err)
	assert.Nil(t, r)

	for _, bad := range []string{"1,2,3", "a,b,c,d", "0,0,0,10"} {
		_, err := parseRect(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseViewport(t *testing.T) {
	vp, err := parseViewport("1200:800")
	require.NoError(t, err)
	assert.Equal(t, lazy.Viewport{Top: 1200, Height: 800}, vp)

	_, err = parseViewport("1200")
	assert.Error(t, err)
	_, err = parseViewport("0:-1")
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpg", extension("image/jpeg"))
	assert.Equal(t, ".png", extension("image/png"))
	assert.Equal(t, ".img", extension("application/octet-stream"))
}
