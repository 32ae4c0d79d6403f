package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pagebook/internal/domain"
)

// fakeRecognizer reads the page text from the image bytes. Pages finish in
// reverse order: the higher the page, the shorter the delay.
type fakeRecognizer struct {
	closed *atomic.Int32
	fail   string
}

func (r *fakeRecognizer) RecognizeText(ctx context.Context, img domain.ImageRef) (string, error) {
	text := string(img.Data)
	if text == r.fail {
		return "", errors.New("unreadable")
	}
	delay := time.Duration(len(img.MIMEType)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return text, nil
}

func (r *fakeRecognizer) Close() error {
	r.closed.Add(1)
	return nil
}

type fakePool struct {
	created atomic.Int32
	closed  atomic.Int32
	fail    string
}

func (p *fakePool) factory() (Recognizer, error) {
	p.created.Add(1)
	return &fakeRecognizer{closed: &p.closed, fail: p.fail}, nil
}

func pagesReversed(n int) []domain.OCRPage {
	pages := make([]domain.OCRPage, n)
	for i := range pages {
		num := i + 1
		pages[i] = domain.OCRPage{
			PageNumber: num,
			// MIME length drives the delay; later pages finish first.
			Image: domain.ImageRef{MIMEType: fmt.Sprintf("%*s", (n-num+1)*5, ""), Data: []byte(fmt.Sprintf("text of %d", num))},
		}
	}
	return pages
}

func TestOptions_PoolSize(t *testing.T) {
	assert.Equal(t, 3, Options{Parallelism: 4}.PoolSize())
	assert.Equal(t, 1, Options{Parallelism: 1}.PoolSize())
	assert.Equal(t, 6, Options{Workers: 6, Parallelism: 2}.PoolSize())
}

func TestRecognize_OrderedUnderReverseCompletion(t *testing.T) {
	pool := &fakePool{}
	c := NewCoordinator(pool.factory, Options{Parallelism: 5}, nil)
	defer c.Close()

	var mu sync.Mutex
	var percents []int
	out, err := c.Recognize(context.Background(), pagesReversed(4), func(p domain.Progress) {
		mu.Lock()
		percents = append(percents, p.Percent)
		mu.Unlock()
	})
	require.NoError(t, err)

	want := "--- Page 1 ---\n\ntext of 1\n\n" +
		"--- Page 2 ---\n\ntext of 2\n\n" +
		"--- Page 3 ---\n\ntext of 3\n\n" +
		"--- Page 4 ---\n\ntext of 4\n\n"
	assert.Equal(t, want, out)
	assert.Equal(t, []int{25, 50, 75, 100}, percents)
	assert.Equal(t, int32(4), pool.created.Load())
}

func TestRecognize_EmptySetCreatesNoWorkers(t *testing.T) {
	pool := &fakePool{}
	c := NewCoordinator(pool.factory, Options{Parallelism: 4}, nil)
	defer c.Close()

	_, err := c.Recognize(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, domain.IsNoEligibleContent(err))
	assert.False(t, c.Started())
	assert.Zero(t, pool.created.Load())
}

func TestRecognize_PoolIsReused(t *testing.T) {
	pool := &fakePool{}
	c := NewCoordinator(pool.factory, Options{Workers: 2}, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Recognize(context.Background(), pagesReversed(3), nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), pool.created.Load())

	require.NoError(t, c.Close())
	assert.Equal(t, int32(2), pool.closed.Load())

	_, err := c.Recognize(context.Background(), pagesReversed(1), nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeOCR))
}

func TestRecognize_FirstErrorAborts(t *testing.T) {
	pool := &fakePool{fail: "text of 2"}
	c := NewCoordinator(pool.factory, Options{Workers: 2}, nil)
	defer c.Close()

	out, err := c.Recognize(context.Background(), pagesReversed(5), nil)
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, err.Error(), "page 2")

	// The pool survives a failed run.
	out, err = c.Recognize(context.Background(), pagesReversed(1), nil)
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\n\ntext of 1\n\n", out)
	assert.Equal(t, int32(2), pool.created.Load())
}

func TestRecognize_FactoryFailure(t *testing.T) {
	c := NewCoordinator(func() (Recognizer, error) { return nil, ErrOCRNotEnabled }, Options{Workers: 2}, nil)
	_, err := c.Recognize(context.Background(), pagesReversed(1), nil)
	assert.ErrorIs(t, err, ErrOCRNotEnabled)
	assert.False(t, c.Started())
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	path, err := Export(dir, "Field Notes.pdf", "--- Page 1 ---\n\nhéllo\n\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Field Notes.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\n\nhéllo\n\n", string(data))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "book.txt", FileName("book.pdf"))
	assert.Equal(t, "a_b.txt", FileName("a/b.png"))
	assert.Equal(t, "document.txt", FileName(""))
	assert.Equal(t, "archive.tar.txt", FileName("archive.tar.gz"))
}
