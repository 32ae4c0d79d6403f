package ocr

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/pagebook/internal/domain"
)

// FileName returns the export file name for a document title: the title
// without its extension, with a .txt suffix.
func FileName(title string) string {
	base := strings.TrimSuffix(title, filepath.Ext(title))
	base = strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(base))
	if base == "" {
		base = "document"
	}
	return base + ".txt"
}

// Export writes text to dir as UTF-8 and returns the written path.
func Export(dir, title, text string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.IOError("failed to create export directory", err)
	}
	path := filepath.Join(dir, FileName(title))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", domain.IOError("failed to write text export", err)
	}
	return path, nil
}
