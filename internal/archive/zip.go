// Package archive extracts fetched packages. The engine only sees the
// Extractor seam; the concrete format is zip.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Extractor unpacks an archive into a destination directory.
type Extractor interface {
	ExtractAll(archivePath, destDir string) error
}

// ZipExtractor extracts zip archives, preserving file modes and refusing
// entries that would escape destDir.
type ZipExtractor struct{}

func NewZipExtractor() *ZipExtractor { return &ZipExtractor{} }

func (z *ZipExtractor) ExtractAll(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("ZIP_OPEN: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("ZIP_DEST: %w", err)
	}
	for _, f := range r.File {
		if err := extractEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, destDir string) error {
	name := filepath.FromSlash(f.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("ZIP_ENTRY_PATH: entry %q escapes destination", f.Name)
	}
	target := filepath.Join(destDir, name)

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("ZIP_ENTRY_DIR: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("ZIP_ENTRY_DIR: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("ZIP_ENTRY_OPEN: %w", err)
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("ZIP_ENTRY_CREATE: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("ZIP_ENTRY_WRITE: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("ZIP_ENTRY_CLOSE: %w", err)
	}
	return nil
}

// Stem returns the archive file name without its extension, the directory
// name the package payload lives under after extraction.
func Stem(packageName string) string {
	return strings.TrimSuffix(packageName, filepath.Ext(packageName))
}
