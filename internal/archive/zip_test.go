package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkg.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	w := zip.NewWriter(f)
	for name, body := range entries {
		ew, err := w.Create(name)
		if err != nil {
			t.Fatalf("entry %s: %v", name, err)
		}
		if _, err := ew.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestExtractAll(t *testing.T) {
	src := writeZip(t, map[string]string{
		"StreamAgent/controller.bin": "controller payload",
		"StreamAgent/watchdog.bin":   "watchdog payload",
		"StreamAgent/docs/notes.txt": "notes",
	})
	dest := t.TempDir()
	if err := NewZipExtractor().ExtractAll(src, dest); err != nil {
		t.Fatalf("extract: %v", err)
	}
	blob, err := os.ReadFile(filepath.Join(dest, "StreamAgent", "controller.bin"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(blob) != "controller payload" {
		t.Fatalf("wrong content: %q", blob)
	}
	if _, err := os.Stat(filepath.Join(dest, "StreamAgent", "docs", "notes.txt")); err != nil {
		t.Fatalf("nested file missing: %v", err)
	}
}

func TestExtractRejectsEscapingEntry(t *testing.T) {
	src := writeZip(t, map[string]string{"../evil.bin": "nope"})
	dest := t.TempDir()
	err := NewZipExtractor().ExtractAll(src, dest)
	if err == nil {
		t.Fatalf("expected path escape error")
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "evil.bin")); statErr == nil {
		t.Fatalf("entry escaped destination")
	}
}

func TestExtractMissingArchive(t *testing.T) {
	err := NewZipExtractor().ExtractAll(filepath.Join(t.TempDir(), "absent.zip"), t.TempDir())
	if err == nil {
		t.Fatalf("expected open error")
	}
}

func TestStem(t *testing.T) {
	if got := Stem("StreamAgent.zip"); got != "StreamAgent" {
		t.Fatalf("stem: got %q", got)
	}
	if got := Stem("plain"); got != "plain" {
		t.Fatalf("stem without ext: got %q", got)
	}
}
