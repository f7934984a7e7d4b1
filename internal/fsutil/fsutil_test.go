package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := AtomicWrite(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(blob) != "two" {
		t.Fatalf("expected replaced content, got %q", blob)
	}
	if Exists(path + ".tmp") {
		t.Fatalf("tmp file left behind")
	}
}

func TestCopyFileCreatesParentAndPreservesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "service.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o755); err != nil {
		t.Fatalf("write src failed: %v", err)
	}
	dst := filepath.Join(dir, "nested", "deep", "service.bin")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat dst failed: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Fatalf("expected mode 0755, got %v", info.Mode().Perm())
	}
	blob, _ := os.ReadFile(dst)
	if string(blob) != "payload" {
		t.Fatalf("unexpected copied content %q", blob)
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFile(filepath.Join(dir, "absent"), filepath.Join(dir, "out"))
	if err == nil {
		t.Fatalf("expected error for missing source")
	}
}
