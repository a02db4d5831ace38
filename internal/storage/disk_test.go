package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirUsageBytes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.hnsw"), make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.chunks.json"), make([]byte, 50), 0644); err != nil {
		t.Fatal(err)
	}
	// Nested directories are not part of the store and are ignored.
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "ignored"), make([]byte, 25), 0644); err != nil {
		t.Fatal(err)
	}
	n, err := DirUsageBytes(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 150 {
		t.Errorf("DirUsageBytes=%d", n)
	}
}

func TestDirUsageBytes_MissingDir(t *testing.T) {
	n, err := DirUsageBytes(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("DirUsageBytes=%d for missing dir", n)
	}
}
