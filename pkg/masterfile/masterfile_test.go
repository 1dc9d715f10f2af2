package masterfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadMissingFileReturnsEmpty(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "does-not-exist"))
	addr, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "" {
		t.Errorf("expected empty address for missing file, got %q", addr)
	}
}

func TestWriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master")
	f := New(path)

	if err := f.Write("10.0.0.1:6379"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	addr, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if addr != "10.0.0.1:6379" {
		t.Errorf("Read() = %q, want %q", addr, "10.0.0.1:6379")
	}
}

func TestWriteOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master")
	f := New(path)

	if err := f.Write("a:1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Write("b:2"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	addr, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if addr != "b:2" {
		t.Errorf("Read() = %q, want %q", addr, "b:2")
	}

	// No stray temp files should survive a successful write.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "master" {
			t.Errorf("unexpected stray file left behind: %s", e.Name())
		}
	}
}

func TestReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f := New(path)
	addr, err := f.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if addr != "" {
		t.Errorf("expected empty address for empty file, got %q", addr)
	}
}
