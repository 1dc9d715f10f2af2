// Package masterfile persists the single-line on-disk record of the last
// promoted Redis master (spec.md §4.7).
package masterfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File is a one-line host:port record read at startup and rewritten
// atomically after every successful master switch.
type File struct {
	path string
}

// New wraps path as a masterfile.File. It does not touch the filesystem.
func New(path string) *File {
	return &File{path: path}
}

// Read returns the recorded address, or "" if the file does not exist or is
// empty. A malformed (non-empty, unparseable) file is still returned
// verbatim; the caller decides whether it names a known endpoint.
func (f *File) Read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("masterfile: read %s: %w", f.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Write atomically records addr: the new content is written to a temp file
// in the same directory, then renamed over the target, so a crash mid-write
// never leaves a truncated or partially-written master file.
func (f *File) Write(addr string) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".masterfile-*")
	if err != nil {
		return fmt.Errorf("masterfile: create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.WriteString(addr + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("masterfile: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("masterfile: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("masterfile: rename into place: %w", err)
	}
	return nil
}
