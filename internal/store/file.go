package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruel/photometry/internal/nwb"
)

// WriteFile encodes f to path. The file is written to a temporary name in
// the same directory and renamed into place.
func WriteFile(path string, f *nwb.File, opts *Options) error {
	blob, err := Encode(f, opts)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		return errors.Join(fmt.Errorf("failed to write %s: %w", path, err), tmp.Close(), os.Remove(tmp.Name()))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmp.Name()))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename to %s: %w", path, err), os.Remove(tmp.Name()))
	}
	return nil
}

// ReadFile decodes the document stored at path.
func ReadFile(path string, opts *Options) (*nwb.File, *Report, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, r, err := Decode(blob, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, r, nil
}
