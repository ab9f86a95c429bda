// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// temporaryArtifact is the file an in-memory extraction writes to. It is
// owned by exactly one [Extractor.Get] call.
type temporaryArtifact struct {
	path string
}

// newTemporaryArtifact creates an empty file in dir whose name starts with prefix.
func newTemporaryArtifact(dir, prefix string) (*temporaryArtifact, error) {
	f, err := os.CreateTemp(dir, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to close temporary file: %w", err)
	}
	return &temporaryArtifact{path: f.Name()}, nil
}

// Path returns the location of the artifact.
func (a *temporaryArtifact) Path() string {
	return a.path
}

// ReadAll returns the content of the artifact. If the artifact holds more than
// limit bytes, [ErrMaxOutputSizeExceeded] is returned. (-1 to disable the check)
func (a *temporaryArtifact) ReadAll(limit int64) ([]byte, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open temporary file: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(newLimitErrorReader(f, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read temporary file: %w", err)
	}
	return b, nil
}

// Remove deletes the artifact. Removing an already deleted artifact is not an error.
func (a *temporaryArtifact) Remove() error {
	if err := os.Remove(a.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
