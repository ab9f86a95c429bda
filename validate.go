// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// checkSource returns [ErrSourceNotFound] if path is not a readable file.
func checkSource(path string) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrSourceNotFound)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w `%s`: %v", ErrSourceNotFound, path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w `%s`: is a directory", ErrSourceNotFound, path)
	}

	if err := readable(path); err != nil {
		return fmt.Errorf("%w `%s`: %v", ErrSourceNotFound, path, err)
	}
	return nil
}

// checkDestination returns [ErrDestinationNotWritable] if path exists and
// cannot be written. A missing destination is accepted.
func checkDestination(path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w `%s`: %v", ErrDestinationNotWritable, path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w `%s`: is a directory", ErrDestinationNotWritable, path)
	}

	if err := writable(path); err != nil {
		return fmt.Errorf("%w `%s`: %v", ErrDestinationNotWritable, path, err)
	}
	return nil
}
