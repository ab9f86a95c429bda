// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSourceNotFound is returned when the source file is missing or unreadable.
	ErrSourceNotFound = errors.New("could not find or read p7m")

	// ErrDestinationNotWritable is returned when the destination exists and is not writable.
	ErrDestinationNotWritable = errors.New("could not write file")

	// ErrExtractionFailed is returned when every strategy of the chain failed.
	ErrExtractionFailed = errors.New("could not extract file")

	// ErrMaxInputSizeExceeded is returned when the source is larger than the configured maximum.
	ErrMaxInputSizeExceeded = errors.New("maximum input size exceeded")

	// ErrMaxOutputSizeExceeded is returned when a command produced more output than allowed.
	ErrMaxOutputSizeExceeded = errors.New("maximum output size exceeded")
)

// maxDiagnosticLength caps the stderr/stdout excerpt rendered by Error.
const maxDiagnosticLength = 500

// ExtractionError describes the last command that was attempted before the
// chain was exhausted. It matches [ErrExtractionFailed] with [errors.Is].
type ExtractionError struct {
	// Strategy is the name of the strategy the command belongs to
	Strategy string

	// Command is the command line that failed
	Command string

	// ExitCode is the exit status of the command, -1 if it did not start or was killed
	ExitCode int

	// Stdout and Stderr hold the captured output of the command
	Stdout []byte
	Stderr []byte

	// Err is the underlying error returned by the runner
	Err error
}

// Error renders the failed command and its diagnostics.
func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (strategy %s): command %q exited with code %d", ErrExtractionFailed, e.Strategy, e.Command, e.ExitCode)
	if msg := diagnostic(e.Stderr); msg != "" {
		fmt.Fprintf(&b, ": %s", msg)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports whether target is [ErrExtractionFailed].
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// Unwrap returns the underlying runner error.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Output returns the combined diagnostic output of the failed command.
func (e *ExtractionError) Output() string {
	return strings.TrimSpace(string(e.Stdout) + "\n" + string(e.Stderr))
}

func diagnostic(b []byte) string {
	msg := strings.TrimSpace(string(b))
	if len(msg) > maxDiagnosticLength {
		return msg[:maxDiagnosticLength] + "..."
	}
	return msg
}
