// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package p7m

import "io"

// limitErrorWriter is a wrapper around an io.Writer that returns io.ErrShortWrite
// when the limit is reached. The runner uses it to cap captured command output.
type limitErrorWriter struct {
	W io.Writer // underlying writer
	L int64     // limit, negative for none
	N int64     // number of bytes written

	exceeded bool // bytes were dropped
}

// Write writes up to len(p) bytes from p to the underlying data stream. Once the
// limit is reached the remainder of p is dropped and io.ErrShortWrite is returned.
func (l *limitErrorWriter) Write(p []byte) (n int, err error) {
	if l.L < 0 {
		n, err = l.W.Write(p)
		l.N += int64(n)
		return n, err
	}

	if len(p) > 0 && l.N >= l.L {
		l.exceeded = true
		return 0, io.ErrShortWrite
	}

	// write the part that still fits
	if int64(len(p)) > l.L-l.N {
		l.exceeded = true
		n, err = l.W.Write(p[:l.L-l.N])
		if err == nil {
			err = io.ErrShortWrite
		}
		l.N += int64(n)
		return n, err
	}

	n, err = l.W.Write(p)
	l.N += int64(n)
	return n, err
}

// Exceeded reports whether any write was cut short by the limit. The writer
// stays valid to query after the writing side has gone away.
func (l *limitErrorWriter) Exceeded() bool {
	return l.exceeded
}

// limitWriter returns a writer that fails once maxSize bytes have been written.
// A negative maxSize disables the limit.
func limitWriter(w io.Writer, maxSize int64) *limitErrorWriter {
	return &limitErrorWriter{W: w, L: maxSize}
}
