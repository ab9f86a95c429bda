// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package p7m

import "io"

// limitErrorReader is a reader that returns [ErrMaxOutputSizeExceeded] if the
// underlying reader holds more than L bytes. If the limit is -1, all data from
// the original reader is read.
type limitErrorReader struct {
	R io.Reader // underlying reader
	L int64     // limit
	N int64     // number of bytes read
}

// Read reads from the underlying reader and fills up p.
func (l *limitErrorReader) Read(p []byte) (int, error) {
	m := l.L - l.N
	if l.L == -1 || m > int64(len(p)) {
		m = int64(len(p))
	}

	// limit reached, only acceptable if the underlying reader is drained
	if m == 0 && len(p) > 0 {
		var probe [1]byte
		if n, err := l.R.Read(probe[:]); n == 0 && err == io.EOF {
			return 0, io.EOF
		}
		return 0, ErrMaxOutputSizeExceeded
	}

	n, err := l.R.Read(p[:m])
	l.N += int64(n)
	return n, err
}

// ReadBytes returns how many bytes have been read from the underlying reader
func (l *limitErrorReader) ReadBytes() int64 {
	return l.N
}

// newLimitErrorReader returns a new limitErrorReader that reads from r
func newLimitErrorReader(r io.Reader, limit int64) *limitErrorReader {
	return &limitErrorReader{R: r, L: limit}
}
