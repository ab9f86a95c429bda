// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// detectInputType sniffs the MIME type of the file at path. DER envelopes are
// usually reported as application/pkcs7-signature, base64 wrapped ones as
// text/plain. An empty string is returned if detection failed.
func detectInputType(path string) string {
	m, err := mimetype.DetectFile(path)
	if err != nil || m == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(m.String()))
}
