// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package p7m

import "golang.org/x/sys/unix"

// readable checks read permission with access(2) for the real user.
func readable(path string) error {
	return unix.Access(path, unix.R_OK)
}

// writable checks write permission with access(2) for the real user.
func writable(path string) error {
	return unix.Access(path, unix.W_OK)
}
