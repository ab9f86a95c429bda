// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/p7m-tools/go-p7m/cmd"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main start the p7m cli
func main() {
	cmd.Run(version, commit, date)
}
