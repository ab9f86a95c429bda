// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// maxStderrSize caps the captured diagnostics of a single command.
	maxStderrSize = 1 << 20 // 1 MiB

	// waitDelay bounds the wait for output pipes after the command was killed
	// or exited while descendants still hold them.
	waitDelay = time.Second
)

// Command is a single external program invocation.
type Command struct {
	// Name is the program to execute
	Name string

	// Args are passed to the program as is, without shell interpretation
	Args []string

	// Stdin is fed to the standard input of the program. A nil value
	// connects the null device.
	Stdin []byte
}

// String returns the command line of c.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// CommandResult holds the observable outcome of a finished command.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

//go:generate mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks

// Runner executes commands. Implementations must block until the command
// exited and return a non-nil error if it did not exit with status zero.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*CommandResult, error)
}

// ExecRunner runs commands as subprocesses of the current process.
type ExecRunner struct {
	maxOutputSize int64
}

// NewExecRunner returns a [Runner] that captures at most maxOutputSize bytes of
// standard output per command (-1 to disable the limit).
func NewExecRunner(maxOutputSize int64) *ExecRunner {
	return &ExecRunner{maxOutputSize: maxOutputSize}
}

// Run starts cmd, waits for it and captures its output. The process and its
// descendants are killed when ctx is done.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (*CommandResult, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.WaitDelay = waitDelay
	killProcessGroup(c)

	var stdout, stderr bytes.Buffer
	stdoutLimit := limitWriter(&stdout, r.maxOutputSize)
	c.Stdout = stdoutLimit
	c.Stderr = limitWriter(&stderr, maxStderrSize)
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	err := c.Run()
	res := &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(c),
	}

	// a closed pipe usually kills the writer with SIGPIPE, which hides the
	// short write behind an exit status
	if stdoutLimit.Exceeded() {
		return res, fmt.Errorf("%s: %w", cmd.Name, ErrMaxOutputSizeExceeded)
	}
	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", cmd.Name, ctxErr)
	}
	return res, fmt.Errorf("%s failed: %w", cmd.Name, err)
}

// exitCode returns the exit status of a finished command, or -1 if the
// command never started or was terminated by a signal.
func exitCode(c *exec.Cmd) int {
	if c.ProcessState == nil {
		return -1
	}
	return c.ProcessState.ExitCode()
}
