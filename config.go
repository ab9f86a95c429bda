// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// ConfigOption is a function pointer to implement the option pattern
type ConfigOption func(*Config)

// Config provides a configuration struct and options to adjust the configuration.
//
// The configuration struct holds the location of the external tools, the strategy
// chain and the limits applied while extracting. The configuration options can be
// adjusted using the option pattern style.
type Config struct {
	// base64Path is the binary used to decode base64 wrapped envelopes
	base64Path string

	// logger stream for extraction
	logger logger

	// maxInputSize is the maximum size of the source file. It also caps the
	// output of intermediate pipe steps, which never exceeds the source size.
	// Set value to -1 to disable the check.
	maxInputSize int64

	// maxOutputSize is the maximum payload size read back from a temporary
	// artifact. Set value to -1 to disable the check.
	maxOutputSize int64

	// runner executes the external commands
	runner Runner

	// sedPath is the binary used to strip carriage returns from the source
	sedPath string

	// strategies is the ordered fallback chain
	strategies []Strategy

	// telemetryHook is a function to consume telemetry data after finished extraction
	// Important: do not adjust this value after extraction started
	telemetryHook TelemetryHook

	// tempDir is the directory for temporary artifacts, empty for os.TempDir
	tempDir string

	// tempPrefix is the file name prefix of temporary artifacts
	tempPrefix string

	// timeout limits every single command invocation. Zero disables the limit.
	timeout time.Duration

	// toolPath is the path to the cryptographic toolkit binary
	toolPath string
}

// Base64Path returns the binary used to decode base64 wrapped envelopes.
func (c *Config) Base64Path() string {
	return c.base64Path
}

// CheckInputSize checks if size exceeds the configured maximum. If the maximum is exceeded,
// a [ErrMaxInputSizeExceeded] error is returned.
func (c *Config) CheckInputSize(size int64) error {

	// check if disabled
	if c.MaxInputSize() == -1 {
		return nil
	}

	// check value
	if size > c.MaxInputSize() {
		return ErrMaxInputSizeExceeded
	}
	return nil
}

// Logger returns the logger.
func (c *Config) Logger() logger {
	return c.logger
}

// MaxInputSize returns the maximum size of the source file.
func (c *Config) MaxInputSize() int64 {
	return c.maxInputSize
}

// MaxOutputSize returns the maximum payload size read back by [Extractor.Get].
func (c *Config) MaxOutputSize() int64 {
	return c.maxOutputSize
}

// Runner returns the command runner. The default runner caps the standard
// output of every command at the maximum input size.
func (c *Config) Runner() Runner {
	if c.runner == nil {
		return NewExecRunner(c.maxInputSize)
	}
	return c.runner
}

// SedPath returns the binary used to strip carriage returns from the source.
func (c *Config) SedPath() string {
	return c.sedPath
}

// Strategies returns the ordered fallback chain.
func (c *Config) Strategies() []Strategy {
	return c.strategies
}

// TelemetryHook returns the telemetry hook.
func (c *Config) TelemetryHook() TelemetryHook {
	if c.telemetryHook == nil {
		return defaultTelemetryHook
	}
	return c.telemetryHook
}

// TempDir returns the directory for temporary artifacts. An empty value
// means [os.TempDir].
func (c *Config) TempDir() string {
	return c.tempDir
}

// TempPrefix returns the file name prefix of temporary artifacts.
func (c *Config) TempPrefix() string {
	return c.tempPrefix
}

// Timeout returns the limit for a single command invocation. Zero means no limit.
func (c *Config) Timeout() time.Duration {
	return c.timeout
}

// ToolPath returns the path to the cryptographic toolkit binary.
func (c *Config) ToolPath() string {
	return c.toolPath
}

const (
	DefaultToolPath   = "/usr/bin/openssl" // toolkit location if nothing else is configured
	DefaultSedPath    = "sed"              // resolved through PATH
	DefaultBase64Path = "base64"           // resolved through PATH

	defaultMaxInputSize  = 1 << (10 * 3) // 1 Gb
	defaultMaxOutputSize = 1 << (10 * 3) // 1 Gb
	defaultTempDir       = ""            // os.TempDir()
	defaultTempPrefix    = "p7m"
	defaultTimeout       = 0 // block until the command exits
)

var (
	// slog to discard
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	// no operation telemetry hook
	defaultTelemetryHook = func(ctx context.Context, d *TelemetryData) {
		// noop
	}
)

// NewConfig is a generator option that takes opts as adjustments of the
// default configuration in an option pattern style.
func NewConfig(opts ...ConfigOption) *Config {

	// setup default values
	config := &Config{
		base64Path:    DefaultBase64Path,
		logger:        defaultLogger,
		maxInputSize:  defaultMaxInputSize,
		maxOutputSize: defaultMaxOutputSize,
		sedPath:       DefaultSedPath,
		strategies:    ChainFull(),
		telemetryHook: defaultTelemetryHook,
		tempDir:       defaultTempDir,
		tempPrefix:    defaultTempPrefix,
		timeout:       defaultTimeout,
		toolPath:      DefaultToolPath,
	}

	// Loop through each option
	for _, opt := range opts {
		opt(config)
	}

	return config
}

// WithBase64Path options pattern function to set the base64 binary.
func WithBase64Path(path string) ConfigOption {
	return func(c *Config) {
		if len(path) > 0 {
			c.base64Path = path
		}
	}
}

// WithLogger options pattern function to set a custom logger.
func WithLogger(logger logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithMaxInputSize options pattern function to set the maximum size of the source file. (-1 to disable check)
func WithMaxInputSize(maxInputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxInputSize = maxInputSize
	}
}

// WithMaxOutputSize options pattern function to set the maximum payload size read
// back by [Extractor.Get]. The payload written by [Extractor.Save] goes to disk
// through the toolkit and is not capped. (-1 to disable check)
func WithMaxOutputSize(maxOutputSize int64) ConfigOption {
	return func(c *Config) {
		c.maxOutputSize = maxOutputSize
	}
}

// WithRunner options pattern function to replace the command runner.
func WithRunner(runner Runner) ConfigOption {
	return func(c *Config) {
		c.runner = runner
	}
}

// WithSedPath options pattern function to set the sed binary.
func WithSedPath(path string) ConfigOption {
	return func(c *Config) {
		if len(path) > 0 {
			c.sedPath = path
		}
	}
}

// WithStrategies options pattern function to set the ordered fallback chain.
// An empty list keeps the current chain.
func WithStrategies(strategies ...Strategy) ConfigOption {
	return func(c *Config) {
		if len(strategies) > 0 {
			c.strategies = append([]Strategy(nil), strategies...)
		}
	}
}

// WithTelemetryHook options pattern function to set a [TelemetryHook], which is called after extraction.
func WithTelemetryHook(hook TelemetryHook) ConfigOption {
	return func(c *Config) {
		c.telemetryHook = hook
	}
}

// WithTempDir options pattern function to set the directory for temporary artifacts.
func WithTempDir(dir string) ConfigOption {
	return func(c *Config) {
		c.tempDir = dir
	}
}

// WithTempPrefix options pattern function to set the file name prefix of temporary artifacts.
func WithTempPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		if len(prefix) > 0 {
			c.tempPrefix = prefix
		}
	}
}

// WithTimeout options pattern function to limit every command invocation. Zero or
// a negative value disables the limit.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		if timeout < 0 {
			timeout = 0
		}
		c.timeout = timeout
	}
}

// WithToolPath options pattern function to set the toolkit binary. An empty path
// keeps the current value.
func WithToolPath(path string) ConfigOption {
	return func(c *Config) {
		if len(path) > 0 {
			c.toolPath = path
		}
	}
}
