// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Extractor holds a single extraction request. Its fields are set through
// [Extractor.SetSource] and [Extractor.SetDestination], which validate the
// paths immediately. An Extractor is not safe for concurrent use; create one
// per request instead.
type Extractor struct {
	config      *Config
	destination string
	source      string
}

// New returns an [Extractor] configured with opts.
func New(opts ...ConfigOption) *Extractor {
	return NewWithConfig(NewConfig(opts...))
}

// NewWithConfig returns an [Extractor] using cfg. A nil cfg is replaced by the
// default configuration.
func NewWithConfig(cfg *Config) *Extractor {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Extractor{config: cfg}
}

// Convert extracts the payload of source into destination.
func Convert(ctx context.Context, source, destination string, opts ...ConfigOption) error {
	e, err := New(opts...).SetSource(source)
	if err != nil {
		return err
	}
	if _, err := e.SetDestination(destination); err != nil {
		return err
	}
	return e.Save(ctx)
}

// Extract returns the payload of source.
func Extract(ctx context.Context, source string, opts ...ConfigOption) ([]byte, error) {
	e, err := New(opts...).SetSource(source)
	if err != nil {
		return nil, err
	}
	return e.Get(ctx)
}

// Config returns the configuration of e.
func (e *Extractor) Config() *Config {
	return e.config
}

// Destination returns the configured destination path.
func (e *Extractor) Destination() string {
	return e.destination
}

// Source returns the configured source path.
func (e *Extractor) Source() string {
	return e.source
}

// SetDestination validates and stores the destination path.
func (e *Extractor) SetDestination(path string) (*Extractor, error) {
	if err := checkDestination(path); err != nil {
		return e, err
	}
	e.destination = path
	return e, nil
}

// SetSource validates and stores the source path.
func (e *Extractor) SetSource(path string) (*Extractor, error) {
	if err := checkSource(path); err != nil {
		return e, err
	}
	e.source = path
	return e, nil
}

// Save runs the strategy chain and writes the payload to the destination. The
// content of the destination is undefined if an error is returned.
func (e *Extractor) Save(ctx context.Context) (err error) {
	td := &TelemetryData{Operation: OperationConvert}
	defer e.captureTelemetry(ctx, td, time.Now(), &err)

	if err := checkSource(e.source); err != nil {
		return err
	}
	if len(e.destination) == 0 {
		return fmt.Errorf("%w: empty path", ErrDestinationNotWritable)
	}
	if err := checkDestination(e.destination); err != nil {
		return err
	}
	if err := e.inspectSource(td); err != nil {
		return err
	}

	if err := runChain(ctx, e.config, e.config.Strategies(), e.source, e.destination, td); err != nil {
		return err
	}

	if fi, err := os.Stat(e.destination); err == nil {
		td.OutputSize = fi.Size()
	}
	e.config.Logger().Info("extracted p7m", "source", e.source, "destination", e.destination, "strategy", td.ExtractionStrategy)
	return nil
}

// Get runs the first strategy of the chain into a temporary file and returns
// its content. The temporary file is removed before Get returns.
func (e *Extractor) Get(ctx context.Context) (content []byte, err error) {
	td := &TelemetryData{Operation: OperationExtract}
	defer e.captureTelemetry(ctx, td, time.Now(), &err)

	if err := checkSource(e.source); err != nil {
		return nil, err
	}
	if err := e.inspectSource(td); err != nil {
		return nil, err
	}

	strategies := e.config.Strategies()
	if len(strategies) > 1 {
		strategies = strategies[:1]
	}

	artifact, err := newTemporaryArtifact(e.config.TempDir(), e.config.TempPrefix())
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := artifact.Remove(); rmErr != nil {
			e.config.Logger().Warn("failed to remove temporary file", "path", artifact.Path(), "err", rmErr)
		}
	}()

	if err := runChain(ctx, e.config, strategies, e.source, artifact.Path(), td); err != nil {
		return nil, err
	}

	content, err = artifact.ReadAll(e.config.MaxOutputSize())
	if err != nil {
		return nil, err
	}
	td.OutputSize = int64(len(content))
	e.config.Logger().Info("extracted p7m", "source", e.source, "bytes", len(content), "strategy", td.ExtractionStrategy)
	return content, nil
}

// inspectSource enforces the input size limit and records what the source
// looks like.
func (e *Extractor) inspectSource(td *TelemetryData) error {
	fi, err := os.Stat(e.source)
	if err != nil {
		return fmt.Errorf("%w `%s`: %v", ErrSourceNotFound, e.source, err)
	}
	td.InputSize = fi.Size()
	if err := e.config.CheckInputSize(fi.Size()); err != nil {
		return fmt.Errorf("%w: %d bytes", err, fi.Size())
	}

	td.InputType = detectInputType(e.source)
	e.config.Logger().Debug("inspected source", "path", e.source, "size", td.InputSize, "type", td.InputType)
	return nil
}

// captureTelemetry completes td and hands it to the telemetry hook.
func (e *Extractor) captureTelemetry(ctx context.Context, td *TelemetryData, start time.Time, err *error) {
	td.ExtractionDuration = time.Since(start)
	td.LastExtractionError = *err
	e.config.TelemetryHook()(ctx, td)
}
