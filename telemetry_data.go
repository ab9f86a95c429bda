// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// OperationConvert marks telemetry of [Extractor.Save].
	OperationConvert = "convert"

	// OperationExtract marks telemetry of [Extractor.Get].
	OperationExtract = "extract"
)

// TelemetryData holds all telemetry data of an extraction.
type TelemetryData struct {
	// ExtractionDuration is the time it took to validate and extract the source
	ExtractionDuration time.Duration `json:"extraction_duration"`

	// ExtractionStrategy is the name of the strategy that succeeded
	ExtractionStrategy string `json:"extraction_strategy"`

	// InputSize is the size of the source file
	InputSize int64 `json:"input_size"`

	// InputType is the detected MIME type of the source file
	InputType string `json:"input_type"`

	// LastExtractionError is the error that ended the operation, if any
	LastExtractionError error `json:"last_extraction_error"`

	// Operation is either "convert" or "extract"
	Operation string `json:"operation"`

	// OutputSize is the size of the extracted payload
	OutputSize int64 `json:"output_size"`

	// StrategyAttempts is the number of strategies that have been tried
	StrategyAttempts int64 `json:"strategy_attempts"`
}

// String returns a string representation of [TelemetryData].
func (m TelemetryData) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (m TelemetryData) MarshalJSON() ([]byte, error) {
	var lastError string
	if m.LastExtractionError != nil {
		lastError = m.LastExtractionError.Error()
	}

	type Alias TelemetryData
	return json.Marshal(&struct {
		LastExtractionError string `json:"last_extraction_error"`
		*Alias
	}{
		LastExtractionError: lastError,
		Alias:               (*Alias)(&m),
	})
}

// TelemetryHook is a function type that performs operations on [TelemetryData]
// after an extraction has finished which can be used to submit the [TelemetryData]
// to a telemetry service, for example.
type TelemetryHook func(context.Context, *TelemetryData)

// Equals returns true if the given [TelemetryData] is equal to the receiver.
// The duration and the error are not compared.
func (td *TelemetryData) Equals(other *TelemetryData) bool {
	if td == nil && other == nil {
		return true
	}
	if td == nil || other == nil {
		return false
	}
	return td.ExtractionStrategy == other.ExtractionStrategy &&
		td.InputSize == other.InputSize &&
		td.InputType == other.InputType &&
		td.Operation == other.Operation &&
		td.OutputSize == other.OutputSize &&
		td.StrategyAttempts == other.StrategyAttempts
}
