// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	p7m "github.com/p7m-tools/go-p7m"
	"github.com/p7m-tools/go-p7m/mocks"
)

const testTool = "/usr/bin/openssl"

func TestConvertSourceNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl) // any call fails the test

	dir := t.TempDir()
	tests := []struct {
		name   string
		source string
	}{
		{name: "missing file", source: filepath.Join(dir, "missing.p7m")},
		{name: "empty path", source: ""},
		{name: "directory", source: dir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p7m.Convert(context.Background(), tt.source, filepath.Join(dir, "out"), p7m.WithRunner(runner))
			assert.ErrorIs(t, err, p7m.ErrSourceNotFound)

			_, err = p7m.Extract(context.Background(), tt.source, p7m.WithRunner(runner))
			assert.ErrorIs(t, err, p7m.ErrSourceNotFound)
		})
	}
}

func TestConvertUnreadableSource(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	require.NoError(t, os.Chmod(source, 0o200))

	_, err := p7m.Extract(context.Background(), source, p7m.WithRunner(runner))
	assert.ErrorIs(t, err, p7m.ErrSourceNotFound)
}

func TestConvertDestinationNotWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	destination := filepath.Join(t.TempDir(), "readonly.pdf")
	require.NoError(t, os.WriteFile(destination, []byte("keep"), 0o400))

	err := p7m.Convert(context.Background(), source, destination, p7m.WithRunner(runner))
	assert.ErrorIs(t, err, p7m.ErrDestinationNotWritable)

	content, err := os.ReadFile(destination)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(content))
}

func TestConvertDestinationIsDirectory(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	err := p7m.Convert(context.Background(), source, t.TempDir(), p7m.WithRunner(runner))
	assert.ErrorIs(t, err, p7m.ErrDestinationNotWritable)
}

func TestSetSourceValidatesImmediately(t *testing.T) {
	e := p7m.New()
	_, err := e.SetSource(filepath.Join(t.TempDir(), "missing.p7m"))
	assert.ErrorIs(t, err, p7m.ErrSourceNotFound)
	assert.Empty(t, e.Source())

	source := newTestSource(t, []byte("envelope"))
	_, err = e.SetSource(source)
	require.NoError(t, err)
	assert.Equal(t, source, e.Source())

	destination := filepath.Join(t.TempDir(), "new.pdf")
	_, err = e.SetDestination(destination)
	require.NoError(t, err)
	assert.Equal(t, destination, e.Destination())
}

func TestSaveWithoutDestination(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	e, err := p7m.New(p7m.WithRunner(runner)).SetSource(newTestSource(t, []byte("envelope")))
	require.NoError(t, err)
	assert.ErrorIs(t, e.Save(context.Background()), p7m.ErrDestinationNotWritable)
}

func TestConvertStrategySMIMEBinarySucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	destination := filepath.Join(t.TempDir(), "document.pdf")

	runner.EXPECT().
		Run(gomock.Any(), smimeBinaryCommand(source, destination)).
		Return(&p7m.CommandResult{}, nil).
		Times(1)

	var td *p7m.TelemetryData
	err := p7m.Convert(context.Background(), source, destination,
		p7m.WithRunner(runner),
		p7m.WithTelemetryHook(func(ctx context.Context, d *p7m.TelemetryData) { td = d }),
	)
	require.NoError(t, err)
	require.NotNil(t, td)
	assert.Equal(t, p7m.OperationConvert, td.Operation)
	assert.Equal(t, p7m.StrategySMIMEBinary, td.ExtractionStrategy)
	assert.EqualValues(t, 1, td.StrategyAttempts)
	assert.EqualValues(t, len("envelope"), td.InputSize)
	assert.NoError(t, td.LastExtractionError)
}

func TestConvertFallsBackToCMS(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	destination := filepath.Join(t.TempDir(), "document.pdf")

	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), smimeBinaryCommand(source, destination)).Return(exitResult(4, "Verification failure")),
		runner.EXPECT().Run(gomock.Any(), cmsCommand(source, destination)).DoAndReturn(writeOutput([]byte("payload"))),
	)

	var td *p7m.TelemetryData
	err := p7m.Convert(context.Background(), source, destination,
		p7m.WithRunner(runner),
		p7m.WithTelemetryHook(func(ctx context.Context, d *p7m.TelemetryData) { td = d }),
	)
	require.NoError(t, err)
	assert.Equal(t, p7m.StrategyCMSNoAttrVerify, td.ExtractionStrategy)
	assert.EqualValues(t, 2, td.StrategyAttempts)
	assert.EqualValues(t, len("payload"), td.OutputSize)

	content, err := os.ReadFile(destination)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestConvertFallsBackToBase64Stdin(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("TUlJ\r\nQUFB\r\n"))
	destination := filepath.Join(t.TempDir(), "document.pdf")
	normalized := []byte("TUlJ\nQUFB\n")
	decoded := []byte{0x30, 0x82, 0x01}

	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), smimeBinaryCommand(source, destination)).Return(exitResult(4, "Error reading S/MIME message")),
		runner.EXPECT().Run(gomock.Any(), cmsCommand(source, destination)).Return(exitResult(2, "Error reading SMIME Content Info")),
		runner.EXPECT().Run(gomock.Any(), sedCommand(source)).Return(&p7m.CommandResult{Stdout: normalized}, nil),
		// decoding trailing garbage fails but still yields the envelope
		runner.EXPECT().Run(gomock.Any(), p7m.Command{Name: "base64", Args: []string{"-d"}, Stdin: normalized}).
			Return(&p7m.CommandResult{Stdout: decoded, Stderr: []byte("base64: invalid input"), ExitCode: 1}, errors.New("exit status 1")),
		runner.EXPECT().Run(gomock.Any(), smimeStdinCommand(destination, decoded)).Return(&p7m.CommandResult{}, nil),
	)

	var td *p7m.TelemetryData
	err := p7m.Convert(context.Background(), source, destination,
		p7m.WithRunner(runner),
		p7m.WithTelemetryHook(func(ctx context.Context, d *p7m.TelemetryData) { td = d }),
	)
	require.NoError(t, err)
	assert.Equal(t, p7m.StrategyBase64Stdin, td.ExtractionStrategy)
	assert.EqualValues(t, 3, td.StrategyAttempts)
}

func TestConvertSedFailureEndsChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	destination := filepath.Join(t.TempDir(), "document.pdf")

	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), smimeBinaryCommand(source, destination)).Return(exitResult(4, "")),
		runner.EXPECT().Run(gomock.Any(), cmsCommand(source, destination)).Return(exitResult(2, "")),
		runner.EXPECT().Run(gomock.Any(), sedCommand(source)).Return(exitResult(2, "sed: can't read")),
	)

	err := p7m.Convert(context.Background(), source, destination, p7m.WithRunner(runner))
	require.ErrorIs(t, err, p7m.ErrExtractionFailed)

	var extractionErr *p7m.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, p7m.StrategyBase64Stdin, extractionErr.Strategy)
	assert.True(t, strings.HasPrefix(extractionErr.Command, "sed "))
	assert.Equal(t, 2, extractionErr.ExitCode)
}

func TestConvertDecodedOutputOverLimitEndsChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("TUlJ\r\n"))
	destination := filepath.Join(t.TempDir(), "document.pdf")

	// the truncated pipe kills base64 with SIGPIPE; the final verification must not run
	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), smimeBinaryCommand(source, destination)).Return(exitResult(4, "")),
		runner.EXPECT().Run(gomock.Any(), cmsCommand(source, destination)).Return(exitResult(2, "")),
		runner.EXPECT().Run(gomock.Any(), sedCommand(source)).Return(&p7m.CommandResult{Stdout: []byte("TUlJ\n")}, nil),
		runner.EXPECT().Run(gomock.Any(), p7m.Command{Name: "base64", Args: []string{"-d"}, Stdin: []byte("TUlJ\n")}).
			Return(&p7m.CommandResult{Stdout: []byte{0x30}, ExitCode: 141}, fmt.Errorf("base64: %w", p7m.ErrMaxOutputSizeExceeded)),
	)

	err := p7m.Convert(context.Background(), source, destination, p7m.WithRunner(runner))
	require.ErrorIs(t, err, p7m.ErrMaxOutputSizeExceeded)
	require.ErrorIs(t, err, p7m.ErrExtractionFailed)

	var extractionErr *p7m.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, p7m.StrategyBase64Stdin, extractionErr.Strategy)
	assert.Equal(t, 141, extractionErr.ExitCode)
}

func TestConvertExhaustedChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("definitely not a p7m"))
	destination := filepath.Join(t.TempDir(), "document.pdf")

	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), smimeBinaryCommand(source, destination)).Return(exitResult(4, "first")),
		runner.EXPECT().Run(gomock.Any(), cmsCommand(source, destination)).Return(exitResult(2, "second")),
		runner.EXPECT().Run(gomock.Any(), sedCommand(source)).Return(&p7m.CommandResult{Stdout: []byte("garbage")}, nil),
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&p7m.CommandResult{ExitCode: 1}, errors.New("exit status 1")),
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(exitResult(4, "Error reading S/MIME message")),
	)

	var td *p7m.TelemetryData
	err := p7m.Convert(context.Background(), source, destination,
		p7m.WithRunner(runner),
		p7m.WithTelemetryHook(func(ctx context.Context, d *p7m.TelemetryData) { td = d }),
	)
	require.ErrorIs(t, err, p7m.ErrExtractionFailed)
	assert.Contains(t, err.Error(), "Error reading S/MIME message")

	var extractionErr *p7m.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, p7m.StrategyBase64Stdin, extractionErr.Strategy)
	assert.Equal(t, 4, extractionErr.ExitCode)
	assert.Equal(t, "Error reading S/MIME message", extractionErr.Output())

	assert.Empty(t, td.ExtractionStrategy)
	assert.EqualValues(t, 3, td.StrategyAttempts)
	assert.ErrorIs(t, td.LastExtractionError, p7m.ErrExtractionFailed)
}

func TestConvertLegacyChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	destination := filepath.Join(t.TempDir(), "document.pdf")

	runner.EXPECT().Run(gomock.Any(), smimeBinaryCommand(source, destination)).Return(exitResult(4, "")).Times(1)

	err := p7m.Convert(context.Background(), source, destination,
		p7m.WithRunner(runner),
		p7m.WithStrategies(p7m.ChainLegacy()...),
	)
	assert.ErrorIs(t, err, p7m.ErrExtractionFailed)
}

func TestConvertMaxInputSize(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	err := p7m.Convert(context.Background(), source, filepath.Join(t.TempDir(), "out"),
		p7m.WithRunner(runner),
		p7m.WithMaxInputSize(4),
	)
	assert.ErrorIs(t, err, p7m.ErrMaxInputSizeExceeded)
}

func TestConvertCanceledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := newTestSource(t, []byte("envelope"))
	err := p7m.Convert(ctx, source, filepath.Join(t.TempDir(), "out"), p7m.WithRunner(runner))
	assert.ErrorIs(t, err, p7m.ErrExtractionFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertAppliesTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	destination := filepath.Join(t.TempDir(), "out")

	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, cmd p7m.Command) (*p7m.CommandResult, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "expected a deadline on the command context")
		return &p7m.CommandResult{}, nil
	})

	err := p7m.Convert(context.Background(), source, destination,
		p7m.WithRunner(runner),
		p7m.WithTimeout(time.Minute),
	)
	require.NoError(t, err)
}

func TestExtractRunsFirstStrategyOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	tempDir := t.TempDir()

	var artifact string
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, cmd p7m.Command) (*p7m.CommandResult, error) {
		artifact = outArg(cmd)
		assert.Equal(t, testTool, cmd.Name)
		assert.Equal(t, smimeBinaryCommand(source, artifact), cmd)
		return writeOutput([]byte("payload"))(ctx, cmd)
	}).Times(1)

	var td *p7m.TelemetryData
	e, err := p7m.New(
		p7m.WithRunner(runner),
		p7m.WithTempDir(tempDir),
		p7m.WithTelemetryHook(func(ctx context.Context, d *p7m.TelemetryData) { td = d }),
	).SetSource(source)
	require.NoError(t, err)

	content, err := e.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))

	assert.True(t, strings.HasPrefix(filepath.Base(artifact), "p7m"))
	assert.Equal(t, tempDir, filepath.Dir(artifact))
	assert.NoFileExists(t, artifact)
	assert.Empty(t, e.Destination())

	assert.Equal(t, p7m.OperationExtract, td.Operation)
	assert.EqualValues(t, len("payload"), td.OutputSize)
}

func TestExtractFailureRemovesArtifact(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	tempDir := t.TempDir()

	// the fallback strategies are never tried for in-memory extraction
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(exitResult(4, "Verification failure")).Times(1)

	_, err := p7m.Extract(context.Background(), source, p7m.WithRunner(runner), p7m.WithTempDir(tempDir))
	assert.ErrorIs(t, err, p7m.ErrExtractionFailed)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractMaxOutputSize(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	tempDir := t.TempDir()

	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(writeOutput([]byte("0123456789abcdef")))

	_, err := p7m.Extract(context.Background(), source,
		p7m.WithRunner(runner),
		p7m.WithTempDir(tempDir),
		p7m.WithMaxOutputSize(10),
	)
	assert.ErrorIs(t, err, p7m.ErrMaxOutputSizeExceeded)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractMatchesConvert(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)

	source := newTestSource(t, []byte("envelope"))
	destination := filepath.Join(t.TempDir(), "document.pdf")
	payload := []byte("%PDF-1.7 payload")

	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(writeOutput(payload)).Times(3)

	for i := 0; i < 2; i++ {
		require.NoError(t, p7m.Convert(context.Background(), source, destination, p7m.WithRunner(runner)))
	}
	written, err := os.ReadFile(destination)
	require.NoError(t, err)

	content, err := p7m.Extract(context.Background(), source, p7m.WithRunner(runner))
	require.NoError(t, err)
	assert.Equal(t, written, content)
}

// newTestSource writes content to a fresh P7M file and returns its path.
func newTestSource(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "document.pdf.p7m")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func smimeBinaryCommand(source, destination string) p7m.Command {
	return p7m.Command{
		Name: testTool,
		Args: []string{"smime", "-verify", "-noverify", "-binary", "-in", source, "-inform", "DER", "-out", destination},
	}
}

func cmsCommand(source, destination string) p7m.Command {
	return p7m.Command{
		Name: testTool,
		Args: []string{"cms", "-verify", "-noverify", "-in", source, "-inform", "DER", "-out", destination, "-no_attr_verify"},
	}
}

func sedCommand(source string) p7m.Command {
	return p7m.Command{Name: "sed", Args: []string{"-e", `s/\r//`, source}}
}

func smimeStdinCommand(destination string, stdin []byte) p7m.Command {
	return p7m.Command{
		Name:  testTool,
		Args:  []string{"smime", "-verify", "-inform", "DER", "-noverify", "-out", destination},
		Stdin: stdin,
	}
}

// exitResult mimics a command that exited with code and printed stderr.
func exitResult(code int, stderr string) (*p7m.CommandResult, error) {
	return &p7m.CommandResult{ExitCode: code, Stderr: []byte(stderr)}, fmt.Errorf("exit status %d", code)
}

// writeOutput mimics a successful verification that writes payload to -out.
func writeOutput(payload []byte) func(context.Context, p7m.Command) (*p7m.CommandResult, error) {
	return func(ctx context.Context, cmd p7m.Command) (*p7m.CommandResult, error) {
		if err := os.WriteFile(outArg(cmd), payload, 0o600); err != nil {
			return &p7m.CommandResult{ExitCode: 1, Stderr: []byte(err.Error())}, err
		}
		return &p7m.CommandResult{}, nil
	}
}

func outArg(cmd p7m.Command) string {
	for i, arg := range cmd.Args {
		if arg == "-out" && i+1 < len(cmd.Args) {
			return cmd.Args[i+1]
		}
	}
	return ""
}
