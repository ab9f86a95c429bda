// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"

	p7m "github.com/p7m-tools/go-p7m"
)

const (
	commandConvert = "convert <source> <destination>"
	commandExtract = "extract <source>"
)

// CLI are the cli parameters for the p7m binary
type CLI struct {
	Base64        string           `optional:"" env:"P7M_BASE64" help:"Path to the base64 binary."`
	Chain         string           `optional:"" env:"P7M_CHAIN" help:"Strategy chain: full, legacy or a comma separated list of strategies."`
	Config        string           `optional:"" name:"config" help:"Path to a YAML configuration file."`
	MaxInputSize  int64            `optional:"" default:"1073741824" help:"Maximum source size that is allowed (in bytes). (disable check: -1)"`
	MaxOutputSize int64            `optional:"" default:"1073741824" help:"Maximum payload size read back by extract (in bytes). (disable check: -1)"`
	Metrics       bool             `short:"M" optional:"" default:"false" help:"Print metrics to log after extraction."`
	OpenSSL       string           `optional:"" name:"openssl" env:"P7M_OPENSSL" help:"Path to the openssl binary."`
	Sed           string           `optional:"" env:"P7M_SED" help:"Path to the sed binary."`
	TempDir       string           `optional:"" env:"P7M_TEMP_DIR" help:"Directory for temporary files."`
	Timeout       time.Duration    `optional:"" env:"P7M_TIMEOUT" help:"Time limit for every command invocation. (disable: 0)"`
	Verbose       bool             `short:"v" optional:"" help:"Verbose logging."`
	Version       kong.VersionFlag `short:"V" optional:"" help:"Print release version information."`

	Convert struct {
		Source      string `arg:"" name:"source" help:"Path to the P7M file."`
		Destination string `arg:"" name:"destination" help:"Path of the extracted payload."`
	} `cmd:"" help:"Extract the payload of a P7M file into a destination file."`

	Extract struct {
		Source string `arg:"" name:"source" help:"Path to the P7M file."`
	} `cmd:"" help:"Extract the payload of a P7M file and write it to stdout."`
}

// Settings returns the tool settings given on the command line or through the
// environment.
func (c *CLI) Settings() Settings {
	return Settings{
		OpenSSL: c.OpenSSL,
		Sed:     c.Sed,
		Base64:  c.Base64,
		Chain:   c.Chain,
		Timeout: c.Timeout,
		TempDir: c.TempDir,
	}
}

// kongOptions are shared between the binary and the tests.
func kongOptions(version, commit, date string) []kong.Option {
	return []kong.Option{
		kong.Name("p7m"),
		kong.Description("Extract the signed payload of P7M files"),
		kong.UsageOnError(),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s), commit %s, built at %s", filepath.Base(os.Args[0]), version, commit, date),
		},
	}
}

// Run the entrypoint into p7m as a cli tool
func Run(version, commit, date string) {
	var cli CLI
	kctx := kong.Parse(&cli, kongOptions(version, commit, date)...)

	// Check for verbose output
	logLevel := slog.LevelError
	if cli.Verbose {
		logLevel = slog.LevelDebug
	} else if cli.Metrics {
		logLevel = slog.LevelInfo
	}

	// setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// commands run in their own process group and only see the interrupt through ctx
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, kctx.Command(), &cli, logger, os.Stdout)
	stop()
	if err != nil {
		logger.Error("extraction failed", "err", err)
		os.Exit(1)
	}
}

// execute resolves the configuration and runs the selected command.
func execute(ctx context.Context, command string, cli *CLI, logger *slog.Logger, stdout io.Writer) error {
	fc, err := LoadConfigFile(cli.Config)
	if err != nil {
		return err
	}

	// flags and environment win over the file
	opts, err := fc.Settings().Overlay(cli.Settings()).Options()
	if err != nil {
		return err
	}

	// setup metrics hook
	metricsToLog := func(ctx context.Context, td *p7m.TelemetryData) {
		if cli.Metrics {
			logger.Info("extraction finished", "telemetry", td)
		}
	}

	opts = append(opts,
		p7m.WithLogger(logger),
		p7m.WithMaxInputSize(cli.MaxInputSize),
		p7m.WithMaxOutputSize(cli.MaxOutputSize),
		p7m.WithTelemetryHook(metricsToLog),
	)

	switch command {
	case commandConvert:
		err := p7m.Convert(ctx, cli.Convert.Source, cli.Convert.Destination, opts...)
		return errors.Wrapf(err, "converting %s", cli.Convert.Source)

	case commandExtract:
		content, err := p7m.Extract(ctx, cli.Extract.Source, opts...)
		if err != nil {
			return errors.Wrapf(err, "extracting %s", cli.Extract.Source)
		}
		_, err = stdout.Write(content)
		return errors.Wrap(err, "writing payload")
	}

	return errors.Errorf("unknown command %q", command)
}
