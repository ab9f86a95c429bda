// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package p7m

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// StrategySMIMEBinary verifies the envelope as DER in binary mode. It is the
	// typical success path for standard P7M files.
	StrategySMIMEBinary = "smime-binary"

	// StrategyCMSNoAttrVerify verifies the envelope with the cms command while
	// skipping signed attribute verification.
	StrategyCMSNoAttrVerify = "cms-no-attr-verify"

	// StrategyBase64Stdin strips carriage returns from the source, decodes it as
	// base64 and pipes the result into the verification command.
	StrategyBase64Stdin = "base64-stdin"

	// ChainNameFull selects [ChainFull].
	ChainNameFull = "full"

	// ChainNameLegacy selects [ChainLegacy].
	ChainNameLegacy = "legacy"
)

// Step is a single command of a [Strategy].
type Step struct {
	// Command is the invocation of this step
	Command Command

	// Piped feeds the standard output of the previous step into this step
	Piped bool

	// IgnoreExitStatus keeps the strategy going when the command exits with
	// a non-zero status. Its output is forwarded anyway.
	IgnoreExitStatus bool
}

// Strategy is a descriptor of one extraction attempt. Steps builds the commands
// for a source and destination; the attempt succeeded when the last step exited
// with status zero.
type Strategy struct {
	Name  string
	Steps func(cfg *Config, source, destination string) []Step
}

// SMIMEBinary returns the strategy
//
//	<tool> smime -verify -noverify -binary -in <source> -inform DER -out <destination>
func SMIMEBinary() Strategy {
	return Strategy{
		Name: StrategySMIMEBinary,
		Steps: func(cfg *Config, source, destination string) []Step {
			return []Step{{
				Command: Command{
					Name: cfg.ToolPath(),
					Args: []string{"smime", "-verify", "-noverify", "-binary", "-in", source, "-inform", "DER", "-out", destination},
				},
			}}
		},
	}
}

// CMSNoAttrVerify returns the strategy
//
//	<tool> cms -verify -noverify -in <source> -inform DER -out <destination> -no_attr_verify
func CMSNoAttrVerify() Strategy {
	return Strategy{
		Name: StrategyCMSNoAttrVerify,
		Steps: func(cfg *Config, source, destination string) []Step {
			return []Step{{
				Command: Command{
					Name: cfg.ToolPath(),
					Args: []string{"cms", "-verify", "-noverify", "-in", source, "-inform", "DER", "-out", destination, "-no_attr_verify"},
				},
			}}
		},
	}
}

// Base64Stdin returns the strategy
//
//	sed -e 's/\r//' <source> | base64 -d | <tool> smime -verify -inform DER -noverify -out <destination>
//
// The base64 step may fail on malformed input and still produce usable bytes,
// so only the exit status of sed and of the final verification are considered.
func Base64Stdin() Strategy {
	return Strategy{
		Name: StrategyBase64Stdin,
		Steps: func(cfg *Config, source, destination string) []Step {
			return []Step{
				{
					Command: Command{Name: cfg.SedPath(), Args: []string{"-e", `s/\r//`, source}},
				},
				{
					Command:          Command{Name: cfg.Base64Path(), Args: []string{"-d"}},
					Piped:            true,
					IgnoreExitStatus: true,
				},
				{
					Command: Command{
						Name: cfg.ToolPath(),
						Args: []string{"smime", "-verify", "-inform", "DER", "-noverify", "-out", destination},
					},
					Piped: true,
				},
			}
		},
	}
}

// ChainFull returns every strategy in fallback order.
func ChainFull() []Strategy {
	return []Strategy{SMIMEBinary(), CMSNoAttrVerify(), Base64Stdin()}
}

// ChainLegacy returns the short chain that only tries [SMIMEBinary].
func ChainLegacy() []Strategy {
	return []Strategy{SMIMEBinary()}
}

// ChainByName resolves a chain name ("full" or "legacy") or a comma separated
// list of strategy names.
func ChainByName(name string) ([]Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ChainNameFull:
		return ChainFull(), nil
	case ChainNameLegacy:
		return ChainLegacy(), nil
	}

	var chain []Strategy
	for _, part := range strings.Split(name, ",") {
		s, err := StrategyByName(part)
		if err != nil {
			return nil, err
		}
		chain = append(chain, s)
	}
	return chain, nil
}

// StrategyByName returns the strategy registered under name.
func StrategyByName(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case StrategySMIMEBinary:
		return SMIMEBinary(), nil
	case StrategyCMSNoAttrVerify:
		return CMSNoAttrVerify(), nil
	case StrategyBase64Stdin:
		return Base64Stdin(), nil
	}
	return Strategy{}, fmt.Errorf("unknown strategy %q", name)
}

// run executes the steps of s and reports an [*ExtractionError] for the step
// that ended the attempt.
func (s Strategy) run(ctx context.Context, cfg *Config, source, destination string) error {
	var prev *CommandResult
	for _, step := range s.Steps(cfg, source, destination) {
		cmd := step.Command
		if step.Piped && prev != nil {
			cmd.Stdin = prev.Stdout
		}

		res, err := runCommand(ctx, cfg, cmd)
		if err != nil {
			if step.IgnoreExitStatus && res.ExitCode > 0 && ctx.Err() == nil && !errors.Is(err, ErrMaxOutputSizeExceeded) {
				cfg.Logger().Debug("ignoring exit status", "strategy", s.Name, "command", cmd.String(), "exit_code", res.ExitCode)
				prev = res
				continue
			}
			return &ExtractionError{
				Strategy: s.Name,
				Command:  cmd.String(),
				ExitCode: res.ExitCode,
				Stdout:   res.Stdout,
				Stderr:   res.Stderr,
				Err:      err,
			}
		}
		prev = res
	}
	return nil
}

// runCommand runs cmd with the configured runner and timeout. The returned
// result is never nil.
func runCommand(ctx context.Context, cfg *Config, cmd Command) (*CommandResult, error) {
	if timeout := cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cfg.Logger().Debug("run command", "command", cmd.String(), "stdin_bytes", len(cmd.Stdin))
	res, err := cfg.Runner().Run(ctx, cmd)
	if res == nil {
		res = &CommandResult{ExitCode: -1}
	}
	return res, err
}

// runChain tries strategies in order and stops at the first success. The error
// of the last attempt is returned when all of them failed.
func runChain(ctx context.Context, cfg *Config, strategies []Strategy, source, destination string, td *TelemetryData) error {
	if len(strategies) == 0 {
		return fmt.Errorf("%w: no strategy configured", ErrExtractionFailed)
	}

	var lastErr error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return &ExtractionError{Strategy: s.Name, ExitCode: -1, Err: err}
		}

		td.StrategyAttempts++
		err := s.run(ctx, cfg, source, destination)
		if err == nil {
			td.ExtractionStrategy = s.Name
			cfg.Logger().Debug("strategy succeeded", "strategy", s.Name, "source", source)
			return nil
		}
		cfg.Logger().Debug("strategy failed", "strategy", s.Name, "err", err)
		lastErr = err
	}
	return lastErr
}
