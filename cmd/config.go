// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	p7m "github.com/p7m-tools/go-p7m"
)

// FileConfig is the schema of the optional YAML configuration file.
type FileConfig struct {
	OpenSSL string        `yaml:"openssl"`
	Sed     string        `yaml:"sed"`
	Base64  string        `yaml:"base64"`
	Chain   string        `yaml:"chain"`
	Timeout time.Duration `yaml:"timeout"`
	TempDir string        `yaml:"tempDir"`
}

// LoadConfigFile reads the YAML file at path. An empty path yields an empty
// configuration.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	if path == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, errors.Wrapf(err, "parse config file %s", path)
	}
	return fc, nil
}

// Settings returns the file values as [Settings].
func (fc FileConfig) Settings() Settings {
	return Settings{
		OpenSSL: fc.OpenSSL,
		Sed:     fc.Sed,
		Base64:  fc.Base64,
		Chain:   fc.Chain,
		Timeout: fc.Timeout,
		TempDir: fc.TempDir,
	}
}

// Settings are the tool locations and chain selection resolved from the
// configuration sources. Zero values fall through to the library defaults.
type Settings struct {
	OpenSSL string
	Sed     string
	Base64  string
	Chain   string
	Timeout time.Duration
	TempDir string
}

// Overlay returns s with every non-zero value of o applied on top.
func (s Settings) Overlay(o Settings) Settings {
	if o.OpenSSL != "" {
		s.OpenSSL = o.OpenSSL
	}
	if o.Sed != "" {
		s.Sed = o.Sed
	}
	if o.Base64 != "" {
		s.Base64 = o.Base64
	}
	if o.Chain != "" {
		s.Chain = o.Chain
	}
	if o.Timeout != 0 {
		s.Timeout = o.Timeout
	}
	if o.TempDir != "" {
		s.TempDir = o.TempDir
	}
	return s
}

// Options converts s into extractor configuration options.
func (s Settings) Options() ([]p7m.ConfigOption, error) {
	chain, err := p7m.ChainByName(s.Chain)
	if err != nil {
		return nil, errors.Wrap(err, "invalid chain")
	}
	return []p7m.ConfigOption{
		p7m.WithToolPath(s.OpenSSL),
		p7m.WithSedPath(s.Sed),
		p7m.WithBase64Path(s.Base64),
		p7m.WithStrategies(chain...),
		p7m.WithTimeout(s.Timeout),
		p7m.WithTempDir(s.TempDir),
	}, nil
}
