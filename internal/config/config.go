// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package config loads and validates a ripit YAML configuration file, per
// spec.md 6. It is deliberately the only package in this module that knows
// about YAML; internal/cli and internal/ripit consume the plain Options
// struct it produces.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the parsed, defaulted content of a ripit config file.
type Options struct {
	Repo     string   `yaml:"repo"`
	Remote   string   `yaml:"remote"`
	Branch   string   `yaml:"branch"`
	Branches []string `yaml:"branches"`
	Filters  []string `yaml:"filters"`
}

// FailedOpenCfgError reports that the config file named on the command
// line could not be read.
type FailedOpenCfgError struct {
	Path string
	Err  error
}

func (e *FailedOpenCfgError) Error() string {
	return fmt.Sprintf("opening config %s: %v", e.Path, e.Err)
}

func (e *FailedOpenCfgError) Unwrap() error { return e.Err }

// FailedParseCfgError reports that the config file's contents are not
// valid YAML.
type FailedParseCfgError struct {
	Path string
	Err  error
}

func (e *FailedParseCfgError) Error() string {
	return fmt.Sprintf("parsing config %s: %v", e.Path, e.Err)
}

func (e *FailedParseCfgError) Unwrap() error { return e.Err }

// InvalidConfigError reports that the config parsed as YAML but fails a
// semantic check (spec.md 6: remote is required).
type InvalidConfigError struct {
	Field string
	Err   error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config field %q: %v", e.Field, e.Err)
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }

// Load reads and validates the config file at path, applying the defaults
// spec.md 6 specifies: repo defaults to ".", and branches defaults to
// [branch] if branch is set or else ["master"].
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FailedOpenCfgError{Path: path, Err: err}
	}
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, &FailedParseCfgError{Path: path, Err: err}
	}
	if err := o.applyDefaults(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *Options) applyDefaults() error {
	if o.Repo == "" {
		o.Repo = "."
	}
	if o.Remote == "" {
		return &InvalidConfigError{Field: "remote", Err: fmt.Errorf("required")}
	}
	if len(o.Branches) == 0 {
		if o.Branch != "" {
			o.Branches = []string{o.Branch}
		} else {
			o.Branches = []string{"master"}
		}
	}
	return nil
}
