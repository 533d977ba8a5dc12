// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the YAML settings file. Every field doubles a flag of
// the same name, durations are written as strings ("30s").
type fileConfig struct {
	Pin        string `yaml:"pin"`
	Port       string `yaml:"port"`
	Interval   string `yaml:"interval"`
	Resolution int    `yaml:"resolution"`
	Broker     string `yaml:"broker"`
	Topic      string `yaml:"topic"`
	Database   string `yaml:"db"`
	CBOR       bool   `yaml:"cbor"`
	Color      bool   `yaml:"color"`
}

// applyFileConfig folds the YAML file at path under the flags of cmd. Flags
// given explicitly on the command line keep their value, the rest pick up
// whatever the file sets. Fields with no matching flag on cmd are ignored.
func applyFileConfig(cmd *cobra.Command, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	set := func(name, value string) error {
		if value == "" {
			return nil
		}
		f := cmd.Flags().Lookup(name)
		if f == nil || f.Changed {
			return nil
		}
		if err := f.Value.Set(value); err != nil {
			return fmt.Errorf("%s: %s: %w", path, name, err)
		}
		return nil
	}
	if err := set("pin", cfg.Pin); err != nil {
		return err
	}
	if err := set("port", cfg.Port); err != nil {
		return err
	}
	if err := set("interval", cfg.Interval); err != nil {
		return err
	}
	if cfg.Resolution != 0 {
		if err := set("resolution", strconv.Itoa(cfg.Resolution)); err != nil {
			return err
		}
	}
	if err := set("broker", cfg.Broker); err != nil {
		return err
	}
	if err := set("topic", cfg.Topic); err != nil {
		return err
	}
	if err := set("db", cfg.Database); err != nil {
		return err
	}
	if cfg.CBOR {
		if err := set("cbor", "true"); err != nil {
			return err
		}
	}
	if cfg.Color {
		if err := set("color", "true"); err != nil {
			return err
		}
	}
	return nil
}
