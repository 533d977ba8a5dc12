// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"github.com/spf13/cobra"
)

var (
	// Bus selection flags
	pinName    string
	portName   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "owtemp",
	Short: "DS18B20 1-wire temperature tool",
	Long: `owtemp discovers and samples DS18B20 temperature sensors on a 1-wire bus.

The bus master is either a GPIO pin driven directly or a DS9097 style serial
adapter.

Bus selection:
  GPIO:   --pin GPIO4 (default)
  Serial: --port /dev/ttyUSB0

Settings can also come from a YAML file given with --config. Flags set on the
command line win over the file.`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&pinName, "pin", "GPIO4", "GPIO pin carrying the 1-wire data line")
	rootCmd.PersistentFlags().StringVar(&portName, "port", "", "Serial adapter device (overrides --pin)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML settings file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
