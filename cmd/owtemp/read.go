// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embhaus/onewire/ds18b20"
)

var (
	dumpScratchpad bool
	resolutionBits int
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Sample every sensor once",
	Long: `Discover the sensors, run one temperature conversion and print the
readings in both units.

The command blocks for the conversion, about 750ms at the default 12 bit
resolution, so the printed values are current rather than whatever the
sensors held from before.`,
	RunE: runRead,
}

func init() {
	readCmd.Flags().BoolVar(&dumpScratchpad, "scratchpad", false, "Also dump each sensor's scratchpad")
	readCmd.Flags().IntVar(&resolutionBits, "resolution", 0, "Change the conversion resolution first (9 to 12 bits)")
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	if err := applyFileConfig(cmd, configPath); err != nil {
		return err
	}
	bus, err := openBus()
	if err != nil {
		return err
	}
	defer bus.Halt()

	fleet := ds18b20.NewFleet(bus)
	n, err := fleet.Discover()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no sensors on %s", bus)
	}
	res := resolutionBits
	if res == 0 {
		res = 12
	} else if err := fleet.SetResolution(res); err != nil {
		return err
	}
	if err := ds18b20.ConvertAll(bus, res); err != nil {
		return err
	}
	if err := fleet.SampleAll(); err != nil {
		return err
	}

	addrs := fleet.Addresses()
	for i, s := range fleet.Samples() {
		fmt.Printf("%#016x  %s %s  %s %s\n", uint64(addrs[i]),
			s.Format(ds18b20.Celsius), ds18b20.Celsius,
			s.Format(ds18b20.Fahrenheit), ds18b20.Fahrenheit)
		if dumpScratchpad {
			spad, err := fleet.ReadScratchpad(i)
			if err != nil {
				return err
			}
			fmt.Printf("  scratchpad % x\n", spad)
		}
	}
	return nil
}
