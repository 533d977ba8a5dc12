// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/onewire"

	"github.com/embhaus/onewire/common"
	"github.com/embhaus/onewire/ds18b20"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover devices on the bus",
	Long: `Run the ROM search and print every device found.

Each line shows the 64-bit identifier, the device family, the 48-bit serial
and whether the identifier checksum holds.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := applyFileConfig(cmd, configPath); err != nil {
		return err
	}
	bus, err := openBus()
	if err != nil {
		return err
	}
	defer bus.Halt()

	addrs, err := bus.Search(false)
	if err != nil {
		return err
	}
	fmt.Printf("Bus: %s\n", bus)
	if len(addrs) == 0 {
		fmt.Println("No devices found")
		return nil
	}
	for _, a := range addrs {
		fmt.Println(describe(a))
	}
	return nil
}

// describe renders one discovered identifier.
func describe(a onewire.Address) string {
	var rom [8]byte
	for i := range rom {
		rom[i] = byte(a >> (8 * uint(i)))
	}
	crc := "crc ok"
	if common.CRC8(rom[:7]) != rom[7] {
		crc = "crc BAD"
	}
	return fmt.Sprintf("%#016x  %-8s  serial %012x  %s",
		uint64(a), ds18b20.Family(rom[0]), uint64(a)>>8&0xffffffffffff, crc)
}
