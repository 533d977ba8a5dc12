// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"

	"github.com/embhaus/onewire/ds18b20"
	"github.com/embhaus/onewire/templog"
)

var (
	interval  time.Duration
	brokerURL string
	topicBase string
	dbPath    string
	useCBOR   bool
	useColor  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sample the fleet periodically",
	Long: `Sample every sensor on a fixed cadence until interrupted.

Each pass prints one line per sensor. Readings can also be appended to a
SQLite log (--db) and published to an MQTT broker (--broker), as JSON by
default or as CBOR with --cbor.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Sampling interval (minimum 1s)")
	watchCmd.Flags().StringVar(&brokerURL, "broker", "", "MQTT broker URL, e.g. mqtt://host:1883/prefix")
	watchCmd.Flags().StringVar(&topicBase, "topic", "owtemp", "MQTT topic below the broker URL prefix")
	watchCmd.Flags().StringVar(&dbPath, "db", "", "SQLite file to append readings to")
	watchCmd.Flags().BoolVar(&useCBOR, "cbor", false, "Publish CBOR instead of JSON")
	watchCmd.Flags().BoolVar(&useColor, "color", false, "Color each line by temperature")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := applyFileConfig(cmd, configPath); err != nil {
		return err
	}
	if interval < time.Second {
		return fmt.Errorf("interval %s is below the 1s minimum", interval)
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
	log.Printf("%s: %d sensor(s)", bus, n)

	var logDB *templog.DB
	if dbPath != "" {
		if logDB, err = templog.Open(dbPath); err != nil {
			return err
		}
		defer logDB.Close()
	}
	var pub *publisher
	if brokerURL != "" {
		if pub, err = newPublisher(brokerURL, topicBase, useCBOR); err != nil {
			return err
		}
		defer pub.close()
	}
	out := io.Writer(os.Stdout)
	if useColor {
		out = colorable.NewColorableStdout()
	}

	// Kick off the first conversion now. The first tick is at least 1s
	// away, past the longest conversion time, so the pass reads real data.
	if err := ds18b20.StartAll(bus); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			log.Print("stopping")
			return nil
		case <-ticker.C:
			pass(fleet, out, logDB, pub)
		}
	}
}

// pass runs one sampling cycle and fans the readings out. A failed bus pass
// is logged and skipped, the sensors are polled again on the next tick.
func pass(fleet *ds18b20.Fleet, out io.Writer, logDB *templog.DB, pub *publisher) {
	if err := fleet.SampleAll(); err != nil {
		log.Printf("sampling: %v", err)
	}
	now := time.Now()
	addrs := fleet.Addresses()
	samples := fleet.Samples()
	for i, s := range samples {
		if useColor {
			fmt.Fprintf(out, "%s\033[0m %#016x  %s %s  %s %s\n", heatBlock(s),
				uint64(addrs[i]),
				s.Format(ds18b20.Celsius), ds18b20.Celsius,
				s.Format(ds18b20.Fahrenheit), ds18b20.Fahrenheit)
		} else {
			fmt.Fprintf(out, "%#016x  %s %s  %s %s\n", uint64(addrs[i]),
				s.Format(ds18b20.Celsius), ds18b20.Celsius,
				s.Format(ds18b20.Fahrenheit), ds18b20.Fahrenheit)
		}
	}
	if logDB != nil {
		if err := logDB.AppendPass(now, addrs, samples); err != nil {
			log.Printf("logging: %v", err)
		}
	}
	if pub != nil {
		if err := pub.publishPass(now, addrs, samples); err != nil {
			log.Printf("publishing: %v", err)
		}
	}
}

// heatBlock renders a colored cell, blue at 0°C fading to red at 40°C.
func heatBlock(s ds18b20.Sample) string {
	if !s.Valid() {
		return ansi256.Default.Block(color.NRGBA{A: 255})
	}
	v := int32(int16(s))
	const hi = 40 * 16
	if v < 0 {
		v = 0
	}
	if v > hi {
		v = hi
	}
	t := uint8(v * 255 / hi)
	return ansi256.Default.Block(color.NRGBA{R: t, G: 0x40, B: 255 - t, A: 255})
}
