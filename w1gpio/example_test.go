// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package w1gpio_test

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/embhaus/onewire/w1gpio"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// The 1-Wire line hangs off a single GPIO with a 4.7kΩ pull-up.
	p := gpioreg.ByName("GPIO4")
	if p == nil {
		log.Fatal("failed to find GPIO4")
	}

	bus, err := w1gpio.New(p, nil)
	if err != nil {
		log.Fatalf("failed to open the 1-wire bus: %v", err)
	}
	defer bus.Halt()

	// Enumerate the devices answering on the line.
	addrs, err := bus.Search(false)
	if err != nil {
		log.Fatal(err)
	}
	for _, a := range addrs {
		fmt.Printf("%#016x\n", uint64(a))
	}
}
