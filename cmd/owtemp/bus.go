// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3"

	"github.com/embhaus/onewire/w1gpio"
	"github.com/embhaus/onewire/w1uart"
)

// owBus is the master surface the commands rely on.
type owBus interface {
	onewire.Bus
	Halt() error
}

// openBus opens the 1-wire master selected by the bus flags, a serial
// adapter when --port is set, the bit-banged GPIO pin otherwise.
func openBus() (owBus, error) {
	if portName != "" {
		return w1uart.Open(portName, nil)
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("no GPIO pin named %q", pinName)
	}
	return w1gpio.New(p, nil)
}
