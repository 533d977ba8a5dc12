// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"

	"periph.io/x/conn/v3/onewire"

	"github.com/embhaus/onewire/search"
)

// MaxSensors is how many sensors a Fleet tracks, matching the enumeration
// cap of the bus masters.
const MaxSensors = search.MaxDevices

// Fleet polls every temperature sensor on one bus and keeps their latest raw
// readings.
//
// The cycle is Discover once, then SampleAll on a timer. Slots are indexed
// in discovery order; a slot holds NoSample until its sensor delivers a
// reading and keeps the previous reading over a failed pass.
type Fleet struct {
	bus     onewire.Bus
	devs    []onewire.Dev
	samples []Sample
}

// NewFleet returns an empty fleet on the bus. Call Discover to populate it.
func NewFleet(bus onewire.Bus) *Fleet {
	return &Fleet{bus: bus}
}

// Discover enumerates the bus and rebuilds the fleet from what answers, at
// most MaxSensors devices in enumeration order. Any previously held readings
// are dropped.
func (f *Fleet) Discover() (int, error) {
	addrs, err := f.bus.Search(false)
	if err != nil {
		return 0, err
	}
	if len(addrs) > MaxSensors {
		addrs = addrs[:MaxSensors]
	}
	f.devs = f.devs[:0]
	f.samples = f.samples[:0]
	for _, a := range addrs {
		f.devs = append(f.devs, onewire.Dev{Bus: f.bus, Addr: a})
		f.samples = append(f.samples, NoSample)
	}
	return len(f.devs), nil
}

// Len returns the number of sensors in the fleet.
func (f *Fleet) Len() int {
	return len(f.devs)
}

// Addresses returns the sensor addresses in slot order.
func (f *Fleet) Addresses() []onewire.Address {
	out := make([]onewire.Address, len(f.devs))
	for i := range f.devs {
		out[i] = f.devs[i].Addr
	}
	return out
}

// SampleAll runs one measurement pass: each sensor in turn has the result of
// its previous conversion read out and the next conversion started.
//
// The first pass after a conversion-free period returns whatever the sensors
// held, the power-on 85°C value included; the readings settle from the
// second pass on.
//
// A sensor failing to answer aborts the pass at that slot: its slot and the
// slots after it keep their previous readings and the bus error is returned.
func (f *Fleet) SampleAll() error {
	for i := range f.devs {
		var buf [2]byte
		if err := f.devs[i].Tx([]byte{0xbe}, buf[:]); err != nil {
			return err
		}
		f.samples[i] = Sample(uint16(buf[1])<<8 | uint16(buf[0]))
		if err := f.devs[i].Tx([]byte{0x44}, nil); err != nil {
			return err
		}
	}
	return nil
}

// Samples returns a copy of the latest readings, indexed in slot order.
func (f *Fleet) Samples() []Sample {
	out := make([]Sample, len(f.samples))
	copy(out, f.samples)
	return out
}

// ReadScratchpad reads the full scratchpad of the sensor in slot i and
// checks its CRC. It returns the 8 data bytes.
func (f *Fleet) ReadScratchpad(i int) ([]byte, error) {
	if i < 0 || i >= len(f.devs) {
		return nil, errors.New("ds18b20: no such sensor")
	}
	d := &Dev{onewire: f.devs[i]}
	return d.readScratchpad()
}

// SetResolution reconfigures every sensor in the fleet to the given
// resolution in bits, 9..12, and saves it to EEPROM.
func (f *Fleet) SetResolution(resolutionBits int) error {
	if resolutionBits < 9 || resolutionBits > 12 {
		return errors.New("ds18b20: invalid resolutionBits")
	}
	for i := range f.devs {
		d := &Dev{onewire: f.devs[i]}
		if err := d.setResolution(resolutionBits); err != nil {
			return err
		}
	}
	return nil
}
