// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import "periph.io/x/conn/v3/physic"

// Sample is a raw temperature reading as the sensor reports it: the first two
// scratchpad bytes, a two's complement count of sixteenths of a degree
// Celsius.
type Sample uint16

// NoSample marks a reading that never happened. A fleet slot still holding
// it means the sensor has not answered since discovery.
const NoSample Sample = 0x5555

// Valid reports whether the sample holds an actual reading.
func (s Sample) Valid() bool {
	return s != NoSample
}

// Temperature converts the sample to an absolute temperature.
func (s Sample) Temperature() physic.Temperature {
	return physic.Temperature(int16(s))*physic.Kelvin/16 + physic.ZeroCelsius
}

func (s Sample) String() string {
	return s.Format(Celsius)
}
