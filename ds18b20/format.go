// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import "fmt"

// Unit selects the temperature scale Format renders in.
type Unit int

const (
	Celsius Unit = iota
	Fahrenheit
)

func (u Unit) String() string {
	if u == Fahrenheit {
		return "°F"
	}
	return "°C"
}

// tenths maps the 4 fractional bits of a sample, sixteenths of a degree, to
// the closest tenths digit.
const tenths = "0112334456678899"

// Format renders the sample as a fixed 6 character field: a sign column
// holding '-' or a space, the whole degrees zero padded to 3 digits, a dot
// and a single tenths digit. NoSample renders as "------".
//
// The arithmetic is integer only. In Celsius the two's complement raw value
// is negated as a whole so the fraction borrows from the degrees, then split
// into degrees and sixteenths. In Fahrenheit the raw value is first rescaled
// on the same 1/16° grid, offset by 880 sixteenths so the scaling stays in
// positive range, and the fraction of a negative result is recovered from
// its two's complement low nibble.
func (s Sample) Format(u Unit) string {
	if !s.Valid() {
		return "------"
	}
	sign := byte(' ')
	var whole, frac int
	switch u {
	case Fahrenheit:
		f := (int32(int16(s))+880)*180/100 - 1072
		if f < 0 {
			sign = '-'
			whole = int(-(f / 16))
			frac = int((((f & 0xf) ^ 0xf) + 1) & 0xf)
		} else {
			whole = int(f / 16)
			frac = int(f & 0xf)
		}
	default:
		mag := uint16(s)
		if mag&0x8000 != 0 {
			sign = '-'
			mag = -mag
		}
		whole = int(mag>>4) & 0x7f
		frac = int(mag & 0xf)
	}
	return fmt.Sprintf("%c%03d.%c", sign, whole, tenths[frac])
}
