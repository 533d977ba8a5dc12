// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"testing"

	"periph.io/x/conn/v3/physic"
)

func TestFormatCelsius(t *testing.T) {
	for _, tc := range []struct {
		raw  Sample
		want string
	}{
		{0x07d0, " 125.0"},
		{0x0550, " 085.0"},
		{0x0191, " 025.1"},
		{0x00a2, " 010.1"},
		{0x0008, " 000.5"},
		{0x0001, " 000.1"},
		{0x0000, " 000.0"},
		{0xffff, "-000.1"},
		{0xfff8, "-000.5"},
		{0xfff0, "-001.0"},
		{0xffef, "-001.1"},
		{0xff5e, "-010.1"},
		{0xfe6f, "-025.1"},
		{0xfc90, "-055.0"},
		{NoSample, "------"},
	} {
		if got := tc.raw.Format(Celsius); got != tc.want {
			t.Errorf("%#04x: got %q, want %q", uint16(tc.raw), got, tc.want)
		}
	}
}

func TestFormatFahrenheit(t *testing.T) {
	for _, tc := range []struct {
		raw  Sample
		want string
	}{
		{0x07d0, " 257.0"},
		{0x0550, " 185.0"},
		{0x0191, " 077.1"},
		{0x00a2, " 050.2"},
		{0x0008, " 032.9"},
		{0x0000, " 032.0"},
		{0xfff8, " 031.1"},
		{0xff5e, " 013.8"},
		{0xfe6f, "-013.1"},
		{0xfc90, "-067.0"},
		{NoSample, "------"},
	} {
		if got := tc.raw.Format(Fahrenheit); got != tc.want {
			t.Errorf("%#04x: got %q, want %q", uint16(tc.raw), got, tc.want)
		}
	}
}

// TestFormatFahrenheitSteps walks the raw value one sixteenth at a time
// through three delicate stretches: a positive run, a negative run and the
// stretch straddling the scale's zero, where the sign column flips and the
// tenths must keep descending monotonically.
func TestFormatFahrenheitSteps(t *testing.T) {
	for _, tc := range []struct {
		raw  Sample
		want string
	}{
		{0x0010, " 033.8"},
		{0x0011, " 033.9"},
		{0x0012, " 034.0"},
		{0x0013, " 034.1"},
		{0x0014, " 034.3"},
		{0x001b, " 035.0"},
		{0x001c, " 035.1"},
		{0x001d, " 035.3"},
		{0x001e, " 035.4"},
		{0x001f, " 035.4"},

		{0xfff0, " 030.2"},
		{0xffef, " 030.1"},
		{0xffee, " 029.9"},
		{0xffed, " 029.8"},
		{0xffec, " 029.8"},
		{0xffe5, " 028.9"},
		{0xffe4, " 028.8"},
		{0xffe3, " 028.7"},
		{0xffe2, " 028.6"},
		{0xffe1, " 028.5"},

		{0xfee5, " 000.1"},
		{0xfee4, " 000.0"},
		{0xfee3, "-000.1"},
		{0xfee2, "-000.2"},
		{0xfee1, "-000.3"},
		{0xfedd, "-000.8"},
		{0xfedc, "-000.9"},
		{0xfedb, "-001.0"},
		{0xfeda, "-001.1"},
		{0xfed9, "-001.2"},
	} {
		if got := tc.raw.Format(Fahrenheit); got != tc.want {
			t.Errorf("%#04x: got %q, want %q", uint16(tc.raw), got, tc.want)
		}
	}
}

func TestSample(t *testing.T) {
	if NoSample.Valid() {
		t.Fatal("the sentinel is not a reading")
	}
	if !Sample(0x07d0).Valid() {
		t.Fatal("a plain reading is valid")
	}
	if got := Sample(0x00a0).Temperature(); got != 10*physic.Celsius+physic.ZeroCelsius {
		t.Fatal(got)
	}
	if got := Sample(0xfff8).Temperature(); got != physic.ZeroCelsius-500*physic.MilliCelsius {
		t.Fatal(got)
	}
	if got := Sample(0xfff8).String(); got != "-000.5" {
		t.Fatal(got)
	}
	if got := Celsius.String(); got != "°C" {
		t.Fatal(got)
	}
	if got := Fahrenheit.String(); got != "°F" {
		t.Fatal(got)
	}
}
