// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package search

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/onewire"

	"github.com/embhaus/onewire/common"
)

// testROM builds a CRC-valid ROM code from a family and serial.
func testROM(family byte, serial [6]byte) [8]byte {
	var rom [8]byte
	rom[0] = family
	copy(rom[1:7], serial[:])
	rom[7] = common.CRC8(rom[:7])
	return rom
}

func romBit(rom [8]byte, pos int) byte {
	return (rom[(pos-1)/8] >> ((pos - 1) % 8)) & 1
}

// simBus implements onewire.BusSearcher over a simulated population of
// devices, with wired-AND line semantics during search passes.
type simBus struct {
	roms    [][8]byte
	resets  int
	part    []int // devices still participating in the current pass
	pos     int   // next bit position to resolve, 1..64
	txErr   error // returned by Tx when set
	tripErr error // returned by SearchTriplet when set
}

func (s *simBus) String() string { return "simbus" }

func (s *simBus) Tx(w, r []byte, power onewire.Pullup) error {
	s.resets++
	if s.txErr != nil {
		return s.txErr
	}
	if len(s.roms) == 0 {
		return simBusError("simbus: no device present")
	}
	if len(w) != 1 || w[0] != 0xf0 || len(r) != 0 {
		return errors.New("simbus: unexpected transaction")
	}
	s.part = s.part[:0]
	for i := range s.roms {
		s.part = append(s.part, i)
	}
	s.pos = 1
	return nil
}

func (s *simBus) Search(alarmOnly bool) ([]onewire.Address, error) {
	return All(s, 0)
}

func (s *simBus) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	if s.tripErr != nil {
		return onewire.TripletResult{}, s.tripErr
	}
	var tr onewire.TripletResult
	for _, d := range s.part {
		if romBit(s.roms[d], s.pos) == 0 {
			tr.GotZero = true
		} else {
			tr.GotOne = true
		}
	}
	switch {
	case tr.GotZero && !tr.GotOne:
		tr.Taken = 0
	case !tr.GotZero && tr.GotOne:
		tr.Taken = 1
	case tr.GotZero && tr.GotOne:
		tr.Taken = direction & 1
	default:
		tr.Taken = 1
	}
	remaining := s.part[:0]
	for _, d := range s.part {
		if romBit(s.roms[d], s.pos) == tr.Taken {
			remaining = append(remaining, d)
		}
	}
	s.part = remaining
	s.pos++
	return tr, nil
}

type simBusError string

func (e simBusError) Error() string  { return string(e) }
func (e simBusError) BusError() bool { return true }

var (
	romA = testROM(0x28, [6]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00}) // 0x2900000000000128
	romB = testROM(0x28, [6]byte{0x44, 0x55, 0x66, 0x11, 0x22, 0x33}) // 0x8433221166554428
	romC = testROM(0x28, [6]byte{0xef, 0xbe, 0xad, 0xde, 0x00, 0x00}) // 0x270000deadbeef28
	romD = testROM(0x10, [6]byte{0x28, 0xe9, 0x29, 0x00, 0x00, 0x00}) // 0x2600000029e92810
	romE = testROM(0x28, [6]byte{0xaa, 0x55, 0xaa, 0x55, 0xaa, 0x55}) // 0xdb55aa55aa55aa28
	romF = testROM(0x28, [6]byte{0x99, 0x88, 0x77, 0x66, 0x55, 0x44}) // 0x3944556677889928
)

func TestAll(t *testing.T) {
	tests := []struct {
		name   string
		roms   [][8]byte
		want   []onewire.Address
		passes int
	}{
		{
			name: "none",
			want: nil, passes: 1,
		},
		{
			name: "single",
			roms: [][8]byte{romA},
			want: []onewire.Address{0x2900000000000128}, passes: 1,
		},
		{
			name: "two",
			roms: [][8]byte{romA, romB},
			want: []onewire.Address{0x2900000000000128, 0x8433221166554428}, passes: 2,
		},
		{
			name: "three",
			roms: [][8]byte{romA, romB, romC},
			want: []onewire.Address{0x270000deadbeef28, 0x2900000000000128, 0x8433221166554428}, passes: 3,
		},
		{
			name: "five mixed families",
			roms: [][8]byte{romA, romB, romC, romD, romE},
			want: []onewire.Address{
				0x270000deadbeef28, 0x2900000000000128, 0xdb55aa55aa55aa28,
				0x8433221166554428, 0x2600000029e92810,
			},
			passes: 5,
		},
		{
			name: "six devices stop at capacity",
			roms: [][8]byte{romA, romB, romC, romD, romE, romF},
			want: []onewire.Address{
				0x270000deadbeef28, 0x3944556677889928, 0x2900000000000128,
				0xdb55aa55aa55aa28, 0x8433221166554428,
			},
			passes: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &simBus{roms: tt.roms}
			got, err := All(bus, 0)
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("unexpected table (-want +got):\n%s", diff)
			}
			if bus.resets != tt.passes {
				t.Errorf("got %d passes, want %d", bus.resets, tt.passes)
			}
		})
	}
}

func TestAllRepeatable(t *testing.T) {
	bus := &simBus{roms: [][8]byte{romA, romB, romC, romD, romE}}
	first, err := All(bus, 0)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	second, err := All(bus, 0)
	if err != nil {
		t.Fatalf("All again: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("enumeration not repeatable (-first +second):\n%s", diff)
	}
}

// Devices differing in a single bit must be resolved in exactly two passes,
// the deferred branch picked up by the second. The differing bit sits at
// position 56, the deepest one the CRC byte leaves free: matching payloads
// would force matching CRCs, so no valid pair can differ in the final eight.
func TestAllSingleBitPair(t *testing.T) {
	r1 := testROM(0x28, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	r2 := testROM(0x28, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x86})
	bus := &simBus{roms: [][8]byte{r1, r2}}
	got, err := All(bus, 0)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	// The device with a 1 at the discrepancy is resolved first.
	want := []onewire.Address{0x1286050403020128, 0x9e06050403020128}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected table (-want +got):\n%s", diff)
	}
	if bus.resets != 2 {
		t.Errorf("got %d passes, want 2", bus.resets)
	}
}

func TestAllCorruptCRC(t *testing.T) {
	bad := romC
	bad[7] ^= 0xff
	t.Run("alone", func(t *testing.T) {
		bus := &simBus{roms: [][8]byte{bad}}
		got, err := All(bus, 0)
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %v, want empty table", got)
		}
	})
	t.Run("alongside valid device", func(t *testing.T) {
		// The corrupt candidate is walked first and aborts the whole
		// enumeration; even the valid device stays undiscovered until
		// the next call.
		bus := &simBus{roms: [][8]byte{romA, bad}}
		got, err := All(bus, 0)
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %v, want empty table", got)
		}
		if bus.resets != 1 {
			t.Errorf("got %d passes, want 1", bus.resets)
		}
	})
}

func TestAllTransportError(t *testing.T) {
	fail := errors.New("pin stuck")
	bus := &simBus{roms: [][8]byte{romA}, txErr: fail}
	if _, err := All(bus, 0); err != fail {
		t.Errorf("got %v, want %v", err, fail)
	}
	bus = &simBus{roms: [][8]byte{romA}, tripErr: fail}
	if _, err := All(bus, 0); err != fail {
		t.Errorf("got %v, want %v", err, fail)
	}
}

// scriptBus feeds canned bit reads to Triplet and records writes.
type scriptBus struct {
	reads   []byte
	written []byte
}

func (s *scriptBus) ReadBit() (byte, error) {
	b := s.reads[0]
	s.reads = s.reads[1:]
	return b, nil
}

func (s *scriptBus) WriteBit(bit byte) error {
	s.written = append(s.written, bit)
	return nil
}

func TestTriplet(t *testing.T) {
	tests := []struct {
		name  string
		reads []byte
		dir   byte
		want  onewire.TripletResult
	}{
		{"all agree on one", []byte{1, 0}, 0, onewire.TripletResult{GotZero: false, GotOne: true, Taken: 1}},
		{"all agree on zero", []byte{0, 1}, 1, onewire.TripletResult{GotZero: true, GotOne: false, Taken: 0}},
		{"discrepancy follows direction one", []byte{0, 0}, 1, onewire.TripletResult{GotZero: true, GotOne: true, Taken: 1}},
		{"discrepancy follows direction zero", []byte{0, 0}, 0, onewire.TripletResult{GotZero: true, GotOne: true, Taken: 0}},
		{"nobody answers", []byte{1, 1}, 0, onewire.TripletResult{GotZero: false, GotOne: false, Taken: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &scriptBus{reads: tt.reads}
			got, err := Triplet(bus, tt.dir)
			if err != nil {
				t.Fatalf("Triplet: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if len(bus.written) != 1 || bus.written[0] != tt.want.Taken {
				t.Errorf("wrote %v, want [%d]", bus.written, tt.want.Taken)
			}
		})
	}
}
