// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package search implements the 1-Wire ROM search algorithm on top of any bus
// master that exposes single-bit transactions.
//
// The algorithm is the iterative binary-tree walk from the Maxim application
// notes, with the branch order flipped: at a fresh discrepancy the 1 branch is
// taken first and the 0 branch is deferred to a later pass. Each pass resolves
// one full 64-bit ROM code; the position of the deepest discrepancy where a 1
// was taken is carried to the next pass, which replays the recorded bits up to
// that position, takes the deferred 0 there, and continues. The search is
// exhausted when a pass completes without taking a 1 at any discrepancy.
package search

import (
	"encoding/binary"

	"periph.io/x/conn/v3/onewire"

	"github.com/embhaus/onewire/common"
)

// MaxDevices is the size of the device table a search fills. Buses with more
// devices than this are only ever partially enumerated; the excess devices
// stay undiscovered for the session.
const MaxDevices = 5

// cmdSearchROM is the command that starts a search pass on all devices.
const cmdSearchROM byte = 0xf0

// BitBus is the bit-level transaction surface of a bus master. Both the GPIO
// and the UART masters provide it.
type BitBus interface {
	// ReadBit runs one read slot and returns the sampled bit, 0 or 1.
	ReadBit() (byte, error)
	// WriteBit runs one write slot transmitting bit 0 of the argument.
	WriteBit(bit byte) error
}

// Triplet performs the two reads plus one write that resolve a single ROM bit
// position during a search pass: read the wired-AND of the participating
// devices' true bits, read the wired-AND of their complements, then write the
// direction bit, dropping every device that disagrees with it out of the pass.
//
// When the two reads disagree all devices concur and the written bit follows
// them regardless of direction. When both read 0 the devices are split and
// direction decides the branch. When both read 1 nobody answered; the result
// carries GotZero == GotOne == false and the caller should abandon the pass.
func Triplet(bus BitBus, direction byte) (onewire.TripletResult, error) {
	var tr onewire.TripletResult
	first, err := bus.ReadBit()
	if err != nil {
		return tr, err
	}
	second, err := bus.ReadBit()
	if err != nil {
		return tr, err
	}
	tr.GotZero = first == 0
	tr.GotOne = second == 0
	switch {
	case tr.GotZero && !tr.GotOne:
		tr.Taken = 0
	case !tr.GotZero && tr.GotOne:
		tr.Taken = 1
	case tr.GotZero && tr.GotOne:
		tr.Taken = direction & 1
	default:
		// Empty slot pair, nobody is participating. The line floats high.
		tr.Taken = 1
	}
	if err := bus.WriteBit(tr.Taken); err != nil {
		return tr, err
	}
	return tr, nil
}

// state is the transient position of one search: the ROM code being rebuilt,
// the bit position (1..64) of the deepest discrepancy where the pass took a 1,
// and whether the tree is exhausted. It lives for a single All call.
type state struct {
	rom      [8]byte
	lastDisc int
	done     bool
}

// All enumerates the devices on the bus and returns their addresses in
// discovery order, which is the branch order of the walk, not numeric order.
// At most max devices are returned; max values outside 1..MaxDevices mean
// MaxDevices.
//
// Bus-level faults are absorbed rather than reported: a reset without a
// presence pulse, a slot pair nobody answers, or a candidate failing its CRC
// all end the enumeration and whatever was found so far is returned with a
// nil error. The natural retry is the caller's next All call, which starts
// from scratch. Only transport failures from the master itself are returned
// as errors, also alongside the partial table.
func All(bus onewire.BusSearcher, max int) ([]onewire.Address, error) {
	if max <= 0 || max > MaxDevices {
		max = MaxDevices
	}
	var found []onewire.Address
	st := &state{}
	for !st.done && len(found) < max {
		addr, ok, err := st.next(bus)
		if err != nil {
			return found, err
		}
		if !ok {
			break
		}
		found = append(found, addr)
	}
	return found, nil
}

// next runs one reset+search pass, resolving one complete ROM code. It
// returns ok == false with a nil error when the pass was abandoned (no
// presence, empty slot pair, CRC mismatch) or when the previous pass already
// exhausted the tree.
func (st *state) next(bus onewire.BusSearcher) (onewire.Address, bool, error) {
	if st.done {
		return 0, false, nil
	}
	if err := bus.Tx([]byte{cmdSearchROM}, nil, onewire.WeakPullup); err != nil {
		if be, ok := err.(onewire.BusError); ok && be.BusError() {
			return 0, false, nil
		}
		return 0, false, err
	}
	marker := 0
	for pos := 1; pos <= 64; pos++ {
		idx := (pos - 1) / 8
		mask := byte(1) << ((pos - 1) % 8)
		var dir byte
		switch {
		case pos < st.lastDisc:
			// Replay the branch from the previous pass.
			if st.rom[idx]&mask != 0 {
				dir = 1
			}
		case pos == st.lastDisc:
			// Take the 0 branch deferred by the previous pass.
			dir = 0
		default:
			dir = 1
		}
		tr, err := bus.SearchTriplet(dir)
		if err != nil {
			return 0, false, err
		}
		if !tr.GotZero && !tr.GotOne {
			// The participating devices vanished mid-pass.
			return 0, false, nil
		}
		if tr.GotZero && tr.GotOne && tr.Taken != 0 {
			marker = pos
		}
		if tr.Taken != 0 {
			st.rom[idx] |= mask
		} else {
			st.rom[idx] &^= mask
		}
	}
	if common.CRC8(st.rom[:7]) != st.rom[7] {
		return 0, false, nil
	}
	st.lastDisc = marker
	st.done = marker == 0
	return onewire.Address(binary.LittleEndian.Uint64(st.rom[:])), true, nil
}
