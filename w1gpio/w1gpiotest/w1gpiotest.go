// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1gpiotest simulates a 1-Wire line and its slave devices at the
// electrical level, for testing bus masters without hardware.
//
// The simulation runs on virtual time: a Clock stands in for the platform
// delay primitive and only moves when the master waits. Pin watches the
// master's level transitions, classifies each low pulse as a reset or a time
// slot from its width, and forwards it to the attached Sensors, which answer
// by holding the line low through the windows a real device would.
package w1gpiotest

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/embhaus/onewire/common"
)

// ROM assembles a device identity from a family code and a serial number,
// appending the checksum a real device would carry.
func ROM(family byte, serial [6]byte) [8]byte {
	var rom [8]byte
	rom[0] = family
	copy(rom[1:7], serial[:])
	rom[7] = common.CRC8(rom[:7])
	return rom
}

// Clock is a virtual time source. It starts at an arbitrary instant and
// advances only when told to, so a test drives millisecond-scale bus traffic
// without sleeping.
type Clock struct {
	now time.Time
}

// NewClock returns a Clock positioned at an arbitrary epoch.
func NewClock() *Clock {
	return &Clock{now: time.Unix(0, 0)}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	return c.now
}

// Advance moves virtual time forward by t. It matches the signature of the
// bus master's delay option so it can be injected directly.
func (c *Clock) Advance(t time.Duration) {
	c.now = c.now.Add(t)
}

// Pin is a gpio.PinIO backed by the simulated 1-Wire line.
//
// The master owns the line while it drives low; when it releases, the pull
// width decides what the bus saw: at least 480µs is a reset pulse, shorter is
// a time slot carrying a 1 when under 30µs and a 0 otherwise. Sensor answers
// are recorded as absolute low intervals so that Read returns the wired-AND
// of the master and every device at the current virtual instant.
type Pin struct {
	gpiotest.Pin
	Clock   *Clock
	Sensors []*Sensor

	driving bool
	fall    time.Time
	pulls   []pull
}

// pull is a half-open interval during which a device holds the line low.
type pull struct {
	from, to time.Time
}

// In releases the line back to the pull-up.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.release()
	return nil
}

// Out drives the line. Driving high is treated as a release since the
// pull-up yields the same level.
func (p *Pin) Out(l gpio.Level) error {
	if l == gpio.Low {
		p.driveLow()
	} else {
		p.release()
	}
	return nil
}

// Read samples the line at the current virtual time.
func (p *Pin) Read() gpio.Level {
	if p.driving {
		return gpio.Low
	}
	now := p.Clock.Now()
	for _, h := range p.pulls {
		if !now.Before(h.from) && now.Before(h.to) {
			return gpio.Low
		}
	}
	return gpio.High
}

func (p *Pin) driveLow() {
	if !p.driving {
		p.driving = true
		p.fall = p.Clock.Now()
	}
}

func (p *Pin) release() {
	if !p.driving {
		return
	}
	p.driving = false
	now := p.Clock.Now()
	low := now.Sub(p.fall)
	if low >= 480*time.Microsecond {
		// Reset pulse. Every sensor returns to the command state and
		// answers with a presence pulse 15µs after the rising edge.
		p.pulls = p.pulls[:0]
		for _, s := range p.Sensors {
			s.Reset()
			p.pulls = append(p.pulls, pull{now.Add(15 * time.Microsecond), now.Add(270 * time.Microsecond)})
		}
		return
	}
	bit := byte(0)
	if low < 30*time.Microsecond {
		bit = 1
	}
	for _, s := range p.Sensors {
		if s.Slot(bit) {
			p.pulls = append(p.pulls, pull{p.fall, p.fall.Add(30 * time.Microsecond)})
		}
	}
}

// Sensor states.
const (
	stateIdle = iota // dropped out, waits for the next reset
	stateCommand
	stateSearch
	stateMatch
	stateFunction
	stateTransmit
	stateWrite
)

// Sensor models a DS18B20 on the line: presence, ROM search participation,
// ROM matching and the scratchpad function commands.
//
// Scratch holds the first 8 scratchpad bytes; the CRC byte is appended when
// the scratchpad is read out. Conversions and Copies count the Convert T and
// Copy Scratchpad commands delivered to the sensor.
type Sensor struct {
	ROM     [8]byte
	Scratch [8]byte

	Conversions int
	Copies      int

	state  int
	shift  uint32 // receive shift register
	nbits  int
	pos    int // ROM bit index while searching or matching
	phase  int // triplet phase while searching
	out    []byte
	outPos int
}

// Reset delivers a reset pulse: the sensor drops whatever it was doing and
// waits for a ROM command. Pin calls it for every low pulse over 480µs; other
// line simulations, a serial adapter model for instance, call it directly.
func (s *Sensor) Reset() {
	s.state = stateCommand
	s.shift = 0
	s.nbits = 0
	s.pos = 0
	s.phase = 0
}

// Slot delivers one time slot to the sensor. bit is the level the master
// transmitted. The return is true when the sensor holds the line low for
// this slot, which the master samples as a 0.
func (s *Sensor) Slot(bit byte) bool {
	switch s.state {
	case stateCommand, stateFunction:
		s.shift |= uint32(bit) << s.nbits
		s.nbits++
		if s.nbits == 8 {
			cmd := byte(s.shift)
			s.shift = 0
			s.nbits = 0
			if s.state == stateCommand {
				s.romCommand(cmd)
			} else {
				s.functionCommand(cmd)
			}
		}
	case stateSearch:
		switch s.phase {
		case 0: // transmit the ROM bit
			s.phase = 1
			return s.romBit(s.pos) == 0
		case 1: // transmit its complement
			s.phase = 2
			return s.romBit(s.pos) == 1
		default: // receive the master's direction choice
			if bit != s.romBit(s.pos) {
				s.state = stateIdle
				return false
			}
			s.phase = 0
			s.pos++
			if s.pos == 64 {
				s.state = stateFunction
			}
		}
	case stateMatch:
		if bit != s.romBit(s.pos) {
			s.state = stateIdle
			return false
		}
		s.pos++
		if s.pos == 64 {
			s.state = stateFunction
		}
	case stateTransmit:
		if s.outPos >= len(s.out)*8 {
			return false
		}
		b := s.out[s.outPos/8] >> (s.outPos % 8) & 1
		s.outPos++
		return b == 0
	case stateWrite:
		s.shift |= uint32(bit) << s.nbits
		s.nbits++
		if s.nbits == 24 {
			s.Scratch[2] = byte(s.shift)
			s.Scratch[3] = byte(s.shift >> 8)
			s.Scratch[4] = byte(s.shift >> 16)
			s.state = stateIdle
		}
	}
	return false
}

func (s *Sensor) romCommand(cmd byte) {
	switch cmd {
	case 0xf0: // Search ROM
		s.state = stateSearch
		s.pos = 0
		s.phase = 0
	case 0x55: // Match ROM
		s.state = stateMatch
		s.pos = 0
	case 0xcc: // Skip ROM
		s.state = stateFunction
	default:
		s.state = stateIdle
	}
}

func (s *Sensor) functionCommand(cmd byte) {
	switch cmd {
	case 0xbe: // Read Scratchpad
		buf := make([]byte, 9)
		copy(buf, s.Scratch[:])
		buf[8] = common.CRC8(buf[:8])
		s.out = buf
		s.outPos = 0
		s.state = stateTransmit
	case 0x44: // Convert T
		s.Conversions++
		s.state = stateIdle
	case 0x4e: // Write Scratchpad
		s.state = stateWrite
	case 0x48: // Copy Scratchpad
		s.Copies++
		s.state = stateIdle
	default:
		s.state = stateIdle
	}
}

func (s *Sensor) romBit(i int) byte {
	return s.ROM[i/8] >> (i % 8) & 1
}

var _ gpio.PinIO = &Pin{}
