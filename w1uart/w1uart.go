// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1uart implements a 1-Wire bus master over a serial port wired as
// a passive adapter, the classic DS9097 arrangement with TX driving the line
// through an open collector and RX listening on it.
//
// The UART generates the waveform: at 9600 baud the 0xF0 character's start
// and data bits form a reset pulse, and a presence pulse shows up as extra
// low bits in the echo. At 115200 baud each character is one time slot, 0xFF
// for a 1 or a read, 0x00 for a 0, with a device's answer flattening bits in
// the echoed character.
package w1uart

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"

	"github.com/embhaus/onewire/search"
)

// Opts holds the adapter configuration.
type Opts struct {
	ResetBaud  int // baud rate generating the reset pulse
	SlotBaud   int // baud rate generating time slots
	MaxDevices int // cap on Search results, at most search.MaxDevices
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ResetBaud:  9600,
	SlotBaud:   115200,
	MaxDevices: search.MaxDevices,
}

// echoTimeout bounds the wait for the adapter to echo a character back. An
// expired wait means the adapter is gone, not that the bus is empty.
const echoTimeout = 100 * time.Millisecond

// Open opens the named serial port and returns a bus master on it.
func Open(portName string, opts *Opts) (*Dev, error) {
	o := fillOpts(opts)
	mode := &serial.Mode{
		BaudRate: o.SlotBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("w1uart: opening %s: %v", portName, err)
	}
	d, err := New(p, o)
	if err != nil {
		p.Close()
		return nil, err
	}
	d.name = portName
	return d, nil
}

// New returns a bus master on an already opened port. The port must be in
// 8N1 framing; New forces the slot baud rate and the echo read timeout.
func New(p serial.Port, opts *Opts) (*Dev, error) {
	if p == nil {
		return nil, errors.New("w1uart: port is required")
	}
	o := fillOpts(opts)
	d := &Dev{p: p, name: "port", opts: *o}
	if err := p.SetReadTimeout(echoTimeout); err != nil {
		return nil, fmt.Errorf("w1uart: setting the echo timeout: %v", err)
	}
	if err := d.setSlotBaud(true); err != nil {
		return nil, err
	}
	return d, nil
}

func fillOpts(opts *Opts) *Opts {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.ResetBaud <= 0 {
		o.ResetBaud = DefaultOpts.ResetBaud
	}
	if o.SlotBaud <= 0 {
		o.SlotBaud = DefaultOpts.SlotBaud
	}
	if o.MaxDevices <= 0 || o.MaxDevices > search.MaxDevices {
		o.MaxDevices = search.MaxDevices
	}
	return &o
}

// Dev is a handle to the adapter and implements onewire.Bus and
// onewire.BusSearcher.
//
// Port failures, a missing echo included, are persistent: the Dev keeps
// returning the first such error. A missing presence pulse is a per-call
// onewire.BusError.
type Dev struct {
	mu       sync.Mutex
	p        serial.Port
	name     string
	opts     Opts
	err      error
	slotBaud bool // port currently at the slot baud rate
}

func (d *Dev) String() string {
	return fmt.Sprintf("W1UART{%s}", d.name)
}

// Halt implements conn.Resource. It closes the port.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.p.Close()
}

// Reset generates a reset pulse and reports whether a device answered with a
// presence pulse.
func (d *Dev) Reset() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// WriteBit transmits bit 0 of bit in a single slot.
func (d *Dev) WriteBit(bit byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.touchBit(bit)
	return err
}

// ReadBit runs one read slot and returns the sampled bit.
func (d *Dev) ReadBit() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.touchBit(1)
}

// Tx performs a bus transaction: reset, write all of w, then read len(r)
// bytes. A passive adapter cannot drive the line high, so StrongPullup is
// rejected.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	if power == onewire.StrongPullup {
		return errors.New("w1uart: strong pull-up is not supported")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if present, err := d.reset(); err != nil {
		return err
	} else if !present {
		return busError("w1uart: no device present")
	}
	for _, b := range w {
		if err := d.writeByte(b); err != nil {
			return err
		}
	}
	for i := range r {
		b, err := d.readByte()
		if err != nil {
			return err
		}
		r[i] = b
	}
	return nil
}

// Search implements onewire.Bus using the deferred-branch ROM search.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	if alarmOnly {
		return nil, errors.New("w1uart: alarm search is not supported")
	}
	return search.All(d, d.opts.MaxDevices)
}

// SearchTriplet performs the two reads plus one write of a search step.
//
// SearchTriplet should not be used directly, use Search instead.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	return search.Triplet(d, direction)
}

// reset drops to the reset baud rate so the 0xF0 frame stretches into a
// 480µs low pulse; a presence pulse flattens high bits in the echo.
func (d *Dev) reset() (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if err := d.setSlotBaud(false); err != nil {
		return false, err
	}
	echo, err := d.exchange(0xf0)
	if err != nil {
		return false, err
	}
	if err := d.setSlotBaud(true); err != nil {
		return false, err
	}
	if echo == 0x00 {
		return false, shortedBusError("w1uart: bus is shorted")
	}
	return echo != 0xf0, nil
}

// touchBit runs one slot and returns the level a device left on the line.
// Writing a 0 ignores the answer; writing a 1 and reading are the same slot.
func (d *Dev) touchBit(bit byte) (byte, error) {
	if d.err != nil {
		return 0, d.err
	}
	if err := d.setSlotBaud(true); err != nil {
		return 0, err
	}
	c := byte(0x00)
	if bit&1 != 0 {
		c = 0xff
	}
	echo, err := d.exchange(c)
	if err != nil {
		return 0, err
	}
	if echo == 0xff {
		return 1, nil
	}
	return 0, nil
}

func (d *Dev) writeByte(b byte) error {
	for i := 0; i < 8; i++ {
		if _, err := d.touchBit(b >> i); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) readByte() (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		bit, err := d.touchBit(1)
		if err != nil {
			return 0, err
		}
		b |= bit << i
	}
	return b, nil
}

// exchange writes one character and collects its echo, persisting any port
// failure.
func (d *Dev) exchange(c byte) (byte, error) {
	if _, err := d.p.Write([]byte{c}); err != nil {
		d.err = fmt.Errorf("w1uart: writing to the port: %v", err)
		return 0, d.err
	}
	var buf [1]byte
	n, err := d.p.Read(buf[:])
	if err != nil {
		d.err = fmt.Errorf("w1uart: reading the echo: %v", err)
		return 0, d.err
	}
	if n == 0 {
		d.err = errors.New("w1uart: no echo from the adapter")
		return 0, d.err
	}
	return buf[0], nil
}

func (d *Dev) setSlotBaud(slot bool) error {
	if d.slotBaud == slot {
		return nil
	}
	baud := d.opts.ResetBaud
	if slot {
		baud = d.opts.SlotBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := d.p.SetMode(mode); err != nil {
		d.err = fmt.Errorf("w1uart: switching to %d baud: %v", baud, err)
		return d.err
	}
	d.slotBaud = slot
	return nil
}

// shortedBusError implements error, onewire.BusError and
// onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.BusSearcher = &Dev{}
