// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package w1gpio implements a 1-Wire bus master on a single GPIO pin.
//
// The bus is bit-banged: the pin is driven low to open each time slot and
// released to let the external pull-up resistor float the line high, with the
// slot widths controlled by microsecond delays. The wiring needs a 4.7kΩ
// pull-up from the data line to the sensor supply; the sensors must be
// locally powered since parasite power is not supported.
//
// Every bus operation blocks the calling goroutine for the full duration of
// its time slots, about 800µs for a reset and 65µs to 125µs per bit. A full
// device enumeration runs to several milliseconds. There is no cancellation
// inside an operation; the only bounded wait is the reset's presence window.
package w1gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"

	"github.com/embhaus/onewire/search"
)

// Opts holds the timing configuration of the bus. The defaults satisfy the
// 1-Wire standard speed grade; the fields exist so a platform with slow pin
// switching can stretch individual phases while keeping the protocol bounds.
type Opts struct {
	ResetLow       time.Duration // reset low pulse, at least 480µs
	PresenceDetect time.Duration // release to presence sample, 60µs..240µs
	ResetTail      time.Duration // settle time after the presence sample
	Write1Low      time.Duration // write-1 low pulse, 1µs..15µs
	Write0Low      time.Duration // write-0 low pulse, 60µs..120µs
	ReadLow        time.Duration // read slot start pulse, 1µs..5µs
	ReadSample     time.Duration // release to read sample, slot start +30µs at the latest
	SlotRecovery   time.Duration // released line time closing every slot, at least 1µs

	// MaxDevices caps how many devices a Search enumerates, at most
	// search.MaxDevices which is also the default.
	MaxDevices int

	// Delay blocks for the given duration between pin transitions. It
	// defaults to DefaultDelay. Tests substitute a virtual clock here.
	Delay func(time.Duration)
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ResetLow:       500 * time.Microsecond,
	PresenceDetect: 70 * time.Microsecond,
	ResetTail:      230 * time.Microsecond,
	Write1Low:      5 * time.Microsecond,
	Write0Low:      60 * time.Microsecond,
	ReadLow:        2 * time.Microsecond,
	ReadSample:     13 * time.Microsecond,
	SlotRecovery:   60 * time.Microsecond,
	MaxDevices:     search.MaxDevices,
}

// busyThreshold is the wait below which DefaultDelay spins instead of
// sleeping: the scheduler's wake-up latency is on the order of the whole
// slot, so sleeping would stretch the sub-100µs phases out of regulation.
const busyThreshold = 100 * time.Microsecond

// DefaultDelay blocks for t, sleeping through the long protocol phases and
// busy-spinning through the short ones. The long phases only have minimum
// widths, so scheduler oversleep cannot take them out of spec.
func DefaultDelay(t time.Duration) {
	if t >= busyThreshold {
		sleep(t)
		return
	}
	for start := time.Now(); time.Since(start) < t; {
	}
}

// New returns a bus master driving the 1-Wire line attached to p.
//
// The pin is released immediately so attached devices see an idle high line.
// Zero fields in opts take their DefaultOpts value; a nil opts selects
// DefaultOpts wholesale.
func New(p gpio.PinIO, opts *Opts) (*Dev, error) {
	if p == nil {
		return nil, errors.New("w1gpio: pin is required")
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	fillDefaults(&o)
	if err := validateOpts(&o); err != nil {
		return nil, err
	}
	d := &Dev{p: p, opts: o}
	if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("w1gpio: releasing %s: %v", p, err)
	}
	return d, nil
}

func fillDefaults(o *Opts) {
	if o.ResetLow == 0 {
		o.ResetLow = DefaultOpts.ResetLow
	}
	if o.PresenceDetect == 0 {
		o.PresenceDetect = DefaultOpts.PresenceDetect
	}
	if o.ResetTail == 0 {
		o.ResetTail = DefaultOpts.ResetTail
	}
	if o.Write1Low == 0 {
		o.Write1Low = DefaultOpts.Write1Low
	}
	if o.Write0Low == 0 {
		o.Write0Low = DefaultOpts.Write0Low
	}
	if o.ReadLow == 0 {
		o.ReadLow = DefaultOpts.ReadLow
	}
	if o.ReadSample == 0 {
		o.ReadSample = DefaultOpts.ReadSample
	}
	if o.SlotRecovery == 0 {
		o.SlotRecovery = DefaultOpts.SlotRecovery
	}
	if o.MaxDevices <= 0 || o.MaxDevices > search.MaxDevices {
		o.MaxDevices = search.MaxDevices
	}
	if o.Delay == nil {
		o.Delay = DefaultDelay
	}
}

func validateOpts(o *Opts) error {
	if o.ResetLow < 480*time.Microsecond {
		return errors.New("w1gpio: reset low pulse must be at least 480µs")
	}
	if o.PresenceDetect < 60*time.Microsecond || o.PresenceDetect > 240*time.Microsecond {
		return errors.New("w1gpio: presence sample must fall 60µs..240µs after release")
	}
	if o.Write1Low < 1*time.Microsecond || o.Write1Low > 15*time.Microsecond {
		return errors.New("w1gpio: write-1 low pulse must be 1µs..15µs")
	}
	if o.Write0Low < 60*time.Microsecond || o.Write0Low > 120*time.Microsecond {
		return errors.New("w1gpio: write-0 low pulse must be 60µs..120µs")
	}
	if o.ReadLow < 1*time.Microsecond || o.ReadLow > 5*time.Microsecond {
		return errors.New("w1gpio: read slot start pulse must be 1µs..5µs")
	}
	if o.ReadLow+o.ReadSample > 30*time.Microsecond {
		return errors.New("w1gpio: read sample must land within 30µs of slot start")
	}
	if o.SlotRecovery < 1*time.Microsecond {
		return errors.New("w1gpio: slot recovery must be at least 1µs")
	}
	return nil
}

// Dev is a handle to the bus master and implements onewire.Bus and
// onewire.BusSearcher.
//
// Dev implements a persistent error model for pin failures: once a GPIO
// operation fails the Dev places itself into an error state and returns that
// error from every subsequent call. Conditions of the 1-Wire line itself, a
// missing presence pulse or a shorted bus, are per-call errors implementing
// onewire.BusError and do not poison the Dev.
type Dev struct {
	mu   sync.Mutex // one transaction on the line at a time
	p    gpio.PinIO
	opts Opts
	err  error // persistent pin failure
}

func (d *Dev) String() string {
	return fmt.Sprintf("W1GPIO{%s}", d.p)
}

// Halt implements conn.Resource. It releases the line.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.p.In(gpio.Float, gpio.NoEdge)
}

// Reset issues a reset pulse and returns true if at least one device answered
// with a presence pulse. The call blocks for the whole reset cycle, about
// 800µs.
func (d *Dev) Reset() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// WriteBit transmits bit 0 of bit in a single write slot.
func (d *Dev) WriteBit(bit byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeBit(bit)
}

// ReadBit runs one read slot and returns the sampled bit.
func (d *Dev) ReadBit() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readBit()
}

// WriteByte transmits b least significant bit first.
func (d *Dev) WriteByte(b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeByte(b)
}

// ReadByte reads one byte, least significant bit first.
func (d *Dev) ReadByte() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readByte()
}

// Tx performs a bus transaction: reset, write all of w, then read len(r)
// bytes. If no device answers the reset a busError is returned and nothing is
// transmitted.
//
// The bus keeps its passive pull-up between transactions; StrongPullup
// requires actively driving the line high, which this master does not do, so
// requesting it is an error.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	if power == onewire.StrongPullup {
		return errors.New("w1gpio: strong pull-up is not supported")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if present, err := d.reset(); err != nil {
		return err
	} else if !present {
		return busError("w1gpio: no device present")
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

// Search implements onewire.Bus using the deferred-branch ROM search. At most
// Opts.MaxDevices devices are returned; see the search package for the walk
// order and the fault semantics.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	if alarmOnly {
		return nil, errors.New("w1gpio: alarm search is not supported")
	}
	return search.All(d, d.opts.MaxDevices)
}

// SearchTriplet performs the two reads plus one write of a search step.
//
// SearchTriplet should not be used directly, use Search instead.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	return search.Triplet(d, direction)
}

// reset drives the reset cycle: a long low pulse, release, presence sample,
// then the settle tail. A line still low at the end of the cycle is reported
// as a short.
func (d *Dev) reset() (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	d.driveLow()
	d.delay(d.opts.ResetLow)
	d.release()
	d.delay(d.opts.PresenceDetect)
	present := d.p.Read() == gpio.Low
	d.delay(d.opts.ResetTail)
	if d.err != nil {
		return false, d.err
	}
	if d.p.Read() == gpio.Low {
		return false, shortedBusError("w1gpio: bus is shorted")
	}
	return present, nil
}

func (d *Dev) writeBit(bit byte) error {
	if d.err != nil {
		return d.err
	}
	d.driveLow()
	if bit&1 != 0 {
		d.delay(d.opts.Write1Low)
	} else {
		d.delay(d.opts.Write0Low)
	}
	d.release()
	d.delay(d.opts.SlotRecovery)
	return d.err
}

func (d *Dev) readBit() (byte, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.driveLow()
	d.delay(d.opts.ReadLow)
	d.release()
	d.delay(d.opts.ReadSample)
	var bit byte
	if d.p.Read() == gpio.High {
		bit = 1
	}
	d.delay(d.opts.SlotRecovery)
	return bit, d.err
}

func (d *Dev) writeByte(b byte) error {
	for i := 0; i < 8; i++ {
		if err := d.writeBit(b >> i); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dev) readByte() (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		bit, err := d.readBit()
		if err != nil {
			return 0, err
		}
		b |= bit << i
	}
	return b, nil
}

// driveLow takes over the line and pulls it low, persisting any pin error.
func (d *Dev) driveLow() {
	if d.err != nil {
		return
	}
	if err := d.p.Out(gpio.Low); err != nil {
		d.err = fmt.Errorf("w1gpio: driving %s low: %v", d.p, err)
	}
}

// release switches the pin back to input so the pull-up floats the line high.
func (d *Dev) release() {
	if d.err != nil {
		return
	}
	if err := d.p.In(gpio.Float, gpio.NoEdge); err != nil {
		d.err = fmt.Errorf("w1gpio: releasing %s: %v", d.p, err)
	}
}

func (d *Dev) delay(t time.Duration) {
	d.opts.Delay(t)
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

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.BusSearcher = &Dev{}
