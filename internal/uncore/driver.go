package uncore

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"github.com/pkg/errors"

	"pmcwatch/internal/msr"
)

// Sample is one read-and-clear cycle's worth of raw counter values. The
// hardware counters are zeroed immediately after being read, so each
// sample covers exactly the accumulation since the previous read. Aux
// values are free-running state counters reported as-is.
type Sample struct {
	Counters []uint64
	Aux      []uint64
}

// Driver sequences register access against one unit's register block so
// counters never accumulate stale or cross-contaminated data.
//
// Units with a box control register follow the freeze protocol: counters
// are frozen across both reconfiguration and reads, and cleared while
// still frozen. Units without one (the L3 block) are programmed directly
// and read with per-counter read-then-zero.
//
// The ordering matters: skipping the clear after a read double-counts the
// interval on the next read; skipping the freeze before a read risks torn
// reads across the multi-register group.
type Driver struct {
	box       Box
	transport msr.Transport
}

// NewDriver returns a driver for the given register block on the given
// transport.
func NewDriver(box Box, transport msr.Transport) *Driver {
	return &Driver{box: box, transport: transport}
}

// Box returns the register block this driver operates on.
func (d *Driver) Box() Box {
	return d.box
}

// Program writes the control words into the unit's event select registers
// and leaves the counters cleared and accumulating. Safe to call
// repeatedly; every call reprograms from scratch. The controls slice must
// match the unit's control register count; filter is ignored for units
// without a filter register.
func (d *Driver) Program(controls []uint64, filter uint64) error {
	if len(controls) != len(d.box.Controls) {
		return errors.Errorf("unit %s has %d control registers, got %d control words",
			d.box.Name, len(d.box.Controls), len(controls))
	}
	if d.box.BoxControl != 0 {
		return d.programFrozen(controls, filter)
	}
	return d.programFreeRunning(controls)
}

func (d *Driver) programFrozen(controls []uint64, filter uint64) error {
	// Enable the freeze capability, then freeze so the register writes
	// are race-free with respect to accumulation.
	if err := d.writeBoxControl(BoxControl{FreezeEnable: true}); err != nil {
		return err
	}
	if err := d.writeBoxControl(BoxControl{FreezeEnable: true, Freeze: true}); err != nil {
		return err
	}
	for i, ctl := range d.box.Controls {
		if err := d.write(ctl, controls[i]); err != nil {
			return err
		}
	}
	if d.box.Filter != 0 {
		if err := d.write(d.box.Filter, filter); err != nil {
			return err
		}
	}
	// Zero the counters while still frozen, then unfreeze to start the
	// first sampling window.
	if err := d.writeBoxControl(BoxControl{FreezeEnable: true, Freeze: true, ResetCounters: true}); err != nil {
		return err
	}
	return d.writeBoxControl(BoxControl{FreezeEnable: true})
}

func (d *Driver) programFreeRunning(controls []uint64) error {
	for i, ctl := range d.box.Controls {
		if err := d.write(ctl, controls[i]); err != nil {
			return err
		}
	}
	for _, ctr := range d.box.Counters {
		if err := d.write(ctr, 0); err != nil {
			return err
		}
	}
	return nil
}

// ReadAndClear reads all counters and zeroes them, atomically with respect
// to accumulation, so the next sampling window starts from zero.
func (d *Driver) ReadAndClear() (Sample, error) {
	var sample Sample
	var err error
	if d.box.BoxControl != 0 {
		sample.Counters, err = d.readFrozen()
	} else {
		sample.Counters, err = d.readFreeRunning()
	}
	if err != nil {
		return Sample{}, err
	}
	for _, aux := range d.box.Aux {
		value, err := d.transport.Read(aux)
		if err != nil {
			return Sample{}, errors.Wrapf(err, "unit %s", d.box.Name)
		}
		sample.Aux = append(sample.Aux, value)
	}
	return sample, nil
}

func (d *Driver) readFrozen() ([]uint64, error) {
	if err := d.writeBoxControl(BoxControl{FreezeEnable: true, Freeze: true}); err != nil {
		return nil, err
	}
	values := make([]uint64, len(d.box.Counters))
	for i, ctr := range d.box.Counters {
		value, err := d.transport.Read(ctr)
		if err != nil {
			return nil, errors.Wrapf(err, "unit %s", d.box.Name)
		}
		values[i] = d.maskCounter(value)
	}
	if err := d.writeBoxControl(BoxControl{FreezeEnable: true, Freeze: true, ResetCounters: true}); err != nil {
		return nil, err
	}
	if err := d.writeBoxControl(BoxControl{FreezeEnable: true}); err != nil {
		return nil, err
	}
	return values, nil
}

func (d *Driver) readFreeRunning() ([]uint64, error) {
	values := make([]uint64, len(d.box.Counters))
	for i, ctr := range d.box.Counters {
		value, err := d.transport.Read(ctr)
		if err != nil {
			return nil, errors.Wrapf(err, "unit %s", d.box.Name)
		}
		if err := d.write(ctr, 0); err != nil {
			return nil, err
		}
		values[i] = d.maskCounter(value)
	}
	return values, nil
}

func (d *Driver) maskCounter(value uint64) uint64 {
	if d.box.CounterMask != 0 {
		return value & d.box.CounterMask
	}
	return value
}

func (d *Driver) writeBoxControl(ctl BoxControl) error {
	return d.write(d.box.BoxControl, ctl.Encode())
}

func (d *Driver) write(addr uint64, value uint64) error {
	if err := d.transport.Write(addr, value); err != nil {
		return errors.Wrapf(err, "unit %s", d.box.Name)
	}
	return nil
}
