// Package msr implements the privileged register transport on top of the
// Linux msr driver (/dev/cpu/N/msr). Register reads and writes are 8-byte
// transfers at the register address, little-endian.
package msr

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const devicePath = "/dev/cpu/%d/msr"

// Transport reads and writes privileged registers. Reads and writes target
// whichever logical CPU the transport is currently addressing; for
// core-local registers the caller must also bind its execution to that CPU
// first.
type Transport interface {
	Read(addr uint64) (uint64, error)
	Write(addr uint64, value uint64) error
}

// Failure kinds. Implementations wrap one of these so callers can classify
// with errors.Is. Transport failures are fatal for the current monitoring
// configuration and are never retried here; repeated privileged-register
// failures almost always mean a permanent environment problem (no elevated
// access, msr module not loaded, unsupported CPU).
var (
	ErrAccessDenied      = errors.New("register access denied")
	ErrInvalidAddress    = errors.New("invalid register address")
	ErrDeviceUnavailable = errors.New("register device unavailable")
)

// Device is a Transport bound to one logical CPU's msr device node.
type Device struct {
	cpu  int
	file *os.File
}

// Open opens the msr device node for the given logical CPU. Requires
// elevated privilege and the msr kernel module.
func Open(cpu int) (*Device, error) {
	path := fmt.Sprintf(devicePath, cpu)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(classify(err), "open %s", path)
	}
	return &Device{cpu: cpu, file: file}, nil
}

// Read returns the 64-bit value of the register at addr.
func (d *Device) Read(addr uint64) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := d.file.ReadAt(buf, int64(addr)); err != nil {
		return 0, errors.Wrapf(classify(err), "read register 0x%x on cpu %d", addr, d.cpu)
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// Write stores a 64-bit value into the register at addr.
func (d *Device) Write(addr uint64, value uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	if _, err := d.file.WriteAt(buf, int64(addr)); err != nil {
		return errors.Wrapf(classify(err), "write register 0x%x on cpu %d", addr, d.cpu)
	}
	return nil
}

// Close releases the device node.
func (d *Device) Close() error {
	return d.file.Close()
}

// CoreLocal multiplexes per-CPU msr devices behind a single Transport.
// Retarget selects the CPU that subsequent reads and writes address;
// device nodes are opened lazily and kept open for the session. Not safe
// for concurrent use; the engine is driven by a single caller.
type CoreLocal struct {
	current *Device
	devices map[int]*Device
}

// OpenCoreLocal returns a CoreLocal transport initially targeting cpu.
func OpenCoreLocal(cpu int) (*CoreLocal, error) {
	t := &CoreLocal{devices: map[int]*Device{}}
	if err := t.Retarget(cpu); err != nil {
		return nil, err
	}
	return t, nil
}

// Retarget directs subsequent register access at the given logical CPU.
func (t *CoreLocal) Retarget(cpu int) error {
	if dev, ok := t.devices[cpu]; ok {
		t.current = dev
		return nil
	}
	dev, err := Open(cpu)
	if err != nil {
		return err
	}
	t.devices[cpu] = dev
	t.current = dev
	return nil
}

func (t *CoreLocal) Read(addr uint64) (uint64, error) {
	return t.current.Read(addr)
}

func (t *CoreLocal) Write(addr uint64, value uint64) error {
	return t.current.Write(addr, value)
}

// Close releases all opened device nodes.
func (t *CoreLocal) Close() error {
	var firstErr error
	for _, dev := range t.devices {
		if err := dev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// classify maps an OS error from the msr driver onto the transport failure
// taxonomy. The driver reports EIO for registers that are not implemented
// on the running CPU.
func classify(err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.Wrap(ErrDeviceUnavailable, err.Error())
	case os.IsPermission(err):
		return errors.Wrap(ErrAccessDenied, err.Error())
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.EIO:
			return errors.Wrap(ErrInvalidAddress, err.Error())
		case unix.EACCES, unix.EPERM:
			return errors.Wrap(ErrAccessDenied, err.Error())
		case unix.ENXIO, unix.ENODEV, unix.ENOENT:
			return errors.Wrap(ErrDeviceUnavailable, err.Error())
		}
	}
	return err
}
