package uncore

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Fixed register address maps. These are architecture-specific constants
// taken from the vendor register references; they are never computed at
// runtime.

// Power control unit PMON block.
const (
	PCUBoxControlAddr = 0xC24
	PCUControl0       = 0xC30
	PCUControl1       = 0xC31
	PCUControl2       = 0xC32
	PCUControl3       = 0xC33
	PCUFilterAddr     = 0xC34
	PCUCounter0       = 0xC36
	PCUCounter1       = 0xC37
	PCUCounter2       = 0xC38
	PCUCounter3       = 0xC39
)

// Package sleep-state residency counters, read alongside the PCU counters
// as auxiliary state.
const (
	PkgC3Residency = 0x3F8
	PkgC6Residency = 0x3F9
)

// L3 cache PMC block, one instance per core complex. Control and counter
// registers are interleaved: ctl_n at base+2n, ctr_n at base+2n+1.
const (
	L3ControlBase  = 0xC0010230
	L3CounterBase  = 0xC0010231
	L3CounterCount = 6
	L3CounterMask  = 1<<48 - 1
)

// Per-thread clock reference registers.
const (
	TSCAddr   = 0x10
	MPERFAddr = 0xE7
	APERFAddr = 0xE8
)

// Box describes one monitoring unit's fixed register block.
type Box struct {
	Name     string
	Controls []uint64
	Counters []uint64
	// Filter is the filter register address, zero when the unit has none.
	Filter uint64
	// BoxControl is the box control register address. Zero means the unit
	// has no freeze capability and counters are cleared by writing zero.
	BoxControl uint64
	// Aux registers are read-only state counters reported with each
	// sample but never cleared.
	Aux []uint64
	// CounterMask is applied to every counter read. Zero means the full
	// 64 bits are valid.
	CounterMask uint64
}

// PCUBox returns the power-control-unit register block.
func PCUBox() Box {
	return Box{
		Name:       "pcu",
		Controls:   []uint64{PCUControl0, PCUControl1, PCUControl2, PCUControl3},
		Counters:   []uint64{PCUCounter0, PCUCounter1, PCUCounter2, PCUCounter3},
		Filter:     PCUFilterAddr,
		BoxControl: PCUBoxControlAddr,
		Aux:        []uint64{PkgC3Residency, PkgC6Residency},
	}
}

// L3Box returns the per-cluster L3 cache register block.
func L3Box() Box {
	controls := make([]uint64, L3CounterCount)
	counters := make([]uint64, L3CounterCount)
	for i := 0; i < L3CounterCount; i++ {
		controls[i] = L3ControlBase + uint64(2*i)
		counters[i] = L3CounterBase + uint64(2*i)
	}
	return Box{
		Name:        "l3",
		Controls:    controls,
		Counters:    counters,
		CounterMask: L3CounterMask,
	}
}
