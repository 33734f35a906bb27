// Package uncore programs and reads uncore performance-monitoring units
// through a privileged register transport. It contains the control-word
// codec for the event-select, box-control, and filter register shapes, the
// fixed register maps for the supported units, and the driver that
// sequences the freeze/program/clear/unfreeze protocol.
package uncore

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Control-word encode/decode. Encoding silently truncates over-wide field
// values by masking; hardware aliases out-of-range values into adjacent
// bits the same way.

// PCUEventSelect is the decoded form of a power-control-unit PMON event
// select register.
//
// Bit layout: event [7:0], occupancy select [16:14], reset 17, edge 18,
// enable 22, invert 23, cmask [27:24], occupancy invert 30, occupancy
// edge 31.
type PCUEventSelect struct {
	Event     uint8
	OccSel    uint8 // 3 bits
	Reset     bool
	Edge      bool
	Enable    bool
	Invert    bool
	Cmask     uint8 // 4 bits
	OccInvert bool
	OccEdge   bool
}

// Encode packs the event select fields into a control word.
func (e PCUEventSelect) Encode() uint64 {
	return uint64(e.Event) |
		uint64(e.OccSel&0x7)<<14 |
		boolBit(e.Reset)<<17 |
		boolBit(e.Edge)<<18 |
		boolBit(e.Enable)<<22 |
		boolBit(e.Invert)<<23 |
		uint64(e.Cmask&0xF)<<24 |
		boolBit(e.OccInvert)<<30 |
		boolBit(e.OccEdge)<<31
}

// DecodePCUEventSelect unpacks a PCU event select control word.
func DecodePCUEventSelect(word uint64) PCUEventSelect {
	return PCUEventSelect{
		Event:     uint8(word & 0xFF),
		OccSel:    uint8(word >> 14 & 0x7),
		Reset:     word>>17&1 == 1,
		Edge:      word>>18&1 == 1,
		Enable:    word>>22&1 == 1,
		Invert:    word>>23&1 == 1,
		Cmask:     uint8(word >> 24 & 0xF),
		OccInvert: word>>30&1 == 1,
		OccEdge:   word>>31&1 == 1,
	}
}

// BoxControl is the decoded form of a PMON box control register.
//
// Bit layout: reset control 0, reset counters 1, freeze 8, freeze enable 16.
type BoxControl struct {
	ResetControl  bool
	ResetCounters bool
	Freeze        bool
	FreezeEnable  bool
}

// Encode packs the box control fields into a control word.
func (b BoxControl) Encode() uint64 {
	return boolBit(b.ResetControl) |
		boolBit(b.ResetCounters)<<1 |
		boolBit(b.Freeze)<<8 |
		boolBit(b.FreezeEnable)<<16
}

// DecodeBoxControl unpacks a box control word.
func DecodeBoxControl(word uint64) BoxControl {
	return BoxControl{
		ResetControl:  word&1 == 1,
		ResetCounters: word>>1&1 == 1,
		Freeze:        word>>8&1 == 1,
		FreezeEnable:  word>>16&1 == 1,
	}
}

// PCUFilter is the decoded form of the PCU filter register: four
// independent 8-bit occupancy bands.
type PCUFilter struct {
	Band0 uint8
	Band1 uint8
	Band2 uint8
	Band3 uint8
}

// Encode packs the filter bands into a control word.
func (f PCUFilter) Encode() uint64 {
	return uint64(f.Band0) |
		uint64(f.Band1)<<8 |
		uint64(f.Band2)<<16 |
		uint64(f.Band3)<<24
}

// DecodePCUFilter unpacks a PCU filter control word.
func DecodePCUFilter(word uint64) PCUFilter {
	return PCUFilter{
		Band0: uint8(word & 0xFF),
		Band1: uint8(word >> 8 & 0xFF),
		Band2: uint8(word >> 16 & 0xFF),
		Band3: uint8(word >> 24 & 0xFF),
	}
}

// L3EventSelect is the decoded form of an L3 cache PMC event select
// register.
//
// Bit layout: event [7:0], unit mask [15:8], enable 22, slice mask
// [51:48], thread mask [63:56].
type L3EventSelect struct {
	Event      uint8
	Umask      uint8
	Enable     bool
	SliceMask  uint8 // 4 bits
	ThreadMask uint8
}

// Encode packs the L3 event select fields into a control word.
func (e L3EventSelect) Encode() uint64 {
	return uint64(e.Event) |
		uint64(e.Umask)<<8 |
		boolBit(e.Enable)<<22 |
		uint64(e.SliceMask&0xF)<<48 |
		uint64(e.ThreadMask)<<56
}

// DecodeL3EventSelect unpacks an L3 event select control word.
func DecodeL3EventSelect(word uint64) L3EventSelect {
	return L3EventSelect{
		Event:      uint8(word & 0xFF),
		Umask:      uint8(word >> 8 & 0xFF),
		Enable:     word>>22&1 == 1,
		SliceMask:  uint8(word >> 48 & 0xF),
		ThreadMask: uint8(word >> 56 & 0xFF),
	}
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
