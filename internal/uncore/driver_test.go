package uncore

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmcwatch/internal/msr"
)

// mockUnit models one unit's register block with deterministic counter
// increments: Advance accumulates each counter's rate unless the box is
// frozen, and box-control writes honor the freeze and reset-counters
// bits. Every transport operation is logged in order.
type mockUnit struct {
	box    Box
	regs   map[uint64]uint64
	rates  map[uint64]uint64
	frozen bool
	ops    []string
	fail   map[uint64]error
}

func newMockUnit(box Box) *mockUnit {
	return &mockUnit{
		box:   box,
		regs:  map[uint64]uint64{},
		rates: map[uint64]uint64{},
		fail:  map[uint64]error{},
	}
}

// Advance simulates one interval of hardware accumulation.
func (m *mockUnit) Advance() {
	if m.frozen {
		return
	}
	for addr, rate := range m.rates {
		m.regs[addr] += rate
	}
}

func (m *mockUnit) Read(addr uint64) (uint64, error) {
	m.ops = append(m.ops, fmt.Sprintf("R %#x", addr))
	if err := m.fail[addr]; err != nil {
		return 0, err
	}
	return m.regs[addr], nil
}

func (m *mockUnit) Write(addr uint64, value uint64) error {
	m.ops = append(m.ops, fmt.Sprintf("W %#x %#x", addr, value))
	if err := m.fail[addr]; err != nil {
		return err
	}
	if m.box.BoxControl != 0 && addr == m.box.BoxControl {
		ctl := DecodeBoxControl(value)
		if ctl.ResetCounters {
			for _, ctr := range m.box.Counters {
				m.regs[ctr] = 0
			}
		}
		m.frozen = ctl.FreezeEnable && ctl.Freeze
		return nil
	}
	m.regs[addr] = value
	return nil
}

func TestProgramSequenceFrozenBox(t *testing.T) {
	box := PCUBox()
	mock := newMockUnit(box)
	driver := NewDriver(box, mock)

	controls := []uint64{0x70, 0x71, 0x72, 0x73}
	require.NoError(t, driver.Program(controls, 0xAA))

	expected := []string{
		fmt.Sprintf("W %#x %#x", box.BoxControl, BoxControl{FreezeEnable: true}.Encode()),
		fmt.Sprintf("W %#x %#x", box.BoxControl, BoxControl{FreezeEnable: true, Freeze: true}.Encode()),
		fmt.Sprintf("W %#x %#x", box.Controls[0], uint64(0x70)),
		fmt.Sprintf("W %#x %#x", box.Controls[1], uint64(0x71)),
		fmt.Sprintf("W %#x %#x", box.Controls[2], uint64(0x72)),
		fmt.Sprintf("W %#x %#x", box.Controls[3], uint64(0x73)),
		fmt.Sprintf("W %#x %#x", box.Filter, uint64(0xAA)),
		fmt.Sprintf("W %#x %#x", box.BoxControl, BoxControl{FreezeEnable: true, Freeze: true, ResetCounters: true}.Encode()),
		fmt.Sprintf("W %#x %#x", box.BoxControl, BoxControl{FreezeEnable: true}.Encode()),
	}
	assert.Equal(t, expected, mock.ops)
	assert.False(t, mock.frozen, "counters must be accumulating after Program")
}

func TestProgramRejectsWrongControlCount(t *testing.T) {
	driver := NewDriver(PCUBox(), newMockUnit(PCUBox()))
	err := driver.Program([]uint64{0x70}, 0)
	require.Error(t, err)
}

// Consecutive read cycles must each report exactly one interval's
// accumulation; the clear after read prevents double counting.
func TestReadAndClearReportsPerInterval(t *testing.T) {
	box := PCUBox()
	mock := newMockUnit(box)
	for i, ctr := range box.Counters {
		mock.rates[ctr] = uint64(100 * (i + 1))
	}
	driver := NewDriver(box, mock)
	require.NoError(t, driver.Program(make([]uint64, 4), 0))

	mock.Advance()
	mock.Advance()
	sample, err := driver.ReadAndClear()
	require.NoError(t, err)
	assert.Equal(t, []uint64{200, 400, 600, 800}, sample.Counters)

	mock.Advance()
	sample, err = driver.ReadAndClear()
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 200, 300, 400}, sample.Counters)
}

// A read without an intervening clear reports the sum of both intervals'
// true accumulation.
func TestReadWithoutClearReportsSum(t *testing.T) {
	box := PCUBox()
	mock := newMockUnit(box)
	mock.rates[box.Counters[0]] = 100
	driver := NewDriver(box, mock)
	require.NoError(t, driver.Program(make([]uint64, 4), 0))

	mock.Advance()
	// peek at the counter without clearing it
	peek, err := mock.Read(box.Counters[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(100), peek)

	mock.Advance()
	sample, err := driver.ReadAndClear()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), sample.Counters[0], "uncleaned counter accumulates across intervals")
}

func TestReadCycleOrderFrozenBox(t *testing.T) {
	box := PCUBox()
	mock := newMockUnit(box)
	driver := NewDriver(box, mock)
	require.NoError(t, driver.Program(make([]uint64, 4), 0))
	mock.ops = nil

	_, err := driver.ReadAndClear()
	require.NoError(t, err)

	expected := []string{
		fmt.Sprintf("W %#x %#x", box.BoxControl, BoxControl{FreezeEnable: true, Freeze: true}.Encode()),
		fmt.Sprintf("R %#x", box.Counters[0]),
		fmt.Sprintf("R %#x", box.Counters[1]),
		fmt.Sprintf("R %#x", box.Counters[2]),
		fmt.Sprintf("R %#x", box.Counters[3]),
		fmt.Sprintf("W %#x %#x", box.BoxControl, BoxControl{FreezeEnable: true, Freeze: true, ResetCounters: true}.Encode()),
		fmt.Sprintf("W %#x %#x", box.BoxControl, BoxControl{FreezeEnable: true}.Encode()),
		fmt.Sprintf("R %#x", box.Aux[0]),
		fmt.Sprintf("R %#x", box.Aux[1]),
	}
	assert.Equal(t, expected, mock.ops)
}

func TestFreeRunningReadAndClear(t *testing.T) {
	box := L3Box()
	mock := newMockUnit(box)
	mock.rates[box.Counters[0]] = 400
	mock.rates[box.Counters[1]] = 100
	driver := NewDriver(box, mock)
	require.NoError(t, driver.Program(make([]uint64, L3CounterCount), 0))

	mock.Advance()
	sample, err := driver.ReadAndClear()
	require.NoError(t, err)
	assert.Equal(t, uint64(400), sample.Counters[0])
	assert.Equal(t, uint64(100), sample.Counters[1])

	// counters were zeroed by the read cycle
	mock.Advance()
	sample, err = driver.ReadAndClear()
	require.NoError(t, err)
	assert.Equal(t, uint64(400), sample.Counters[0])
}

func TestCounterMaskApplied(t *testing.T) {
	box := L3Box()
	mock := newMockUnit(box)
	driver := NewDriver(box, mock)
	require.NoError(t, driver.Program(make([]uint64, L3CounterCount), 0))

	mock.regs[box.Counters[0]] = 0xFFFF_0000_0000_0042
	sample, err := driver.ReadAndClear()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0000_0000_0042), sample.Counters[0])
}

func TestTransportFailureIsFatal(t *testing.T) {
	box := L3Box()
	mock := newMockUnit(box)
	mock.fail[box.Counters[2]] = errors.Wrap(msr.ErrAccessDenied, "no privilege")
	driver := NewDriver(box, mock)
	require.NoError(t, driver.Program(make([]uint64, L3CounterCount), 0))

	_, err := driver.ReadAndClear()
	require.Error(t, err)
	assert.True(t, errors.Is(err, msr.ErrAccessDenied))
}
