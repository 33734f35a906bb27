package session

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pmcwatch/internal/topology"
	"pmcwatch/internal/uncore"
)

// fakeHost plays both roles the engine needs from the machine: the
// affinity binder and the register transport. Register state is kept per
// bound thread, so cluster representatives see their own unit's block.
// The free-running clock reference registers are scripted as per-thread
// queues; each read pops the next value.
type fakeHost struct {
	thread int
	binds  []int
	regs   map[int]map[uint64]uint64
	clocks map[int]map[uint64][]uint64
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		regs:   map[int]map[uint64]uint64{},
		clocks: map[int]map[uint64][]uint64{},
	}
}

func (h *fakeHost) Bind(thread int) (func(), error) {
	h.binds = append(h.binds, thread)
	prev := h.thread
	h.thread = thread
	return func() { h.thread = prev }, nil
}

// pushClock scripts the next reading of a clock reference register for
// one thread.
func (h *fakeHost) pushClock(thread int, addr uint64, values ...uint64) {
	if h.clocks[thread] == nil {
		h.clocks[thread] = map[uint64][]uint64{}
	}
	h.clocks[thread][addr] = append(h.clocks[thread][addr], values...)
}

// setReg sets a register value as seen from one bound thread.
func (h *fakeHost) setReg(thread int, addr uint64, value uint64) {
	if h.regs[thread] == nil {
		h.regs[thread] = map[uint64]uint64{}
	}
	h.regs[thread][addr] = value
}

func (h *fakeHost) Read(addr uint64) (uint64, error) {
	switch addr {
	case uncore.TSCAddr, uncore.MPERFAddr, uncore.APERFAddr:
		queue := h.clocks[h.thread][addr]
		if len(queue) == 0 {
			return 0, nil
		}
		value := queue[0]
		h.clocks[h.thread][addr] = queue[1:]
		return value, nil
	}
	return h.regs[h.thread][addr], nil
}

func (h *fakeHost) Write(addr uint64, value uint64) error {
	if h.regs[h.thread] == nil {
		h.regs[h.thread] = map[uint64]uint64{}
	}
	h.regs[h.thread][addr] = value
	return nil
}

func unitNorm(int) float64 { return 1.0 }

func testEnv(t *testing.T, host *fakeHost, threadCount int, clusterOf func(int) int) Environment {
	t.Helper()
	topo, err := topology.New(threadCount, clusterOf)
	require.NoError(t, err)
	return Environment{
		Topology:  topo,
		Binder:    host,
		Transport: host,
		Norm:      unitNorm,
	}
}
