package session

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmcwatch/internal/uncore"
)

func l3Counter(n int) uint64 {
	return uncore.L3CounterBase + uint64(2*n)
}

// Register access must run on each cluster's representative; member
// threads are only visited for the clock reference counters.
func TestSamplerBindOrder(t *testing.T) {
	host := newFakeHost()
	env := testEnv(t, host, 4, func(thread int) int { return thread / 2 })
	sampler := NewSampler(env.Topology, env.Binder, env.Transport, uncore.L3Box())

	require.NoError(t, sampler.Program(make([]uint64, uncore.L3CounterCount), 0))
	assert.Equal(t, []int{0, 0, 1, 2, 2, 3}, host.binds)

	host.binds = nil
	_, err := sampler.Sample(unitNorm)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 2, 2, 3}, host.binds)
}

// The cluster clock is the maximum of its members' effective clocks.
func TestSamplerClusterClockIsMemberMax(t *testing.T) {
	host := newFakeHost()
	env := testEnv(t, host, 3, func(int) int { return 0 })
	sampler := NewSampler(env.Topology, env.Binder, env.Transport, uncore.L3Box())

	memberTSC := []uint64{3_000_000_000, 3_400_000_000, 2_900_000_000}
	for thread, tsc := range memberTSC {
		host.pushClock(thread, uncore.TSCAddr, 0, tsc)
		host.pushClock(thread, uncore.MPERFAddr, 0, 1_000_000_000)
		host.pushClock(thread, uncore.APERFAddr, 0, 1_000_000_000)
	}

	require.NoError(t, sampler.Program(make([]uint64, uncore.L3CounterCount), 0))
	samples, err := sampler.Sample(unitNorm)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.InDelta(t, 3.4e9, samples[0].ClockHz, 1)
}

// Each cluster's counters come from its own register block, read via its
// own representative.
func TestSamplerPerClusterCounters(t *testing.T) {
	host := newFakeHost()
	env := testEnv(t, host, 4, func(thread int) int { return thread / 2 })
	sampler := NewSampler(env.Topology, env.Binder, env.Transport, uncore.L3Box())
	require.NoError(t, sampler.Program(make([]uint64, uncore.L3CounterCount), 0))

	host.setReg(0, l3Counter(0), 111)
	host.setReg(2, l3Counter(0), 222)

	samples, err := sampler.Sample(unitNorm)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, uint64(111), samples[0].Counters[0])
	assert.Equal(t, uint64(222), samples[1].Counters[0])
	assert.Equal(t, 0, samples[0].Representative)
	assert.Equal(t, 2, samples[1].Representative)
}

// The read cycle clears the free-running counters, so the next sample
// reports only the new interval's accumulation.
func TestSamplerClearsBetweenSamples(t *testing.T) {
	host := newFakeHost()
	env := testEnv(t, host, 1, func(int) int { return 0 })
	sampler := NewSampler(env.Topology, env.Binder, env.Transport, uncore.L3Box())
	require.NoError(t, sampler.Program(make([]uint64, uncore.L3CounterCount), 0))

	host.setReg(0, l3Counter(1), 500)
	samples, err := sampler.Sample(unitNorm)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), samples[0].Counters[1])

	samples, err = sampler.Sample(unitNorm)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), samples[0].Counters[1])
}
