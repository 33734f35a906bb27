// Package metrics holds counter normalization and the derived-metric
// formulas. Everything here is a pure function of already-fetched counter
// values; no hardware interaction happens during computation.
//
// The formulas deliberately do not guard against zero denominators: an
// idle interval with zero accesses produces a non-finite result, which
// propagates as-is and is the display layer's to render.
package metrics

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// CacheLineBytes is the line size used for bandwidth derivation.
const CacheLineBytes = 64

// latencyCounterScale converts the hardware latency event, which counts
// cycles accumulated across outstanding miss transactions divided by 16,
// back into cycles.
const latencyCounterScale = 16

// Normalize converts a raw counter delta into a rate using the externally
// supplied normalization factor (derived upstream from the sampling
// interval and reference clock).
func Normalize(raw uint64, factor float64) float64 {
	return float64(raw) * factor
}

// HitRatePct returns the hit rate percentage for an access/miss pair.
func HitRatePct(accesses, misses float64) float64 {
	return (1 - misses/accesses) * 100
}

// HitBandwidth returns the bytes satisfied by hits; a rate once the inputs
// are normalized by elapsed time.
func HitBandwidth(accesses, misses float64) float64 {
	return (accesses - misses) * CacheLineBytes
}

// MissLatencyCycles returns the mean miss latency in core clocks from the
// scaled latency counter and the miss count.
func MissLatencyCycles(latencyCounter, misses float64) float64 {
	return latencyCounter * latencyCounterScale / misses
}

// MissLatencyNs converts a latency in cycles to nanoseconds at the given
// cluster clock.
func MissLatencyNs(latencyCycles, clockHz float64) float64 {
	return latencyCycles * 1e9 / clockHz
}

// PendingMissesPerCycle is the Little's-law occupancy estimate: mean
// outstanding misses per cycle over the interval.
func PendingMissesPerCycle(latencyCounter, clockHz float64) float64 {
	return latencyCounter * latencyCounterScale / clockHz
}

// TransitionLatency returns the mean cycles spent per state transition for
// one direction's {cycle counter, edge-triggered transition counter} pair.
func TransitionLatency(cycles, transitions float64) float64 {
	return cycles / transitions
}
