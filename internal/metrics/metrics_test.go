package metrics

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLinearity(t *testing.T) {
	tests := []struct {
		raw    uint64
		factor float64
		k      float64
	}{
		{raw: 100, factor: 1.0, k: 4},
		{raw: 12345, factor: 0.5, k: 10},
		{raw: 7, factor: 3.25, k: 100},
	}
	for _, tt := range tests {
		scaled := Normalize(uint64(float64(tt.raw)*tt.k), tt.factor)
		assert.InDelta(t, Normalize(tt.raw, tt.factor)*tt.k, scaled, 1e-9)
	}
}

func TestHitRatePct(t *testing.T) {
	assert.Equal(t, 75.0, HitRatePct(100, 25))
	assert.Equal(t, 100.0, HitRatePct(500, 0))
	assert.Equal(t, 0.0, HitRatePct(100, 100))
}

// An idle interval produces a non-finite value, not a crash; the display
// layer renders it, the engine does not suppress it.
func TestHitRatePctZeroAccesses(t *testing.T) {
	assert.True(t, math.IsNaN(HitRatePct(0, 0)))
	assert.True(t, math.IsInf(HitRatePct(0, 25), -1))
}

func TestHitBandwidth(t *testing.T) {
	assert.Equal(t, 51200.0, HitBandwidth(1000, 200))
	assert.Equal(t, 19200.0, HitBandwidth(400, 100))
}

func TestMissLatencyCycles(t *testing.T) {
	assert.InDelta(t, 25.6, MissLatencyCycles(160, 100), 1e-9)
	assert.True(t, math.IsNaN(MissLatencyCycles(0, 0)))
}

func TestMissLatencyNs(t *testing.T) {
	assert.InDelta(t, 8.0, MissLatencyNs(25.6, 3.2e9), 1e-9)
}

func TestPendingMissesPerCycle(t *testing.T) {
	assert.InDelta(t, 16.0, PendingMissesPerCycle(1e9, 1e9), 1e-9)
}

func TestTransitionLatency(t *testing.T) {
	assert.Equal(t, 100.0, TransitionLatency(1000, 10))
	assert.True(t, math.IsInf(TransitionLatency(5, 0), 1))
}
