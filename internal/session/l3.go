package session

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"

	"pmcwatch/internal/metrics"
	"pmcwatch/internal/uncore"
)

// L3 PMC events. The fill-latency event counts cycles accumulated across
// all outstanding miss transactions divided by 16; the SDP-request event
// provides the matching miss count.
const (
	l3EventAccess      = 0x04
	l3UmaskAccessAll   = 0xFF
	l3UmaskMiss        = 0x01
	l3EventFillLatency = 0x90
	l3EventMissSDP     = 0x9A
	l3UmaskMissSDP     = 0x1F
)

// Counter assignment for the hit-rate configuration.
const (
	l3CtrAccess = iota
	l3CtrMiss
	l3CtrLatency
	l3CtrMissSDP
)

var l3HitRateColumns = []string{
	"Clk (GHz)",
	"Hitrate (%)",
	"Hit BW (B/s)",
	"Mean miss latency (clk)",
	"Mean miss latency (ns)",
	"Pending misses/clk",
}

// L3HitRateConfig monitors the per-cluster L3 blocks: hit rate, hit
// bandwidth, and miss latency.
type L3HitRateConfig struct {
	sampler *Sampler
	norm    NormalizationSource
}

// NewL3HitRateConfig builds the L3 hit rate and latency configuration.
func NewL3HitRateConfig(env Environment) *L3HitRateConfig {
	return &L3HitRateConfig{
		sampler: NewSampler(env.Topology, env.Binder, env.Transport, uncore.L3Box()),
		norm:    env.Norm,
	}
}

func (c *L3HitRateConfig) Name() string {
	return "l3-hitrate"
}

func (c *L3HitRateConfig) Columns() []string {
	return l3HitRateColumns
}

// Initialize programs the four L3 events on every cluster's block and
// disables the two remaining counters.
func (c *L3HitRateConfig) Initialize() error {
	controls := make([]uint64, uncore.L3CounterCount)
	controls[l3CtrAccess] = l3Select(l3EventAccess, l3UmaskAccessAll)
	controls[l3CtrMiss] = l3Select(l3EventAccess, l3UmaskMiss)
	controls[l3CtrLatency] = l3Select(l3EventFillLatency, 0)
	controls[l3CtrMissSDP] = l3Select(l3EventMissSDP, l3UmaskMissSDP)
	return c.sampler.Program(controls, 0)
}

// Update reads every cluster's counters and derives one row per cluster
// plus an overall row from the summed counters. The totals are built
// fresh each call.
func (c *L3HitRateConfig) Update() (*Result, error) {
	samples, err := c.sampler.Sample(c.norm)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	var totalAccess, totalMiss, totalLatency, totalMissSDP, clockSum float64
	for _, sample := range samples {
		factor := c.norm(sample.Representative)
		access := metrics.Normalize(sample.Counters[l3CtrAccess], factor)
		miss := metrics.Normalize(sample.Counters[l3CtrMiss], factor)
		latency := metrics.Normalize(sample.Counters[l3CtrLatency], factor)
		missSDP := metrics.Normalize(sample.Counters[l3CtrMissSDP], factor)
		totalAccess += access
		totalMiss += miss
		totalLatency += latency
		totalMissSDP += missSDP
		clockSum += sample.ClockHz
		result.Units = append(result.Units,
			l3Row(fmt.Sprintf("CCX %d", sample.Cluster), sample.ClockHz, access, miss, latency, missSDP))
	}
	meanClock := clockSum / float64(len(samples))
	result.Overall = l3Row("Total", meanClock, totalAccess, totalMiss, totalLatency, totalMissSDP)
	return result, nil
}

func l3Row(label string, clockHz, access, miss, latency, missSDP float64) Row {
	hitRate := metrics.HitRatePct(access, miss)
	hitBW := metrics.HitBandwidth(access, miss)
	latencyClk := metrics.MissLatencyCycles(latency, missSDP)
	latencyNs := metrics.MissLatencyNs(latencyClk, clockHz)
	pending := metrics.PendingMissesPerCycle(latency, clockHz)
	return Row{
		Label: label,
		Values: []float64{
			clockHz / 1e9, hitRate, hitBW, latencyClk, latencyNs, pending,
		},
		Cells: []string{
			formatGHz(clockHz),
			formatFixed(hitRate, 1),
			formatCount(hitBW),
			formatFixed(latencyClk, 1),
			formatFixed(latencyNs, 2),
			formatFixed(pending, 2),
		},
	}
}

func l3Select(event, umask uint8) uint64 {
	return uncore.L3EventSelect{
		Event:      event,
		Umask:      umask,
		Enable:     true,
		SliceMask:  0xF,
		ThreadMask: 0xFF,
	}.Encode()
}
