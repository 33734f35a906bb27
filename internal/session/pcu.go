package session

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"pmcwatch/internal/metrics"
	"pmcwatch/internal/msr"
	"pmcwatch/internal/uncore"
)

// PCU events. Each transition direction uses an independent pair: the
// plain event accumulates cycles spent in the transition state, and the
// same event with edge detect counts the transitions themselves.
const (
	pcuEventVoltTransCyclesIncrease = 0x70
	pcuEventVoltTransCyclesDecrease = 0x71
)

const (
	pcuCtrIncreaseCycles = iota
	pcuCtrDecreaseCycles
	pcuCtrIncreaseCount
	pcuCtrDecreaseCount
)

var pcuVoltageColumns = []string{
	"Increase transitions",
	"Increase latency (clk)",
	"Decrease transitions",
	"Decrease latency (clk)",
	"Pkg C3 (%)",
	"Pkg C6 (%)",
}

// PCUVoltageConfig monitors voltage transitions on the package power
// control unit. The PCU is a single package-scope box, so there are no
// per-unit rows; register access runs on thread 0.
type PCUVoltageConfig struct {
	driver    *uncore.Driver
	binder    Binder
	transport msr.Transport
	norm      NormalizationSource
	thread    int

	// The sleep-state residency counters and TSC are free-running; keep
	// the previous readings for delta computation.
	lastC3  uint64
	lastC6  uint64
	lastTSC uint64
}

// NewPCUVoltageConfig builds the PCU voltage transition configuration.
func NewPCUVoltageConfig(env Environment) *PCUVoltageConfig {
	return &PCUVoltageConfig{
		driver:    uncore.NewDriver(uncore.PCUBox(), env.Transport),
		binder:    env.Binder,
		transport: env.Transport,
		norm:      env.Norm,
	}
}

func (c *PCUVoltageConfig) Name() string {
	return "pcu-voltage"
}

func (c *PCUVoltageConfig) Columns() []string {
	return pcuVoltageColumns
}

// Initialize programs the cycle and edge-triggered transition counters
// for both directions, then snapshots the residency baselines.
func (c *PCUVoltageConfig) Initialize() error {
	controls := []uint64{
		pcuSelect(pcuEventVoltTransCyclesIncrease, false),
		pcuSelect(pcuEventVoltTransCyclesDecrease, false),
		pcuSelect(pcuEventVoltTransCyclesIncrease, true),
		pcuSelect(pcuEventVoltTransCyclesDecrease, true),
	}
	return c.withThread(func() error {
		if err := c.driver.Program(controls, 0); err != nil {
			return err
		}
		return c.snapshotResidency()
	})
}

// Update reads the PCU counters and derives transition counts, per-
// direction transition latency, and package sleep-state residency.
func (c *PCUVoltageConfig) Update() (*Result, error) {
	var sample uncore.Sample
	var tsc uint64
	err := c.withThread(func() error {
		var err error
		if sample, err = c.driver.ReadAndClear(); err != nil {
			return err
		}
		tsc, err = c.transport.Read(uncore.TSCAddr)
		return err
	})
	if err != nil {
		return nil, err
	}
	factor := c.norm(c.thread)
	incCycles := metrics.Normalize(sample.Counters[pcuCtrIncreaseCycles], factor)
	decCycles := metrics.Normalize(sample.Counters[pcuCtrDecreaseCycles], factor)
	incCount := metrics.Normalize(sample.Counters[pcuCtrIncreaseCount], factor)
	decCount := metrics.Normalize(sample.Counters[pcuCtrDecreaseCount], factor)
	incLatency := metrics.TransitionLatency(incCycles, incCount)
	decLatency := metrics.TransitionLatency(decCycles, decCount)

	tscDelta := float64(tsc - c.lastTSC)
	c3Pct := float64(sample.Aux[0]-c.lastC3) / tscDelta * 100
	c6Pct := float64(sample.Aux[1]-c.lastC6) / tscDelta * 100
	c.lastC3 = sample.Aux[0]
	c.lastC6 = sample.Aux[1]
	c.lastTSC = tsc

	return &Result{
		Overall: Row{
			Label: "Package",
			Values: []float64{
				incCount, incLatency, decCount, decLatency, c3Pct, c6Pct,
			},
			Cells: []string{
				formatCount(incCount),
				formatFixed(incLatency, 1),
				formatCount(decCount),
				formatFixed(decLatency, 1),
				formatFixed(c3Pct, 2),
				formatFixed(c6Pct, 2),
			},
		},
	}, nil
}

func (c *PCUVoltageConfig) snapshotResidency() error {
	var err error
	if c.lastC3, err = c.transport.Read(uncore.PkgC3Residency); err != nil {
		return err
	}
	if c.lastC6, err = c.transport.Read(uncore.PkgC6Residency); err != nil {
		return err
	}
	c.lastTSC, err = c.transport.Read(uncore.TSCAddr)
	return err
}

func (c *PCUVoltageConfig) withThread(fn func() error) error {
	restore, err := c.binder.Bind(c.thread)
	if err != nil {
		return err
	}
	defer restore()
	return fn()
}

func pcuSelect(event uint8, edge bool) uint64 {
	return uncore.PCUEventSelect{
		Event:  event,
		Edge:   edge,
		Enable: true,
	}.Encode()
}
