package session

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"pmcwatch/internal/msr"
	"pmcwatch/internal/topology"
	"pmcwatch/internal/uncore"
)

// ClusterSample is one cluster's counters for an update interval, plus
// the cluster's effective clock estimate.
type ClusterSample struct {
	Cluster        int
	Representative int
	Counters       []uint64
	Aux            []uint64
	ClockHz        float64
}

// Sampler drives a per-cluster register block (one unit instance per core
// complex) without reading the same physical counters redundantly from
// every member thread. Register access runs on each cluster's
// representative thread; member threads are visited only to read the
// per-thread clock reference counters.
type Sampler struct {
	topo      *topology.Topology
	binder    Binder
	transport msr.Transport
	driver    *uncore.Driver

	// Reference counters cannot be cleared on read, so delta computation
	// keeps the previous readings per thread.
	lastTSC   []uint64
	lastMPERF []uint64
	lastAPERF []uint64
}

// NewSampler returns a sampler for the given per-cluster register block.
func NewSampler(topo *topology.Topology, binder Binder, transport msr.Transport, box uncore.Box) *Sampler {
	return &Sampler{
		topo:      topo,
		binder:    binder,
		transport: transport,
		driver:    uncore.NewDriver(box, transport),
		lastTSC:   make([]uint64, topo.ThreadCount()),
		lastMPERF: make([]uint64, topo.ThreadCount()),
		lastAPERF: make([]uint64, topo.ThreadCount()),
	}
}

// Program writes the control words into every cluster's register block
// and snapshots the clock reference counters of every thread so the first
// Sample call sees whole-interval deltas.
func (s *Sampler) Program(controls []uint64, filter uint64) error {
	for _, cluster := range s.topo.Clusters() {
		if err := s.withThread(cluster.Representative, func() error {
			return s.driver.Program(controls, filter)
		}); err != nil {
			return err
		}
		for _, member := range cluster.Members {
			if err := s.withThread(member, func() error {
				return s.snapshotClockRefs(member)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Sample performs the read cycle on every cluster's register block and
// estimates each cluster's effective clock as the maximum observed across
// its member threads. A single-member cluster's clock is trivially that
// member's clock.
func (s *Sampler) Sample(norm NormalizationSource) ([]ClusterSample, error) {
	clusters := s.topo.Clusters()
	samples := make([]ClusterSample, 0, len(clusters))
	for _, cluster := range clusters {
		var raw uncore.Sample
		if err := s.withThread(cluster.Representative, func() error {
			var err error
			raw, err = s.driver.ReadAndClear()
			return err
		}); err != nil {
			return nil, err
		}
		var clock float64
		for _, member := range cluster.Members {
			var threadClock float64
			if err := s.withThread(member, func() error {
				var err error
				threadClock, err = s.threadClock(member, norm(member))
				return err
			}); err != nil {
				return nil, err
			}
			if threadClock > clock {
				clock = threadClock
			}
		}
		samples = append(samples, ClusterSample{
			Cluster:        cluster.ID,
			Representative: cluster.Representative,
			Counters:       raw.Counters,
			Aux:            raw.Aux,
			ClockHz:        clock,
		})
	}
	return samples, nil
}

// threadClock estimates one thread's effective frequency from the
// elapsed-reference deltas: tscDelta scaled by the actual-to-maximum
// frequency ratio, converted to a rate by the normalization factor.
func (s *Sampler) threadClock(thread int, factor float64) (float64, error) {
	tsc, mperf, aperf, err := s.readClockRefs()
	if err != nil {
		return 0, err
	}
	tscDelta := float64(tsc - s.lastTSC[thread])
	mperfDelta := float64(mperf - s.lastMPERF[thread])
	aperfDelta := float64(aperf - s.lastAPERF[thread])
	s.lastTSC[thread] = tsc
	s.lastMPERF[thread] = mperf
	s.lastAPERF[thread] = aperf
	return tscDelta * (aperfDelta / mperfDelta) * factor, nil
}

func (s *Sampler) snapshotClockRefs(thread int) error {
	tsc, mperf, aperf, err := s.readClockRefs()
	if err != nil {
		return err
	}
	s.lastTSC[thread] = tsc
	s.lastMPERF[thread] = mperf
	s.lastAPERF[thread] = aperf
	return nil
}

func (s *Sampler) readClockRefs() (tsc, mperf, aperf uint64, err error) {
	if tsc, err = s.transport.Read(uncore.TSCAddr); err != nil {
		return
	}
	if mperf, err = s.transport.Read(uncore.MPERFAddr); err != nil {
		return
	}
	aperf, err = s.transport.Read(uncore.APERFAddr)
	return
}

func (s *Sampler) withThread(thread int, fn func() error) error {
	restore, err := s.binder.Bind(thread)
	if err != nil {
		return err
	}
	defer restore()
	return fn()
}
