// Package topology maps logical threads onto the clusters that share a
// monitored hardware unit (e.g. the cores of one core complex sharing one
// L3 block). The map is built once and immutable afterwards.
package topology

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import "fmt"

// Cluster is one group of threads sharing a monitored unit instance. The
// representative is the thread used for the unit's register access; the
// full member set is iterated only for per-thread reference counters.
type Cluster struct {
	ID             int
	Representative int
	Members        []int
}

// Topology is the immutable thread-to-cluster map. Every thread in
// [0, ThreadCount) belongs to exactly one cluster and each cluster has
// exactly one representative, by construction.
type Topology struct {
	clusters  []Cluster
	clusterOf []int
}

// New builds the topology from a thread count and a thread-to-cluster
// lookup. Cluster ids must be dense in [0, clusterCount); a lookup result
// outside that range, or a cluster left without members, is an invariant
// violation.
func New(threadCount int, clusterOf func(thread int) int) (*Topology, error) {
	if threadCount <= 0 {
		return nil, fmt.Errorf("thread count %d out of range", threadCount)
	}
	ids := make([]int, threadCount)
	maxID := 0
	for thread := 0; thread < threadCount; thread++ {
		id := clusterOf(thread)
		if id < 0 || id >= threadCount {
			return nil, fmt.Errorf("thread %d mapped to cluster %d, outside [0, %d)", thread, id, threadCount)
		}
		ids[thread] = id
		if id > maxID {
			maxID = id
		}
	}
	clusters := make([]Cluster, maxID+1)
	for i := range clusters {
		clusters[i].ID = i
		clusters[i].Representative = -1
	}
	for thread := 0; thread < threadCount; thread++ {
		c := &clusters[ids[thread]]
		if c.Representative < 0 {
			c.Representative = thread
		}
		c.Members = append(c.Members, thread)
	}
	for i := range clusters {
		if clusters[i].Representative < 0 {
			return nil, fmt.Errorf("cluster %d has no member threads", i)
		}
	}
	return &Topology{clusters: clusters, clusterOf: ids}, nil
}

// ThreadCount returns the number of logical threads covered by the map.
func (t *Topology) ThreadCount() int {
	return len(t.clusterOf)
}

// Clusters returns the clusters ordered by id.
func (t *Topology) Clusters() []Cluster {
	return t.clusters
}

// ClusterOf returns the cluster id the given thread belongs to.
func (t *Topology) ClusterOf(thread int) int {
	return t.clusterOf[thread]
}
