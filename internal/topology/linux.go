package topology

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

const l3IDPath = "/sys/devices/system/cpu/cpu%d/cache/index3/id"

// Discover builds the topology of the running host, clustering threads by
// the L3 cache instance they share. Hosts without the sysfs L3 id (older
// kernels, single-cluster parts) collapse to one cluster.
func Discover() (*Topology, error) {
	threadCount := runtime.NumCPU()
	raw := make([]int, threadCount)
	for thread := 0; thread < threadCount; thread++ {
		id, err := readL3ID(thread)
		if err != nil {
			raw[thread] = 0
			continue
		}
		raw[thread] = id
	}
	dense := denseIDs(raw)
	return New(threadCount, func(thread int) int { return dense[thread] })
}

func readL3ID(thread int) (int, error) {
	data, err := os.ReadFile(fmt.Sprintf(l3IDPath, thread))
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse l3 id for cpu %d: %w", thread, err)
	}
	return id, nil
}

// denseIDs renumbers raw hardware cluster ids (which may be sparse, e.g.
// 0 and 8) into a dense [0, n) range preserving order.
func denseIDs(raw []int) []int {
	seen := map[int]struct{}{}
	for _, id := range raw {
		seen[id] = struct{}{}
	}
	unique := make([]int, 0, len(seen))
	for id := range seen {
		unique = append(unique, id)
	}
	sort.Ints(unique)
	rank := make(map[int]int, len(unique))
	for i, id := range unique {
		rank[id] = i
	}
	dense := make([]int, len(raw))
	for thread, id := range raw {
		dense[thread] = rank[id]
	}
	return dense
}
