// Package affinity binds the calling execution context to a specific
// logical CPU. Core-local register access only hits the intended core when
// the calling OS thread is scheduled there, so the binding locks the
// goroutine to its OS thread for the duration.
package affinity

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Bind pins the calling goroutine's OS thread to the given logical CPU and
// returns a function that restores the previous affinity mask. The switch
// is synchronous: once Bind returns, subsequent core-local register access
// on this goroutine targets the requested CPU. Not safe for concurrent use
// on the same engine instance.
func Bind(cpu int) (restore func(), err error) {
	runtime.LockOSThread()
	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("get affinity: %w", err)
	}
	var target unix.CPUSet
	target.Zero()
	target.Set(cpu)
	if err := unix.SchedSetaffinity(0, &target); err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("bind to cpu %d: %w", cpu, err)
	}
	return func() {
		_ = unix.SchedSetaffinity(0, &prev)
		runtime.UnlockOSThread()
	}, nil
}
