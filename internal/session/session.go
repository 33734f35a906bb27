// Package session holds the monitoring configuration catalogue and the
// per-update sampling pipeline. A configuration binds one hardware unit's
// register set to one fixed event assignment and exposes the session
// lifecycle the presentation layer drives: Initialize programs the
// registers, Update reads and derives a metrics result.
//
// The engine is single-caller, single-threaded: affinity switching and
// register access are not parallel-safe on one engine instance.
package session

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"sort"

	"pmcwatch/internal/msr"
	"pmcwatch/internal/topology"
)

// Binder temporarily restricts the calling execution context to one
// logical thread. The returned restore function releases the binding.
type Binder interface {
	Bind(thread int) (restore func(), err error)
}

// NormalizationSource supplies the per-thread scalar that converts a raw
// counter delta into a rate. It is computed upstream (sampling interval
// against the reference clock) and treated as opaque here.
type NormalizationSource func(thread int) float64

// Environment is the set of external collaborators a configuration needs:
// the discovered topology, the execution-affinity binder, the register
// transport, and the normalization source.
type Environment struct {
	Topology  *topology.Topology
	Binder    Binder
	Transport msr.Transport
	Norm      NormalizationSource
}

// Row is one line of a monitoring result: string-formatted cells aligned
// to the configuration's column schema, plus the underlying numeric
// values in the same order for consumers that need them (prometheus
// export, summaries).
type Row struct {
	Label  string
	Cells  []string
	Values []float64
}

// Result is the per-update output: one overall row and zero or more
// per-unit rows. It is built fresh on every Update call; the engine keeps
// no aggregate state across updates.
type Result struct {
	Overall Row
	Units   []Row
}

// Conforms checks that every row's cell count matches the declared column
// schema. A mismatch is a programming bug the presentation layer is
// entitled to reject.
func (r *Result) Conforms(columns []string) error {
	rows := append([]Row{r.Overall}, r.Units...)
	for _, row := range rows {
		if len(row.Cells) != len(columns) || len(row.Values) != len(columns) {
			return fmt.Errorf("row %q has %d cells and %d values, schema has %d columns",
				row.Label, len(row.Cells), len(row.Values), len(columns))
		}
	}
	return nil
}

// Config is one named monitoring configuration. Initialize is idempotent:
// re-invoking reprograms the unit's registers from scratch.
// Configurations are mutually exclusive per hardware unit; initializing
// one overwrites whatever the previous one programmed.
type Config interface {
	Name() string
	Columns() []string
	Initialize() error
	Update() (*Result, error)
}

// Registry is the ordered, name-addressable configuration catalogue.
type Registry struct {
	order  []Config
	byName map[string]Config
}

// NewRegistry builds a registry, rejecting duplicate configuration names.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{byName: make(map[string]Config, len(configs))}
	for _, cfg := range configs {
		if _, dup := r.byName[cfg.Name()]; dup {
			return nil, fmt.Errorf("duplicate configuration name %q", cfg.Name())
		}
		r.byName[cfg.Name()] = cfg
		r.order = append(r.order, cfg)
	}
	return r, nil
}

// Configs returns the configurations in registration order.
func (r *Registry) Configs() []Config {
	return r.order
}

// Names returns the configuration names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the configuration with the given name.
func (r *Registry) Lookup(name string) (Config, bool) {
	cfg, ok := r.byName[name]
	return cfg, ok
}
