package session

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// User-defined monitoring configurations loaded from a YAML file. Each
// entry names a unit, assigns raw control words to counters, and derives
// its columns from expressions evaluated over the normalized counter
// values. Example:
//
//	configs:
//	  - name: l3-misses
//	    unit: l3
//	    events:
//	      - counter: 0
//	        select: "0x0300C00000400104"
//	    columns:
//	      - label: Misses/s
//	        expr: ctr0
//	      - label: Miss BW
//	        expr: ctr0 * 64
//
// Expression variables are ctr0..ctrN for the unit's counters and, for
// per-cluster units, clk for the cluster clock in Hz.

import (
	"fmt"
	"os"
	"strconv"

	"github.com/casbin/govaluate"
	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v2"

	"pmcwatch/internal/metrics"
	"pmcwatch/internal/uncore"
)

type customFile struct {
	Configs []customSpec `yaml:"configs"`
}

type customSpec struct {
	Name    string         `yaml:"name"`
	Unit    string         `yaml:"unit"`
	Events  []customEvent  `yaml:"events"`
	Columns []customColumn `yaml:"columns"`
}

type customEvent struct {
	Counter int    `yaml:"counter"`
	Select  string `yaml:"select"`
}

type customColumn struct {
	Label string `yaml:"label"`
	Expr  string `yaml:"expr"`
}

// LoadCustomConfigs parses a YAML configuration file into session
// configurations. Expressions are parsed once at load time; invalid
// specs (unknown unit, duplicate counters or labels, out-of-range
// counter index) are rejected here rather than at update time.
func LoadCustomConfigs(path string, env Environment) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read custom config file: %w", err)
	}
	var file customFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse custom config file: %w", err)
	}
	configs := make([]Config, 0, len(file.Configs))
	for _, spec := range file.Configs {
		cfg, err := newCustomConfig(spec, env)
		if err != nil {
			return nil, fmt.Errorf("config %q: %w", spec.Name, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// customConfig drives either the per-cluster L3 sampler or the package
// PCU driver with user-assigned control words and expression columns.
type customConfig struct {
	name     string
	box      uncore.Box
	controls []uint64
	labels   []string
	exprs    []*govaluate.EvaluableExpression
	norm     NormalizationSource

	// exactly one of sampler (l3) or driver+binder (pcu) is set
	sampler *Sampler
	driver  *uncore.Driver
	binder  Binder
}

func newCustomConfig(spec customSpec, env Environment) (*customConfig, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	c := &customConfig{name: spec.Name, norm: env.Norm}
	switch spec.Unit {
	case "l3":
		c.box = uncore.L3Box()
		c.sampler = NewSampler(env.Topology, env.Binder, env.Transport, c.box)
	case "pcu":
		c.box = uncore.PCUBox()
		c.driver = uncore.NewDriver(c.box, env.Transport)
		c.binder = env.Binder
	default:
		return nil, fmt.Errorf("unknown unit %q", spec.Unit)
	}
	c.controls = make([]uint64, len(c.box.Controls))
	counters := mapset.NewSet[int]()
	for _, event := range spec.Events {
		if event.Counter < 0 || event.Counter >= len(c.controls) {
			return nil, fmt.Errorf("counter %d outside unit %s's %d counters",
				event.Counter, c.box.Name, len(c.controls))
		}
		if !counters.Add(event.Counter) {
			return nil, fmt.Errorf("counter %d assigned twice", event.Counter)
		}
		word, err := strconv.ParseUint(event.Select, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("control word %q: %w", event.Select, err)
		}
		c.controls[event.Counter] = word
	}
	if len(spec.Columns) == 0 {
		return nil, fmt.Errorf("no columns declared")
	}
	labels := mapset.NewSet[string]()
	for _, col := range spec.Columns {
		if !labels.Add(col.Label) {
			return nil, fmt.Errorf("duplicate column label %q", col.Label)
		}
		expr, err := govaluate.NewEvaluableExpression(col.Expr)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Label, err)
		}
		c.labels = append(c.labels, col.Label)
		c.exprs = append(c.exprs, expr)
	}
	return c, nil
}

func (c *customConfig) Name() string {
	return c.name
}

func (c *customConfig) Columns() []string {
	return c.labels
}

func (c *customConfig) Initialize() error {
	if c.sampler != nil {
		return c.sampler.Program(c.controls, 0)
	}
	restore, err := c.binder.Bind(0)
	if err != nil {
		return err
	}
	defer restore()
	return c.driver.Program(c.controls, 0)
}

func (c *customConfig) Update() (*Result, error) {
	if c.sampler != nil {
		return c.updateClustered()
	}
	return c.updatePackage()
}

func (c *customConfig) updateClustered() (*Result, error) {
	samples, err := c.sampler.Sample(c.norm)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	totals := make([]float64, len(c.box.Counters))
	var clockSum float64
	for _, sample := range samples {
		factor := c.norm(sample.Representative)
		vars := map[string]any{"clk": sample.ClockHz}
		for i, raw := range sample.Counters {
			value := metrics.Normalize(raw, factor)
			totals[i] += value
			vars[fmt.Sprintf("ctr%d", i)] = value
		}
		clockSum += sample.ClockHz
		row, err := c.evalRow(fmt.Sprintf("CCX %d", sample.Cluster), vars)
		if err != nil {
			return nil, err
		}
		result.Units = append(result.Units, row)
	}
	vars := map[string]any{"clk": clockSum / float64(len(samples))}
	for i, total := range totals {
		vars[fmt.Sprintf("ctr%d", i)] = total
	}
	overall, err := c.evalRow("Total", vars)
	if err != nil {
		return nil, err
	}
	result.Overall = overall
	return result, nil
}

func (c *customConfig) updatePackage() (*Result, error) {
	restore, err := c.binder.Bind(0)
	if err != nil {
		return nil, err
	}
	defer restore()
	sample, err := c.driver.ReadAndClear()
	if err != nil {
		return nil, err
	}
	factor := c.norm(0)
	vars := map[string]any{}
	for i, raw := range sample.Counters {
		vars[fmt.Sprintf("ctr%d", i)] = metrics.Normalize(raw, factor)
	}
	row, err := c.evalRow("Package", vars)
	if err != nil {
		return nil, err
	}
	return &Result{Overall: row}, nil
}

func (c *customConfig) evalRow(label string, vars map[string]any) (Row, error) {
	row := Row{Label: label}
	for i, expr := range c.exprs {
		result, err := expr.Evaluate(vars)
		if err != nil {
			return Row{}, fmt.Errorf("column %q: %w", c.labels[i], err)
		}
		value, ok := result.(float64)
		if !ok {
			return Row{}, fmt.Errorf("column %q: expression result %v is not numeric", c.labels[i], result)
		}
		row.Values = append(row.Values, value)
		row.Cells = append(row.Cells, formatGeneral(value))
	}
	return row, nil
}
