// Package monitor implements the monitor subcommand: it selects a
// monitoring configuration, programs the unit's counters, and polls the
// engine on a fixed interval, rendering each result.
package monitor

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pmcwatch/internal/affinity"
	"pmcwatch/internal/msr"
	"pmcwatch/internal/session"
	"pmcwatch/internal/topology"
)

const cmdName = "monitor"

var examples = []string{
	fmt.Sprintf("  Monitor L3 hit rate once per second:     $ sudo pmcwatch %s", cmdName),
	fmt.Sprintf("  Ten samples of PCU voltage transitions:  $ sudo pmcwatch %s --config pcu-voltage --count 10", cmdName),
	fmt.Sprintf("  Stream CSV and keep a summary workbook:  $ sudo pmcwatch %s --format csv --output .", cmdName),
}

// Cmd is the monitor subcommand.
var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Monitor uncore performance counters",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	SilenceErrors: true,
}

var (
	flagConfig     string
	flagList       bool
	flagInterval   float64
	flagCount      int
	flagFormat     string
	flagCustomFile string
	flagPrometheus string
	flagOutputDir  string
)

const (
	flagConfigName     = "config"
	flagListName       = "list"
	flagIntervalName   = "interval"
	flagCountName      = "count"
	flagFormatName     = "format"
	flagCustomFileName = "custom"
	flagPrometheusName = "prometheus"
	flagOutputDirName  = "output"
)

const (
	formatLive = "live"
	formatCSV  = "csv"
)

func init() {
	addMonitorFlags(Cmd.Flags())
}

func addMonitorFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flagConfig, flagConfigName, "l3-hitrate", "monitoring configuration to run")
	fs.BoolVar(&flagList, flagListName, false, "list available configurations and exit")
	fs.Float64Var(&flagInterval, flagIntervalName, 1.0, "sampling interval in seconds")
	fs.IntVar(&flagCount, flagCountName, 0, "number of samples to collect, 0 to run until interrupted")
	fs.StringVar(&flagFormat, flagFormatName, formatLive, "output format: live or csv")
	fs.StringVar(&flagCustomFile, flagCustomFileName, "", "YAML file with custom monitoring configurations")
	fs.StringVar(&flagPrometheus, flagPrometheusName, "", "address to serve prometheus metrics on, e.g. :9090")
	fs.StringVar(&flagOutputDir, flagOutputDirName, "", "directory to write the session summary into")
}

// normSource converts raw counter deltas into per-second rates. The
// factor is recomputed before each update from the wall-clock time since
// the previous one; the engine treats it as an opaque per-thread scalar.
type normSource struct {
	factor float64
	last   time.Time
}

func (n *normSource) refresh() {
	now := time.Now()
	n.factor = 1 / now.Sub(n.last).Seconds()
	n.last = now
}

func (n *normSource) get(thread int) float64 {
	return n.factor
}

func runCmd(cmd *cobra.Command, args []string) error {
	if flagFormat != formatLive && flagFormat != formatCSV {
		return fmt.Errorf("unknown output format %q", flagFormat)
	}
	topo, err := topology.Discover()
	if err != nil {
		return fmt.Errorf("failed to discover topology: %w", err)
	}
	norm := &normSource{last: time.Now()}
	env := session.Environment{
		Topology: topo,
		Norm:     norm.get,
	}
	var transport *msr.CoreLocal
	if !flagList {
		transport, err = msr.OpenCoreLocal(0)
		if err != nil {
			return fmt.Errorf("failed to open register transport (elevated privilege and the msr module are required): %w", err)
		}
		defer transport.Close()
		env.Transport = transport
		env.Binder = hostBinder{transport: transport}
	}
	registry, err := buildRegistry(env)
	if err != nil {
		return err
	}
	if flagList {
		listConfigs(registry)
		return nil
	}
	cfg, ok := registry.Lookup(flagConfig)
	if !ok {
		return fmt.Errorf("unknown configuration %q, use --list to see the choices", flagConfig)
	}
	if err := cfg.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize %q: %w", cfg.Name(), err)
	}
	slog.Info("monitoring", slog.String("config", cfg.Name()), slog.Float64("interval", flagInterval))
	return runSession(cfg, norm)
}

func buildRegistry(env session.Environment) (*session.Registry, error) {
	configs := []session.Config{
		session.NewL3HitRateConfig(env),
		session.NewPCUVoltageConfig(env),
	}
	if flagCustomFile != "" {
		custom, err := session.LoadCustomConfigs(flagCustomFile, env)
		if err != nil {
			return nil, err
		}
		configs = append(configs, custom...)
	}
	return session.NewRegistry(configs...)
}

func listConfigs(registry *session.Registry) {
	for _, cfg := range registry.Configs() {
		fmt.Printf("%s\n", cfg.Name())
		for _, column := range cfg.Columns() {
			fmt.Printf("    %s\n", column)
		}
	}
}

func runSession(cfg session.Config, norm *normSource) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printer := newTablePrinter(cfg.Columns(), flagFormat == formatLive)
	var summary *summaryCollector
	if flagOutputDir != "" {
		summary = newSummaryCollector(cfg.Name(), cfg.Columns())
	}
	if flagPrometheus != "" {
		startPrometheusServer(flagPrometheus)
	}

	ticker := time.NewTicker(time.Duration(flagInterval * float64(time.Second)))
	defer ticker.Stop()
	samples := 0
	for {
		select {
		case <-ctx.Done():
			return finishSession(summary)
		case <-ticker.C:
		}
		norm.refresh()
		result, err := cfg.Update()
		if err != nil {
			return fmt.Errorf("update failed: %w", err)
		}
		if err := result.Conforms(cfg.Columns()); err != nil {
			return fmt.Errorf("configuration %q broke its column schema: %w", cfg.Name(), err)
		}
		printer.print(result)
		if flagPrometheus != "" {
			publishResult(cfg.Name(), cfg.Columns(), result)
		}
		if summary != nil {
			summary.add(time.Now(), result)
		}
		samples++
		if flagCount > 0 && samples >= flagCount {
			return finishSession(summary)
		}
	}
}

func finishSession(summary *summaryCollector) error {
	if summary == nil {
		return nil
	}
	files, err := summary.write(flagOutputDir)
	if err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	for _, file := range files {
		fmt.Printf("wrote %s\n", file)
	}
	return nil
}

// hostBinder routes register access to the bound thread: it pins the
// calling OS thread there and retargets the msr transport at the same
// CPU, so both core-local and device-addressed access agree.
type hostBinder struct {
	transport *msr.CoreLocal
}

func (b hostBinder) Bind(thread int) (func(), error) {
	restore, err := affinity.Bind(thread)
	if err != nil {
		return nil, err
	}
	if err := b.transport.Retarget(thread); err != nil {
		restore()
		return nil, err
	}
	return restore, nil
}
