// Package cmd provides the command line interface for the application.
package cmd

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pmcwatch/cmd/monitor"
)

// AppName is the name of the application
const AppName = "pmcwatch"

var gLogFile *os.File
var gVersion = "9.9.9" // overwritten by ldflags at build time

var examples = []string{
	fmt.Sprintf("  List the available monitoring configurations:  $ sudo %s monitor --list", AppName),
	fmt.Sprintf("  Monitor L3 hit rate and miss latency:          $ sudo %s monitor --config l3-hitrate", AppName),
	fmt.Sprintf("  Monitor PCU voltage transitions:               $ sudo %s monitor --config pcu-voltage", AppName),
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:               AppName,
	Short:             AppName,
	Long:              fmt.Sprintf(`%s reads and decodes uncore performance-monitoring counters (per-CCX L3 cache blocks, power control unit) and derives human-facing metrics from them. Requires elevated privilege and the msr kernel module.`, AppName),
	Example:           strings.Join(examples, "\n"),
	PersistentPreRunE: initializeApplication,
	Version:           gVersion,
}

var (
	flagDebug     bool
	flagLogStdOut bool
)

const (
	flagDebugName     = "debug"
	flagLogStdOutName = "log-stdout"
)

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{}) // block the help command
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.AddCommand(monitor.Cmd)
	rootCmd.PersistentFlags().BoolVar(&flagDebug, flagDebugName, false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagLogStdOut, flagLogStdOutName, false, "write logs to stdout instead of a file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.EnableCommandSorting = false
	cobra.EnableCaseInsensitive = true
	err := rootCmd.Execute()
	if gLogFile != nil {
		gLogFile.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

func initializeApplication(cmd *cobra.Command, args []string) error {
	var logOpts slog.HandlerOptions
	if flagDebug {
		logOpts.Level = slog.LevelDebug
		logOpts.AddSource = true
	} else {
		logOpts.Level = slog.LevelInfo
	}
	if flagLogStdOut {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &logOpts)))
	} else {
		var err error
		gLogFile, err = os.OpenFile(AppName+".log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644) // #nosec G302
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(gLogFile, &logOpts)))
	}
	slog.Info("Starting up", slog.String("app", AppName), slog.String("version", gVersion), slog.Int("PID", os.Getpid()), slog.String("arguments", strings.Join(os.Args, " ")))
	return nil
}
