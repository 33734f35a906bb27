package monitor

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmcwatch/internal/session"
)

func TestCsvValue(t *testing.T) {
	assert.Equal(t, "19200", csvValue(19200))
	assert.Equal(t, "25.6", csvValue(25.6))
	assert.Equal(t, "", csvValue(math.NaN()))
	assert.Equal(t, "", csvValue(math.Inf(1)))
	assert.Equal(t, "", csvValue(math.Inf(-1)))
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "hitrate_(pct)", sanitizeLabel("Hitrate (%)"))
	assert.Equal(t, "hit_bw_(b/s)", sanitizeLabel("Hit BW (B/s)"))
	assert.Equal(t, "clk_(ghz)", sanitizeLabel("Clk (GHz)"))
}

func TestRowLineRendersNonFiniteAsNA(t *testing.T) {
	p := newTablePrinter([]string{"a", "b"}, true)
	line := p.rowLine(session.Row{
		Label:  "Total",
		Cells:  []string{"NaN", "+Inf"},
		Values: []float64{math.NaN(), math.Inf(1)},
	})
	assert.Contains(t, line, "N/A")
	assert.NotContains(t, line, "NaN")
	assert.NotContains(t, line, "Inf")
}

func TestPad(t *testing.T) {
	assert.Equal(t, "   abc", pad("abc", 6))
	assert.Equal(t, "abcdef", pad("abcdef", 3))
}

func TestSummaryCollectorWrite(t *testing.T) {
	collector := newSummaryCollector("l3-hitrate", []string{"Hitrate (%)", "Hit BW (B/s)"})
	stamp := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	collector.add(stamp, &session.Result{
		Overall: session.Row{Label: "Total", Values: []float64{75.0, 19200}},
		Units: []session.Row{
			{Label: "CCX 0", Values: []float64{75.0, math.NaN()}},
		},
	})

	dir := t.TempDir()
	paths, err := collector.write(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "l3-hitrate_summary.csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, "l3-hitrate_summary.xlsx"), paths[1])

	file, err := os.Open(paths[0])
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"timestamp", "row", "Hitrate (%)", "Hit BW (B/s)"}, records[0])
	assert.Equal(t, []string{"2026-08-27T12:00:00Z", "Total", "75", "19200"}, records[1])
	assert.Equal(t, []string{"2026-08-27T12:00:00Z", "CCX 0", "75", ""}, records[2])

	info, err := os.Stat(paths[1])
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
