package monitor

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"pmcwatch/internal/session"
)

const (
	labelColWidth = 10
	minColWidth   = 12
	colSpacing    = 2
)

// tablePrinter renders results either as a live table that redraws in
// place on a terminal, or as a CSV stream. Non-finite metric values reach
// the printer as-is (the engine does not suppress them) and are rendered
// "N/A" in live mode, empty in CSV.
type tablePrinter struct {
	columns   []string
	live      bool
	isTTY     bool
	frames    int
	lastLines int
	csvOut    *csv.Writer
}

func newTablePrinter(columns []string, live bool) *tablePrinter {
	p := &tablePrinter{
		columns: columns,
		live:    live,
		isTTY:   term.IsTerminal(int(os.Stdout.Fd())),
	}
	if !live {
		p.csvOut = csv.NewWriter(os.Stdout)
	}
	return p
}

func (p *tablePrinter) print(result *session.Result) {
	if p.live {
		p.printLive(result)
	} else {
		p.printCSV(result)
	}
	p.frames++
}

func (p *tablePrinter) printLive(result *session.Result) {
	if p.isTTY && p.frames > 0 {
		// redraw over the previous frame
		fmt.Printf("\033[%dA", p.lastLines)
	}
	width := 0
	if p.isTTY {
		width, _, _ = term.GetSize(int(os.Stdout.Fd()))
	}
	lines := []string{p.headerLine()}
	for _, row := range append([]session.Row{result.Overall}, result.Units...) {
		lines = append(lines, p.rowLine(row))
	}
	for _, line := range lines {
		if width > 0 && len(line) > width {
			line = line[:width]
		}
		fmt.Printf("%s\033[K\n", line)
	}
	p.lastLines = len(lines)
}

func (p *tablePrinter) headerLine() string {
	var b strings.Builder
	b.WriteString(pad("", labelColWidth))
	for _, column := range p.columns {
		b.WriteString(strings.Repeat(" ", colSpacing))
		b.WriteString(pad(column, colWidth(column)))
	}
	return b.String()
}

func (p *tablePrinter) rowLine(row session.Row) string {
	var b strings.Builder
	b.WriteString(pad(row.Label, labelColWidth))
	for i, cell := range row.Cells {
		if strings.Contains(cell, "NaN") || strings.Contains(cell, "Inf") {
			cell = "N/A"
		}
		b.WriteString(strings.Repeat(" ", colSpacing))
		b.WriteString(pad(cell, colWidth(p.columns[i])))
	}
	return b.String()
}

func (p *tablePrinter) printCSV(result *session.Result) {
	if p.frames == 0 {
		header := append([]string{"row"}, p.columns...)
		_ = p.csvOut.Write(header)
	}
	for _, row := range append([]session.Row{result.Overall}, result.Units...) {
		fields := []string{row.Label}
		for _, value := range row.Values {
			fields = append(fields, csvValue(value))
		}
		_ = p.csvOut.Write(fields)
	}
	p.csvOut.Flush()
}

// csvValue formats a metric value for CSV output; non-finite values
// become empty fields.
func csvValue(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ""
	}
	return strconv.FormatFloat(value, 'g', 8, 64)
}

func colWidth(column string) int {
	if len(column) > minColWidth {
		return len(column)
	}
	return minColWidth
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
