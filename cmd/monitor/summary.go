package monitor

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// End-of-session summary artifacts: a CSV of every collected row and an
// xlsx workbook for sharing.

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"pmcwatch/internal/session"
)

type summaryRecord struct {
	timestamp time.Time
	label     string
	values    []float64
}

type summaryCollector struct {
	configName string
	columns    []string
	records    []summaryRecord
}

func newSummaryCollector(configName string, columns []string) *summaryCollector {
	return &summaryCollector{configName: configName, columns: columns}
}

func (s *summaryCollector) add(timestamp time.Time, result *session.Result) {
	for _, row := range append([]session.Row{result.Overall}, result.Units...) {
		values := make([]float64, len(row.Values))
		copy(values, row.Values)
		s.records = append(s.records, summaryRecord{timestamp: timestamp, label: row.Label, values: values})
	}
}

func (s *summaryCollector) write(outputDir string) ([]string, error) {
	csvPath := filepath.Join(outputDir, s.configName+"_summary.csv")
	if err := s.writeCSV(csvPath); err != nil {
		return nil, err
	}
	xlsxPath := filepath.Join(outputDir, s.configName+"_summary.xlsx")
	if err := s.writeXlsx(xlsxPath); err != nil {
		return nil, err
	}
	return []string{csvPath, xlsxPath}, nil
}

func (s *summaryCollector) writeCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	writer := csv.NewWriter(file)
	defer writer.Flush()
	header := append([]string{"timestamp", "row"}, s.columns...)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, record := range s.records {
		fields := []string{record.timestamp.Format(time.RFC3339), record.label}
		for _, value := range record.values {
			fields = append(fields, csvValue(value))
		}
		if err := writer.Write(fields); err != nil {
			return err
		}
	}
	return nil
}

func (s *summaryCollector) writeXlsx(path string) error {
	f := excelize.NewFile()
	sheet := "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	_ = f.SetCellValue(sheet, cellName(1, 1), "Timestamp")
	_ = f.SetCellValue(sheet, cellName(2, 1), "Row")
	for i, column := range s.columns {
		_ = f.SetCellValue(sheet, cellName(3+i, 1), column)
	}
	_ = f.SetCellStyle(sheet, cellName(1, 1), cellName(2+len(s.columns), 1), headerStyle)
	for r, record := range s.records {
		row := r + 2
		_ = f.SetCellValue(sheet, cellName(1, row), record.timestamp.Format(time.RFC3339))
		_ = f.SetCellValue(sheet, cellName(2, row), record.label)
		for i, value := range record.values {
			if v := csvValue(value); v == "" {
				_ = f.SetCellValue(sheet, cellName(3+i, row), "")
			} else {
				_ = f.SetCellValue(sheet, cellName(3+i, row), value)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func cellName(col int, row int) (name string) {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return
	}
	name, err = excelize.JoinCellName(columnName, row)
	if err != nil {
		return
	}
	return
}
