package session

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer inserts thousands separators into large counts, e.g. 19,200.
var printer = message.NewPrinter(language.English)

func formatGHz(hz float64) string {
	return strconv.FormatFloat(hz/1e9, 'f', 2, 64)
}

func formatCount(v float64) string {
	return printer.Sprintf("%.0f", v)
}

func formatFixed(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

func formatGeneral(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}
