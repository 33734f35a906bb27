package monitor

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pmcwatch/internal/session"
)

var promGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pmcwatch_metric",
		Help: "pmcwatch monitoring metrics",
	},
	[]string{"config", "row", "column"},
)

func startPrometheusServer(listenAddr string) {
	prometheus.MustRegister(promGauge)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("Starting Prometheus metrics server", slog.String("address", listenAddr))
	go func() {
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil {
			slog.Error("Prometheus metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

func publishResult(configName string, columns []string, result *session.Result) {
	rows := append([]session.Row{result.Overall}, result.Units...)
	for _, row := range rows {
		for i, value := range row.Values {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				continue
			}
			promGauge.WithLabelValues(configName, row.Label, sanitizeLabel(columns[i])).Set(value)
		}
	}
}

func sanitizeLabel(label string) string {
	sanitized := strings.ReplaceAll(label, "%", "pct")
	return strings.ToLower(strings.ReplaceAll(sanitized, " ", "_"))
}
