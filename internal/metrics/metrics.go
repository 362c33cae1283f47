// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics bundles the prometheus instruments the writer, the
// migration engine and the HTTP layer update. NewHandles registers them on
// the registry its caller passes in, but this package never exposes them —
// that belongs to whatever admin surface embeds this package, which is out
// of scope here. Handles are constructed once and threaded into
// constructors, never reached for as a global.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Handles struct {
	BufferedMessages prometheus.Gauge
	FlushTotal        prometheus.Counter
	FlushFailedTotal  prometheus.Counter
	FlushedRows       prometheus.Counter
	ParseErrorsTotal  prometheus.Counter
	MigratedRows      prometheus.Counter
	QueryDuration     prometheus.Histogram
}

// NewHandles creates and registers the instruments on reg. Passing a
// fresh prometheus.Registry (rather than the global DefaultRegisterer)
// keeps this package free of process-wide singletons.
func NewHandles(reg *prometheus.Registry) *Handles {
	h := &Handles{
		BufferedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatlogd",
			Name:      "buffered_messages",
			Help:      "Number of structured messages currently held in the writer buffer.",
		}),
		FlushTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatlogd",
			Name:      "flush_total",
			Help:      "Number of buffer flush rounds to the store, successful or not.",
		}),
		FlushFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatlogd",
			Name:      "flush_failed_total",
			Help:      "Number of flush attempts that exhausted their retry budget.",
		}),
		FlushedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatlogd",
			Name:      "flushed_rows_total",
			Help:      "Number of structured messages written to the store.",
		}),
		ParseErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatlogd",
			Name:      "parse_errors_total",
			Help:      "Number of raw IRC lines that failed to parse.",
		}),
		MigratedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatlogd",
			Name:      "migrated_rows_total",
			Help:      "Number of rows inserted by the migration engine.",
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatlogd",
			Name:      "query_duration_seconds",
			Help:      "Duration of logs-stream queries.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			h.BufferedMessages,
			h.FlushTotal,
			h.FlushFailedTotal,
			h.FlushedRows,
			h.ParseErrorsTotal,
			h.MigratedRows,
			h.QueryDuration,
		)
	}

	return h
}
