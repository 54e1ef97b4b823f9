// Copyright 2021 Optakt Labs OÜ
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.

// Package metrics defines the Prometheus instrumentation for the index
// build and query paths. Nothing in this package serves the metrics over
// HTTP; the embedded HTTP server is out of scope per spec.md §1. A caller
// that does want to expose them can register Registry with its own
// promhttp handler.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups every counter and histogram this module instruments, the
// way service/metrics/index_metrics.go groups flow-dps's indexing metrics.
type Registry struct {
	ScanEntries    prometheus.Counter
	ScanErrors     prometheus.Counter
	IndexRemaps    prometheus.Counter
	QueryDurations prometheus.Histogram
}

// NewRegistry constructs and registers a fresh Registry against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ScanEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ageidx_scan_entries_total",
			Help: "Number of filesystem entries visited by the scanner.",
		}),
		ScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ageidx_scan_errors_total",
			Help: "Number of per-entry scan errors (lstat/opendir failures).",
		}),
		IndexRemaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ageidx_index_remaps_total",
			Help: "Number of times the index file was grown and remapped during a build.",
		}),
		QueryDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ageidx_query_duration_seconds",
			Help:    "Latency of AVL index queries (prefix-sum and order statistic).",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(r.ScanEntries, r.ScanErrors, r.IndexRemaps, r.QueryDurations)

	return r
}
