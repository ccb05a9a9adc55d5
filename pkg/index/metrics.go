// Copyright 2026 CodeAtlas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the pipeline's Prometheus instruments. A nil *Metrics is valid
// and records nothing, so library callers can opt out.
type Metrics struct {
	UpdateCycles   *prometheus.CounterVec
	UpdateDuration prometheus.Histogram
	FilesProcessed *prometheus.CounterVec
	ChunksEmbedded prometheus.Counter
	SearchRequests prometheus.Counter
	SearchDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpdateCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeatlas_update_cycles_total",
			Help: "Update cycles by final status.",
		}, []string{"status"}),
		UpdateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeatlas_update_duration_seconds",
			Help:    "Wall time of one update cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codeatlas_files_processed_total",
			Help: "Files processed by outcome.",
		}, []string{"outcome"}),
		ChunksEmbedded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeatlas_chunks_embedded_total",
			Help: "Chunks sent through the embedding provider.",
		}),
		SearchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeatlas_search_requests_total",
			Help: "Semantic search requests served.",
		}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeatlas_search_duration_seconds",
			Help:    "Semantic search latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.UpdateCycles, m.UpdateDuration, m.FilesProcessed,
			m.ChunksEmbedded, m.SearchRequests, m.SearchDuration,
		)
	}
	return m
}

func (m *Metrics) cycleDone(status string, seconds float64) {
	if m == nil {
		return
	}
	m.UpdateCycles.WithLabelValues(status).Inc()
	m.UpdateDuration.Observe(seconds)
}

func (m *Metrics) fileDone(outcome string) {
	if m == nil {
		return
	}
	m.FilesProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) chunksEmbedded(n int) {
	if m == nil {
		return
	}
	m.ChunksEmbedded.Add(float64(n))
}

func (m *Metrics) searchDone(seconds float64) {
	if m == nil {
		return
	}
	m.SearchRequests.Inc()
	m.SearchDuration.Observe(seconds)
}
