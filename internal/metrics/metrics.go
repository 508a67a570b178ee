// Copyright (c) 2026 John Earle
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

// Package metrics exposes Prometheus instruments for the routing pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inbound"

// Metrics holds the pipeline instruments.
type Metrics struct {
	decisions    *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	matches      *prometheus.CounterVec
	warnings     *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	duplicates   prometheus.Counter
	latency      prometheus.Histogram
}

// New registers the pipeline instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by mailbox type and whether the message was redirected.",
		}, []string{"mailbox_type", "redirected"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_rejections_total",
			Help:      "Messages rejected by the router, by reason.",
		}, []string{"reason"}),
		matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_results_total",
			Help:      "Customer/campaign match results by winning heuristic.",
		}, []string{"matched_by"}),
		warnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heuristic_warnings_total",
			Help:      "Heuristic lookups that failed and were treated as no match.",
		}, []string{"heuristic"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_cache_lookups_total",
			Help:      "Match cache lookups by result.",
		}, []string{"result"}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_deliveries_total",
			Help:      "Webhook deliveries skipped as duplicates.",
		}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_duration_seconds",
			Help:      "Time spent routing one inbound message.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveDecision counts a routing decision.
func (m *Metrics) ObserveDecision(mailboxType string, redirected bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(mailboxType, strconv.FormatBool(redirected)).Inc()
}

// ObserveRejection counts a rejected message.
func (m *Metrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// ObserveMatch counts a match result.
func (m *Metrics) ObserveMatch(matchedBy string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(matchedBy).Inc()
}

// ObserveWarning counts a failed heuristic lookup.
func (m *Metrics) ObserveWarning(heuristic string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(heuristic).Inc()
}

// ObserveCache counts a cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveDuplicate counts a skipped duplicate delivery.
func (m *Metrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

// ObserveLatency records the time since start.
func (m *Metrics) ObserveLatency(start time.Time) {
	if m == nil {
		return
	}
	m.latency.Observe(time.Since(start).Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
