// Copyright 2021 FerretDB Inc.
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

// Package metrics exposes Prometheus counters for pipeline stage dispatch
// and match/update operator dispatch, so an embedding application can wire
// Default into its own registry alongside its other collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Parts of Prometheus metric names.
const (
	namespace = "docstore"
	subsystem = "pipeline"
)

// Metrics counts how often each aggregation stage and each match/update
// operator is dispatched.
type Metrics struct {
	stages    *prometheus.CounterVec
	operators *prometheus.CounterVec
}

// NewMetrics creates new Metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		stages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stages_total",
				Help:      "Total number of aggregation pipeline stages dispatched, by stage name.",
			},
			[]string{"stage"},
		),

		operators: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operators_total",
				Help:      "Total number of match/update/expression operators dispatched, by kind and name.",
			},
			[]string{"kind", "operator"},
		),
	}
}

// Describe implements [prometheus.Collector].
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.stages.Describe(ch)
	m.operators.Describe(ch)
}

// Collect implements [prometheus.Collector].
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.stages.Collect(ch)
	m.operators.Collect(ch)
}

// IncStage records one dispatch of the named pipeline stage (e.g. "$match", "$group").
func (m *Metrics) IncStage(stage string) {
	m.stages.With(prometheus.Labels{"stage": stage}).Inc()
}

// IncOperator records one dispatch of the named operator. kind distinguishes
// the dispatch site: "match" (C3 query predicates), "update" (update
// operators), or "expression" (C2 aggregation expression operators).
func (m *Metrics) IncOperator(kind, operator string) {
	m.operators.With(prometheus.Labels{"kind": kind, "operator": operator}).Inc()
}

// Default is the package-wide Metrics instance used by the stage dispatcher
// (internal/handler/common/aggregations/stages) and the match/update
// operator dispatchers (internal/handler/common/matcher,
// internal/handler/common). An embedding application registers it once:
//
//	prometheus.MustRegister(metrics.Default)
var Default = NewMetrics()

// check interfaces
var (
	_ prometheus.Collector = (*Metrics)(nil)
)
