// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package master

import (
	"github.com/gorse-io/insight/storage/data"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelTask   = "task"
	LabelStatus = "status"
	LabelModel  = "model"

	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

var (
	LoadDatasetTotalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "load_dataset_total_seconds",
	})
	TaskSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "task_seconds",
	}, []string{LabelTask})
	EntitiesTotalVec = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "entities_total",
	}, []string{LabelTask, LabelStatus})
	FactorModelFittedVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "factor_model_fitted",
	}, []string{LabelModel})
	FactorModelFitSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "factor_model_fit_seconds",
	}, []string{LabelModel})
	SnapshotTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "snapshot_timestamp_seconds",
	})
	RecomputeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "recompute_total",
	})

	UsersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "users_total",
	})
	ProductsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "products_total",
	})
	ReviewsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "reviews_total",
	})
	InteractionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "insight",
		Subsystem: "master",
		Name:      "interactions_total",
	})
)

func updateDataMetrics(stats data.Stats) {
	UsersTotal.Set(float64(stats.Users))
	ProductsTotal.Set(float64(stats.Products))
	ReviewsTotal.Set(float64(stats.Reviews))
	InteractionsTotal.Set(float64(stats.Interactions))
}
