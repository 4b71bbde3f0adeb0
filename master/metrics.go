// Copyright 2026 bubbly Project Authors
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelStatus = "status"
	LabelRanker = "ranker"
	LabelKind   = "kind"

	LabelSucceeded        = "succeeded"
	LabelFailed           = "failed"
	LabelInsufficientData = "insufficient_data"

	LabelModel    = "model"
	LabelFallback = "fallback"

	LabelAdded   = "added"
	LabelRemoved = "removed"
)

var (
	LoadDatasetSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "load_dataset_seconds",
	})
	TrainSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "train_seconds",
	})
	TrainTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "train_total",
	}, []string{LabelStatus})
	RankingModelAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "ranking_model_accuracy",
	})
	RankingModelAUC = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "ranking_model_auc",
	})
	RecommendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "recommend_total",
	}, []string{LabelRanker})
	RecommendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "recommend_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})
	InterestDriftVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "interest_drift",
	}, []string{LabelKind})
	InterestDriftDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bubbly",
		Subsystem: "master",
		Name:      "interest_drift_detected_total",
	})
)
