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

package gbdt

import (
	"sort"

	"github.com/bubbly-io/recommender/dataset"
	"go.uber.org/zap"
	"modernc.org/sortutil"
)

// Metric is a metric that may be undefined on a test set.
type Metric struct {
	Value     float32
	Available bool
}

// Score of a classifier on a validation set. AUC is unavailable unless both classes are present.
type Score struct {
	Accuracy float32
	AUC      Metric
}

func (score Score) ZapFields() []zap.Field {
	fields := []zap.Field{zap.Float32("Accuracy", score.Accuracy)}
	if score.AUC.Available {
		fields = append(fields, zap.Float32("AUC", score.AUC.Value))
	} else {
		fields = append(fields, zap.String("AUC", "unavailable"))
	}
	return fields
}

// Evaluate the classifier on a test set. The decision threshold is 0.5.
func Evaluate(m *GBDT, testSet *dataset.Dataset) Score {
	var posPrediction, negPrediction []float32
	for i := 0; i < testSet.Count(); i++ {
		x, y := testSet.Get(i)
		if y > 0 {
			posPrediction = append(posPrediction, m.Predict(x))
		} else {
			negPrediction = append(negPrediction, m.Predict(x))
		}
	}
	score := Score{Accuracy: Accuracy(posPrediction, negPrediction)}
	if len(posPrediction) > 0 && len(negPrediction) > 0 {
		score.AUC = Metric{Value: AUC(posPrediction, negPrediction), Available: true}
	}
	return score
}

func Accuracy(posPrediction, negPrediction []float32) float32 {
	var correct float32
	for _, p := range posPrediction {
		if p > 0.5 {
			correct++
		}
	}
	for _, p := range negPrediction {
		if p <= 0.5 {
			correct++
		}
	}
	if len(posPrediction)+len(negPrediction) == 0 {
		return 0
	}
	return correct / float32(len(posPrediction)+len(negPrediction))
}

// AUC is the probability that a positive sample is ranked above a negative sample. Ties count half.
func AUC(posPrediction, negPrediction []float32) float32 {
	if len(posPrediction)*len(negPrediction) == 0 {
		return 0
	}
	pos := append([]float32(nil), posPrediction...)
	neg := append([]float32(nil), negPrediction...)
	sort.Sort(sortutil.Float32Slice(pos))
	sort.Sort(sortutil.Float32Slice(neg))
	var sum float32
	var nLess, nLessEqual int
	for _, p := range pos {
		// negative samples with less prediction
		for nLess < len(neg) && neg[nLess] < p {
			nLess++
		}
		// negative samples with less or equal prediction
		if nLessEqual < nLess {
			nLessEqual = nLess
		}
		for nLessEqual < len(neg) && neg[nLessEqual] <= p {
			nLessEqual++
		}
		sum += float32(nLess) + float32(nLessEqual-nLess)/2
	}
	return sum / float32(len(pos)*len(neg))
}
