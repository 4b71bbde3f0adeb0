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
	"testing"

	"github.com/bubbly-io/recommender/dataset"
	"github.com/stretchr/testify/assert"
)

func TestAccuracy(t *testing.T) {
	posPrediction := []float32{0.9, 0.6, 0.4, 0.1}
	negPrediction := []float32{0.9, 0.6, 0.4, 0.1}
	assert.Equal(t, float32(0.5), Accuracy(posPrediction, negPrediction))
	assert.Zero(t, Accuracy(nil, nil))
}

func TestAUC(t *testing.T) {
	assert.Equal(t, float32(1), AUC([]float32{0.9, 0.8}, []float32{0.1, 0.2}))
	assert.Equal(t, float32(0), AUC([]float32{0.1, 0.2}, []float32{0.9, 0.8}))
	// ties count half
	assert.Equal(t, float32(0.875), AUC([]float32{0.9, 0.8}, []float32{0.1, 0.8}))
	assert.Equal(t, float32(0.5), AUC([]float32{0.5, 0.5}, []float32{0.5}))
	assert.Zero(t, AUC(nil, []float32{0.1}))
	// inputs are untouched
	pos := []float32{0.3, 0.1}
	AUC(pos, []float32{0.2})
	assert.Equal(t, []float32{0.3, 0.1}, pos)
}

func TestEvaluate(t *testing.T) {
	m := NewGBDT(nil)
	score := Evaluate(m, &dataset.Dataset{})
	assert.Zero(t, score.Accuracy)
	assert.False(t, score.AUC.Available)
	assert.Len(t, score.ZapFields(), 2)
}
