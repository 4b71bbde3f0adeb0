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

package dataset

import (
	"math"
	"time"

	"github.com/bubbly-io/recommender/base"
	"github.com/bubbly-io/recommender/model/feature"
	"github.com/bubbly-io/recommender/storage/data"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

var ErrInsufficientData = errors.NotValidf("training data")

// Input is the snapshot of the data store a training set is assembled from.
type Input struct {
	// InterestOrder is the ordered list of all interest ids.
	InterestOrder   []string
	Users           []data.User
	Bubbles         []data.Bubble
	UserInterests   map[string]mapset.Set[string]
	BubbleInterests map[string]mapset.Set[string]
	Joins           []data.Interaction
}

// Universe returns the interest order as a set, or nil if the order is empty.
func Universe(interestOrder []string) mapset.Set[string] {
	if len(interestOrder) == 0 {
		return nil
	}
	return mapset.NewThreadUnsafeSet(interestOrder...)
}

// Dataset is a labeled set of (user, bubble) feature vectors.
type Dataset struct {
	InterestOrder []string
	UserIds       []string
	BubbleIds     []string
	Features      []feature.Vector
	Target        []float32
	PositiveCount int
	NegativeCount int
}

// Assemble builds a training sample for every pair of a closed bubble and a user who does not
// own it. A sample is positive if the user joined the bubble.
func Assemble(in Input, now time.Time) *Dataset {
	dataset := &Dataset{InterestOrder: in.InterestOrder}
	closed := lo.Filter(in.Bubbles, func(bubble data.Bubble, _ int) bool {
		return bubble.Status == data.BubbleClosed
	})
	if len(closed) == 0 || len(in.Users) == 0 {
		return dataset
	}
	joins := mapset.NewThreadUnsafeSet[lo.Tuple2[string, string]]()
	for _, interaction := range in.Joins {
		if interaction.Action == "" || interaction.Action == data.ActionJoin {
			joins.Add(lo.Tuple2[string, string]{A: interaction.UserId, B: interaction.BubbleId})
		}
	}
	universe := Universe(in.InterestOrder)
	for _, bubble := range closed {
		bubbleInterests := in.BubbleInterests[bubble.BubbleId]
		for _, user := range in.Users {
			if user.UserId == bubble.OwnerId {
				continue
			}
			var target float32
			if joins.Contains(lo.Tuple2[string, string]{A: user.UserId, B: bubble.BubbleId}) {
				target = 1
			}
			dataset.Append(user.UserId, bubble.BubbleId,
				feature.Build(user, bubble, in.UserInterests[user.UserId], bubbleInterests, universe, now),
				target)
		}
	}
	return dataset
}

// Append a sample.
func (dataset *Dataset) Append(userId, bubbleId string, x feature.Vector, y float32) {
	dataset.UserIds = append(dataset.UserIds, userId)
	dataset.BubbleIds = append(dataset.BubbleIds, bubbleId)
	dataset.Features = append(dataset.Features, x)
	dataset.Target = append(dataset.Target, y)
	if y > 0 {
		dataset.PositiveCount++
	} else {
		dataset.NegativeCount++
	}
}

func (dataset *Dataset) Count() int {
	return len(dataset.Target)
}

func (dataset *Dataset) Get(i int) (feature.Vector, float32) {
	return dataset.Features[i], dataset.Target[i]
}

// ScalePosWeight is the ratio of negative samples to positive samples, or 1 without positives.
func (dataset *Dataset) ScalePosWeight() float32 {
	if dataset.PositiveCount == 0 {
		return 1
	}
	return float32(dataset.NegativeCount) / float32(dataset.PositiveCount)
}

// Split a dataset to training set and test set. The test set takes ceil(ratio * count) samples
// while the training set keeps at least one. Samples are stratified by label if there are at
// least two positives.
func (dataset *Dataset) Split(ratio float32, seed int64) (*Dataset, *Dataset) {
	trainSet := &Dataset{InterestOrder: dataset.InterestOrder}
	testSet := &Dataset{InterestOrder: dataset.InterestOrder}
	n := dataset.Count()
	if n == 0 {
		return trainSet, testSet
	}
	rng := base.NewRandomGenerator(seed)
	sampledIndex := mapset.NewThreadUnsafeSet[int]()
	if dataset.PositiveCount >= 2 {
		var positives, negatives []int
		for i, y := range dataset.Target {
			if y > 0 {
				positives = append(positives, i)
			} else {
				negatives = append(negatives, i)
			}
		}
		for _, group := range [][]int{positives, negatives} {
			numTestSize := testSize(len(group), ratio)
			for _, j := range rng.Sample(0, len(group), numTestSize) {
				sampledIndex.Add(group[j])
			}
		}
	} else {
		sampledIndex.Append(rng.Sample(0, n, testSize(n, ratio))...)
	}
	for i := 0; i < n; i++ {
		if sampledIndex.Contains(i) {
			testSet.Append(dataset.UserIds[i], dataset.BubbleIds[i], dataset.Features[i], dataset.Target[i])
		} else {
			trainSet.Append(dataset.UserIds[i], dataset.BubbleIds[i], dataset.Features[i], dataset.Target[i])
		}
	}
	return trainSet, testSet
}

func testSize(n int, ratio float32) int {
	if n < 2 {
		return 0
	}
	// float32 ratios are slightly off, e.g. 0.2 * 5 is above 1
	size := int(math.Ceil(float64(ratio)*float64(n) - 1e-6))
	return min(max(size, 0), n-1)
}
