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

package feature

import (
	"math"
	"time"

	"github.com/bubbly-io/recommender/storage/data"
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// NumFields is the length of a feature vector.
const NumFields = 8

// Field indices of a feature vector.
const (
	Jaccard = iota
	CommonInterests
	UserInterestCount
	BubbleInterestCount
	UserAge
	MemberCount
	FillRate
	DaysOld
)

var names = [NumFields]string{
	"jaccard",
	"common_interests",
	"user_interest_count",
	"bubble_interest_count",
	"user_age",
	"member_count",
	"fill_rate",
	"days_old",
}

// Vector is the feature vector of a (user, bubble) pair.
type Vector [NumFields]float32

// Names returns field names in vector order.
func (Vector) Names() []string {
	return names[:]
}

func (v Vector) ZapFields() []zap.Field {
	fields := make([]zap.Field, NumFields)
	for i, name := range names {
		fields[i] = zap.Float32(name, v[i])
	}
	return fields
}

// Overlap returns the Jaccard similarity of two interest sets. It is 0 if either set is empty.
func Overlap(a, b mapset.Set[string]) float32 {
	if a == nil || b == nil || a.Cardinality() == 0 || b.Cardinality() == 0 {
		return 0
	}
	common := countCommon(a, b)
	return float32(common) / float32(a.Cardinality()+b.Cardinality()-common)
}

// countCommon counts elements in both sets. Unlike Intersect, it accepts sets of different
// thread-safety flavors.
func countCommon(a, b mapset.Set[string]) int {
	if a.Cardinality() > b.Cardinality() {
		a, b = b, a
	}
	var count int
	a.Each(func(interest string) bool {
		if b.Contains(interest) {
			count++
		}
		return false
	})
	return count
}

// Build computes the feature vector of a user and a bubble. If universe is not nil, interests
// outside of it are ignored.
func Build(user data.User, bubble data.Bubble, userInterests, bubbleInterests, universe mapset.Set[string], now time.Time) Vector {
	userInterests = restrict(userInterests, universe)
	bubbleInterests = restrict(bubbleInterests, universe)

	var v Vector
	v[Jaccard] = Overlap(userInterests, bubbleInterests)
	if userInterests != nil && bubbleInterests != nil {
		v[CommonInterests] = float32(countCommon(userInterests, bubbleInterests))
	}
	if userInterests != nil {
		v[UserInterestCount] = float32(userInterests.Cardinality())
	}
	if bubbleInterests != nil {
		v[BubbleInterestCount] = float32(bubbleInterests.Cardinality())
	}
	v[UserAge] = data.DefaultAge
	if user.Age > 0 {
		v[UserAge] = float32(user.Age)
	}
	v[MemberCount] = float32(bubble.MemberCount)
	if bubble.MaxMembers > 0 {
		v[FillRate] = float32(bubble.MemberCount) / float32(bubble.MaxMembers)
	}
	v[DaysOld] = daysSince(bubble.CreatedAt, now)
	return v
}

func restrict(interests, universe mapset.Set[string]) mapset.Set[string] {
	if interests == nil || universe == nil {
		return interests
	}
	restricted := mapset.NewThreadUnsafeSet[string]()
	interests.Each(func(interest string) bool {
		if universe.Contains(interest) {
			restricted.Add(interest)
		}
		return false
	})
	return restricted
}

// daysSince returns whole days elapsed since t. A future or unknown time counts as 0.
func daysSince(t *time.Time, now time.Time) float32 {
	if t == nil {
		return 0
	}
	days := math.Floor(now.Sub(*t).Hours() / 24)
	if days < 0 {
		return 0
	}
	return float32(days)
}
