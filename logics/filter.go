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

package logics

import (
	"github.com/bubbly-io/recommender/storage/data"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
)

// Filter returns true if a bubble can be recommended.
type Filter func(bubble data.Bubble) bool

// ExcludeOwned drops bubbles owned by the user.
func ExcludeOwned(userId string) Filter {
	return func(bubble data.Bubble) bool {
		return bubble.OwnerId != userId
	}
}

// ExcludeJoined drops bubbles the user has joined.
func ExcludeJoined(joined mapset.Set[string]) Filter {
	return func(bubble data.Bubble) bool {
		return joined == nil || !joined.Contains(bubble.BubbleId)
	}
}

// CandidateFilters are the filters shared by every ranking path.
func CandidateFilters(userId string, joined mapset.Set[string]) []Filter {
	return []Filter{ExcludeOwned(userId), ExcludeJoined(joined)}
}

// ApplyFilters keeps bubbles accepted by all filters in their original order.
func ApplyFilters(bubbles []data.Bubble, filters ...Filter) []data.Bubble {
	return lo.Filter(bubbles, func(bubble data.Bubble, _ int) bool {
		for _, filter := range filters {
			if !filter(bubble) {
				return false
			}
		}
		return true
	})
}
