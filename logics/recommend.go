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
	"context"
	"sort"
	"time"

	"github.com/bubbly-io/recommender/base/log"
	"github.com/bubbly-io/recommender/common/parallel"
	"github.com/bubbly-io/recommender/model/feature"
	"github.com/bubbly-io/recommender/storage/data"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Candidate is a scored bubble.
type Candidate struct {
	BubbleId string
	Score    float32
}

// RankResult is the outcome of ranking open bubbles for a user.
type RankResult struct {
	Candidates []Candidate
	// Snapshot is the model used for scoring, or nil if the fallback ranker was used.
	Snapshot *Snapshot
}

// Recommender ranks open bubbles for users. Bubbles are scored by the classifier in the slot if
// there is one, otherwise by interest overlap.
type Recommender struct {
	dataClient data.Database
	modelStore *ModelStore
	slot       *Slot
	defaultN   int
	jobs       int
	now        func() time.Time
	// loadFailed is set once the persisted snapshot failed to load.
	loadFailed atomic.Bool
}

func NewRecommender(dataClient data.Database, modelStore *ModelStore, slot *Slot, defaultN, jobs int) *Recommender {
	return &Recommender{
		dataClient: dataClient,
		modelStore: modelStore,
		slot:       slot,
		defaultN:   defaultN,
		jobs:       jobs,
		now:        time.Now,
	}
}

// Snapshot returns the current snapshot. The persisted snapshot is loaded if the slot is empty.
// A persisted snapshot that fails to load is not retried until a snapshot is stored in the slot.
func (r *Recommender) Snapshot() *Snapshot {
	if snapshot := r.slot.Load(); snapshot != nil || r.modelStore == nil || r.loadFailed.Load() {
		return snapshot
	}
	snapshot, err := r.modelStore.Load()
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			log.Logger().Warn("failed to load ranking model, rank by interest overlap until the next training",
				zap.Error(err))
			r.loadFailed.Store(true)
		}
		return nil
	}
	r.slot.snapshot.CompareAndSwap(nil, snapshot)
	return r.slot.Load()
}

// BubbleIds returns ids of the candidates in rank order.
func (result RankResult) BubbleIds() []string {
	return lo.Map(result.Candidates, func(c Candidate, _ int) string {
		return c.BubbleId
	})
}

// Recommend returns at most n bubble ids for a user, best first. The default n is used if n is
// not positive. Unknown users get an empty list.
func (r *Recommender) Recommend(ctx context.Context, userId string, n int) ([]string, error) {
	result, err := r.TopN(ctx, userId, n)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return result.BubbleIds(), nil
}

// TopN ranks open bubbles for a user and keeps the best n. The snapshot of the result is the one
// the candidates were scored with.
func (r *Recommender) TopN(ctx context.Context, userId string, n int) (RankResult, error) {
	if n <= 0 {
		n = r.defaultN
	}
	result, err := r.Rank(ctx, userId)
	if err != nil {
		return RankResult{}, errors.Trace(err)
	}
	if len(result.Candidates) > n {
		result.Candidates = result.Candidates[:n]
	}
	return result, nil
}

// Rank scores every open bubble the user neither owns nor has joined. Candidates are sorted by
// score in descending order and ties keep the order of the data store.
func (r *Recommender) Rank(ctx context.Context, userId string) (RankResult, error) {
	snapshot := r.Snapshot()
	user, err := r.dataClient.GetUser(ctx, userId)
	if errors.Is(err, data.ErrUserNotExist) {
		log.Logger().Debug("recommend for unknown user", zap.String("user_id", userId))
		return RankResult{Candidates: []Candidate{}, Snapshot: snapshot}, nil
	} else if err != nil {
		return RankResult{}, errors.Trace(err)
	}

	// fetch interests, bubbles and memberships concurrently
	var (
		userInterests   map[string]mapset.Set[string]
		bubbleInterests map[string]mapset.Set[string]
		bubbles         []data.Bubble
		joined          mapset.Set[string]
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		userInterests, err = r.dataClient.GetUserInterests(gCtx)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		bubbleInterests, err = r.dataClient.GetBubbleInterests(gCtx)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		bubbles, err = r.dataClient.GetBubbles(gCtx, data.BubbleOpen)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		joined, err = r.dataClient.GetJoinedBubbles(gCtx, userId)
		return errors.Trace(err)
	})
	if err = g.Wait(); err != nil {
		return RankResult{}, errors.Trace(err)
	}

	bubbles = ApplyFilters(bubbles, CandidateFilters(userId, joined)...)
	candidates := make([]Candidate, len(bubbles))
	if snapshot != nil {
		now := r.now()
		universe := snapshot.Universe()
		features := make([]feature.Vector, len(bubbles))
		if err = parallel.ForEach(ctx, bubbles, r.jobs, func(i int, bubble data.Bubble) {
			features[i] = feature.Build(user, bubble, userInterests[userId], bubbleInterests[bubble.BubbleId], universe, now)
		}); err != nil {
			return RankResult{}, errors.Trace(err)
		}
		scores := snapshot.Model.BatchPredict(features, r.jobs)
		for i, bubble := range bubbles {
			candidates[i] = Candidate{BubbleId: bubble.BubbleId, Score: scores[i]}
		}
	} else {
		log.Logger().Debug("no ranking model, rank by interest overlap", zap.String("user_id", userId))
		candidates = rankByOverlap(userInterests[userId], bubbles, bubbleInterests)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return RankResult{Candidates: candidates, Snapshot: snapshot}, nil
}

func rankByOverlap(userInterests mapset.Set[string], bubbles []data.Bubble, bubbleInterests map[string]mapset.Set[string]) []Candidate {
	return lo.Map(bubbles, func(bubble data.Bubble, _ int) Candidate {
		return Candidate{BubbleId: bubble.BubbleId, Score: feature.Overlap(userInterests, bubbleInterests[bubble.BubbleId])}
	})
}
