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
	"context"
	"testing"

	"github.com/bubbly-io/recommender/logics"
	"github.com/bubbly-io/recommender/model"
	"github.com/bubbly-io/recommender/storage/data"
	"github.com/bubbly-io/recommender/storage/meta"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrain(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedHistory(t, m)
	seedOpenBubbles(t, m)

	result, err := m.Train(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, MessageTrained, result.Message)
	require.NotNil(t, result.Score)

	// published and persisted
	snapshot := m.slot.Load()
	require.NotNil(t, snapshot)
	assert.Equal(t, []string{"1", "2", "3", "4", "9"}, snapshot.InterestOrder)
	assert.Equal(t, 7, snapshot.NumPositive)
	assert.Equal(t, 13, snapshot.NumNegative)
	assert.Equal(t, 20, snapshot.NumTrain+snapshot.NumValid)
	assert.Equal(t, 5, snapshot.NumValid)
	assert.Equal(t, *result.Score, snapshot.Score)
	// the seed drives the split only
	assert.Equal(t, model.Params{
		model.NEstimators:    10,
		model.MaxDepth:       3,
		model.Lr:             float32(0.1),
		model.Lambda:         float32(1),
		model.MinChildWeight: float32(1),
		model.ScalePosWeight: float32(13) / float32(7),
	}, snapshot.Model.GetParams())
	persisted, err := m.modelStore.Load()
	require.NoError(t, err)
	assert.Equal(t, snapshot.SnapshotMeta.InterestOrder, persisted.InterestOrder)
	metaStr, err := m.metaStore.Get(meta.BUBBLE_RANKING_MODEL)
	require.NoError(t, err)
	require.NotNil(t, metaStr)

	// training run is recorded
	runs, err := m.metaStore.ListTrainRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, meta.TrainSucceeded, runs[0].Status)
	assert.Equal(t, 15, runs[0].NumTrain)
	assert.Equal(t, 5, runs[0].NumValid)
	assert.Equal(t, result.Score.Accuracy, runs[0].Accuracy)

	// recommend with the trained model
	recommended, err := m.recommender.Recommend(context.Background(), "u1", 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"B1", "B2"}, recommended)
}

func TestTrainInsufficientData(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedOpenBubbles(t, m)

	// no closed bubbles
	result, err := m.Train(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, MessageInsufficientData, result.Message)
	assert.Nil(t, result.Score)
	assert.Nil(t, m.slot.Load())
	_, err = m.modelStore.Load()
	assert.True(t, errors.Is(err, logics.ErrNoSnapshot))

	runs, err := m.metaStore.ListTrainRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, meta.TrainFailed, runs[0].Status)
	assert.Equal(t, MessageInsufficientData, runs[0].Message)

	// similarity ranking is still served
	recommended, err := m.recommender.Recommend(context.Background(), "u1", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"B1", "B2"}, recommended)
}

func TestTrainWithoutInterests(t *testing.T) {
	m := newMockMaster(t)
	require.NoError(t, m.DataClient.BatchInsertUsers(context.Background(), []data.User{{UserId: "u1"}, {UserId: "u2"}}))
	insertBubble(t, m, "c1", "u2", data.BubbleClosed)
	result, err := m.Train(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, MessageInsufficientData, result.Message)
	assert.Nil(t, m.slot.Load())
}

func TestTrainKeepsPriorModel(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedHistory(t, m)
	result, err := m.Train(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	prior := m.slot.Load()

	// all users are gone
	require.NoError(t, m.DataClient.Purge())
	result, err = m.Train(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Same(t, prior, m.slot.Load())
	persisted, err := m.modelStore.Load()
	require.NoError(t, err)
	assert.Equal(t, prior.TrainedAt.UnixNano(), persisted.TrainedAt.UnixNano())
}

func TestTrainInProgress(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedHistory(t, m)
	require.True(t, m.trainLock.TryAcquire(1))
	_, err := m.Train(context.Background())
	assert.True(t, errors.Is(err, ErrTrainingInProgress))
	assert.Nil(t, m.slot.Load())

	m.trainLock.Release(1)
	result, err := m.Train(context.Background())
	assert.NoError(t, err)
	assert.True(t, result.Success)
}

func TestTrainCancelled(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedHistory(t, m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Train(ctx)
	assert.Error(t, err)
	assert.Nil(t, m.slot.Load())

	runs, err := m.metaStore.ListTrainRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, meta.TrainFailed, runs[0].Status)
}
