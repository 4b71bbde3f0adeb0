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
	"encoding/json"
	"net/http"
	"testing"

	"github.com/bubbly-io/recommender/storage/data"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v interface{}) string {
	s, err := json.Marshal(v)
	require.NoError(t, err)
	return string(s)
}

func TestRest_Health(t *testing.T) {
	m := newMockMaster(t)
	apitest.New().
		Handler(m.handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		Body(marshal(t, Health{Status: StatusHealthy})).
		End()

	seedInterests(t, m)
	seedHistory(t, m)
	result, err := m.Train(t.Context())
	require.NoError(t, err)
	require.True(t, result.Success)
	apitest.New().
		Handler(m.handler).
		Get("/api/health").
		Expect(t).
		Status(http.StatusOK).
		Assert(func(res *http.Response, _ *http.Request) error {
			var health Health
			if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
				return err
			}
			assert.Equal(t, StatusHealthy, health.Status)
			assert.True(t, health.ModelLoaded)
			if assert.NotNil(t, health.Model) {
				assert.Equal(t, testTime.UnixNano(), health.Model.ID)
				assert.Equal(t, *result.Score, health.Model.Score)
			}
			assert.Equal(t, &InterestDrift{}, health.InterestDrift)
			return nil
		}).
		End()
}

func TestRest_Train(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedOpenBubbles(t, m)

	// no closed bubbles
	apitest.New().
		Handler(m.handler).
		Post("/api/train").
		Header("Content-Type", "application/json").
		Expect(t).
		Status(http.StatusBadRequest).
		Body(marshal(t, Status{Status: StatusError, Message: MessageInsufficientData})).
		End()
	// fall back to similarity ranking
	apitest.New().
		Handler(m.handler).
		Get("/api/recommend/u1").
		Query("n", "5").
		Expect(t).
		Status(http.StatusOK).
		Body(marshal(t, []string{"B1", "B2"})).
		End()

	seedHistory(t, m)
	apitest.New().
		Handler(m.handler).
		Post("/api/train").
		Header("Content-Type", "application/json").
		Expect(t).
		Status(http.StatusOK).
		Assert(func(res *http.Response, _ *http.Request) error {
			var resp TrainResponse
			if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
				return err
			}
			assert.Equal(t, StatusSuccess, resp.Status)
			assert.Equal(t, MessageTrained, resp.Message)
			if assert.NotNil(t, resp.Metrics) {
				assert.Equal(t, m.slot.Load().Score.Accuracy, resp.Metrics.Accuracy)
			}
			return nil
		}).
		End()
	assert.NotNil(t, m.slot.Load())

	// training runs, newest first
	apitest.New().
		Handler(m.handler).
		Get("/api/train/runs").
		Expect(t).
		Status(http.StatusOK).
		Assert(func(res *http.Response, _ *http.Request) error {
			var runs []map[string]interface{}
			if err := json.NewDecoder(res.Body).Decode(&runs); err != nil {
				return err
			}
			if assert.Len(t, runs, 2) {
				assert.Equal(t, "succeeded", runs[0]["Status"])
				assert.Equal(t, "failed", runs[1]["Status"])
			}
			return nil
		}).
		End()
}

func TestRest_TrainInProgress(t *testing.T) {
	m := newMockMaster(t)
	require.True(t, m.trainLock.TryAcquire(1))
	defer m.trainLock.Release(1)
	apitest.New().
		Handler(m.handler).
		Post("/api/train").
		Header("Content-Type", "application/json").
		Expect(t).
		Status(http.StatusConflict).
		Body(marshal(t, Status{Status: StatusError, Message: "training is in progress"})).
		End()
}

func TestRest_Predict(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedOpenBubbles(t, m)
	insertBubble(t, m, "B3", "u1", data.BubbleOpen, "1", "2", "3")

	apitest.New().
		Handler(m.handler).
		Post("/api/predict").
		JSON(PredictRequest{UserId: "u1", Limit: 5}).
		Expect(t).
		Status(http.StatusOK).
		Body(marshal(t, PredictResponse{
			Status:               StatusSuccess,
			UserId:               "u1",
			RecommendedBubbleIds: []string{"B1", "B2"},
		})).
		End()
	apitest.New().
		Handler(m.handler).
		Post("/api/predict").
		JSON(PredictRequest{UserId: "u1", Limit: 1}).
		Expect(t).
		Status(http.StatusOK).
		Body(marshal(t, PredictResponse{
			Status:               StatusSuccess,
			UserId:               "u1",
			RecommendedBubbleIds: []string{"B1"},
		})).
		End()
	// unknown user
	apitest.New().
		Handler(m.handler).
		Post("/api/predict").
		JSON(PredictRequest{UserId: "unknown"}).
		Expect(t).
		Status(http.StatusOK).
		Body(marshal(t, PredictResponse{
			Status:               StatusSuccess,
			UserId:               "unknown",
			RecommendedBubbleIds: []string{},
		})).
		End()
	// missing user id
	apitest.New().
		Handler(m.handler).
		Post("/api/predict").
		JSON(`{"limit": 5}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Body(marshal(t, Status{Status: StatusError, Message: "user_id is required"})).
		End()
	apitest.New().
		Handler(m.handler).
		Post("/api/predict").
		JSON(PredictRequest{UserId: "u1", Limit: -1}).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func TestRest_Recommend(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedOpenBubbles(t, m)
	insertBubble(t, m, "B4", "u2", data.BubbleOpen, "1", "2", "3")
	require.NoError(t, m.DataClient.BatchInsertMembers(t.Context(), []data.Member{
		{BubbleId: "B4", UserId: "u1", Status: data.MemberJoined},
	}))

	apitest.New().
		Handler(m.handler).
		Get("/api/recommend/u1").
		Expect(t).
		Status(http.StatusOK).
		Body(marshal(t, []string{"B1", "B2"})).
		End()
	apitest.New().
		Handler(m.handler).
		Get("/api/recommend/u1").
		Query("n", "1").
		Expect(t).
		Status(http.StatusOK).
		Body(marshal(t, []string{"B1"})).
		End()
	apitest.New().
		Handler(m.handler).
		Get("/api/recommend/u1").
		Query("n", "x").
		Expect(t).
		Status(http.StatusBadRequest).
		End()
	apitest.New().
		Handler(m.handler).
		Get("/api/recommend/u1").
		Query("n", "-1").
		Expect(t).
		Status(http.StatusBadRequest).
		Body(marshal(t, Status{Status: StatusError, Message: "n must not be negative"})).
		End()
	apitest.New().
		Handler(m.handler).
		Get("/api/recommend/unknown").
		Expect(t).
		Status(http.StatusOK).
		Body(`[]`).
		End()
}

func TestRest_RecommendRanker(t *testing.T) {
	m := newMockMaster(t)
	seedInterests(t, m)
	seedOpenBubbles(t, m)
	seedHistory(t, m)

	fallback := testutil.ToFloat64(RecommendTotal.WithLabelValues(LabelFallback))
	ranked := testutil.ToFloat64(RecommendTotal.WithLabelValues(LabelModel))
	apitest.New().
		Handler(m.handler).
		Get("/api/recommend/u1").
		Expect(t).
		Status(http.StatusOK).
		End()
	assert.Equal(t, fallback+1, testutil.ToFloat64(RecommendTotal.WithLabelValues(LabelFallback)))
	assert.Equal(t, ranked, testutil.ToFloat64(RecommendTotal.WithLabelValues(LabelModel)))

	result, err := m.Train(t.Context())
	require.NoError(t, err)
	require.True(t, result.Success)
	apitest.New().
		Handler(m.handler).
		Get("/api/recommend/u1").
		Expect(t).
		Status(http.StatusOK).
		End()
	assert.Equal(t, fallback+1, testutil.ToFloat64(RecommendTotal.WithLabelValues(LabelFallback)))
	assert.Equal(t, ranked+1, testutil.ToFloat64(RecommendTotal.WithLabelValues(LabelModel)))
}

func TestRest_Metrics(t *testing.T) {
	m := newMockMaster(t)
	apitest.New().
		Handler(m.handler).
		Get("/metrics").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.New().
		Handler(m.handler).
		Get("/apidocs.json").
		Expect(t).
		Status(http.StatusOK).
		End()
}
