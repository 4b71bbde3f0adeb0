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
	"time"

	"github.com/bubbly-io/recommender/base/log"
	"github.com/bubbly-io/recommender/dataset"
	"github.com/bubbly-io/recommender/logics"
	"github.com/bubbly-io/recommender/model"
	"github.com/bubbly-io/recommender/model/gbdt"
	"github.com/bubbly-io/recommender/storage/data"
	"github.com/bubbly-io/recommender/storage/meta"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	MessageTrained          = "model trained successfully"
	MessageInsufficientData = "not enough data for training"
)

var ErrTrainingInProgress = errors.AlreadyExistsf("training")

// TrainResult is the outcome of a training run. Score is nil unless the run succeeded.
type TrainResult struct {
	Success bool
	Message string
	Score   *gbdt.Score
}

// Train fits the ranking model on closed bubbles, persists the snapshot and publishes it.
// Only one training runs at a time: ErrTrainingInProgress is returned while another is running.
// The published snapshot is left unchanged unless the run succeeds.
func (m *Master) Train(ctx context.Context) (TrainResult, error) {
	if !m.trainLock.TryAcquire(1) {
		return TrainResult{}, errors.Trace(ErrTrainingInProgress)
	}
	defer m.trainLock.Release(1)

	// cancel training on shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()
	if m.Config.Train.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, m.Config.Train.Timeout)
		defer cancelTimeout()
	}

	run := &meta.TrainRun{StartTime: time.Now()}
	result, err := m.train(ctx, run)
	run.EndTime = time.Now()
	TrainSeconds.Set(run.EndTime.Sub(run.StartTime).Seconds())
	switch {
	case errors.Is(err, dataset.ErrInsufficientData):
		log.Logger().Warn("skip training", zap.Error(err))
		result, err = TrainResult{Message: MessageInsufficientData}, nil
		run.Status, run.Message = meta.TrainFailed, MessageInsufficientData
		TrainTotal.WithLabelValues(LabelInsufficientData).Inc()
	case err != nil:
		run.Status, run.Message = meta.TrainFailed, err.Error()
		TrainTotal.WithLabelValues(LabelFailed).Inc()
	default:
		run.Status, run.Message = meta.TrainSucceeded, result.Message
		TrainTotal.WithLabelValues(LabelSucceeded).Inc()
	}
	if m.metaStore != nil {
		if err := m.metaStore.AddTrainRun(run); err != nil {
			log.Logger().Error("failed to record training run", zap.Error(err))
		}
	}
	return result, err
}

func (m *Master) train(ctx context.Context, run *meta.TrainRun) (TrainResult, error) {
	startTime := time.Now()
	in, err := m.loadTrainingInput(ctx)
	if err != nil {
		return TrainResult{}, errors.Trace(err)
	}
	trainingData := dataset.Assemble(in, m.now())
	LoadDatasetSeconds.Set(time.Since(startTime).Seconds())
	log.Logger().Info("assembled training data",
		zap.Int("n_users", len(in.Users)),
		zap.Int("n_bubbles", len(in.Bubbles)),
		zap.Int("n_interests", len(in.InterestOrder)),
		zap.Int("n_samples", trainingData.Count()),
		zap.Int("n_positive", trainingData.PositiveCount),
		zap.Int("n_negative", trainingData.NegativeCount))
	if trainingData.Count() == 0 {
		return TrainResult{}, errors.Annotate(dataset.ErrInsufficientData, "no closed bubbles or users")
	}
	if len(trainingData.InterestOrder) == 0 {
		return TrainResult{}, errors.Annotate(dataset.ErrInsufficientData, "no interests")
	}

	trainSet, validSet := trainingData.Split(m.Config.Train.TestRatio, m.Config.Train.RandomState)
	run.NumTrain, run.NumValid = trainSet.Count(), validSet.Count()
	params := model.Params{
		model.NEstimators:    m.Config.Train.NEstimators,
		model.MaxDepth:       m.Config.Train.MaxDepth,
		model.Lr:             m.Config.Train.LearningRate,
		model.Lambda:         m.Config.Train.Lambda,
		model.MinChildWeight: m.Config.Train.MinChildWeight,
		model.ScalePosWeight: trainingData.ScalePosWeight(),
	}
	log.Logger().Info("fit ranking model", zap.String("params", params.ToString()),
		zap.Int("n_train", run.NumTrain), zap.Int("n_valid", run.NumValid))
	classifier := gbdt.NewGBDT(params)
	score, err := classifier.Fit(ctx, trainSet, validSet, gbdt.NewFitConfig().SetJobs(m.Config.Master.NumJobs))
	if err != nil {
		return TrainResult{}, errors.Trace(err)
	}
	run.Accuracy = score.Accuracy
	if score.AUC.Available {
		run.AUC = lo.ToPtr(score.AUC.Value)
	}
	if err = ctx.Err(); err != nil {
		return TrainResult{}, errors.Trace(err)
	}

	snapshot := logics.NewSnapshot(classifier, logics.SnapshotMeta{
		InterestOrder: trainingData.InterestOrder,
		Score:         score,
		TrainedAt:     m.now(),
		NumTrain:      trainSet.Count(),
		NumValid:      validSet.Count(),
		NumPositive:   trainingData.PositiveCount,
		NumNegative:   trainingData.NegativeCount,
	})
	if err = m.modelStore.Save(snapshot); err != nil {
		return TrainResult{}, errors.Trace(err)
	}
	m.slot.Store(snapshot)
	RankingModelAccuracy.Set(float64(score.Accuracy))
	if score.AUC.Available {
		RankingModelAUC.Set(float64(score.AUC.Value))
	}
	InterestDriftVec.WithLabelValues(LabelAdded).Set(0)
	InterestDriftVec.WithLabelValues(LabelRemoved).Set(0)
	log.Logger().Info("ranking model trained", append([]zap.Field{
		zap.Duration("duration", time.Since(startTime)),
	}, score.ZapFields()...)...)
	return TrainResult{Success: true, Message: MessageTrained, Score: &score}, nil
}

// loadTrainingInput reads everything a training set is assembled from.
func (m *Master) loadTrainingInput(ctx context.Context) (dataset.Input, error) {
	var in dataset.Input
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		interests, err := m.DataClient.GetInterests(gCtx)
		if err != nil {
			return errors.Trace(err)
		}
		in.InterestOrder = lo.Map(interests, func(interest data.Interest, _ int) string {
			return interest.InterestId
		})
		return nil
	})
	g.Go(func() (err error) {
		in.Users, err = m.DataClient.GetUsers(gCtx)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		in.Bubbles, err = m.DataClient.GetBubbles(gCtx, data.BubbleClosed)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		in.UserInterests, err = m.DataClient.GetUserInterests(gCtx)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		in.BubbleInterests, err = m.DataClient.GetBubbleInterests(gCtx)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		in.Joins, err = m.DataClient.GetJoinInteractions(gCtx)
		return errors.Trace(err)
	})
	if err := g.Wait(); err != nil {
		return dataset.Input{}, errors.Trace(err)
	}
	return in, nil
}
