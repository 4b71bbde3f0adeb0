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
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bubbly-io/recommender/base/log"
	"github.com/bubbly-io/recommender/common/util"
	"github.com/bubbly-io/recommender/config"
	"github.com/bubbly-io/recommender/logics"
	"github.com/bubbly-io/recommender/model/gbdt"
	"github.com/bubbly-io/recommender/storage"
	"github.com/bubbly-io/recommender/storage/blob"
	"github.com/bubbly-io/recommender/storage/data"
	"github.com/bubbly-io/recommender/storage/meta"
	"github.com/emicklei/go-restful/v3"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const shutdownTimeout = 30 * time.Second

// Master is the recommender node. It serves recommendations, trains the ranking model and
// publishes trained snapshots to every inference call.
type Master struct {
	Config     *config.Config
	DataClient data.Database
	WebService *restful.WebService
	HttpServer *http.Server

	cachePath string
	metaStore meta.Database
	blobStore blob.Store

	// ranking model
	modelStore  *logics.ModelStore
	slot        *logics.Slot
	recommender *logics.Recommender

	trainLock *semaphore.Weighted
	ticker    *time.Ticker
	ctx       context.Context
	cancel    context.CancelFunc
	now       func() time.Time
}

// NewMaster creates a master node. Stores are connected by Open.
func NewMaster(cfg *config.Config, cachePath string) *Master {
	ctx, cancel := context.WithCancel(context.Background())
	return &Master{
		Config:     cfg,
		DataClient: data.NoDatabase{},
		WebService: new(restful.WebService),
		cachePath:  cachePath,
		slot:       new(logics.Slot),
		trainLock:  semaphore.NewWeighted(1),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Open connects the blob store, the meta store and the data store.
func (m *Master) Open() error {
	if err := os.MkdirAll(m.cachePath, os.ModePerm); err != nil {
		return errors.Trace(err)
	}

	// connect blob store
	var err error
	m.blobStore, err = blob.Open(m.Config.Blob, m.cachePath)
	if err != nil {
		return errors.Annotate(err, "failed to create blob store")
	}

	// connect meta database
	m.metaStore, err = meta.Open(fmt.Sprintf("sqlite://%s", filepath.Join(m.cachePath, "meta.sqlite3")))
	if err != nil {
		return errors.Annotate(err, "failed to connect meta database")
	}
	if err = m.metaStore.Init(); err != nil {
		return errors.Annotate(err, "failed to init meta database")
	}

	// connect data database
	m.DataClient, err = data.Open(m.Config.Database.DataStore,
		storage.WithTablePrefix(m.Config.Database.TablePrefix),
		storage.WithMaxOpenConns(m.Config.Database.MaxOpenConns),
		storage.WithMaxIdleConns(m.Config.Database.MaxIdleConns),
		storage.WithConnMaxLifetime(m.Config.Database.ConnMaxLifetime))
	if err != nil {
		return errors.Annotatef(err, "failed to connect data database %s", log.RedactDBURL(m.Config.Database.DataStore))
	}
	if m.Config.Database.AutoMigrate {
		if err = m.DataClient.Init(); err != nil {
			return errors.Annotate(err, "failed to init data database")
		}
	} else if err = m.DataClient.Ping(); err != nil {
		log.Logger().Warn("data database is unreachable", zap.Error(err),
			zap.String("database", log.RedactDBURL(m.Config.Database.DataStore)))
	}

	m.modelStore = logics.NewModelStore(m.blobStore, m.metaStore)
	m.recommender = logics.NewRecommender(m.DataClient, m.modelStore, m.slot,
		m.Config.Recommend.DefaultN, m.Config.Master.NumJobs)
	return nil
}

func (m *Master) Serve() {
	if err := m.Open(); err != nil {
		log.Logger().Fatal("failed to open master", zap.Error(err))
	}
	m.LoadModel(m.ctx)
	if m.Config.Train.FitPeriod > 0 {
		m.ticker = time.NewTicker(m.Config.Train.FitPeriod)
		go m.RunTasksLoop()
	}
	m.StartHttpServer()
}

// LoadModel publishes the persisted snapshot if there is one.
func (m *Master) LoadModel(ctx context.Context) {
	snapshot, err := m.modelStore.Load()
	if errors.Is(err, logics.ErrNoSnapshot) {
		log.Logger().Info("no existing model found")
		return
	} else if err != nil {
		log.Logger().Warn("failed to load existing model", zap.Error(err))
		return
	}
	m.slot.Store(snapshot)
	log.Logger().Info("loaded existing model", append([]zap.Field{
		zap.Time("trained_at", snapshot.TrainedAt),
		zap.Int("n_interests", len(snapshot.InterestOrder)),
	}, snapshot.Score.ZapFields()...)...)
	if _, err = m.checkDrift(ctx, snapshot); err != nil {
		log.Logger().Warn("failed to check interest drift", zap.Error(err))
	}
}

// InterestDrift counts interests added to or removed from the data store since the model was trained.
type InterestDrift struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

func (m *Master) checkDrift(ctx context.Context, snapshot *logics.Snapshot) (InterestDrift, error) {
	interests, err := m.DataClient.GetInterests(ctx)
	if err != nil {
		return InterestDrift{}, errors.Trace(err)
	}
	order := make([]string, len(interests))
	for i, interest := range interests {
		order[i] = interest.InterestId
	}
	var drift InterestDrift
	drift.Added, drift.Removed = snapshot.Drift(order)
	InterestDriftVec.WithLabelValues(LabelAdded).Set(float64(drift.Added))
	InterestDriftVec.WithLabelValues(LabelRemoved).Set(float64(drift.Removed))
	if drift.Added > 0 || drift.Removed > 0 {
		InterestDriftDetectedTotal.Inc()
		log.Logger().Warn("interests changed since the ranking model was trained",
			zap.Int("added", drift.Added),
			zap.Int("removed", drift.Removed),
			zap.Time("trained_at", snapshot.TrainedAt))
	}
	return drift, nil
}

// modelMeta returns the metadata of the current ranking model, or nil if there is none.
func (m *Master) modelMeta(snapshot *logics.Snapshot) *meta.Model[gbdt.Score] {
	if snapshot == nil {
		return nil
	}
	if m.metaStore != nil {
		metaStr, err := m.metaStore.Get(meta.BUBBLE_RANKING_MODEL)
		if err != nil {
			log.Logger().Error("failed to load ranking model meta", zap.Error(err))
		} else if metaStr != nil {
			var modelMeta meta.Model[gbdt.Score]
			if err = modelMeta.FromJSON(*metaStr); err != nil {
				log.Logger().Error("failed to unmarshal ranking model meta", zap.Error(err))
			} else if modelMeta.ID == snapshot.TrainedAt.UnixNano() {
				return &modelMeta
			}
		}
	}
	return &meta.Model[gbdt.Score]{
		ID:        snapshot.TrainedAt.UnixNano(),
		Score:     snapshot.Score,
		TrainedAt: snapshot.TrainedAt,
	}
}

// Shutdown stops the http server and cancels a running training. Stores are closed after the
// cancelled training has returned, or after shutdownTimeout.
func (m *Master) Shutdown() {
	m.cancel()
	if m.ticker != nil {
		m.ticker.Stop()
	}
	if m.HttpServer != nil {
		if err := m.HttpServer.Shutdown(context.Background()); err != nil {
			log.Logger().Error("failed to shutdown http server", zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := m.trainLock.Acquire(ctx, 1); err != nil {
		log.Logger().Warn("training did not stop before shutdown", zap.Error(err))
	} else {
		defer m.trainLock.Release(1)
	}
	if m.metaStore != nil {
		if err := m.metaStore.Close(); err != nil {
			log.Logger().Error("failed to close meta database", zap.Error(err))
		}
	}
	if err := m.DataClient.Close(); err != nil && !errors.Is(err, data.ErrNoDatabase) {
		log.Logger().Error("failed to close data database", zap.Error(err))
	}
}

// RunTasksLoop retrains the ranking model periodically until the master is shut down.
func (m *Master) RunTasksLoop() {
	defer util.CheckPanic()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.ticker.C:
		}
		result, err := m.Train(m.ctx)
		if errors.Is(err, ErrTrainingInProgress) {
			log.Logger().Info("skip scheduled training since another one is running")
		} else if err != nil {
			log.Logger().Error("failed to train ranking model", zap.Error(err))
		} else if !result.Success {
			log.Logger().Warn("scheduled training skipped", zap.String("message", result.Message))
		}
	}
}
