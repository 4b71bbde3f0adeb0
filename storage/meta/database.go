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
package meta

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/bubbly-io/recommender/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
)

// BUBBLE_RANKING_MODEL is the key of the metadata of the current ranking model.
const BUBBLE_RANKING_MODEL = "BUBBLE_RANKING_MODEL"

// Model is the metadata of a trained model.
type Model[T any] struct {
	ID        int64
	Score     T
	TrainedAt time.Time
}

func (m *Model[T]) ToJSON() string {
	return string(lo.Must1(json.Marshal(m)))
}

func (m *Model[T]) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), m)
}

// TrainRun records the outcome of a training run.
type TrainRun struct {
	ID        int64
	StartTime time.Time
	EndTime   time.Time
	Status    string
	Message   string
	NumTrain  int
	NumValid  int
	Accuracy  float32
	AUC       *float32
}

const (
	TrainSucceeded = "succeeded"
	TrainFailed    = "failed"
)

type Database interface {
	Close() error
	Init() error
	Put(key, value string) error
	Get(key string) (*string, error)
	AddTrainRun(run *TrainRun) error
	ListTrainRuns(n int) ([]*TrainRun, error)
}

// Open a connection to a database.
func Open(path string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.SQLitePrefix) {
		dataSourceName := path[len(storage.SQLitePrefix):]
		// append parameters
		if dataSourceName, err = storage.AppendURLParams(dataSourceName, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLite)
		if database.db, err = otelsql.Open("sqlite", dataSourceName,
			otelsql.WithAttributes(semconv.DBSystemSqlite),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}
