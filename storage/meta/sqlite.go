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
	"database/sql"

	"github.com/juju/errors"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	db *sql.DB
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Init() error {
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS key_values (
	key TEXT PRIMARY KEY,
	value TEXT
);`); err != nil {
		return errors.Trace(err)
	}
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS train_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	start_time TIMESTAMP,
	end_time TIMESTAMP,
	status TEXT,
	message TEXT,
	n_train INTEGER,
	n_valid INTEGER,
	accuracy REAL,
	auc REAL
);`); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (s *SQLite) Put(key, value string) error {
	_, err := s.db.Exec(`
INSERT INTO key_values (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, value)
	return errors.Trace(err)
}

func (s *SQLite) Get(key string) (*string, error) {
	var value string
	err := s.db.QueryRow(`
SELECT value FROM key_values WHERE key = ?
`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // key not found
		}
		return nil, errors.Trace(err)
	}
	return &value, nil
}

func (s *SQLite) AddTrainRun(run *TrainRun) error {
	result, err := s.db.Exec(`
INSERT INTO train_runs (start_time, end_time, status, message, n_train, n_valid, accuracy, auc)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, run.StartTime.UTC(), run.EndTime.UTC(), run.Status, run.Message, run.NumTrain, run.NumValid, run.Accuracy, run.AUC)
	if err != nil {
		return errors.Trace(err)
	}
	run.ID, err = result.LastInsertId()
	return errors.Trace(err)
}

// ListTrainRuns returns the latest n training runs, newest first.
func (s *SQLite) ListTrainRuns(n int) ([]*TrainRun, error) {
	rs, err := s.db.Query(`
SELECT id, start_time, end_time, status, message, n_train, n_valid, accuracy, auc FROM train_runs
ORDER BY id DESC LIMIT ?
`, n)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rs.Close()
	var runs []*TrainRun
	for rs.Next() {
		var (
			run TrainRun
			auc sql.NullFloat64
		)
		if err = rs.Scan(&run.ID, &run.StartTime, &run.EndTime, &run.Status, &run.Message,
			&run.NumTrain, &run.NumValid, &run.Accuracy, &auc); err != nil {
			return nil, errors.Trace(err)
		}
		if auc.Valid {
			value := float32(auc.Float64)
			run.AUC = &value
		}
		runs = append(runs, &run)
	}
	return runs, errors.Trace(rs.Err())
}
