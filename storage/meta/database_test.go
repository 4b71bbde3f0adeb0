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
	"time"

	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) TestKeyValues() {
	err := suite.Database.Put("key1", "value1")
	suite.NoError(err)
	err = suite.Database.Put("key2", "value2")
	suite.NoError(err)

	value, err := suite.Database.Get("key1")
	suite.NoError(err)
	suite.Equal("value1", *value)

	// overwrite an existing key
	err = suite.Database.Put("key1", "value3")
	suite.NoError(err)
	value, err = suite.Database.Get("key1")
	suite.NoError(err)
	suite.Equal("value3", *value)

	value, err = suite.Database.Get("key2")
	suite.NoError(err)
	suite.Equal("value2", *value)

	// Test non-existing key
	value, err = suite.Database.Get("non-existing-key")
	suite.NoError(err)
	suite.Nil(value)
}

func (suite *baseTestSuite) TestTrainRuns() {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	auc := float32(0.75)
	err := suite.Database.AddTrainRun(&TrainRun{
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		Status:    TrainSucceeded,
		NumTrain:  80,
		NumValid:  20,
		Accuracy:  0.9,
		AUC:       &auc,
	})
	suite.NoError(err)
	failed := &TrainRun{
		StartTime: start.Add(time.Hour),
		EndTime:   start.Add(time.Hour),
		Status:    TrainFailed,
		Message:   "not enough data for training",
	}
	err = suite.Database.AddTrainRun(failed)
	suite.NoError(err)
	suite.NotZero(failed.ID)

	runs, err := suite.Database.ListTrainRuns(10)
	suite.NoError(err)
	if suite.Equal(2, len(runs)) {
		suite.Equal(TrainFailed, runs[0].Status)
		suite.Equal("not enough data for training", runs[0].Message)
		suite.Nil(runs[0].AUC)
		suite.Equal(TrainSucceeded, runs[1].Status)
		suite.Equal(80, runs[1].NumTrain)
		suite.Equal(20, runs[1].NumValid)
		suite.InDelta(0.9, runs[1].Accuracy, 1e-6)
		if suite.NotNil(runs[1].AUC) {
			suite.InDelta(0.75, *runs[1].AUC, 1e-6)
		}
		suite.True(start.Equal(runs[1].StartTime))
	}

	runs, err = suite.Database.ListTrainRuns(1)
	suite.NoError(err)
	suite.Len(runs, 1)
}
