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

package storage

import (
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestAppendURLParams(t *testing.T) {
	url, err := AppendURLParams("sqlite:///tmp/bubbly.db", []lo.Tuple2[string, string]{
		{"_pragma", "busy_timeout(10000)"},
		{"_pragma", "journal_mode(wal)"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/bubbly.db?_pragma=busy_timeout%2810000%29&_pragma=journal_mode%28wal%29", url)
}

func TestHasSupportedPrefix(t *testing.T) {
	assert.True(t, HasSupportedPrefix("postgres://localhost/bubbly"))
	assert.True(t, HasSupportedPrefix("sqlite:///tmp/bubbly.db"))
	assert.True(t, HasSupportedPrefix("mongodb+srv://cluster/bubbly"))
	assert.False(t, HasSupportedPrefix("redis://localhost:6379"))
}

func TestTablePrefix(t *testing.T) {
	tp := TablePrefix("bb_")
	assert.Equal(t, "bb_users", tp.UsersTable())
	assert.Equal(t, "bb_user_bubble_interactions", tp.InteractionsTable())
	assert.Equal(t, "bb_bubble_members", tp.BubbleMembersTable())
}

func TestNewOptions(t *testing.T) {
	opt := NewOptions(WithTablePrefix("bb_"), WithMaxOpenConns(8), WithMaxIdleConns(2), WithConnMaxLifetime(time.Minute))
	assert.Equal(t, Options{TablePrefix: "bb_", MaxOpenConns: 8, MaxIdleConns: 2, ConnMaxLifetime: time.Minute}, opt)
}
