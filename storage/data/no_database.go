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

package data

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
)

// NoDatabase is used when no data store is configured. Every operation fails with ErrNoDatabase.
type NoDatabase struct{}

func (NoDatabase) Init() error {
	return ErrNoDatabase
}

func (NoDatabase) Ping() error {
	return ErrNoDatabase
}

func (NoDatabase) Close() error {
	return ErrNoDatabase
}

func (NoDatabase) Purge() error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertInterests(_ context.Context, _ []Interest) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertUsers(_ context.Context, _ []User) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertBubbles(_ context.Context, _ []Bubble) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertUserInterests(_ context.Context, _ []UserInterest) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertBubbleInterests(_ context.Context, _ []BubbleInterest) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertMembers(_ context.Context, _ []Member) error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertInteractions(_ context.Context, _ []Interaction) error {
	return ErrNoDatabase
}

func (NoDatabase) GetInterests(_ context.Context) ([]Interest, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetUserInterests(_ context.Context) (map[string]mapset.Set[string], error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetBubbleInterests(_ context.Context) (map[string]mapset.Set[string], error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetUsers(_ context.Context) ([]User, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetUser(_ context.Context, _ string) (User, error) {
	return User{}, ErrNoDatabase
}

func (NoDatabase) GetBubbles(_ context.Context, _ BubbleStatus) ([]Bubble, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetJoinInteractions(_ context.Context) ([]Interaction, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) GetJoinedBubbles(_ context.Context, _ string) (mapset.Set[string], error) {
	return nil, ErrNoDatabase
}
