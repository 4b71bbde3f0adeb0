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
	"strconv"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func testInterests(t *testing.T, db Database) {
	ctx := context.Background()
	err := db.BatchInsertInterests(ctx, []Interest{
		{InterestId: "3", Name: "hiking"},
		{InterestId: "1", Name: "music"},
		{InterestId: "2", Name: "games"},
	})
	assert.NoError(t, err)
	// upsert
	err = db.BatchInsertInterests(ctx, []Interest{{InterestId: "2", Name: "board games"}})
	assert.NoError(t, err)
	interests, err := db.GetInterests(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []Interest{
		{InterestId: "1", Name: "music"},
		{InterestId: "2", Name: "board games"},
		{InterestId: "3", Name: "hiking"},
	}, interests)

	// interest sets
	err = db.BatchInsertUserInterests(ctx, []UserInterest{
		{UserId: "u1", InterestId: "1"},
		{UserId: "u1", InterestId: "2"},
		{UserId: "u2", InterestId: "3"},
		{UserId: "u1", InterestId: "1"},
	})
	assert.NoError(t, err)
	err = db.BatchInsertBubbleInterests(ctx, []BubbleInterest{
		{BubbleId: "b1", InterestId: "2"},
		{BubbleId: "b2", InterestId: "2"},
		{BubbleId: "b2", InterestId: "3"},
	})
	assert.NoError(t, err)
	userInterests, err := db.GetUserInterests(ctx)
	assert.NoError(t, err)
	assert.Len(t, userInterests, 2)
	assert.ElementsMatch(t, []string{"1", "2"}, userInterests["u1"].ToSlice())
	assert.ElementsMatch(t, []string{"3"}, userInterests["u2"].ToSlice())
	bubbleInterests, err := db.GetBubbleInterests(ctx)
	assert.NoError(t, err)
	assert.Len(t, bubbleInterests, 2)
	assert.ElementsMatch(t, []string{"2"}, bubbleInterests["b1"].ToSlice())
	assert.ElementsMatch(t, []string{"2", "3"}, bubbleInterests["b2"].ToSlice())
}

func testUsers(t *testing.T, db Database) {
	ctx := context.Background()
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var users []User
	for i := 0; i < 5; i++ {
		users = append(users, User{
			UserId:    strconv.Itoa(i),
			Name:      "user " + strconv.Itoa(i),
			Sex:       "f",
			Age:       20 + i,
			CreatedAt: createdAt,
		})
	}
	// age is unknown
	users[4].Age = 0
	err := db.BatchInsertUsers(ctx, users)
	assert.NoError(t, err)

	result, err := db.GetUsers(ctx)
	assert.NoError(t, err)
	assert.Len(t, result, 5)
	ages := lo.SliceToMap(result, func(user User) (string, int) {
		return user.UserId, user.Age
	})
	assert.Equal(t, map[string]int{"0": 20, "1": 21, "2": 22, "3": 23, "4": DefaultAge}, ages)

	user, err := db.GetUser(ctx, "1")
	assert.NoError(t, err)
	assert.Equal(t, "user 1", user.Name)
	assert.Equal(t, "f", user.Sex)
	assert.Equal(t, 21, user.Age)
	assert.True(t, createdAt.Equal(user.CreatedAt))

	_, err = db.GetUser(ctx, "100")
	assert.ErrorIs(t, err, ErrUserNotExist)
}

func testBubbles(t *testing.T, db Database) {
	ctx := context.Background()
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err := db.BatchInsertBubbles(ctx, []Bubble{
		{BubbleId: "b1", OwnerId: "u1", Title: "climbing", Visibility: "public", Status: BubbleOpen, MaxMembers: 4, CreatedAt: &createdAt},
		{BubbleId: "b2", OwnerId: "u2", Title: "chess", Visibility: "public", Status: BubbleClosed, MaxMembers: 8},
		{BubbleId: "b3", OwnerId: "u1", Title: "jazz", Visibility: "private", Status: BubbleClosed, MaxMembers: 0},
	})
	assert.NoError(t, err)
	err = db.BatchInsertMembers(ctx, []Member{
		{BubbleId: "b1", UserId: "u1", Role: "owner", Status: MemberJoined},
		{BubbleId: "b1", UserId: "u2", Role: "member", Status: MemberJoined},
		{BubbleId: "b1", UserId: "u3", Role: "member", Status: "left"},
		{BubbleId: "b2", UserId: "u3", Role: "member", Status: MemberJoined},
	})
	assert.NoError(t, err)

	bubbles, err := db.GetBubbles(ctx, "")
	assert.NoError(t, err)
	assert.Len(t, bubbles, 3)
	byId := lo.SliceToMap(bubbles, func(bubble Bubble) (string, Bubble) {
		return bubble.BubbleId, bubble
	})
	assert.Equal(t, "u1", byId["b1"].OwnerId)
	assert.Equal(t, "climbing", byId["b1"].Title)
	assert.Equal(t, BubbleOpen, byId["b1"].Status)
	assert.Equal(t, 4, byId["b1"].MaxMembers)
	assert.Equal(t, 2, byId["b1"].MemberCount)
	if assert.NotNil(t, byId["b1"].CreatedAt) {
		assert.True(t, createdAt.Equal(*byId["b1"].CreatedAt))
	}
	assert.Equal(t, 1, byId["b2"].MemberCount)
	assert.Nil(t, byId["b2"].CreatedAt)
	assert.Equal(t, 0, byId["b3"].MemberCount)
	// explicit zero capacity is kept
	assert.Equal(t, 0, byId["b3"].MaxMembers)

	closed, err := db.GetBubbles(ctx, BubbleClosed)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"b2", "b3"}, lo.Map(closed, func(bubble Bubble, _ int) string {
		return bubble.BubbleId
	}))

	// membership update
	err = db.BatchInsertMembers(ctx, []Member{{BubbleId: "b1", UserId: "u2", Role: "member", Status: "left"}})
	assert.NoError(t, err)
	joined, err := db.GetJoinedBubbles(ctx, "u2")
	assert.NoError(t, err)
	assert.Zero(t, joined.Cardinality())
	joined, err = db.GetJoinedBubbles(ctx, "u3")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"b2"}, joined.ToSlice())
}

func testInteractions(t *testing.T, db Database) {
	ctx := context.Background()
	timestamp := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)
	err := db.BatchInsertInteractions(ctx, []Interaction{
		{UserId: "u1", BubbleId: "b1", Action: ActionJoin, Timestamp: timestamp},
		{UserId: "u1", BubbleId: "b2", Action: "view", Timestamp: timestamp},
		{UserId: "u2", BubbleId: "b2", Action: ActionJoin, Timestamp: timestamp},
		{UserId: "u2", BubbleId: "b2", Action: ActionJoin, Timestamp: timestamp},
	})
	assert.NoError(t, err)
	interactions, err := db.GetJoinInteractions(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []lo.Tuple2[string, string]{
		{A: "u1", B: "b1"},
		{A: "u2", B: "b2"},
	}, lo.Map(interactions, func(interaction Interaction, _ int) lo.Tuple2[string, string] {
		assert.Equal(t, ActionJoin, interaction.Action)
		return lo.Tuple2[string, string]{A: interaction.UserId, B: interaction.BubbleId}
	}))
}

func testPurge(t *testing.T, db Database) {
	ctx := context.Background()
	err := db.BatchInsertInterests(ctx, []Interest{{InterestId: "1", Name: "music"}})
	assert.NoError(t, err)
	err = db.BatchInsertUsers(ctx, []User{{UserId: "u1"}})
	assert.NoError(t, err)
	err = db.BatchInsertBubbles(ctx, []Bubble{{BubbleId: "b1", OwnerId: "u1", Status: BubbleOpen}})
	assert.NoError(t, err)
	err = db.Purge()
	assert.NoError(t, err)
	interests, err := db.GetInterests(ctx)
	assert.NoError(t, err)
	assert.Empty(t, interests)
	users, err := db.GetUsers(ctx)
	assert.NoError(t, err)
	assert.Empty(t, users)
	bubbles, err := db.GetBubbles(ctx, "")
	assert.NoError(t, err)
	assert.Empty(t, bubbles)
}
