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
	"time"

	"github.com/bubbly-io/recommender/storage"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoInterest struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
}

type mongoUser struct {
	ID        string     `bson:"_id"`
	Name      string     `bson:"name"`
	Sex       string     `bson:"sex"`
	Age       *int       `bson:"age,omitempty"`
	CreatedAt *time.Time `bson:"created_at,omitempty"`
}

type mongoBubble struct {
	ID         string     `bson:"_id"`
	OwnerId    string     `bson:"owner_id"`
	Title      string     `bson:"title"`
	Visibility string     `bson:"visibility"`
	MaxMembers *int       `bson:"max_members,omitempty"`
	Status     string     `bson:"status"`
	CreatedAt  *time.Time `bson:"created_at,omitempty"`
}

// MongoDB is the data storage based on MongoDB.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

// Init collections and indices in MongoDB.
func (m *MongoDB) Init() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	existed := mapset.NewSet(collections...)
	for _, name := range []string{
		m.InterestsTable(),
		m.UsersTable(),
		m.BubblesTable(),
		m.UserInterestsTable(),
		m.BubbleInterestsTable(),
		m.BubbleMembersTable(),
		m.InteractionsTable(),
	} {
		if !existed.Contains(name) {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	// create indices
	indices := []lo.Tuple2[string, mongo.IndexModel]{
		{A: m.UserInterestsTable(), B: mongo.IndexModel{Keys: bson.D{{"user_id", 1}, {"interest_id", 1}}, Options: options.Index().SetUnique(true)}},
		{A: m.BubbleInterestsTable(), B: mongo.IndexModel{Keys: bson.D{{"bubble_id", 1}, {"interest_id", 1}}, Options: options.Index().SetUnique(true)}},
		{A: m.BubbleMembersTable(), B: mongo.IndexModel{Keys: bson.D{{"bubble_id", 1}, {"user_id", 1}}, Options: options.Index().SetUnique(true)}},
		{A: m.BubbleMembersTable(), B: mongo.IndexModel{Keys: bson.D{{"user_id", 1}}}},
		{A: m.InteractionsTable(), B: mongo.IndexModel{Keys: bson.D{{"user_id", 1}, {"bubble_id", 1}, {"action", 1}}, Options: options.Index().SetUnique(true)}},
		{A: m.BubblesTable(), B: mongo.IndexModel{Keys: bson.D{{"status", 1}}}},
	}
	for _, index := range indices {
		if _, err = d.Collection(index.A).Indexes().CreateOne(ctx, index.B); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m *MongoDB) Ping() error {
	return m.client.Ping(context.Background(), nil)
}

// Close connection to MongoDB.
func (m *MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoDB) Purge() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	for _, name := range []string{
		m.InteractionsTable(),
		m.BubbleMembersTable(),
		m.BubbleInterestsTable(),
		m.UserInterestsTable(),
		m.BubblesTable(),
		m.UsersTable(),
		m.InterestsTable(),
	} {
		if _, err := d.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.dbName).Collection(name)
}

func upsertById(ctx context.Context, c *mongo.Collection, ids []string, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	var models []mongo.WriteModel
	for i, doc := range docs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": ids[i]}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func upsertByFilter(ctx context.Context, c *mongo.Collection, filters []bson.M, docs []bson.M) error {
	if len(docs) == 0 {
		return nil
	}
	var models []mongo.WriteModel
	for i, doc := range docs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filters[i]).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m *MongoDB) BatchInsertInterests(ctx context.Context, interests []Interest) error {
	ids := make([]string, len(interests))
	docs := make([]any, len(interests))
	for i, interest := range interests {
		ids[i] = interest.InterestId
		docs[i] = mongoInterest{ID: interest.InterestId, Name: interest.Name}
	}
	return upsertById(ctx, m.collection(m.InterestsTable()), ids, docs)
}

func (m *MongoDB) BatchInsertUsers(ctx context.Context, users []User) error {
	ids := make([]string, len(users))
	docs := make([]any, len(users))
	for i, user := range users {
		doc := mongoUser{ID: user.UserId, Name: user.Name, Sex: user.Sex}
		if user.Age > 0 {
			age := user.Age
			doc.Age = &age
		}
		if !user.CreatedAt.IsZero() {
			createdAt := user.CreatedAt.UTC()
			doc.CreatedAt = &createdAt
		}
		ids[i] = user.UserId
		docs[i] = doc
	}
	return upsertById(ctx, m.collection(m.UsersTable()), ids, docs)
}

func (m *MongoDB) BatchInsertBubbles(ctx context.Context, bubbles []Bubble) error {
	ids := make([]string, len(bubbles))
	docs := make([]any, len(bubbles))
	for i, bubble := range bubbles {
		maxMembers := bubble.MaxMembers
		doc := mongoBubble{
			ID:         bubble.BubbleId,
			OwnerId:    bubble.OwnerId,
			Title:      bubble.Title,
			Visibility: bubble.Visibility,
			MaxMembers: &maxMembers,
			Status:     string(bubble.Status),
		}
		if bubble.CreatedAt != nil {
			createdAt := bubble.CreatedAt.UTC()
			doc.CreatedAt = &createdAt
		}
		ids[i] = bubble.BubbleId
		docs[i] = doc
	}
	return upsertById(ctx, m.collection(m.BubblesTable()), ids, docs)
}

func (m *MongoDB) BatchInsertUserInterests(ctx context.Context, tags []UserInterest) error {
	filters := make([]bson.M, len(tags))
	docs := make([]bson.M, len(tags))
	for i, tag := range tags {
		filters[i] = bson.M{"user_id": tag.UserId, "interest_id": tag.InterestId}
		docs[i] = filters[i]
	}
	return upsertByFilter(ctx, m.collection(m.UserInterestsTable()), filters, docs)
}

func (m *MongoDB) BatchInsertBubbleInterests(ctx context.Context, tags []BubbleInterest) error {
	filters := make([]bson.M, len(tags))
	docs := make([]bson.M, len(tags))
	for i, tag := range tags {
		filters[i] = bson.M{"bubble_id": tag.BubbleId, "interest_id": tag.InterestId}
		docs[i] = filters[i]
	}
	return upsertByFilter(ctx, m.collection(m.BubbleInterestsTable()), filters, docs)
}

func (m *MongoDB) BatchInsertMembers(ctx context.Context, members []Member) error {
	filters := make([]bson.M, len(members))
	docs := make([]bson.M, len(members))
	for i, member := range members {
		filters[i] = bson.M{"bubble_id": member.BubbleId, "user_id": member.UserId}
		docs[i] = bson.M{"bubble_id": member.BubbleId, "user_id": member.UserId, "role": member.Role, "status": member.Status}
	}
	return upsertByFilter(ctx, m.collection(m.BubbleMembersTable()), filters, docs)
}

func (m *MongoDB) BatchInsertInteractions(ctx context.Context, interactions []Interaction) error {
	filters := make([]bson.M, len(interactions))
	docs := make([]bson.M, len(interactions))
	for i, interaction := range interactions {
		filters[i] = bson.M{"user_id": interaction.UserId, "bubble_id": interaction.BubbleId, "action": interaction.Action}
		docs[i] = bson.M{
			"user_id":    interaction.UserId,
			"bubble_id":  interaction.BubbleId,
			"action":     interaction.Action,
			"created_at": interaction.Timestamp.UTC(),
		}
	}
	return upsertByFilter(ctx, m.collection(m.InteractionsTable()), filters, docs)
}

func (m *MongoDB) GetInterests(ctx context.Context) ([]Interest, error) {
	cur, err := m.collection(m.InterestsTable()).Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	var interests []Interest
	for cur.Next(ctx) {
		var doc mongoInterest
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		interests = append(interests, Interest{InterestId: doc.ID, Name: doc.Name})
	}
	return interests, errors.Trace(cur.Err())
}

func (m *MongoDB) GetUserInterests(ctx context.Context) (map[string]mapset.Set[string], error) {
	return m.getInterestSets(ctx, m.UserInterestsTable(), "user_id")
}

func (m *MongoDB) GetBubbleInterests(ctx context.Context) (map[string]mapset.Set[string], error) {
	return m.getInterestSets(ctx, m.BubbleInterestsTable(), "bubble_id")
}

func (m *MongoDB) getInterestSets(ctx context.Context, name, ownerField string) (map[string]mapset.Set[string], error) {
	cur, err := m.collection(name).Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	sets := make(map[string]mapset.Set[string])
	for cur.Next(ctx) {
		var doc bson.M
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		ownerId, _ := doc[ownerField].(string)
		interestId, _ := doc["interest_id"].(string)
		addInterest(sets, ownerId, interestId)
	}
	return sets, errors.Trace(cur.Err())
}

func (doc mongoUser) toUser() User {
	user := User{UserId: doc.ID, Name: doc.Name, Sex: doc.Sex, Age: DefaultAge}
	if doc.Age != nil {
		user.Age = *doc.Age
	}
	if doc.CreatedAt != nil {
		user.CreatedAt = *doc.CreatedAt
	}
	return user
}

func (m *MongoDB) GetUsers(ctx context.Context) ([]User, error) {
	cur, err := m.collection(m.UsersTable()).Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	var users []User
	for cur.Next(ctx) {
		var doc mongoUser
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		users = append(users, doc.toUser())
	}
	return users, errors.Trace(cur.Err())
}

func (m *MongoDB) GetUser(ctx context.Context, userId string) (User, error) {
	var doc mongoUser
	err := m.collection(m.UsersTable()).FindOne(ctx, bson.M{"_id": userId}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return User{}, errors.Annotate(ErrUserNotExist, userId)
	} else if err != nil {
		return User{}, errors.Trace(err)
	}
	return doc.toUser(), nil
}

func (m *MongoDB) GetBubbles(ctx context.Context, status BubbleStatus) ([]Bubble, error) {
	// count joined members per bubble
	counts := make(map[string]int)
	cur, err := m.collection(m.BubbleMembersTable()).Aggregate(ctx, mongo.Pipeline{
		{{"$match", bson.M{"status": MemberJoined}}},
		{{"$group", bson.M{"_id": "$bubble_id", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	for cur.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int    `bson:"count"`
		}
		if err = cur.Decode(&row); err != nil {
			_ = cur.Close(ctx)
			return nil, errors.Trace(err)
		}
		counts[row.ID] = row.Count
	}
	if err = cur.Close(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	// fetch bubbles
	filter := bson.M{}
	if status != "" {
		filter["status"] = string(status)
	}
	cur, err = m.collection(m.BubblesTable()).Find(ctx, filter, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	var bubbles []Bubble
	for cur.Next(ctx) {
		var doc mongoBubble
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		bubble := Bubble{
			BubbleId:    doc.ID,
			OwnerId:     doc.OwnerId,
			Title:       doc.Title,
			Visibility:  doc.Visibility,
			Status:      BubbleStatus(doc.Status),
			MaxMembers:  DefaultMaxMembers,
			MemberCount: counts[doc.ID],
			CreatedAt:   doc.CreatedAt,
		}
		if doc.MaxMembers != nil {
			bubble.MaxMembers = *doc.MaxMembers
		}
		bubbles = append(bubbles, bubble)
	}
	return bubbles, errors.Trace(cur.Err())
}

func (m *MongoDB) GetJoinInteractions(ctx context.Context) ([]Interaction, error) {
	cur, err := m.collection(m.InteractionsTable()).Find(ctx, bson.M{"action": ActionJoin})
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	var interactions []Interaction
	for cur.Next(ctx) {
		var doc struct {
			UserId    string    `bson:"user_id"`
			BubbleId  string    `bson:"bubble_id"`
			Action    string    `bson:"action"`
			CreatedAt time.Time `bson:"created_at"`
		}
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		interactions = append(interactions, Interaction{
			UserId:    doc.UserId,
			BubbleId:  doc.BubbleId,
			Action:    doc.Action,
			Timestamp: doc.CreatedAt,
		})
	}
	return interactions, errors.Trace(cur.Err())
}

func (m *MongoDB) GetJoinedBubbles(ctx context.Context, userId string) (mapset.Set[string], error) {
	cur, err := m.collection(m.BubbleMembersTable()).Find(ctx, bson.M{"user_id": userId, "status": MemberJoined})
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	joined := mapset.NewSet[string]()
	for cur.Next(ctx) {
		var doc struct {
			BubbleId string `bson:"bubble_id"`
		}
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		joined.Add(doc.BubbleId)
	}
	return joined, errors.Trace(cur.Err())
}
