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
	"database/sql"
	"fmt"
	"time"

	"github.com/bubbly-io/recommender/storage"
	mapset "github.com/deckarep/golang-set/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

type SQLInterest struct {
	ID   string `gorm:"column:id;type:varchar(256);primaryKey"`
	Name string `gorm:"column:name;type:varchar(256)"`
}

type SQLUser struct {
	ID        string     `gorm:"column:id;type:varchar(256);primaryKey"`
	Name      string     `gorm:"column:name;type:varchar(256)"`
	Sex       string     `gorm:"column:sex;type:varchar(32)"`
	Age       *int       `gorm:"column:age"`
	CreatedAt *time.Time `gorm:"column:created_at;autoCreateTime:false"`
}

type SQLBubble struct {
	ID         string     `gorm:"column:id;type:varchar(256);primaryKey"`
	OwnerId    string     `gorm:"column:owner_id;type:varchar(256);index"`
	Title      string     `gorm:"column:title;type:varchar(256)"`
	Visibility string     `gorm:"column:visibility;type:varchar(32)"`
	MaxMembers *int       `gorm:"column:max_members"`
	Status     string     `gorm:"column:status;type:varchar(32);index"`
	CreatedAt  *time.Time `gorm:"column:created_at;autoCreateTime:false"`
}

type SQLUserInterest struct {
	UserId     string `gorm:"column:user_id;type:varchar(256);primaryKey"`
	InterestId string `gorm:"column:interest_id;type:varchar(256);primaryKey"`
}

type SQLBubbleInterest struct {
	BubbleId   string `gorm:"column:bubble_id;type:varchar(256);primaryKey"`
	InterestId string `gorm:"column:interest_id;type:varchar(256);primaryKey"`
}

type SQLBubbleMember struct {
	BubbleId string `gorm:"column:bubble_id;type:varchar(256);primaryKey"`
	UserId   string `gorm:"column:user_id;type:varchar(256);primaryKey;index"`
	Role     string `gorm:"column:role;type:varchar(32)"`
	Status   string `gorm:"column:status;type:varchar(32)"`
}

type SQLInteraction struct {
	UserId    string    `gorm:"column:user_id;type:varchar(256);primaryKey"`
	BubbleId  string    `gorm:"column:bubble_id;type:varchar(256);primaryKey"`
	Action    string    `gorm:"column:action;type:varchar(32);primaryKey"`
	Timestamp time.Time `gorm:"column:created_at"`
}

// SQLDatabase reads interests, users and bubbles from MySQL, PostgreSQL or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates missing tables.
func (d *SQLDatabase) Init() error {
	db := d.gormDB
	if d.driver == MySQL {
		db = db.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := db.AutoMigrate(
		SQLInterest{},
		SQLUser{},
		SQLBubble{},
		SQLUserInterest{},
		SQLBubbleInterest{},
		SQLBubbleMember{},
		SQLInteraction{},
	); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge deletes all rows.
func (d *SQLDatabase) Purge() error {
	tables := []string{
		d.InteractionsTable(),
		d.BubbleMembersTable(),
		d.BubbleInterestsTable(),
		d.UserInterestsTable(),
		d.BubblesTable(),
		d.UsersTable(),
		d.InterestsTable(),
	}
	for _, tableName := range tables {
		if err := d.gormDB.Exec(fmt.Sprintf("DELETE FROM %s", tableName)).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) BatchInsertInterests(ctx context.Context, interests []Interest) error {
	if len(interests) == 0 {
		return nil
	}
	rows := make([]SQLInterest, len(interests))
	for i, interest := range interests {
		rows[i] = SQLInterest{ID: interest.InterestId, Name: interest.Name}
	}
	err := d.gormDB.WithContext(ctx).Table(d.InterestsTable()).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoUpdates: clause.AssignmentColumns([]string{"name"})}).
		Create(rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	rows := make([]SQLUser, len(users))
	for i, user := range users {
		rows[i] = SQLUser{ID: user.UserId, Name: user.Name, Sex: user.Sex}
		if user.Age > 0 {
			age := user.Age
			rows[i].Age = &age
		}
		if !user.CreatedAt.IsZero() {
			createdAt := user.CreatedAt.UTC()
			rows[i].CreatedAt = &createdAt
		}
	}
	err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoUpdates: clause.AssignmentColumns([]string{"name", "sex", "age", "created_at"})}).
		Create(rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertBubbles(ctx context.Context, bubbles []Bubble) error {
	if len(bubbles) == 0 {
		return nil
	}
	rows := make([]SQLBubble, len(bubbles))
	for i, bubble := range bubbles {
		maxMembers := bubble.MaxMembers
		rows[i] = SQLBubble{
			ID:         bubble.BubbleId,
			OwnerId:    bubble.OwnerId,
			Title:      bubble.Title,
			Visibility: bubble.Visibility,
			MaxMembers: &maxMembers,
			Status:     string(bubble.Status),
		}
		if bubble.CreatedAt != nil {
			createdAt := bubble.CreatedAt.UTC()
			rows[i].CreatedAt = &createdAt
		}
	}
	err := d.gormDB.WithContext(ctx).Table(d.BubblesTable()).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoUpdates: clause.AssignmentColumns([]string{"owner_id", "title", "visibility", "max_members", "status", "created_at"})}).
		Create(rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertUserInterests(ctx context.Context, tags []UserInterest) error {
	if len(tags) == 0 {
		return nil
	}
	rows := make([]SQLUserInterest, len(tags))
	for i, tag := range tags {
		rows[i] = SQLUserInterest{UserId: tag.UserId, InterestId: tag.InterestId}
	}
	err := d.gormDB.WithContext(ctx).Table(d.UserInterestsTable()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertBubbleInterests(ctx context.Context, tags []BubbleInterest) error {
	if len(tags) == 0 {
		return nil
	}
	rows := make([]SQLBubbleInterest, len(tags))
	for i, tag := range tags {
		rows[i] = SQLBubbleInterest{BubbleId: tag.BubbleId, InterestId: tag.InterestId}
	}
	err := d.gormDB.WithContext(ctx).Table(d.BubbleInterestsTable()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertMembers(ctx context.Context, members []Member) error {
	if len(members) == 0 {
		return nil
	}
	rows := make([]SQLBubbleMember, len(members))
	for i, member := range members {
		rows[i] = SQLBubbleMember{BubbleId: member.BubbleId, UserId: member.UserId, Role: member.Role, Status: member.Status}
	}
	err := d.gormDB.WithContext(ctx).Table(d.BubbleMembersTable()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bubble_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "status"}),
		}).
		Create(rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertInteractions(ctx context.Context, interactions []Interaction) error {
	if len(interactions) == 0 {
		return nil
	}
	rows := make([]SQLInteraction, len(interactions))
	for i, interaction := range interactions {
		rows[i] = SQLInteraction{
			UserId:    interaction.UserId,
			BubbleId:  interaction.BubbleId,
			Action:    interaction.Action,
			Timestamp: interaction.Timestamp.UTC(),
		}
	}
	err := d.gormDB.WithContext(ctx).Table(d.InteractionsTable()).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetInterests(ctx context.Context) ([]Interest, error) {
	rows, err := d.gormDB.WithContext(ctx).Table(d.InterestsTable()).Select("id, name").Order("id").Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	var interests []Interest
	for rows.Next() {
		var (
			interest Interest
			name     sql.NullString
		)
		if err = rows.Scan(&interest.InterestId, &name); err != nil {
			return nil, errors.Trace(err)
		}
		interest.Name = name.String
		interests = append(interests, interest)
	}
	return interests, errors.Trace(rows.Err())
}

func (d *SQLDatabase) GetUserInterests(ctx context.Context) (map[string]mapset.Set[string], error) {
	return d.getInterestSets(ctx, d.UserInterestsTable(), "user_id")
}

func (d *SQLDatabase) GetBubbleInterests(ctx context.Context) (map[string]mapset.Set[string], error) {
	return d.getInterestSets(ctx, d.BubbleInterestsTable(), "bubble_id")
}

func (d *SQLDatabase) getInterestSets(ctx context.Context, tableName, ownerColumn string) (map[string]mapset.Set[string], error) {
	rows, err := d.gormDB.WithContext(ctx).Table(tableName).Select(ownerColumn + ", interest_id").Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	sets := make(map[string]mapset.Set[string])
	for rows.Next() {
		var ownerId, interestId string
		if err = rows.Scan(&ownerId, &interestId); err != nil {
			return nil, errors.Trace(err)
		}
		addInterest(sets, ownerId, interestId)
	}
	return sets, errors.Trace(rows.Err())
}

func (d *SQLDatabase) GetUsers(ctx context.Context) ([]User, error) {
	rows, err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).Select("id, name, sex, age, created_at").Order("id").Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Trace(err)
		}
		users = append(users, user)
	}
	return users, errors.Trace(rows.Err())
}

func (d *SQLDatabase) GetUser(ctx context.Context, userId string) (User, error) {
	rows, err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).Select("id, name, sex, age, created_at").Where("id = ?", userId).Rows()
	if err != nil {
		return User{}, errors.Trace(err)
	}
	defer rows.Close()
	if rows.Next() {
		user, err := scanUser(rows)
		return user, errors.Trace(err)
	}
	if err = rows.Err(); err != nil {
		return User{}, errors.Trace(err)
	}
	return User{}, errors.Annotate(ErrUserNotExist, userId)
}

func scanUser(rows *sql.Rows) (User, error) {
	var (
		user      User
		name, sex sql.NullString
		age       sql.NullInt64
		createdAt sql.NullTime
	)
	if err := rows.Scan(&user.UserId, &name, &sex, &age, &createdAt); err != nil {
		return User{}, err
	}
	user.Name = name.String
	user.Sex = sex.String
	user.Age = DefaultAge
	if age.Valid {
		user.Age = int(age.Int64)
	}
	if createdAt.Valid {
		user.CreatedAt = createdAt.Time
	}
	return user, nil
}

func (d *SQLDatabase) GetBubbles(ctx context.Context, status BubbleStatus) ([]Bubble, error) {
	query := fmt.Sprintf(`SELECT b.id, b.owner_id, b.title, b.visibility, b.max_members, b.status, b.created_at,
	(SELECT COUNT(*) FROM %s m WHERE m.bubble_id = b.id AND m.status = ?) AS member_count
FROM %s b`, d.BubbleMembersTable(), d.BubblesTable())
	args := []any{MemberJoined}
	if status != "" {
		query += " WHERE b.status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY b.id"
	rows, err := d.gormDB.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	var bubbles []Bubble
	for rows.Next() {
		var (
			bubble                           Bubble
			ownerId, title, visibility, stat sql.NullString
			maxMembers                       sql.NullInt64
			createdAt                        sql.NullTime
		)
		if err = rows.Scan(&bubble.BubbleId, &ownerId, &title, &visibility, &maxMembers, &stat, &createdAt, &bubble.MemberCount); err != nil {
			return nil, errors.Trace(err)
		}
		bubble.OwnerId = ownerId.String
		bubble.Title = title.String
		bubble.Visibility = visibility.String
		bubble.Status = BubbleStatus(stat.String)
		bubble.MaxMembers = DefaultMaxMembers
		if maxMembers.Valid {
			bubble.MaxMembers = int(maxMembers.Int64)
		}
		if createdAt.Valid {
			t := createdAt.Time
			bubble.CreatedAt = &t
		}
		bubbles = append(bubbles, bubble)
	}
	return bubbles, errors.Trace(rows.Err())
}

func (d *SQLDatabase) GetJoinInteractions(ctx context.Context) ([]Interaction, error) {
	rows, err := d.gormDB.WithContext(ctx).Table(d.InteractionsTable()).
		Select("user_id, bubble_id, action").Where("action = ?", ActionJoin).Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	var interactions []Interaction
	for rows.Next() {
		var interaction Interaction
		if err = rows.Scan(&interaction.UserId, &interaction.BubbleId, &interaction.Action); err != nil {
			return nil, errors.Trace(err)
		}
		interactions = append(interactions, interaction)
	}
	return interactions, errors.Trace(rows.Err())
}

func (d *SQLDatabase) GetJoinedBubbles(ctx context.Context, userId string) (mapset.Set[string], error) {
	rows, err := d.gormDB.WithContext(ctx).Table(d.BubbleMembersTable()).
		Select("bubble_id").Where("user_id = ? AND status = ?", userId, MemberJoined).Rows()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()
	joined := mapset.NewSet[string]()
	for rows.Next() {
		var bubbleId string
		if err = rows.Scan(&bubbleId); err != nil {
			return nil, errors.Trace(err)
		}
		joined.Add(bubbleId)
	}
	return joined, errors.Trace(rows.Err())
}
