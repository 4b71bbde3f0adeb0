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
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/bubbly-io/recommender/base/log"
	"github.com/bubbly-io/recommender/storage"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

var (
	ErrUserNotExist = errors.NotFoundf("user")
	ErrNoDatabase   = errors.NotAssignedf("database")
)

const (
	// DefaultAge is used for users without a recorded age.
	DefaultAge = 25
	// DefaultMaxMembers is used for bubbles without a recorded capacity.
	DefaultMaxMembers = 10
)

// BubbleStatus is the lifecycle state of a bubble.
type BubbleStatus string

const (
	BubbleOpen   BubbleStatus = "open"
	BubbleClosed BubbleStatus = "closed"
)

const (
	MemberJoined = "joined"
	ActionJoin   = "join"
)

// Interest is a topic tag shared by users and bubbles.
type Interest struct {
	InterestId string
	Name       string
}

// User stores the attributes of a user. Age is DefaultAge if it was not recorded.
type User struct {
	UserId    string
	Name      string
	Sex       string
	Age       int
	CreatedAt time.Time
}

// Bubble is a group activity. MaxMembers is DefaultMaxMembers if it was not recorded and
// MemberCount counts memberships with status joined. CreatedAt is nil if unknown.
type Bubble struct {
	BubbleId    string
	OwnerId     string
	Title       string
	Visibility  string
	Status      BubbleStatus
	MaxMembers  int
	MemberCount int
	CreatedAt   *time.Time
}

// UserInterest tags a user with an interest.
type UserInterest struct {
	UserId     string
	InterestId string
}

// BubbleInterest tags a bubble with an interest.
type BubbleInterest struct {
	BubbleId   string
	InterestId string
}

// Member is the membership of a user in a bubble.
type Member struct {
	BubbleId string
	UserId   string
	Role     string
	Status   string
}

// Interaction is an action of a user on a bubble. Join interactions are the positive labels
// of the ranking model.
type Interaction struct {
	UserId    string
	BubbleId  string
	Action    string
	Timestamp time.Time
}

// Database is the data store of users, bubbles and their interests.
type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	BatchInsertInterests(ctx context.Context, interests []Interest) error
	BatchInsertUsers(ctx context.Context, users []User) error
	BatchInsertBubbles(ctx context.Context, bubbles []Bubble) error
	BatchInsertUserInterests(ctx context.Context, tags []UserInterest) error
	BatchInsertBubbleInterests(ctx context.Context, tags []BubbleInterest) error
	BatchInsertMembers(ctx context.Context, members []Member) error
	BatchInsertInteractions(ctx context.Context, interactions []Interaction) error
	// GetInterests returns all interests ordered by id.
	GetInterests(ctx context.Context) ([]Interest, error)
	// GetUserInterests returns interest sets keyed by user id.
	GetUserInterests(ctx context.Context) (map[string]mapset.Set[string], error)
	// GetBubbleInterests returns interest sets keyed by bubble id.
	GetBubbleInterests(ctx context.Context) (map[string]mapset.Set[string], error)
	// GetUsers returns all users ordered by id.
	GetUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, userId string) (User, error)
	// GetBubbles returns bubbles with the given status ordered by id, or all bubbles if status is empty.
	GetBubbles(ctx context.Context, status BubbleStatus) ([]Bubble, error)
	GetJoinInteractions(ctx context.Context) ([]Interaction, error)
	// GetJoinedBubbles returns ids of bubbles the user is a joined member of.
	GetJoinedBubbles(ctx context.Context, userId string) (mapset.Set[string], error)
}

func addInterest(m map[string]mapset.Set[string], ownerId, interestId string) {
	if _, ok := m[ownerId]; !ok {
		m[ownerId] = mapset.NewThreadUnsafeSet[string]()
	}
	m[ownerId].Add(interestId)
}

// Open a connection to a database.
func Open(path string, opts ...storage.Option) (Database, error) {
	var err error
	opt := storage.NewOptions(opts...)
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		// append parameters
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"sql_mode":  "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLDatabase)
		database.driver = MySQL
		database.TablePrefix = storage.TablePrefix(opt.TablePrefix)
		if database.client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		storage.ApplySQLPool(database.client, opt)
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(opt.TablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := new(SQLDatabase)
		database.driver = Postgres
		database.TablePrefix = storage.TablePrefix(opt.TablePrefix)
		if database.client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		storage.ApplySQLPool(database.client, opt)
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(opt.TablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.MongoPrefix) || strings.HasPrefix(path, storage.MongoSrvPrefix) {
		// connect to database
		database := new(MongoDB)
		clientOpts := options.Client()
		clientOpts.Monitor = otelmongo.NewMonitor()
		clientOpts.ApplyURI(path)
		if opt.MaxOpenConns > 0 {
			clientOpts.SetMaxPoolSize(uint64(opt.MaxOpenConns))
		}
		if database.client, err = mongo.Connect(context.Background(), clientOpts); err != nil {
			return nil, errors.Trace(err)
		}
		// parse DSN and extract database name
		if cs, err := connstring.ParseAndValidate(path); err != nil {
			return nil, errors.Trace(err)
		} else {
			database.dbName = cs.Database
			database.TablePrefix = storage.TablePrefix(opt.TablePrefix)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		// append parameters
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		name := path[len(storage.SQLitePrefix):]
		database := new(SQLDatabase)
		database.driver = SQLite
		database.TablePrefix = storage.TablePrefix(opt.TablePrefix)
		if database.client, err = otelsql.Open("sqlite", name,
			otelsql.WithAttributes(semconv.DBSystemSqlite),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		storage.ApplySQLPool(database.client, opt)
		gormConfig := storage.NewGORMConfig(opt.TablePrefix)
		gormConfig.Logger = &zapgorm2.Logger{
			ZapLogger:                 log.Logger(),
			LogLevel:                  logger.Warn,
			SlowThreshold:             10 * time.Second,
			SkipCallerLookup:          false,
			IgnoreRecordNotFoundError: false,
		}
		database.gormDB, err = gorm.Open(sqlite.Dialector{Conn: database.client}, gormConfig)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", log.RedactDBURL(path))
}
