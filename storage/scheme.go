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
	"net/url"
	"strings"

	"github.com/bubbly-io/recommender/base/log"
	"github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"moul.io/zapgorm2"
)

const (
	MySQLPrefix      = "mysql://"
	MongoPrefix      = "mongodb://"
	MongoSrvPrefix   = "mongodb+srv://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
)

// Prefixes lists every supported data store scheme.
var Prefixes = []string{
	MySQLPrefix,
	MongoPrefix,
	MongoSrvPrefix,
	PostgresPrefix,
	PostgreSQLPrefix,
	SQLitePrefix,
}

// HasSupportedPrefix reports whether a data store URL uses a supported scheme.
func HasSupportedPrefix(path string) bool {
	return lo.ContainsBy(Prefixes, func(prefix string) bool {
		return strings.HasPrefix(path, prefix)
	})
}

func AppendURLParams(rawURL string, params []lo.Tuple2[string, string]) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Trace(err)
	}
	q := parsed.Query()
	for _, tuple := range params {
		q.Add(tuple.A, tuple.B)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

func AppendMySQLParams(dsn string, params map[string]string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Trace(err)
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	for key, value := range params {
		if _, exist := cfg.Params[key]; !exist {
			cfg.Params[key] = value
		}
	}
	return cfg.FormatDSN(), nil
}

type TablePrefix string

func (tp TablePrefix) UsersTable() string {
	return string(tp) + "users"
}

func (tp TablePrefix) InterestsTable() string {
	return string(tp) + "interests"
}

func (tp TablePrefix) UserInterestsTable() string {
	return string(tp) + "user_interests"
}

func (tp TablePrefix) BubbleInterestsTable() string {
	return string(tp) + "bubble_interests"
}

func (tp TablePrefix) BubblesTable() string {
	return string(tp) + "bubbles"
}

func (tp TablePrefix) BubbleMembersTable() string {
	return string(tp) + "bubble_members"
}

// InteractionsTable returns the table of user actions on bubbles.
func (tp TablePrefix) InteractionsTable() string {
	return string(tp) + "user_bubble_interactions"
}

func (tp TablePrefix) ValuesTable() string {
	return string(tp) + "values"
}

func (tp TablePrefix) Key(key string) string {
	return string(tp) + key
}

func NewGORMConfig(tablePrefix string) *gorm.Config {
	return &gorm.Config{
		Logger:                 zapgorm2.New(log.Logger()),
		CreateBatchSize:        1000,
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   tablePrefix,
			SingularTable: true,
			NameReplacer: strings.NewReplacer(
				"SQLUserInterest", "UserInterests",
				"SQLBubbleInterest", "BubbleInterests",
				"SQLBubbleMember", "BubbleMembers",
				"SQLUser", "Users",
				"SQLInterest", "Interests",
				"SQLBubble", "Bubbles",
				"SQLInteraction", "UserBubbleInteractions",
			),
		},
	}
}
