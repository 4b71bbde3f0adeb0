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

package config

import (
	"net"
	"net/url"
	"os"
	"time"

	"github.com/bubbly-io/recommender/base/log"
	"github.com/bubbly-io/recommender/storage"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the configuration for the recommender.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Master    MasterConfig    `mapstructure:"master"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Train     TrainConfig     `mapstructure:"train"`
	Blob      BlobConfig      `mapstructure:"blob"`
}

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	DataStore       string        `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix     string        `mapstructure:"table_prefix"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// MasterConfig is the configuration for the master node.
type MasterConfig struct {
	HttpHost  string `mapstructure:"http_host"`
	HttpPort  int    `mapstructure:"http_port" validate:"gte=0"`
	CachePath string `mapstructure:"cache_path"`
	NumJobs   int    `mapstructure:"n_jobs" validate:"gt=0"`
}

type RecommendConfig struct {
	DefaultN int `mapstructure:"default_n" validate:"gt=0"`
}

// TrainConfig holds the hyper-parameters and schedule of the ranking model.
type TrainConfig struct {
	NEstimators    int           `mapstructure:"n_estimators" validate:"gt=0"`
	MaxDepth       int           `mapstructure:"max_depth" validate:"gt=0"`
	LearningRate   float32       `mapstructure:"learning_rate" validate:"gt=0"`
	Lambda         float32       `mapstructure:"lambda" validate:"gte=0"`
	MinChildWeight float32       `mapstructure:"min_child_weight" validate:"gte=0"`
	TestRatio      float32       `mapstructure:"test_ratio" validate:"gt=0,lt=1"`
	RandomState    int64         `mapstructure:"random_state"` // seed of the train/validation split
	Timeout        time.Duration `mapstructure:"timeout" validate:"gte=0"`
	FitPeriod      time.Duration `mapstructure:"fit_period" validate:"gte=0"`
}

// BlobConfig selects where model snapshots are stored. S3 is used if an endpoint is set,
// then GCS if a bucket is set, then Azure if a container is set, otherwise the cache path.
type BlobConfig struct {
	S3    S3Config        `mapstructure:"s3"`
	GCS   GCSConfig       `mapstructure:"gcs"`
	Azure AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	Endpoint         string `mapstructure:"endpoint"`
	Container        string `mapstructure:"container"`
	Prefix           string `mapstructure:"prefix"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Master: MasterConfig{
			HttpHost:  "0.0.0.0",
			HttpPort:  5001,
			CachePath: "ml",
			NumJobs:   1,
		},
		Recommend: RecommendConfig{
			DefaultN: 20,
		},
		Train: TrainConfig{
			NEstimators:    100,
			MaxDepth:       6,
			LearningRate:   0.1,
			Lambda:         1,
			MinChildWeight: 1,
			TestRatio:      0.2,
			RandomState:    42,
			Timeout:        30 * time.Minute,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [master]
	v.SetDefault("master.http_host", defaultConfig.Master.HttpHost)
	v.SetDefault("master.http_port", defaultConfig.Master.HttpPort)
	v.SetDefault("master.cache_path", defaultConfig.Master.CachePath)
	v.SetDefault("master.n_jobs", defaultConfig.Master.NumJobs)
	// [recommend]
	v.SetDefault("recommend.default_n", defaultConfig.Recommend.DefaultN)
	// [train]
	v.SetDefault("train.n_estimators", defaultConfig.Train.NEstimators)
	v.SetDefault("train.max_depth", defaultConfig.Train.MaxDepth)
	v.SetDefault("train.learning_rate", defaultConfig.Train.LearningRate)
	v.SetDefault("train.lambda", defaultConfig.Train.Lambda)
	v.SetDefault("train.min_child_weight", defaultConfig.Train.MinChildWeight)
	v.SetDefault("train.test_ratio", defaultConfig.Train.TestRatio)
	v.SetDefault("train.random_state", defaultConfig.Train.RandomState)
	v.SetDefault("train.timeout", defaultConfig.Train.Timeout)
	v.SetDefault("train.fit_period", defaultConfig.Train.FitPeriod)
}

type configBinding struct {
	key string
	env string
}

var bindings = []configBinding{
	{"database.data_store", "BUBBLY_DATA_STORE"},
	{"database.table_prefix", "BUBBLY_TABLE_PREFIX"},
	{"master.http_host", "BUBBLY_HTTP_HOST"},
	{"master.http_port", "BUBBLY_HTTP_PORT"},
	{"master.cache_path", "BUBBLY_CACHE_PATH"},
	{"master.n_jobs", "BUBBLY_N_JOBS"},
	{"train.fit_period", "BUBBLY_FIT_PERIOD"},
	{"blob.s3.endpoint", "S3_ENDPOINT"},
	{"blob.s3.access_key_id", "S3_ACCESS_KEY_ID"},
	{"blob.s3.secret_access_key", "S3_SECRET_ACCESS_KEY"},
	{"blob.s3.bucket", "S3_BUCKET"},
	{"blob.gcs.bucket", "GCS_BUCKET"},
	{"blob.gcs.credentials_file", "GCS_CREDENTIALS_FILE"},
	{"blob.azure.connection_string", "AZURE_STORAGE_CONNECTION_STRING"},
	{"blob.azure.container", "AZURE_STORAGE_CONTAINER"},
}

// LoadConfig loads configuration from a TOML file. Variables in a .env file of the working
// directory are exported before environment bindings are resolved. An empty path loads
// defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Logger().Warn("failed to load .env file", zap.Error(err))
	}

	v := viper.New()
	setDefault(v)
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if conf.Database.DataStore == "" {
		conf.Database.DataStore = DataStoreFromEnv()
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// DataStoreFromEnv composes a postgres URL from DB_HOST, DB_PORT, DB_NAME, DB_USER and
// DB_PASSWORD.
func DataStoreFromEnv() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("DB_USER", "postgres"), os.Getenv("DB_PASSWORD")),
		Host:     net.JoinHostPort(getEnv("DB_HOST", "localhost"), getEnv("DB_PORT", "5432")),
		Path:     "/" + getEnv("DB_NAME", "bubbly"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		return storage.HasSupportedPrefix(fl.Field().String())
	}); err != nil {
		return errors.Trace(err)
	}

	// translate errors
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	if err := validate.RegisterTranslation("data_store", trans, func(ut ut.Translator) error {
		return ut.Add("data_store", "unsupported data storage backend", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T(fe.Tag(), fe.Field())
		return t
	}); err != nil {
		return errors.Trace(err)
	}

	err := validate.Struct(config)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, e := range validationErrors {
				return errors.New(e.Translate(trans))
			}
		}
		return errors.Trace(err)
	}
	return nil
}
