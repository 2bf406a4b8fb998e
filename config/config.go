// Copyright 2026 gorse Project Authors
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
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Config is the configuration for the engine.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Master    MasterConfig    `mapstructure:"master"`
	Server    ServerConfig    `mapstructure:"server"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	CacheStore  string `mapstructure:"cache_store" validate:"required,cache_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// MasterConfig is the configuration for the batch recompute loop.
type MasterConfig struct {
	NumJobs         int           `mapstructure:"n_jobs" validate:"gt=0"`
	CheckPeriod     time.Duration `mapstructure:"check_period" validate:"gt=0"`
	StalenessWindow time.Duration `mapstructure:"staleness_window" validate:"gt=0"`
}

// ServerConfig is the configuration for the query API.
type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port" validate:"gte=0"`
	APIKey      string        `mapstructure:"api_key"`
	DefaultN    int           `mapstructure:"default_n" validate:"gt=0"`
	CacheExpire time.Duration `mapstructure:"cache_expire" validate:"gte=0"`
}

type RecommendConfig struct {
	DecayRate     float64             `mapstructure:"decay_rate" validate:"gt=0,lte=1"`
	Collaborative CollaborativeConfig `mapstructure:"collaborative"`
	Factor        FactorConfig        `mapstructure:"factor"`
	Content       ContentConfig       `mapstructure:"content"`
	Preference    PreferenceConfig    `mapstructure:"preference"`
	Hybrid        HybridConfig        `mapstructure:"hybrid"`
}

type CollaborativeConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gte=0,lt=1"`
	MinCommonItems      int     `mapstructure:"min_common_items" validate:"gte=1"`
	UserNeighbors       int     `mapstructure:"user_neighbors" validate:"gt=0"`
	ItemNeighbors       int     `mapstructure:"item_neighbors" validate:"gt=0"`
	UserWeight          float64 `mapstructure:"user_weight" validate:"gte=0"`
	ItemWeight          float64 `mapstructure:"item_weight" validate:"gte=0"`
}

type FactorConfig struct {
	NFactors      int     `mapstructure:"n_factors" validate:"gt=0"`
	NEpochs       int     `mapstructure:"n_epochs" validate:"gt=0"`
	Lr            float64 `mapstructure:"lr" validate:"gt=0"`
	Reg           float64 `mapstructure:"reg" validate:"gte=0"`
	InitStdDev    float64 `mapstructure:"init_std" validate:"gt=0"`
	NMFIterations int     `mapstructure:"nmf_iterations" validate:"gt=0"`
	RandomState   int64   `mapstructure:"random_state"`
	SGDWeight     float64 `mapstructure:"sgd_weight" validate:"gte=0"`
	SVDWeight     float64 `mapstructure:"svd_weight" validate:"gte=0"`
	NMFWeight     float64 `mapstructure:"nmf_weight" validate:"gte=0"`
}

type ContentConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gte=0,lt=1"`
	SimilarItems        int     `mapstructure:"similar_items" validate:"gt=0"`
	SimilarUsers        int     `mapstructure:"similar_users" validate:"gt=0"`
}

type PreferenceConfig struct {
	TopCategories int     `mapstructure:"top_categories" validate:"gt=0"`
	TopBrands     int     `mapstructure:"top_brands" validate:"gt=0"`
	MinScore      float64 `mapstructure:"min_score" validate:"gte=0"`
}

// HybridConfig controls the overall hybrid ranking. FactorMethod names the
// latent factor model joining the blend; it is left out when empty.
type HybridConfig struct {
	ContentWeight       float64 `mapstructure:"content_weight" validate:"gte=0"`
	CollaborativeWeight float64 `mapstructure:"collaborative_weight" validate:"gte=0"`
	FactorWeight        float64 `mapstructure:"factor_weight" validate:"gte=0"`
	FactorMethod        string  `mapstructure:"factor_method" validate:"omitempty,oneof=sgd svd nmf factor"`
	CandidateMultiplier int     `mapstructure:"candidate_multiplier" validate:"gte=1"`
}

type SentimentConfig struct {
	NeutralThreshold  float64       `mapstructure:"neutral_threshold" validate:"gte=0,lt=1"`
	TrendWindow       time.Duration `mapstructure:"trend_window" validate:"gt=0"`
	TrendThreshold    float64       `mapstructure:"trend_threshold" validate:"gte=0"`
	MinAspectMentions int           `mapstructure:"min_aspect_mentions" validate:"gte=1"`
	RecentReviews     int           `mapstructure:"recent_reviews" validate:"gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Master: MasterConfig{
			NumJobs:         1,
			CheckPeriod:     time.Minute,
			StalenessWindow: 7 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8087,
			DefaultN:    10,
			CacheExpire: 10 * time.Second,
		},
		Recommend: RecommendConfig{
			DecayRate: 0.95,
			Collaborative: CollaborativeConfig{
				SimilarityThreshold: 0.1,
				MinCommonItems:      2,
				UserNeighbors:       50,
				ItemNeighbors:       20,
				UserWeight:          0.6,
				ItemWeight:          0.4,
			},
			Factor: FactorConfig{
				NFactors:      50,
				NEpochs:       100,
				Lr:            0.01,
				Reg:           0.1,
				InitStdDev:    0.1,
				NMFIterations: 200,
				RandomState:   42,
				SGDWeight:     0.4,
				SVDWeight:     0.3,
				NMFWeight:     0.3,
			},
			Content: ContentConfig{
				SimilarityThreshold: 0.1,
				SimilarItems:        20,
				SimilarUsers:        10,
			},
			Preference: PreferenceConfig{
				TopCategories: 5,
				TopBrands:     3,
				MinScore:      0.1,
			},
			Hybrid: HybridConfig{
				ContentWeight:       0.6,
				CollaborativeWeight: 0.4,
				FactorWeight:        0.4,
				CandidateMultiplier: 2,
			},
		},
		Sentiment: SentimentConfig{
			NeutralThreshold:  0.1,
			TrendWindow:       30 * 24 * time.Hour,
			TrendThreshold:    0.01,
			MinAspectMentions: 3,
			RecentReviews:     10,
		},
		Tracing: TracingConfig{
			Exporter: "otlp",
			Sampler:  "always",
			Ratio:    1,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [master]
	viper.SetDefault("master.n_jobs", defaultConfig.Master.NumJobs)
	viper.SetDefault("master.check_period", defaultConfig.Master.CheckPeriod)
	viper.SetDefault("master.staleness_window", defaultConfig.Master.StalenessWindow)
	// [server]
	viper.SetDefault("server.host", defaultConfig.Server.Host)
	viper.SetDefault("server.port", defaultConfig.Server.Port)
	viper.SetDefault("server.default_n", defaultConfig.Server.DefaultN)
	viper.SetDefault("server.cache_expire", defaultConfig.Server.CacheExpire)
	// [recommend]
	viper.SetDefault("recommend.decay_rate", defaultConfig.Recommend.DecayRate)
	// [recommend.collaborative]
	viper.SetDefault("recommend.collaborative.similarity_threshold", defaultConfig.Recommend.Collaborative.SimilarityThreshold)
	viper.SetDefault("recommend.collaborative.min_common_items", defaultConfig.Recommend.Collaborative.MinCommonItems)
	viper.SetDefault("recommend.collaborative.user_neighbors", defaultConfig.Recommend.Collaborative.UserNeighbors)
	viper.SetDefault("recommend.collaborative.item_neighbors", defaultConfig.Recommend.Collaborative.ItemNeighbors)
	viper.SetDefault("recommend.collaborative.user_weight", defaultConfig.Recommend.Collaborative.UserWeight)
	viper.SetDefault("recommend.collaborative.item_weight", defaultConfig.Recommend.Collaborative.ItemWeight)
	// [recommend.factor]
	viper.SetDefault("recommend.factor.n_factors", defaultConfig.Recommend.Factor.NFactors)
	viper.SetDefault("recommend.factor.n_epochs", defaultConfig.Recommend.Factor.NEpochs)
	viper.SetDefault("recommend.factor.lr", defaultConfig.Recommend.Factor.Lr)
	viper.SetDefault("recommend.factor.reg", defaultConfig.Recommend.Factor.Reg)
	viper.SetDefault("recommend.factor.init_std", defaultConfig.Recommend.Factor.InitStdDev)
	viper.SetDefault("recommend.factor.nmf_iterations", defaultConfig.Recommend.Factor.NMFIterations)
	viper.SetDefault("recommend.factor.random_state", defaultConfig.Recommend.Factor.RandomState)
	viper.SetDefault("recommend.factor.sgd_weight", defaultConfig.Recommend.Factor.SGDWeight)
	viper.SetDefault("recommend.factor.svd_weight", defaultConfig.Recommend.Factor.SVDWeight)
	viper.SetDefault("recommend.factor.nmf_weight", defaultConfig.Recommend.Factor.NMFWeight)
	// [recommend.content]
	viper.SetDefault("recommend.content.similarity_threshold", defaultConfig.Recommend.Content.SimilarityThreshold)
	viper.SetDefault("recommend.content.similar_items", defaultConfig.Recommend.Content.SimilarItems)
	viper.SetDefault("recommend.content.similar_users", defaultConfig.Recommend.Content.SimilarUsers)
	// [recommend.preference]
	viper.SetDefault("recommend.preference.top_categories", defaultConfig.Recommend.Preference.TopCategories)
	viper.SetDefault("recommend.preference.top_brands", defaultConfig.Recommend.Preference.TopBrands)
	viper.SetDefault("recommend.preference.min_score", defaultConfig.Recommend.Preference.MinScore)
	// [recommend.hybrid]
	viper.SetDefault("recommend.hybrid.content_weight", defaultConfig.Recommend.Hybrid.ContentWeight)
	viper.SetDefault("recommend.hybrid.collaborative_weight", defaultConfig.Recommend.Hybrid.CollaborativeWeight)
	viper.SetDefault("recommend.hybrid.factor_weight", defaultConfig.Recommend.Hybrid.FactorWeight)
	viper.SetDefault("recommend.hybrid.factor_method", defaultConfig.Recommend.Hybrid.FactorMethod)
	viper.SetDefault("recommend.hybrid.candidate_multiplier", defaultConfig.Recommend.Hybrid.CandidateMultiplier)
	// [sentiment]
	viper.SetDefault("sentiment.neutral_threshold", defaultConfig.Sentiment.NeutralThreshold)
	viper.SetDefault("sentiment.trend_window", defaultConfig.Sentiment.TrendWindow)
	viper.SetDefault("sentiment.trend_threshold", defaultConfig.Sentiment.TrendThreshold)
	viper.SetDefault("sentiment.min_aspect_mentions", defaultConfig.Sentiment.MinAspectMentions)
	viper.SetDefault("sentiment.recent_reviews", defaultConfig.Sentiment.RecentReviews)
	// [tracing]
	viper.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	viper.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	viper.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type configBinding struct {
	key string
	env string
}

// LoadConfig loads configuration from toml file.
func LoadConfig(path string) (*Config, error) {
	// set default config
	setDefault()

	// bind environment bindings
	bindings := []configBinding{
		{"database.cache_store", "INSIGHT_CACHE_STORE"},
		{"database.data_store", "INSIGHT_DATA_STORE"},
		{"database.table_prefix", "INSIGHT_TABLE_PREFIX"},
		{"master.n_jobs", "INSIGHT_MASTER_JOBS"},
		{"server.host", "INSIGHT_SERVER_HOST"},
		{"server.port", "INSIGHT_SERVER_PORT"},
		{"server.api_key", "INSIGHT_SERVER_API_KEY"},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// load config file, environment variables only if no path
	if path != "" {
		viper.SetConfigType("toml")
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// unmarshal config file
	var conf Config
	if err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}
