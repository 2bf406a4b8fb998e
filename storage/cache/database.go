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

package cache

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gorse-io/insight/base/json"
	"github.com/gorse-io/insight/storage"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// UserNeighbors is sorted set of neighbors of a user.
	//  user_neighbors/{user_id}
	UserNeighbors = "user_neighbors"
	// ItemNeighbors is sorted set of collaborative neighbors of an item.
	//  item_neighbors/{item_id}
	ItemNeighbors = "item_neighbors"
	// SimilarItems is sorted set of content neighbors of an item.
	//  similar_items/{item_id}
	SimilarItems = "similar_items"
	// SimilarUsers is sorted set of users with similar preference profiles.
	//  similar_users/{user_id}
	SimilarUsers = "similar_users"
	// AspectSentiment is sorted set of items ranked by the sentiment on an aspect.
	//  aspect_sentiment/{aspect}
	AspectSentiment = "aspect_sentiment"
	// SentimentRank is sorted set of items ranked by overall sentiment.
	SentimentRank = "sentiment_rank"

	// ItemFeatures is the content feature vector of an item.
	//  item_features/{item_id}
	ItemFeatures = "item_features"
	// UserFeatures is the preference vector of a user.
	//  user_features/{user_id}
	UserFeatures = "user_features"
	// UserProfile is the preference profile of a user.
	//  user_profile/{user_id}
	UserProfile = "user_profile"
	// ItemSentiment is the sentiment summary of an item.
	//  item_sentiment/{item_id}
	ItemSentiment = "item_sentiment"
	// ItemTrend is the weekly sentiment trend points of an item.
	//  item_trend/{item_id}
	ItemTrend = "item_trend"
	// ItemRecentReviews is the latest analyzed reviews of an item inside the trend window.
	//  item_recent_reviews/{item_id}
	ItemRecentReviews = "item_recent_reviews"
	// LastUpdate is the time of the last recompute of an entity.
	//  last_update/{kind}/{id}
	LastUpdate = "last_update"
	// GlobalMeta stores engine wide state.
	//  global_meta/{name}
	GlobalMeta = "global_meta"

	LastFitFactorModelsTime = "last_fit_factor_models_time"
	LastUpdateSentimentTime = "last_update_sentiment_time"
)

// Key creates key for cache. Empty field will be ignored.
func Key(keys ...string) string {
	if len(keys) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(keys[0])
	for _, key := range keys[1:] {
		if key != "" {
			builder.WriteRune('/')
			builder.WriteString(key)
		}
	}
	return builder.String()
}

// Value is a named string.
type Value struct {
	name  string
	value string
}

func Time(name string, value time.Time) Value {
	return Value{name: name, value: value.UTC().Format(time.RFC3339Nano)}
}

// JSON encodes a value as JSON.
func JSON(name string, value any) (Value, error) {
	s, err := json.MarshalString(value)
	if err != nil {
		return Value{}, errors.Trace(err)
	}
	return Value{name: name, value: s}, nil
}

// ReturnValue is the result of Get. A missing value is reported as errors.NotFound.
type ReturnValue struct {
	value string
	err   error
}

func (r *ReturnValue) String() (string, error) {
	return r.value, r.err
}

// Time parses the value as a timestamp. A missing value yields the zero time.
func (r *ReturnValue) Time() (time.Time, error) {
	if r.err != nil {
		if errors.Is(r.err, errors.NotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, r.err
	}
	t, err := time.Parse(time.RFC3339Nano, r.value)
	if err != nil {
		return time.Time{}, errors.Trace(err)
	}
	return t, nil
}

// JSON decodes the value into v. A missing value is reported as errors.NotFound.
func (r *ReturnValue) JSON(v any) error {
	if r.err != nil {
		return r.err
	}
	return json.UnmarshalString(r.value, v)
}

// Score is an entity with a score in a sorted set.
type Score struct {
	Id    string  `json:"id"`
	Score float64 `json:"score"`
}

// SortScores sorts scores by score descending, then id ascending.
func SortScores(scores []Score) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Id < scores[j].Id
	})
}

// SimilarityEdge is a symmetric similarity between two entities of the same kind.
// A is always lower than B.
type SimilarityEdge struct {
	Kind      string
	A         string
	B         string
	Score     float64
	Timestamp time.Time
}

// NewSimilarityEdge creates an edge under canonical ordering with the score clamped to [-1, 1].
func NewSimilarityEdge(kind, x, y string, score float64, timestamp time.Time) SimilarityEdge {
	if y < x {
		x, y = y, x
	}
	return SimilarityEdge{
		Kind:      kind,
		A:         x,
		B:         y,
		Score:     max(-1, min(1, score)),
		Timestamp: timestamp.UTC(),
	}
}

type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error

	Get(ctx context.Context, name string) *ReturnValue
	Set(ctx context.Context, values ...Value) error

	// ReplaceScores atomically replaces all scores in a sorted set.
	ReplaceScores(ctx context.Context, collection, subset string, scores []Score) error
	// SearchScores returns scores in [begin, end) ordered by score descending, then id ascending.
	// end = -1 means the end of the set.
	SearchScores(ctx context.Context, collection, subset string, begin, end int) ([]Score, error)

	// AddEdges inserts or updates edges.
	AddEdges(ctx context.Context, edges []SimilarityEdge) error
	// DeleteEdges removes edges of a kind written before a time.
	DeleteEdges(ctx context.Context, kind string, before time.Time) error
}

// Open a connection to a database.
func Open(path, tablePrefix string) (Database, error) {
	if strings.HasPrefix(path, storage.RedisPrefix) || strings.HasPrefix(path, storage.RedissPrefix) {
		opt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := new(Redis)
		database.client = redis.NewClient(opt)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if err = redisotel.InstrumentTracing(database.client); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		name, err := storage.AppendMySQLParams(name, map[string]string{"parseTime": "true"})
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := &SQLDatabase{driver: data.MySQL, TablePrefix: storage.TablePrefix(tablePrefix)}
		if database.gormDB, err = gorm.Open(mysql.Open(name), storage.NewGORMConfig(tablePrefix)); err != nil {
			return nil, errors.Trace(err)
		}
		if database.client, err = database.gormDB.DB(); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := &SQLDatabase{driver: data.Postgres, TablePrefix: storage.TablePrefix(tablePrefix)}
		var err error
		if database.gormDB, err = gorm.Open(postgres.Open(path), storage.NewGORMConfig(tablePrefix)); err != nil {
			return nil, errors.Trace(err)
		}
		if database.client, err = database.gormDB.DB(); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		database := &SQLDatabase{driver: data.SQLite, TablePrefix: storage.TablePrefix(tablePrefix)}
		var err error
		if database.client, database.gormDB, err = data.OpenSQLite(path, tablePrefix); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}
