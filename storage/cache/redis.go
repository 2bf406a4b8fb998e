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
	"time"

	"github.com/gorse-io/insight/base/json"
	"github.com/gorse-io/insight/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const edgeSeparator = "\x1f"

// Redis stores materialized state in Redis. Values are strings, sorted sets
// are ZSETs and edges of a kind live in one hash keyed by the canonical pair.
type Redis struct {
	storage.TablePrefix
	client *redis.Client
}

type redisEdge struct {
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Purge() error {
	ctx := context.Background()
	iter := r.client.Scan(ctx, 0, string(r.TablePrefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(iter.Err())
}

func (r *Redis) Get(ctx context.Context, name string) *ReturnValue {
	val, err := r.client.Get(ctx, r.Key(name)).Result()
	if err != nil {
		if err == redis.Nil {
			return &ReturnValue{err: errors.NotFoundf("value %s", name)}
		}
		return &ReturnValue{err: errors.Trace(err)}
	}
	return &ReturnValue{value: val}
}

func (r *Redis) Set(ctx context.Context, values ...Value) error {
	if len(values) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, v := range values {
			pipe.Set(ctx, r.Key(v.name), v.value, 0)
		}
		return nil
	})
	return errors.Trace(err)
}

func (r *Redis) scoresKey(collection, subset string) string {
	return r.Key(Key(collection, subset))
}

func toMembers(scores []Score) []redis.Z {
	return lo.Map(scores, func(s Score, _ int) redis.Z {
		return redis.Z{Score: s.Score, Member: s.Id}
	})
}

func (r *Redis) ReplaceScores(ctx context.Context, collection, subset string, scores []Score) error {
	key := r.scoresKey(collection, subset)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(scores) > 0 {
			pipe.ZAdd(ctx, key, toMembers(scores)...)
		}
		return nil
	})
	return errors.Trace(err)
}

// SearchScores reads the whole set since ZREVRANGE orders ties by member descending.
func (r *Redis) SearchScores(ctx context.Context, collection, subset string, begin, end int) ([]Score, error) {
	members, err := r.client.ZRangeWithScores(ctx, r.scoresKey(collection, subset), 0, -1).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := lo.Map(members, func(z redis.Z, _ int) Score {
		return Score{Id: z.Member.(string), Score: z.Score}
	})
	SortScores(scores)
	if begin >= len(scores) {
		return nil, nil
	}
	if end < 0 || end > len(scores) {
		end = len(scores)
	}
	if end <= begin {
		return nil, nil
	}
	return scores[begin:end], nil
}

func (r *Redis) edgesKey(kind string) string {
	return r.Key(Key("similarity_edges", kind))
}

func (r *Redis) AddEdges(ctx context.Context, edges []SimilarityEdge) error {
	if len(edges) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range edges {
			e = NewSimilarityEdge(e.Kind, e.A, e.B, e.Score, e.Timestamp)
			buf, err := json.MarshalString(redisEdge{Score: e.Score, Timestamp: e.Timestamp})
			if err != nil {
				return errors.Trace(err)
			}
			pipe.HSet(ctx, r.edgesKey(e.Kind), e.A+edgeSeparator+e.B, buf)
		}
		return nil
	})
	return errors.Trace(err)
}

func (r *Redis) DeleteEdges(ctx context.Context, kind string, before time.Time) error {
	fields, err := r.client.HGetAll(ctx, r.edgesKey(kind)).Result()
	if err != nil {
		return errors.Trace(err)
	}
	var stale []string
	for field, value := range fields {
		var e redisEdge
		if err = json.UnmarshalString(value, &e); err != nil {
			return errors.Trace(err)
		}
		if e.Timestamp.Before(before) {
			stale = append(stale, field)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	return errors.Trace(r.client.HDel(ctx, r.edgesKey(kind), stale...).Err())
}
