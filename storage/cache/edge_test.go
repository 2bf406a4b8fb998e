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

	"github.com/gorse-io/insight/base/json"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// getEdge reads the edge between x and y in any order from the backing store.
func getEdge(ctx context.Context, db Database, kind, x, y string) (SimilarityEdge, error) {
	if y < x {
		x, y = y, x
	}
	switch db := db.(type) {
	case *Redis:
		buf, err := db.client.HGet(ctx, db.edgesKey(kind), x+edgeSeparator+y).Result()
		if err == redis.Nil {
			return SimilarityEdge{}, errors.NotFoundf("edge %s/%s/%s", kind, x, y)
		} else if err != nil {
			return SimilarityEdge{}, errors.Trace(err)
		}
		var e redisEdge
		if err = json.UnmarshalString(buf, &e); err != nil {
			return SimilarityEdge{}, errors.Trace(err)
		}
		return SimilarityEdge{Kind: kind, A: x, B: y, Score: e.Score, Timestamp: e.Timestamp}, nil
	case *SQLDatabase:
		var rows []SQLEdge
		if err := db.gormDB.WithContext(ctx).Where("kind = ? AND a = ? AND b = ?", kind, x, y).Find(&rows).Error; err != nil {
			return SimilarityEdge{}, errors.Trace(err)
		}
		if len(rows) == 0 {
			return SimilarityEdge{}, errors.NotFoundf("edge %s/%s/%s", kind, x, y)
		}
		return SimilarityEdge{Kind: kind, A: x, B: y, Score: rows[0].Score, Timestamp: rows[0].Timestamp}, nil
	}
	return SimilarityEdge{}, errors.NotSupportedf("cache store %T", db)
}
