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

package logics

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/samber/lo"
)

// Trending returns products flagged trending from the newest to the oldest,
// ties by id. The score is the creation time in Unix seconds.
func Trending(products []data.Product, exclude mapset.Set[string], n int) []cache.Score {
	trending := lo.Filter(products, func(p data.Product, _ int) bool {
		return p.IsTrending && (exclude == nil || !exclude.Contains(p.ItemId))
	})
	sort.Slice(trending, func(i, j int) bool {
		if !trending[i].CreatedAt.Equal(trending[j].CreatedAt) {
			return trending[i].CreatedAt.After(trending[j].CreatedAt)
		}
		return trending[i].ItemId < trending[j].ItemId
	})
	if n > 0 && len(trending) > n {
		trending = trending[:n]
	}
	return lo.Map(trending, func(p data.Product, _ int) cache.Score {
		return cache.Score{Id: p.ItemId, Score: float64(p.CreatedAt.Unix())}
	})
}
