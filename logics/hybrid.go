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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/samber/lo"
)

const (
	ContentSource   = "content"
	UserBasedSource = "user_based"
	ItemBasedSource = "item_based"
	FactorSource    = "factor"
)

// RankedList is a ranked recommendation list of a source with its weight in a blend.
type RankedList struct {
	Source string
	Weight float64
	Scores []cache.Score
}

// Blend merges ranked lists. Excluded items are removed from each list first,
// then an item at rank r of a list of length l earns weight × (1 − r/l). The
// result is sorted by the sum of earnings descending, then by id, and
// truncated to n. A non-positive n keeps every item.
func Blend(lists []RankedList, exclude mapset.Set[string], n int) []cache.Score {
	scores := make(map[string]float64)
	for _, list := range lists {
		items := lo.Filter(list.Scores, func(s cache.Score, _ int) bool {
			return exclude == nil || !exclude.Contains(s.Id)
		})
		for rank, item := range items {
			scores[item.Id] += list.Weight * (1 - float64(rank)/float64(len(items)))
		}
	}
	result := lo.MapToSlice(scores, func(id string, score float64) cache.Score {
		return cache.Score{Id: id, Score: score}
	})
	cache.SortScores(result)
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

// CollaborativeWeights splits a weight between user-based and item-based
// sources.
func CollaborativeWeights(cfg config.CollaborativeConfig, weight float64) (float64, float64) {
	total := cfg.UserWeight + cfg.ItemWeight
	if total <= 0 {
		return weight / 2, weight / 2
	}
	return weight * cfg.UserWeight / total, weight * cfg.ItemWeight / total
}

// HybridWeights returns the weight of each source in the overall blend. The
// factor source joins when withFactor is set and weights are renormalized to
// sum to one.
func HybridWeights(cfg config.RecommendConfig, withFactor bool) map[string]float64 {
	userWeight, itemWeight := CollaborativeWeights(cfg.Collaborative, cfg.Hybrid.CollaborativeWeight)
	weights := map[string]float64{
		ContentSource:   cfg.Hybrid.ContentWeight,
		UserBasedSource: userWeight,
		ItemBasedSource: itemWeight,
	}
	if withFactor {
		weights[FactorSource] = cfg.Hybrid.FactorWeight
	}
	total := lo.Sum(lo.Values(weights))
	if total > 0 {
		for source := range weights {
			weights[source] /= total
		}
	}
	return weights
}
