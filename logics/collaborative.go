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

	"github.com/gorse-io/insight/common/heap"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/samber/lo"
)

// PredictUserBased predicts the rating of a user on an item by the similarity
// weighted average of neighbor ratings. There is no prediction if none of the
// neighbors rated the item.
func PredictUserBased(ratings *dataset.RatingMatrix, neighbors []cache.Score, itemId string) (float64, bool) {
	if ratings == nil {
		return 0, false
	}
	var weightedSum, similaritySum float64
	for _, neighbor := range neighbors {
		if r := ratings.Get(neighbor.Id, itemId); r > 0 {
			weightedSum += r * neighbor.Score
			similaritySum += neighbor.Score
		}
	}
	if similaritySum <= 0 {
		return 0, false
	}
	return weightedSum / similaritySum, true
}

// UserBasedRecommend ranks items rated by the neighbors of a user but not by
// the user by their predicted ratings.
func UserBasedRecommend(ratings *dataset.RatingMatrix, neighbors []cache.Score, userId string, n int) []cache.Score {
	if ratings == nil || len(neighbors) == 0 {
		return nil
	}
	rated := ratings.UserRatings(userId)
	candidates := make(map[string]struct{})
	for _, neighbor := range neighbors {
		for itemId, r := range ratings.UserRatings(neighbor.Id) {
			if _, exist := rated[itemId]; !exist && r > 0 {
				candidates[itemId] = struct{}{}
			}
		}
	}
	filter := heap.NewTopKFilter[string, float64](n)
	for itemId := range candidates {
		if score, ok := PredictUserBased(ratings, neighbors, itemId); ok {
			filter.Push(itemId, score)
		}
	}
	return elemsToScores(filter.PopAll())
}

// ItemBasedRecommend ranks items similar to the items a user rated. The score
// of a candidate is Σ r_j·sim(i,j) / Σ sim(i,j) over rated items j whose
// similarity with the candidate is above the threshold.
func ItemBasedRecommend(ratings *dataset.RatingMatrix, itemNeighbors func(itemId string) []cache.Score, userId string, threshold float64, n int) []cache.Score {
	if ratings == nil {
		return nil
	}
	rated := ratings.UserRatings(userId)
	if len(rated) == 0 {
		return nil
	}
	weightedSums := make(map[string]float64)
	similaritySums := make(map[string]float64)
	ratedIds := lo.Keys(rated)
	sort.Strings(ratedIds)
	for _, ratedId := range ratedIds {
		r := rated[ratedId]
		for _, neighbor := range itemNeighbors(ratedId) {
			if _, exist := rated[neighbor.Id]; exist || neighbor.Score <= threshold {
				continue
			}
			weightedSums[neighbor.Id] += r * neighbor.Score
			similaritySums[neighbor.Id] += neighbor.Score
		}
	}
	filter := heap.NewTopKFilter[string, float64](n)
	for itemId, similaritySum := range similaritySums {
		if similaritySum > 0 {
			filter.Push(itemId, weightedSums[itemId]/similaritySum)
		}
	}
	return elemsToScores(filter.PopAll())
}
