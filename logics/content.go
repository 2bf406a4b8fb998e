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
	"github.com/gorse-io/insight/common/heap"
	"github.com/gorse-io/insight/storage/cache"
)

// ContentRecommend ranks items whose feature vectors are similar to a query
// vector in item space. Items in exclude and items not above the threshold are
// skipped.
func ContentRecommend(query FeatureVector, features map[string]FeatureVector, exclude mapset.Set[string], threshold float64, n int) []cache.Score {
	if len(query) == 0 {
		return nil
	}
	filter := heap.NewTopKFilter[string, float64](n)
	for itemId, vector := range features {
		if exclude != nil && exclude.Contains(itemId) {
			continue
		}
		if score := Similarity(query, vector); score > threshold {
			filter.Push(itemId, score)
		}
	}
	return elemsToScores(filter.PopAll())
}

// SimilarItems ranks items by the content similarity with an item.
func SimilarItems(itemId string, features map[string]FeatureVector, threshold float64, n int) []cache.Score {
	vector, ok := features[itemId]
	if !ok {
		return nil
	}
	return ContentRecommend(vector, features, mapset.NewSet(itemId), threshold, n)
}
