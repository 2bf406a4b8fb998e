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
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/insight/common/heap"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// ErrInsufficientData is returned when there are not enough users or items to compute a result.
var ErrInsufficientData = errors.NotAssignedf("enough data")

type NeighborOptions struct {
	// MinCommon is the minimum number of co-rated columns.
	MinCommon int
	// Threshold is the exclusive lower bound of kept similarities.
	Threshold float64
	// K is the maximum number of neighbors per row.
	K int
}

func UserNeighborOptions(cfg config.CollaborativeConfig) NeighborOptions {
	return NeighborOptions{
		MinCommon: cfg.MinCommonItems,
		Threshold: cfg.SimilarityThreshold,
		K:         cfg.UserNeighbors,
	}
}

func ItemNeighborOptions(cfg config.CollaborativeConfig) NeighborOptions {
	return NeighborOptions{
		MinCommon: cfg.MinCommonItems,
		Threshold: cfg.SimilarityThreshold,
		K:         cfg.ItemNeighbors,
	}
}

// NeighborSearch finds similar rows of a rating matrix. Each row is encoded as a
// bitset of its positive columns and each column as a bitset of its positive
// rows, so candidates of a row are the union of the columns it rated and the
// co-rated columns of a pair are a bitset intersection.
//
// Search item neighbors by passing the transposed matrix.
type NeighborSearch struct {
	ratings *dataset.RatingMatrix
	rows    []*bitset.BitSet
	columns []*bitset.BitSet
	options NeighborOptions
}

func NewNeighborSearch(ratings *dataset.RatingMatrix, options NeighborOptions) *NeighborSearch {
	s := &NeighborSearch{ratings: ratings, options: options}
	if ratings == nil {
		return s
	}
	nRows, nColumns := ratings.CountUsers(), ratings.CountItems()
	s.rows = make([]*bitset.BitSet, nRows)
	s.columns = make([]*bitset.BitSet, nColumns)
	for j := range s.columns {
		s.columns[j] = bitset.New(uint(nRows))
	}
	for i := range s.rows {
		s.rows[i] = bitset.New(uint(nColumns))
		for j, r := range ratings.UserRow(i) {
			if r > 0 {
				s.rows[i].Set(uint(j))
				s.columns[j].Set(uint(i))
			}
		}
	}
	return s
}

// Count returns the number of rows.
func (s *NeighborSearch) Count() int {
	return len(s.rows)
}

// Similarity is the cosine between two rows restricted to co-rated columns. It
// is 0 and false if the rows share fewer than MinCommon columns.
func (s *NeighborSearch) Similarity(a, b int) (float64, bool) {
	if a < 0 || b < 0 || a >= len(s.rows) || b >= len(s.rows) {
		return 0, false
	}
	if int(s.rows[a].IntersectionCardinality(s.rows[b])) < max(s.options.MinCommon, 1) {
		return 0, false
	}
	common := s.rows[a].Intersection(s.rows[b])
	rowA, rowB := s.ratings.UserRow(a), s.ratings.UserRow(b)
	var dot, normA, normB float64
	for j, ok := common.NextSet(0); ok; j, ok = common.NextSet(j + 1) {
		x, y := rowA[int(j)], rowB[int(j)]
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return clampSimilarity(dot / (math.Sqrt(normA) * math.Sqrt(normB))), true
}

// Neighbors returns the top K rows most similar to a row with similarity above the threshold.
func (s *NeighborSearch) Neighbors(row int) []cache.Score {
	if row < 0 || row >= len(s.rows) {
		return nil
	}
	candidates := bitset.New(uint(len(s.rows)))
	for j, ok := s.rows[row].NextSet(0); ok; j, ok = s.rows[row].NextSet(j + 1) {
		candidates.InPlaceUnion(s.columns[j])
	}
	candidates.Clear(uint(row))
	filter := heap.NewTopKFilter[string, float64](s.options.K)
	for c, ok := candidates.NextSet(0); ok; c, ok = candidates.NextSet(c + 1) {
		if score, valid := s.Similarity(row, int(c)); valid && score > s.options.Threshold {
			id, _ := s.ratings.UserDict().String(int(c))
			filter.Push(id, score)
		}
	}
	return elemsToScores(filter.PopAll())
}

// NeighborsOf returns neighbors of a row by id. An unknown id has no neighbors.
func (s *NeighborSearch) NeighborsOf(id string) []cache.Score {
	if s.ratings == nil {
		return nil
	}
	return s.Neighbors(s.ratings.UserDict().Id(id))
}

// UserSimilarity computes the similarity between two users of a rating matrix.
func UserSimilarity(ratings *dataset.RatingMatrix, userA, userB string, minCommon int) float64 {
	if ratings == nil {
		return 0
	}
	s := NewNeighborSearch(ratings, NeighborOptions{MinCommon: minCommon})
	score, _ := s.Similarity(ratings.UserDict().Id(userA), ratings.UserDict().Id(userB))
	return score
}

func clampSimilarity(score float64) float64 {
	return max(-1, min(1, score))
}

func elemsToScores(elems []heap.Elem[string, float64]) []cache.Score {
	return lo.Map(elems, func(elem heap.Elem[string, float64], _ int) cache.Score {
		return cache.Score{Id: elem.Value, Score: elem.Weight}
	})
}
