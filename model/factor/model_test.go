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

package factor

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/model"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func newRatings(cells map[string]map[string]float64) *dataset.RatingMatrix {
	var interactions []data.Interaction
	for userId, row := range cells {
		for itemId, rating := range row {
			// view has base weight 1 so the rating equals the weight
			interactions = append(interactions, data.Interaction{
				UserId:    userId,
				ItemId:    itemId,
				Type:      string(dataset.View),
				Weight:    rating,
				Timestamp: now,
			})
		}
	}
	return dataset.BuildRatingMatrix(interactions, now, dataset.DefaultDecayRate)
}

func fullRankRatings() *dataset.RatingMatrix {
	return newRatings(map[string]map[string]float64{
		"u1": {"p1": 5, "p2": 1},
		"u2": {"p1": 5, "p3": 3},
		"u3": {"p2": 1, "p3": 3},
	})
}

func isSorted(scores []cache.Score) bool {
	return sort.SliceIsSorted(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Id < scores[j].Id
	})
}

func TestInsufficientData(t *testing.T) {
	ctx := context.Background()
	oneUser := newRatings(map[string]map[string]float64{
		"u1": {"p1": 1, "p2": 2, "p3": 3},
	})
	oneItem := newRatings(map[string]map[string]float64{
		"u1": {"p1": 1},
		"u2": {"p1": 2},
		"u3": {"p1": 3},
	})
	for _, name := range []string{SGDName, SVDName, NMFName, HybridName} {
		for _, ratings := range []*dataset.RatingMatrix{oneUser, oneItem, newRatings(nil), nil} {
			m, err := NewModel(name, config.GetDefaultConfig().Recommend.Factor)
			assert.NoError(t, err)
			assert.False(t, m.Fit(ctx, ratings), name)
			assert.True(t, m.Invalid())
			assert.Empty(t, m.Recommend("u1", 10))
			assert.Zero(t, m.Predict("u1", "p1"))
		}
	}
	// configured factors below two
	m := NewSVD(model.Params{model.NFactors: 1})
	assert.False(t, m.Fit(ctx, fullRankRatings()))
}

func TestRefitInsufficientData(t *testing.T) {
	ctx := context.Background()
	oneUser := newRatings(map[string]map[string]float64{
		"u1": {"p1": 1, "p2": 2, "p3": 3},
	})
	cfg := config.GetDefaultConfig().Recommend.Factor
	cfg.NFactors = 2
	cfg.NEpochs = 5
	cfg.NMFIterations = 5
	for _, name := range []string{SGDName, SVDName, NMFName, HybridName} {
		m, err := NewModel(name, cfg)
		assert.NoError(t, err)
		assert.True(t, m.Fit(ctx, fullRankRatings()), name)
		assert.NotEmpty(t, m.Recommend("u1", 10), name)
		assert.False(t, m.Fit(ctx, oneUser), name)
		assert.True(t, m.Invalid(), name)
		assert.Empty(t, m.Recommend("u1", 10), name)
		assert.Zero(t, m.Predict("u1", "p1"), name)
	}
}

func TestNewModel(t *testing.T) {
	_, err := NewModel("als", config.GetDefaultConfig().Recommend.Factor)
	assert.True(t, errors.Is(err, errors.NotSupported))
	m, err := NewModel(HybridName, config.GetDefaultConfig().Recommend.Factor)
	assert.NoError(t, err)
	assert.IsType(t, &Hybrid{}, m)
}

func TestSGD(t *testing.T) {
	ctx := context.Background()
	ratings := fullRankRatings()
	params := model.Params{
		model.NFactors:    3,
		model.NEpochs:     500,
		model.Lr:          0.05,
		model.Reg:         0.01,
		model.RandomState: 1,
	}
	m := NewSGD(params)
	assert.True(t, m.Invalid())
	assert.True(t, m.Fit(ctx, ratings))
	assert.False(t, m.Invalid())
	// better than predicting zero everywhere
	baseline := (25.0 + 1 + 25 + 9 + 1 + 9) / 6
	assert.Less(t, m.meanSquaredError(ratings), baseline)
	assert.Greater(t, m.Predict("u1", "p1"), m.Predict("u1", "p2"))
	for _, userId := range []string{"u1", "u2", "u3"} {
		for _, itemId := range []string{"p1", "p2", "p3"} {
			assert.GreaterOrEqual(t, m.Predict(userId, itemId), 0.0)
		}
	}
	assert.Zero(t, m.Predict("u4", "p1"))
	assert.Zero(t, m.Predict("u1", "p4"))
	recommendations := m.Recommend("u1", 2)
	assert.Len(t, recommendations, 2)
	assert.True(t, isSorted(recommendations))
	assert.Len(t, m.Recommend("u1", 0), 3)
	assert.Empty(t, m.Recommend("u4", 10))

	// deterministic with the same seed
	other := NewSGD(params)
	assert.True(t, other.Fit(ctx, ratings))
	assert.Equal(t, m.Predict("u2", "p2"), other.Predict("u2", "p2"))

	// cancelled
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, NewSGD(params).Fit(cancelled, ratings))
}

func TestSVD(t *testing.T) {
	ratings := fullRankRatings()
	m := NewSVD(model.Params{model.NFactors: 50})
	assert.True(t, m.Fit(context.Background(), ratings))
	rows, cols := m.UserFactor.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)
	// a full rank decomposition reconstructs the matrix
	assert.InDelta(t, 5, m.Predict("u1", "p1"), 1e-6)
	assert.InDelta(t, 1, m.Predict("u1", "p2"), 1e-6)
	assert.InDelta(t, 3, m.Predict("u2", "p3"), 1e-6)
	assert.InDelta(t, 0, m.Predict("u1", "p3"), 1e-6)
	assert.True(t, isSorted(m.Recommend("u2", 3)))
	assert.Equal(t, "p1", m.Recommend("u2", 1)[0].Id)
}

func TestNMF(t *testing.T) {
	ratings := fullRankRatings()
	m := NewNMF(model.Params{model.NFactors: 2, model.NIterations: 200, model.RandomState: 42})
	assert.True(t, m.Fit(context.Background(), ratings))
	for _, factor := range []*mat.Dense{m.UserFactor, m.ItemFactor} {
		rows, cols := factor.Dims()
		assert.Equal(t, 2, cols)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				assert.GreaterOrEqual(t, factor.At(i, j), 0.0)
			}
		}
	}
	baseline := (25.0 + 1 + 25 + 9 + 1 + 9) / 6
	assert.Less(t, m.meanSquaredError(ratings), baseline)
	assert.True(t, isSorted(m.Recommend("u3", 3)))
}

func TestRecommendTieBreak(t *testing.T) {
	ratings := newRatings(map[string]map[string]float64{
		"u1": {"p1": 1, "p2": 1, "p3": 1},
	})
	m := &BaseMatrixFactorization{
		UserIndex:  ratings.UserDict(),
		ItemIndex:  ratings.ItemDict(),
		UserFactor: mat.NewDense(1, 2, []float64{1, 1}),
		ItemFactor: mat.NewDense(3, 2, []float64{1, 0, 2, 0, 0, 1}),
	}
	assert.Equal(t, []cache.Score{{Id: "p2", Score: 2}, {Id: "p1", Score: 1}, {Id: "p3", Score: 1}}, m.Recommend("u1", 10))
	// negative scores are clamped
	m.UserFactor = mat.NewDense(1, 2, []float64{-1, 0})
	assert.Zero(t, m.Predict("u1", "p1"))
	assert.Equal(t, []cache.Score{{Id: "p1", Score: 0}, {Id: "p2", Score: 0}, {Id: "p3", Score: 0}}, m.Recommend("u1", 3))
	for _, s := range m.Recommend("u1", 3) {
		assert.Equal(t, m.Predict("u1", s.Id), s.Score)
	}
}

func TestHybrid(t *testing.T) {
	ctx := context.Background()
	ratings := fullRankRatings()
	params := model.Params{model.NFactors: 3, model.NEpochs: 50, model.NIterations: 50, model.RandomState: 3}
	m := NewHybrid(params, 0.4, 0.3, 0.3)
	assert.True(t, m.Invalid())
	assert.True(t, m.Fit(ctx, ratings))
	assert.False(t, m.Invalid())
	recommendations := m.Recommend("u1", 3)
	assert.NotEmpty(t, recommendations)
	assert.LessOrEqual(t, len(recommendations), 3)
	assert.True(t, isSorted(recommendations))
	assert.GreaterOrEqual(t, m.Predict("u1", "p1"), 0.0)

	// blended scores are weighted sums
	svd := NewSVD(params)
	assert.True(t, svd.Fit(ctx, ratings))
	only := &Hybrid{fitted: []weightedModel{{name: SVDName, model: svd, weight: 0.5}}}
	assert.InDelta(t, 0.5*svd.Predict("u1", "p1"), only.Predict("u1", "p1"), 1e-9)
	expected := svd.Recommend("u1", 3)
	for i, s := range only.Recommend("u1", 3) {
		assert.Equal(t, expected[i].Id, s.Id)
		assert.InDelta(t, 0.5*expected[i].Score, s.Score, 1e-9)
	}
}
