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

	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/common/heap"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/model"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	SGDName    = "sgd"
	SVDName    = "svd"
	NMFName    = "nmf"
	HybridName = "factor"
)

// Model is a latent factor model fitted on an implicit rating matrix. Fit
// discards the result of a previous fit.
type Model interface {
	// SetParams sets hyper-parameters.
	SetParams(params model.Params)
	// GetParams returns hyper-parameters.
	GetParams() model.Params
	// Fit the model. It returns false if there are fewer than two factors to learn.
	Fit(ctx context.Context, ratings *dataset.RatingMatrix) bool
	// Predict returns the non-negative predicted rating of a user on an item.
	Predict(userId, itemId string) float64
	// Recommend ranks all items for a user by score descending, ties by item id. A
	// non-positive n returns every item.
	Recommend(userId string, n int) []cache.Score
	// Invalid returns true if the model has not been fitted.
	Invalid() bool
}

// NewModel creates an unfitted model by name.
func NewModel(name string, cfg config.FactorConfig) (Model, error) {
	params := model.NewParamsFromConfig(cfg)
	switch name {
	case SGDName:
		return NewSGD(params), nil
	case SVDName:
		return NewSVD(params), nil
	case NMFName:
		return NewNMF(params), nil
	case HybridName:
		return NewHybrid(params, cfg.SGDWeight, cfg.SVDWeight, cfg.NMFWeight), nil
	}
	return nil, errors.NotSupportedf("factor model %q", name)
}

// BaseMatrixFactorization stores user factors (n_users × k) and item factors (n_items × k).
type BaseMatrixFactorization struct {
	model.BaseModel
	UserIndex  *dataset.FreqDict
	ItemIndex  *dataset.FreqDict
	UserFactor *mat.Dense
	ItemFactor *mat.Dense
}

// numFactors returns min(n_users, n_items, configured factors).
func numFactors(ratings *dataset.RatingMatrix, configured int) int {
	if ratings == nil {
		return 0
	}
	return min(ratings.CountUsers(), ratings.CountItems(), configured)
}

func (m *BaseMatrixFactorization) Invalid() bool {
	return m == nil ||
		m.UserIndex == nil ||
		m.ItemIndex == nil ||
		m.UserFactor == nil ||
		m.ItemFactor == nil
}

func (m *BaseMatrixFactorization) internalPredict(userIndex, itemIndex int) float64 {
	return floats.Dot(m.UserFactor.RawRowView(userIndex), m.ItemFactor.RawRowView(itemIndex))
}

func (m *BaseMatrixFactorization) Predict(userId, itemId string) float64 {
	if m.Invalid() {
		return 0
	}
	userIndex := m.UserIndex.Id(userId)
	itemIndex := m.ItemIndex.Id(itemId)
	if userIndex < 0 || itemIndex < 0 {
		return 0
	}
	return max(0, m.internalPredict(userIndex, itemIndex))
}

func (m *BaseMatrixFactorization) Recommend(userId string, n int) []cache.Score {
	if m.Invalid() {
		return nil
	}
	userIndex := m.UserIndex.Id(userId)
	if userIndex < 0 {
		return nil
	}
	filter := heap.NewTopKFilter[string, float64](n)
	for itemIndex, itemId := range m.ItemIndex.Strings() {
		filter.Push(itemId, max(0, m.internalPredict(userIndex, itemIndex)))
	}
	return elemsToScores(filter.PopAll())
}

// meanSquaredError over observed cells.
func (m *BaseMatrixFactorization) meanSquaredError(ratings *dataset.RatingMatrix) float64 {
	var sum float64
	var count int
	for userIndex := 0; userIndex < ratings.CountUsers(); userIndex++ {
		for itemIndex, r := range ratings.UserRow(userIndex) {
			if r > 0 {
				e := r - m.internalPredict(userIndex, itemIndex)
				sum += e * e
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// reset drops the factors of a previous fit.
func (m *BaseMatrixFactorization) reset() {
	m.UserIndex, m.ItemIndex = nil, nil
	m.UserFactor, m.ItemFactor = nil, nil
}

func (m *BaseMatrixFactorization) init(ratings *dataset.RatingMatrix) {
	m.UserIndex = ratings.UserDict()
	m.ItemIndex = ratings.ItemDict()
}

func elemsToScores(elems []heap.Elem[string, float64]) []cache.Score {
	scores := make([]cache.Score, len(elems))
	for i, elem := range elems {
		scores[i] = cache.Score{Id: elem.Value, Score: elem.Weight}
	}
	return scores
}

func logInsufficientData(name string, ratings *dataset.RatingMatrix) {
	fields := []zap.Field{zap.String("model", name)}
	if ratings != nil {
		fields = append(fields, zap.Int("n_users", ratings.CountUsers()), zap.Int("n_items", ratings.CountItems()))
	}
	log.Logger().Info("insufficient data to fit factor model", fields...)
}
