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
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/model"
	"github.com/gorse-io/insight/storage/cache"
	"go.uber.org/zap"
)

type weightedModel struct {
	name   string
	model  Model
	weight float64
}

// Hybrid blends SGD, SVD and NMF. Each fitted model recommends n items and the
// blended score of an item is the weighted sum of its scores.
type Hybrid struct {
	model.BaseModel
	models []weightedModel
	fitted []weightedModel
}

func NewHybrid(params model.Params, sgdWeight, svdWeight, nmfWeight float64) *Hybrid {
	h := &Hybrid{models: []weightedModel{
		{name: SGDName, model: NewSGD(params), weight: sgdWeight},
		{name: SVDName, model: NewSVD(params), weight: svdWeight},
		{name: NMFName, model: NewNMF(params), weight: nmfWeight},
	}}
	h.SetParams(params)
	return h
}

func (h *Hybrid) SetParams(params model.Params) {
	h.BaseModel.SetParams(params)
	for _, m := range h.models {
		m.model.SetParams(params)
	}
}

// Fit fits every model and succeeds if at least one of them is fitted.
func (h *Hybrid) Fit(ctx context.Context, ratings *dataset.RatingMatrix) bool {
	h.fitted = nil
	var fitted []weightedModel
	for _, m := range h.models {
		if m.model.Fit(ctx, ratings) {
			fitted = append(fitted, m)
		}
	}
	log.Logger().Info("fit factor hybrid",
		zap.Int("n_fitted", len(fitted)),
		zap.Int("n_models", len(h.models)))
	if len(fitted) == 0 {
		return false
	}
	h.fitted = fitted
	return true
}

func (h *Hybrid) Invalid() bool {
	return len(h.fitted) == 0
}

func (h *Hybrid) Predict(userId, itemId string) float64 {
	var score float64
	for _, m := range h.fitted {
		score += m.weight * m.model.Predict(userId, itemId)
	}
	return max(0, score)
}

func (h *Hybrid) Recommend(userId string, n int) []cache.Score {
	scores := make(map[string]float64)
	for _, m := range h.fitted {
		for _, s := range m.model.Recommend(userId, n) {
			scores[s.Id] += m.weight * s.Score
		}
	}
	if len(scores) == 0 {
		return nil
	}
	filter := heap.NewTopKFilter[string, float64](n)
	for itemId, score := range scores {
		filter.Push(itemId, score)
	}
	return elemsToScores(filter.PopAll())
}
