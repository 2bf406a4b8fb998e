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
	"math"

	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/model"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const nmfEpsilon = 1e-10

// NMF is non-negative matrix factorization R ≈ W H trained by multiplicative
// updates:
//
//	H ← H ∘ (WᵀR) / (WᵀWH)
//	W ← W ∘ (RHᵀ) / (WHHᵀ)
//
// User factors are W and item factors are Hᵀ. Every factor stays non-negative.
//
// Hyper-parameters:
//
//	NFactors    - The number of latent factors. Default is 50.
//	NIterations - The number of multiplicative updates. Default is 200.
//	RandomState - The seed of initial factors. Default is 0.
type NMF struct {
	BaseMatrixFactorization
	nFactors    int
	nIterations int
}

func NewNMF(params model.Params) *NMF {
	nmf := new(NMF)
	nmf.SetParams(params)
	return nmf
}

func (nmf *NMF) SetParams(params model.Params) {
	nmf.BaseMatrixFactorization.SetParams(params)
	nmf.nFactors = nmf.Params.GetInt(model.NFactors, 50)
	nmf.nIterations = nmf.Params.GetInt(model.NIterations, 200)
}

func (nmf *NMF) Fit(ctx context.Context, ratings *dataset.RatingMatrix) bool {
	nmf.reset()
	k := numFactors(ratings, nmf.nFactors)
	if k < 2 {
		logInsufficientData(NMFName, ratings)
		return false
	}
	nUsers, nItems := ratings.CountUsers(), ratings.CountItems()
	log.Logger().Info("fit nmf",
		zap.Int("n_users", nUsers),
		zap.Int("n_items", nItems),
		zap.Int("n_factors", k),
		zap.Int("n_iterations", nmf.nIterations))
	r := ratings.Dense()
	// scale random initialization by the mean rating
	scale := math.Sqrt(mat.Sum(r) / float64(nUsers*nItems) / float64(k))
	rng := nmf.GetRandomGenerator()
	w := mat.NewDense(nUsers, k, nil)
	h := mat.NewDense(k, nItems, nil)
	for _, factor := range []*mat.Dense{w, h} {
		factor.Apply(func(_, _ int, _ float64) float64 {
			return rng.Float64() * scale
		}, factor)
	}

	var numerH, wtw, denomH mat.Dense
	var numerW, hht, denomW mat.Dense
	for iteration := 0; iteration < nmf.nIterations; iteration++ {
		if ctx.Err() != nil {
			log.Logger().Warn("fit nmf cancelled", zap.Int("iteration", iteration))
			return false
		}
		// update H
		numerH.Mul(w.T(), r)
		wtw.Mul(w.T(), w)
		denomH.Mul(&wtw, h)
		h.Apply(func(i, j int, v float64) float64 {
			return v * numerH.At(i, j) / (denomH.At(i, j) + nmfEpsilon)
		}, h)
		// update W
		numerW.Mul(r, h.T())
		hht.Mul(h, h.T())
		denomW.Mul(w, &hht)
		w.Apply(func(i, j int, v float64) float64 {
			return v * numerW.At(i, j) / (denomW.At(i, j) + nmfEpsilon)
		}, w)
	}
	nmf.init(ratings)
	nmf.UserFactor = w
	nmf.ItemFactor = mat.DenseCopyOf(h.T())
	return true
}
