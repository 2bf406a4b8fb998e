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
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/model"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// SVD is the truncated singular value decomposition R ≈ U Σ Vᵀ of the dense
// rating matrix. User factors are U Σ and item factors are V, both truncated to
// the k largest singular values.
//
// Hyper-parameters:
//
//	NFactors - The number of singular values kept. Default is 50.
type SVD struct {
	BaseMatrixFactorization
	nFactors int
}

func NewSVD(params model.Params) *SVD {
	svd := new(SVD)
	svd.SetParams(params)
	return svd
}

func (svd *SVD) SetParams(params model.Params) {
	svd.BaseMatrixFactorization.SetParams(params)
	svd.nFactors = svd.Params.GetInt(model.NFactors, 50)
}

func (svd *SVD) Fit(ctx context.Context, ratings *dataset.RatingMatrix) bool {
	svd.reset()
	k := numFactors(ratings, svd.nFactors)
	if k < 2 {
		logInsufficientData(SVDName, ratings)
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	nUsers, nItems := ratings.CountUsers(), ratings.CountItems()
	log.Logger().Info("fit svd",
		zap.Int("n_users", nUsers),
		zap.Int("n_items", nItems),
		zap.Int("n_factors", k))
	var decomposition mat.SVD
	if ok := decomposition.Factorize(ratings.Dense(), mat.SVDThin); !ok {
		log.Logger().Error("failed to factorize rating matrix")
		return false
	}
	values := decomposition.Values(nil)
	var u, v mat.Dense
	decomposition.UTo(&u)
	decomposition.VTo(&v)

	userFactor := mat.DenseCopyOf(u.Slice(0, nUsers, 0, k))
	for f := 0; f < k; f++ {
		for userIndex := 0; userIndex < nUsers; userIndex++ {
			userFactor.Set(userIndex, f, userFactor.At(userIndex, f)*values[f])
		}
	}
	svd.init(ratings)
	svd.UserFactor = userFactor
	svd.ItemFactor = mat.DenseCopyOf(v.Slice(0, nItems, 0, k))
	return true
}
