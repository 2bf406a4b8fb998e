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

	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// SGD is matrix factorization trained by stochastic gradient descent on observed
// ratings. The predicted rating of user u on item i is
//
//	\hat{r}_{ui} = max(0, p_u^T q_i)
//
// Hyper-parameters:
//
//	NFactors    - The number of latent factors. Default is 50.
//	NEpochs     - The number of passes over observed ratings. Default is 100.
//	Lr          - The learning rate. Default is 0.01.
//	Reg         - The L2 regularization strength. Default is 0.1.
//	InitMean    - The mean of initial latent factors. Default is 0.
//	InitStdDev  - The standard deviation of initial latent factors. Default is 0.1.
//	RandomState - The seed of initial latent factors. Default is 0.
type SGD struct {
	BaseMatrixFactorization
	nFactors   int
	nEpochs    int
	lr         float64
	reg        float64
	initMean   float64
	initStdDev float64
}

func NewSGD(params model.Params) *SGD {
	sgd := new(SGD)
	sgd.SetParams(params)
	return sgd
}

func (sgd *SGD) SetParams(params model.Params) {
	sgd.BaseMatrixFactorization.SetParams(params)
	sgd.nFactors = sgd.Params.GetInt(model.NFactors, 50)
	sgd.nEpochs = sgd.Params.GetInt(model.NEpochs, 100)
	sgd.lr = sgd.Params.GetFloat64(model.Lr, 0.01)
	sgd.reg = sgd.Params.GetFloat64(model.Reg, 0.1)
	sgd.initMean = sgd.Params.GetFloat64(model.InitMean, 0)
	sgd.initStdDev = sgd.Params.GetFloat64(model.InitStdDev, 0.1)
}

func (sgd *SGD) Fit(ctx context.Context, ratings *dataset.RatingMatrix) bool {
	sgd.reset()
	k := numFactors(ratings, sgd.nFactors)
	if k < 2 {
		logInsufficientData(SGDName, ratings)
		return false
	}
	log.Logger().Info("fit sgd",
		zap.Int("n_users", ratings.CountUsers()),
		zap.Int("n_items", ratings.CountItems()),
		zap.Int("n_factors", k),
		zap.Int("n_epochs", sgd.nEpochs))
	rng := sgd.GetRandomGenerator()
	userFactor := mat.NewDense(ratings.CountUsers(), k, nil)
	itemFactor := mat.NewDense(ratings.CountItems(), k, nil)
	for _, factor := range []*mat.Dense{userFactor, itemFactor} {
		factor.Apply(func(_, _ int, _ float64) float64 {
			return rng.NormFloat64()*sgd.initStdDev + sgd.initMean
		}, factor)
	}
	// visit observed cells in a fixed order
	userItems := make([][]int, ratings.CountUsers())
	for userIndex := range userItems {
		userItems[userIndex] = lo.Keys(ratings.UserRow(userIndex))
		sort.Ints(userItems[userIndex])
	}

	fitted := &BaseMatrixFactorization{UserFactor: userFactor, ItemFactor: itemFactor}
	for epoch := 0; epoch < sgd.nEpochs; epoch++ {
		if ctx.Err() != nil {
			log.Logger().Warn("fit sgd cancelled", zap.Int("epoch", epoch))
			return false
		}
		for userIndex, items := range userItems {
			p := userFactor.RawRowView(userIndex)
			for _, itemIndex := range items {
				r := ratings.UserRow(userIndex)[itemIndex]
				if r <= 0 {
					continue
				}
				q := itemFactor.RawRowView(itemIndex)
				e := r - fitted.internalPredict(userIndex, itemIndex)
				for f := 0; f < k; f++ {
					pf, qf := p[f], q[f]
					p[f] += sgd.lr * (e*qf - sgd.reg*pf)
					q[f] += sgd.lr * (e*pf - sgd.reg*qf)
				}
			}
		}
		if epoch%20 == 0 {
			log.Logger().Debug("fit sgd",
				zap.Int("epoch", epoch),
				zap.Float64("mse", fitted.meanSquaredError(ratings)))
		}
	}
	sgd.init(ratings)
	sgd.UserFactor = userFactor
	sgd.ItemFactor = itemFactor
	return true
}
