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

package model

import (
	"math/rand"
	"reflect"

	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/config"
	"go.uber.org/zap"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	Lr          ParamName = "Lr"          // learning rate
	Reg         ParamName = "Reg"         // regularization strength
	NEpochs     ParamName = "NEpochs"     // number of epochs
	NFactors    ParamName = "NFactors"    // number of factors
	NIterations ParamName = "NIterations" // number of multiplicative updates
	RandomState ParamName = "RandomState" // random state (seed)
	InitMean    ParamName = "InitMean"    // mean of gaussian initial parameter
	InitStdDev  ParamName = "InitStdDev"  // standard deviation of gaussian initial parameter
)

// Params stores hyper-parameters for a model. For example, hyper-parameters
// for SGD matrix factorization is given by:
//
//	model.Params{
//		model.Lr:       0.01,
//		model.NEpochs:  100,
//		model.NFactors: 50,
//		model.Reg:      0.1,
//	}
type Params map[ParamName]any

// NewParamsFromConfig converts factor model options into hyper-parameters.
func NewParamsFromConfig(cfg config.FactorConfig) Params {
	return Params{
		Lr:          cfg.Lr,
		Reg:         cfg.Reg,
		NEpochs:     cfg.NEpochs,
		NFactors:    cfg.NFactors,
		NIterations: cfg.NMFIterations,
		RandomState: cfg.RandomState,
		InitStdDev:  cfg.InitStdDev,
	}
}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params, len(parameters))
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// Overwrite returns a copy with params applied on top.
func (parameters Params) Overwrite(params Params) Params {
	merged := parameters.Copy()
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// GetInt gets an integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int"),
				zap.Stringer("actual", reflect.TypeOf(val)))
		}
	}
	return _default
}

// GetInt64 gets an int64 parameter by name. The type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int64"),
				zap.Stringer("actual", reflect.TypeOf(val)))
		}
	}
	return _default
}

// GetFloat64 gets a float64 parameter by name. The type will be converted if given int.
func (parameters Params) GetFloat64(name ParamName, _default float64) float64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float64:
			return val
		case float32:
			return float64(val)
		case int:
			return float64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "float64"),
				zap.Stringer("actual", reflect.TypeOf(val)))
		}
	}
	return _default
}

// BaseModel holds hyper-parameters and the seeded random generator of a model.
type BaseModel struct {
	Params    Params
	rng       *rand.Rand
	randState int64
}

func (model *BaseModel) SetParams(params Params) {
	model.Params = params
	model.randState = model.Params.GetInt64(RandomState, 0)
	model.rng = rand.New(rand.NewSource(model.randState))
}

func (model *BaseModel) GetParams() Params {
	return model.Params
}

// GetRandomGenerator returns a generator reset to the random state.
func (model *BaseModel) GetRandomGenerator() *rand.Rand {
	model.rng = rand.New(rand.NewSource(model.randState))
	return model.rng
}
