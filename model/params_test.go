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
	"testing"

	"github.com/gorse-io/insight/config"
	"github.com/stretchr/testify/assert"
)

func TestParams_Overwrite(t *testing.T) {
	defaults := NewParamsFromConfig(config.GetDefaultConfig().Recommend.Factor)
	tuned := defaults.Overwrite(Params{NFactors: 8, Lr: 0.05})
	assert.Equal(t, 8, tuned.GetInt(NFactors, 0))
	assert.Equal(t, 0.05, tuned.GetFloat64(Lr, 0))
	assert.Equal(t, 0.1, tuned.GetFloat64(Reg, 0))
	// defaults are untouched
	assert.Equal(t, 50, defaults.GetInt(NFactors, 0))
	assert.Equal(t, 0.01, defaults.GetFloat64(Lr, 0))
}

func TestParams_Getters(t *testing.T) {
	params := Params{
		NFactors:    int64(16),
		NEpochs:     20,
		Lr:          float32(0.5),
		Reg:         1,
		RandomState: 7,
		InitStdDev:  "0.1",
	}
	// int is strict
	assert.Equal(t, -1, params.GetInt(NFactors, -1))
	assert.Equal(t, 20, params.GetInt(NEpochs, -1))
	assert.Equal(t, -1, params.GetInt(NIterations, -1))
	// int64 accepts int
	assert.Equal(t, int64(16), params.GetInt64(NFactors, -1))
	assert.Equal(t, int64(7), params.GetInt64(RandomState, -1))
	assert.Equal(t, int64(-1), params.GetInt64(InitStdDev, -1))
	// float64 accepts float32 and int
	assert.Equal(t, 0.5, params.GetFloat64(Lr, -1))
	assert.Equal(t, 1.0, params.GetFloat64(Reg, -1))
	assert.Equal(t, -1.0, params.GetFloat64(InitStdDev, -1))
	assert.Equal(t, -1.0, params.GetFloat64(InitMean, -1))
}

func TestNewParamsFromConfig(t *testing.T) {
	params := NewParamsFromConfig(config.GetDefaultConfig().Recommend.Factor)
	assert.Equal(t, 50, params.GetInt(NFactors, 0))
	assert.Equal(t, 100, params.GetInt(NEpochs, 0))
	assert.Equal(t, 200, params.GetInt(NIterations, 0))
	assert.Equal(t, 0.01, params.GetFloat64(Lr, 0))
	assert.Equal(t, 0.1, params.GetFloat64(Reg, 0))
	assert.Equal(t, 0.1, params.GetFloat64(InitStdDev, 0))
	assert.Equal(t, int64(42), params.GetInt64(RandomState, 0))
}

func TestBaseModel(t *testing.T) {
	var m BaseModel
	m.SetParams(Params{RandomState: 7})
	a := m.GetRandomGenerator().Float64()
	b := m.GetRandomGenerator().Float64()
	assert.Equal(t, a, b)
}
