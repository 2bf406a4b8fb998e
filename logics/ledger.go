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
	"context"
	"math"
	"time"

	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Ledger records behavior events. There is one record per (user, item, type).
type Ledger struct {
	repo data.InteractionRepo
}

func NewLedger(repo data.InteractionRepo) *Ledger {
	return &Ledger{repo: repo}
}

// Record inserts an interaction or merges it into the existing one: the weight
// becomes the mean of the stored and new weights and the newer timestamp is kept.
func (l *Ledger) Record(ctx context.Context, userId, itemId, typ string, weight float64, timestamp time.Time) (data.Interaction, error) {
	if userId == "" {
		return data.Interaction{}, errors.NotValidf("empty user id")
	}
	if itemId == "" {
		return data.Interaction{}, errors.NotValidf("empty item id")
	}
	behavior, err := dataset.ParseBehaviorType(typ)
	if err != nil {
		return data.Interaction{}, errors.Trace(err)
	}
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return data.Interaction{}, errors.NotValidf("weight %v", weight)
	}
	interaction := data.Interaction{
		UserId:    userId,
		ItemId:    itemId,
		Type:      string(behavior),
		Weight:    weight,
		Timestamp: timestamp.UTC(),
	}
	merged, err := l.repo.UpsertInteraction(ctx, interaction)
	if err != nil {
		return data.Interaction{}, errors.Trace(err)
	}
	log.Logger().Debug("record interaction",
		zap.String("user_id", userId),
		zap.String("item_id", itemId),
		zap.String("type", typ),
		zap.Float64("weight", merged.Weight))
	return merged, nil
}
