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

package master

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/base/task"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/logics"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	TaskLoadDataset       = "Load dataset"
	TaskFitFactorModels   = "Fit factor models"
	TaskExtractFeatures   = "Extract product features"
	TaskFindUserNeighbors = "Find user neighbors"
	TaskFindItemNeighbors = "Find item neighbors"
	TaskFindSimilarItems  = "Find similar items"
	TaskLearnPreferences  = "Learn preferences"
	TaskFindSimilarUsers  = "Find similar users"
	TaskAnalyzeSentiment  = "Analyze sentiment"
)

// Tasks are the jobs of a recompute pass in execution order.
var Tasks = []string{
	TaskLoadDataset,
	TaskExtractFeatures,
	TaskFitFactorModels,
	TaskFindUserNeighbors,
	TaskFindItemNeighbors,
	TaskFindSimilarItems,
	TaskLearnPreferences,
	TaskFindSimilarUsers,
	TaskAnalyzeSentiment,
}

// Master runs the batch recompute loop. Each pass reloads the data store,
// materializes derived state into the cache store and publishes a new
// snapshot for the query API.
type Master struct {
	Config      *config.Config
	DataClient  data.Database
	CacheClient cache.Database

	monitor   *task.Monitor
	locker    *task.Locker
	snapshot  atomic.Pointer[logics.Snapshot]
	scheduled chan bool

	// mu serializes recompute passes.
	mu        sync.Mutex
	lastStats data.Stats
	now       func() time.Time

	extractFeatures func(data.Product, *logics.CatalogStats, time.Time) logics.FeatureVector
}

func NewMaster(cfg *config.Config, dataClient data.Database, cacheClient cache.Database) *Master {
	return &Master{
		Config:      cfg,
		DataClient:  dataClient,
		CacheClient: cacheClient,
		monitor:     task.NewMonitor(),
		locker:      task.NewLocker(),
		scheduled:   make(chan bool, 1),
		now:         func() time.Time { return time.Now().UTC() },

		extractFeatures: logics.ExtractProductFeatures,
	}
}

// Snapshot returns the last published snapshot, or nil before the first pass.
func (m *Master) Snapshot() *logics.Snapshot {
	return m.snapshot.Load()
}

// Tasks returns the progress of the jobs of the last pass.
func (m *Master) Tasks() []task.Task {
	return m.monitor.List()
}

// Schedule requests a recompute pass. A forced pass ignores staleness and
// recomputes every entity. Requests arriving while one is queued are merged.
func (m *Master) Schedule(force bool) {
	select {
	case m.scheduled <- force:
	default:
		if force {
			// upgrade the queued request
			select {
			case <-m.scheduled:
			default:
			}
			select {
			case m.scheduled <- true:
			default:
			}
		}
	}
}

// RunTasksLoop runs recompute passes until the context is canceled. A pass
// starts on schedule requests and on every check period if the data store
// changed or the snapshot is stale.
func (m *Master) RunTasksLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.Config.Master.CheckPeriod)
	defer ticker.Stop()
	m.Schedule(false)
	for {
		force := false
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case force = <-m.scheduled:
		}
		if !force {
			stale, err := m.checkStale(ctx)
			if err != nil {
				log.Logger().Error("failed to check staleness", zap.Error(err))
				continue
			}
			if !stale {
				continue
			}
		}
		if err := m.Recompute(ctx, force); err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			log.Logger().Error("failed to recompute", zap.Error(err))
		}
	}
}

// checkStale returns true if a pass is needed: there is no snapshot yet, the
// data store changed since the last pass or the snapshot is older than the
// staleness window.
func (m *Master) checkStale(ctx context.Context) (bool, error) {
	stats, err := m.DataClient.Stats(ctx)
	if err != nil {
		return false, errors.Trace(err)
	}
	updateDataMetrics(stats)
	snapshot := m.Snapshot()
	if snapshot == nil {
		return true, nil
	}
	if age := m.now().Sub(snapshot.Timestamp); age >= m.Config.Master.StalenessWindow {
		log.Logger().Warn("snapshot is stale",
			zap.Time("timestamp", snapshot.Timestamp),
			zap.Duration("age", age),
			zap.Duration("staleness_window", m.Config.Master.StalenessWindow))
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return stats != m.lastStats, nil
}

// Recompute runs a full pass. Failures of single entities are logged and
// skipped; a pass fails only if the dataset cannot be loaded or the context
// is canceled.
func (m *Master) Recompute(ctx context.Context, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	runId := uuid.NewString()
	logger := log.Logger().With(zap.String("run_id", runId), zap.Bool("force", force))
	start := time.Now()
	now := m.now()
	RecomputeTotal.Inc()
	for _, name := range Tasks {
		m.monitor.Pending(name)
	}
	logger.Info("start recompute")

	ds, err := m.runLoadDatasetTask(ctx, now)
	if err != nil {
		return errors.Trace(err)
	}
	snapshot := &logics.Snapshot{
		Timestamp: now,
		Ratings:   ds.ratings,
		Catalog:   ds.catalog,
	}
	if snapshot.Features, err = m.runExtractFeaturesTask(ctx, ds, now); err != nil {
		return errors.Trace(err)
	}
	if snapshot.Models, err = m.runFitFactorModelsTask(ctx, ds, now); err != nil {
		return errors.Trace(err)
	}
	m.snapshot.Store(snapshot)
	SnapshotTimestamp.Set(float64(now.Unix()))

	jobs := []func(context.Context, *Dataset, *logics.Snapshot, bool) error{
		m.runFindUserNeighborsTask,
		m.runFindItemNeighborsTask,
		m.runFindSimilarItemsTask,
		m.runLearnPreferencesTask,
		m.runFindSimilarUsersTask,
		m.runAnalyzeSentimentTask,
	}
	for _, job := range jobs {
		if err = job(ctx, ds, snapshot, force); err != nil {
			return errors.Trace(err)
		}
	}
	m.lastStats = ds.stats
	logger.Info("complete recompute",
		zap.Int("n_users", snapshot.Ratings.CountUsers()),
		zap.Int("n_items", snapshot.Ratings.CountItems()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
