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
	"sort"
	"sync"
	"time"

	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/common/parallel"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/logics"
	"github.com/gorse-io/insight/model/factor"
	"github.com/gorse-io/insight/sentiment"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dataset is everything a pass reads from the data store.
type Dataset struct {
	interactions []data.Interaction
	products     []data.Product
	reviews      []data.Review
	stats        data.Stats

	ratings  *dataset.RatingMatrix
	catalog  *logics.CatalogStats
	history  map[string][]data.Interaction
	feedback map[string][]data.Review
}

func (m *Master) runLoadDatasetTask(ctx context.Context, now time.Time) (*Dataset, error) {
	start := time.Now()
	m.monitor.Start(TaskLoadDataset, 4)
	ds := new(Dataset)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ds.interactions, err = m.DataClient.GetInteractions(gctx)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		ds.products, err = m.DataClient.GetProducts(gctx)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		ds.reviews, err = m.DataClient.GetAllReviews(gctx)
		return errors.Trace(err)
	})
	g.Go(func() (err error) {
		ds.stats, err = m.DataClient.Stats(gctx)
		return errors.Trace(err)
	})
	if err := g.Wait(); err != nil {
		m.monitor.Fail(TaskLoadDataset, err)
		log.Logger().Error("failed to load dataset", zap.Error(err))
		return nil, errors.Trace(err)
	}
	m.monitor.Done(TaskLoadDataset, 4)

	ds.ratings = dataset.BuildRatingMatrix(ds.interactions, now, m.Config.Recommend.DecayRate)
	ds.catalog = logics.NewCatalogStats(ds.products, ds.reviews, ds.interactions)
	ds.history = lo.GroupBy(ds.interactions, func(interaction data.Interaction) string {
		return interaction.UserId
	})
	ds.feedback = lo.GroupBy(ds.reviews, func(review data.Review) string {
		return review.ItemId
	})
	updateDataMetrics(ds.stats)
	LoadDatasetTotalSeconds.Set(time.Since(start).Seconds())
	m.monitor.Finish(TaskLoadDataset)
	log.Logger().Info("load dataset",
		zap.Int("n_interactions", len(ds.interactions)),
		zap.Int("n_products", len(ds.products)),
		zap.Int("n_reviews", len(ds.reviews)),
		zap.Duration("elapsed", time.Since(start)))
	return ds, nil
}

// entityJob recomputes derived state of a set of entities.
type entityJob struct {
	name string
	// kind keys the last update time of an entity. Entities of a job without
	// kind are recomputed on every pass.
	kind string
	ids  []string
	fn   func(ctx context.Context, id string) error
	// isStale overrides the staleness check of the master.
	isStale func(updatedAt, now time.Time) bool
}

func (m *Master) isStale(updatedAt, now time.Time) bool {
	return updatedAt.IsZero() || now.Sub(updatedAt) >= m.Config.Master.StalenessWindow
}

// runEntities runs a job over its entities in parallel. Fresh entities are
// skipped unless forced. A failing entity is logged and skipped; only a
// canceled context fails the job.
func (m *Master) runEntities(ctx context.Context, job entityJob, force bool, now time.Time) error {
	start := time.Now()
	m.monitor.Start(job.name, len(job.ids))
	isStale := job.isStale
	if isStale == nil {
		isStale = m.isStale
	}
	err := parallel.Parallel(ctx, len(job.ids), m.Config.Master.NumJobs, func(_, jobId int) error {
		id := job.ids[jobId]
		lockKey := cache.Key(job.name, id)
		m.locker.Lock(lockKey)
		defer m.locker.Unlock(lockKey)
		if job.kind != "" && !force {
			updatedAt, err := m.CacheClient.Get(ctx, cache.Key(cache.LastUpdate, job.kind, id)).Time()
			if err != nil {
				log.EntityLogger(job.kind, id).Warn("failed to read last update time", zap.Error(err))
			} else if !isStale(updatedAt, now) {
				m.monitor.Skip(job.name, 1)
				EntitiesTotalVec.WithLabelValues(job.name, StatusSkipped).Inc()
				return nil
			}
		}
		if err := parallel.Recover(func() error { return job.fn(ctx, id) }); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.EntityLogger(job.kind, id).Error("failed to recompute entity",
				zap.String("task", job.name), zap.Error(err))
			m.monitor.FailEntity(job.name)
			EntitiesTotalVec.WithLabelValues(job.name, StatusFailed).Inc()
			return nil
		}
		if job.kind != "" {
			if err := m.CacheClient.Set(ctx, cache.Time(cache.Key(cache.LastUpdate, job.kind, id), now)); err != nil {
				log.EntityLogger(job.kind, id).Warn("failed to write last update time", zap.Error(err))
			}
		}
		m.monitor.Done(job.name, 1)
		EntitiesTotalVec.WithLabelValues(job.name, StatusDone).Inc()
		return nil
	})
	if err == nil {
		err = ctx.Err()
	}
	TaskSecondsVec.WithLabelValues(job.name).Set(time.Since(start).Seconds())
	if err != nil {
		m.monitor.Fail(job.name, err)
		return errors.Trace(err)
	}
	m.monitor.Finish(job.name)
	progress, _ := m.monitor.Get(job.name)
	log.Logger().Info("complete task",
		zap.String("task", job.name),
		zap.Int("n_done", progress.Done),
		zap.Int("n_skipped", progress.Skipped),
		zap.Int("n_failed", progress.Failed),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// skipTask completes a job without running it.
func (m *Master) skipTask(name string, reason error) {
	m.monitor.Start(name, 0)
	m.monitor.Finish(name)
	log.Logger().Warn("skip task", zap.String("task", name), zap.Error(reason))
}

// runExtractFeaturesTask extracts the feature vectors of all products and
// materializes them. A product failing extraction keeps its last
// materialized vector.
func (m *Master) runExtractFeaturesTask(ctx context.Context, ds *Dataset, now time.Time) (map[string]logics.FeatureVector, error) {
	products := lo.KeyBy(ds.catalog.Products(), func(p data.Product) string { return p.ItemId })
	var mu sync.Mutex
	features := make(map[string]logics.FeatureVector, len(products))
	err := m.runEntities(ctx, entityJob{
		name: TaskExtractFeatures,
		ids:  lo.Map(ds.catalog.Products(), func(p data.Product, _ int) string { return p.ItemId }),
		fn: func(ctx context.Context, itemId string) error {
			var vector logics.FeatureVector
			err := parallel.Recover(func() error {
				vector = m.extractFeatures(products[itemId], ds.catalog, now)
				return nil
			})
			if err != nil {
				if fallbackErr := m.CacheClient.Get(ctx, cache.Key(cache.ItemFeatures, itemId)).JSON(&vector); fallbackErr != nil {
					return errors.Annotatef(err, "extract features of item %s", itemId)
				}
				log.EntityLogger(cache.ItemFeatures, itemId).Warn("failed to extract features, use last vector", zap.Error(err))
			} else {
				value, err := cache.JSON(cache.Key(cache.ItemFeatures, itemId), vector)
				if err != nil {
					return errors.Trace(err)
				}
				if err = m.CacheClient.Set(ctx, value); err != nil {
					return errors.Trace(err)
				}
			}
			mu.Lock()
			defer mu.Unlock()
			features[itemId] = vector
			return nil
		},
	}, true, now)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return features, nil
}

// runFitFactorModelsTask fits every latent factor model on the rating matrix.
// A model without enough data stays unfitted.
func (m *Master) runFitFactorModelsTask(ctx context.Context, ds *Dataset, now time.Time) (map[string]factor.Model, error) {
	names := []string{factor.SGDName, factor.SVDName, factor.NMFName, factor.HybridName}
	start := time.Now()
	m.monitor.Start(TaskFitFactorModels, len(names))
	var mu sync.Mutex
	models := make(map[string]factor.Model, len(names))
	err := parallel.Parallel(ctx, len(names), m.Config.Master.NumJobs, func(_, jobId int) error {
		name := names[jobId]
		model, err := factor.NewModel(name, m.Config.Recommend.Factor)
		if err != nil {
			return errors.Trace(err)
		}
		fitStart := time.Now()
		fitted := model.Fit(ctx, ds.ratings)
		FactorModelFitSecondsVec.WithLabelValues(name).Set(time.Since(fitStart).Seconds())
		FactorModelFittedVec.WithLabelValues(name).Set(lo.Ternary(fitted, 1.0, 0.0))
		if fitted {
			m.monitor.Done(TaskFitFactorModels, 1)
		} else {
			m.monitor.Skip(TaskFitFactorModels, 1)
		}
		mu.Lock()
		defer mu.Unlock()
		models[name] = model
		return nil
	})
	if err == nil {
		err = ctx.Err()
	}
	TaskSecondsVec.WithLabelValues(TaskFitFactorModels).Set(time.Since(start).Seconds())
	if err != nil {
		m.monitor.Fail(TaskFitFactorModels, err)
		return nil, errors.Trace(err)
	}
	if err = m.CacheClient.Set(ctx, cache.Time(cache.Key(cache.GlobalMeta, cache.LastFitFactorModelsTime), now)); err != nil {
		log.Logger().Error("failed to write fit time", zap.Error(err))
	}
	m.monitor.Finish(TaskFitFactorModels)
	return models, nil
}

// storeNeighbors replaces the neighbors of an entity and records the
// similarity edges.
func (m *Master) storeNeighbors(ctx context.Context, kind, id string, neighbors []cache.Score, now time.Time) error {
	if err := m.CacheClient.ReplaceScores(ctx, kind, id, neighbors); err != nil {
		return errors.Trace(err)
	}
	edges := lo.Map(neighbors, func(neighbor cache.Score, _ int) cache.SimilarityEdge {
		return cache.NewSimilarityEdge(kind, id, neighbor.Id, neighbor.Score, now)
	})
	return errors.Trace(m.CacheClient.AddEdges(ctx, edges))
}

// pruneEdges removes edges not observed within the staleness window.
func (m *Master) pruneEdges(ctx context.Context, kind string, now time.Time) {
	if err := m.CacheClient.DeleteEdges(ctx, kind, now.Add(-m.Config.Master.StalenessWindow)); err != nil {
		log.Logger().Error("failed to prune similarity edges", zap.String("kind", kind), zap.Error(err))
	}
}

func (m *Master) runFindNeighbors(ctx context.Context, name, kind string, ratings *dataset.RatingMatrix, options logics.NeighborOptions, now time.Time, force bool) error {
	if ratings.CountUsers() < 2 {
		m.skipTask(name, logics.ErrInsufficientData)
		return nil
	}
	search := logics.NewNeighborSearch(ratings, options)
	if err := m.runEntities(ctx, entityJob{
		name: name,
		kind: kind,
		ids:  ratings.UserDict().Strings(),
		fn: func(ctx context.Context, id string) error {
			return m.storeNeighbors(ctx, kind, id, search.NeighborsOf(id), now)
		},
	}, force, now); err != nil {
		return errors.Trace(err)
	}
	m.pruneEdges(ctx, kind, now)
	return nil
}

func (m *Master) runFindUserNeighborsTask(ctx context.Context, _ *Dataset, snapshot *logics.Snapshot, force bool) error {
	return m.runFindNeighbors(ctx, TaskFindUserNeighbors, cache.UserNeighbors, snapshot.Ratings,
		logics.UserNeighborOptions(m.Config.Recommend.Collaborative), snapshot.Timestamp, force)
}

func (m *Master) runFindItemNeighborsTask(ctx context.Context, _ *Dataset, snapshot *logics.Snapshot, force bool) error {
	return m.runFindNeighbors(ctx, TaskFindItemNeighbors, cache.ItemNeighbors, snapshot.Ratings.Transpose(),
		logics.ItemNeighborOptions(m.Config.Recommend.Collaborative), snapshot.Timestamp, force)
}

// runFindSimilarItemsTask finds content neighbors of every product.
func (m *Master) runFindSimilarItemsTask(ctx context.Context, _ *Dataset, snapshot *logics.Snapshot, force bool) error {
	ids := lo.Keys(snapshot.Features)
	sort.Strings(ids)
	cfg := m.Config.Recommend.Content
	if err := m.runEntities(ctx, entityJob{
		name: TaskFindSimilarItems,
		kind: cache.SimilarItems,
		ids:  ids,
		fn: func(ctx context.Context, itemId string) error {
			similar := logics.SimilarItems(itemId, snapshot.Features, cfg.SimilarityThreshold, cfg.SimilarItems)
			return m.storeNeighbors(ctx, cache.SimilarItems, itemId, similar, snapshot.Timestamp)
		},
	}, force, snapshot.Timestamp); err != nil {
		return errors.Trace(err)
	}
	m.pruneEdges(ctx, cache.SimilarItems, snapshot.Timestamp)
	return nil
}

// runLearnPreferencesTask rebuilds stale preference profiles.
func (m *Master) runLearnPreferencesTask(ctx context.Context, ds *Dataset, snapshot *logics.Snapshot, force bool) error {
	learner := logics.NewPreferenceLearner(m.Config)
	userIds := lo.Keys(ds.history)
	sort.Strings(userIds)
	return m.runEntities(ctx, entityJob{
		name:    TaskLearnPreferences,
		kind:    cache.UserProfile,
		ids:     userIds,
		isStale: learner.IsStale,
		fn: func(ctx context.Context, userId string) error {
			history := ds.history[userId]
			profile := learner.Learn(userId, history, ds.catalog, snapshot.Timestamp)
			vector := logics.BuildUserPreferenceVector(profile, history, ds.catalog)
			return logics.StoreProfile(ctx, m.CacheClient, profile, vector)
		},
	}, force, snapshot.Timestamp)
}

// runFindSimilarUsersTask ranks users by the similarity of their profiles.
func (m *Master) runFindSimilarUsersTask(ctx context.Context, ds *Dataset, snapshot *logics.Snapshot, _ bool) error {
	userIds := lo.Keys(ds.history)
	sort.Strings(userIds)
	profiles := make([]*logics.PreferenceProfile, len(userIds))
	if err := parallel.Parallel(ctx, len(userIds), m.Config.Master.NumJobs, func(_, jobId int) (err error) {
		profiles[jobId], err = logics.LoadProfile(ctx, m.CacheClient, userIds[jobId])
		return errors.Trace(err)
	}); err != nil {
		m.monitor.Fail(TaskFindSimilarUsers, err)
		return errors.Trace(err)
	}
	byUser := lo.SliceToMap(lo.Compact(profiles), func(p *logics.PreferenceProfile) (string, *logics.PreferenceProfile) {
		return p.UserId, p
	})
	candidates := lo.Compact(profiles)
	return m.runEntities(ctx, entityJob{
		name: TaskFindSimilarUsers,
		ids:  userIds,
		fn: func(ctx context.Context, userId string) error {
			similar := logics.SimilarUsers(byUser[userId], candidates, m.Config.Recommend.Content.SimilarUsers)
			return m.CacheClient.ReplaceScores(ctx, cache.SimilarUsers, userId, similar)
		},
	}, true, snapshot.Timestamp)
}

// runAnalyzeSentimentTask summarizes the reviews of every reviewed item and
// materializes the sentiment rankings.
func (m *Master) runAnalyzeSentimentTask(ctx context.Context, ds *Dataset, snapshot *logics.Snapshot, _ bool) error {
	analyzer := sentiment.NewAnalyzer(m.Config.Sentiment)
	itemIds := lo.Keys(ds.feedback)
	sort.Strings(itemIds)
	var mu sync.Mutex
	summaries := make(map[string]*sentiment.Summary, len(itemIds))
	if err := m.runEntities(ctx, entityJob{
		name: TaskAnalyzeSentiment,
		ids:  itemIds,
		fn: func(ctx context.Context, itemId string) error {
			reviews := ds.feedback[itemId]
			insights := analyzer.Insights(itemId, reviews, snapshot.Timestamp)
			if insights == nil {
				return nil
			}
			summaryValue, err := cache.JSON(cache.Key(cache.ItemSentiment, itemId), insights.Summary)
			if err != nil {
				return errors.Trace(err)
			}
			trendValue, err := cache.JSON(cache.Key(cache.ItemTrend, itemId), insights.Trend)
			if err != nil {
				return errors.Trace(err)
			}
			recentValue, err := cache.JSON(cache.Key(cache.ItemRecentReviews, itemId), insights.RecentReviews)
			if err != nil {
				return errors.Trace(err)
			}
			if err = m.CacheClient.Set(ctx, summaryValue, trendValue, recentValue); err != nil {
				return errors.Trace(err)
			}
			mu.Lock()
			defer mu.Unlock()
			summaries[itemId] = insights.Summary
			return nil
		},
	}, true, snapshot.Timestamp); err != nil {
		return errors.Trace(err)
	}

	ranked := lo.Values(summaries)
	for _, kind := range []sentiment.TopKind{sentiment.TopPositive, sentiment.TopNegative, sentiment.TopAll} {
		scores := sentiment.TopProducts(ranked, kind, 0)
		if kind == sentiment.TopNegative {
			// stored negated so that the most negative item ranks first
			scores = lo.Map(scores, func(s cache.Score, _ int) cache.Score {
				return cache.Score{Id: s.Id, Score: -s.Score}
			})
		}
		if err := m.CacheClient.ReplaceScores(ctx, cache.SentimentRank, string(kind), scores); err != nil {
			log.Logger().Error("failed to write sentiment ranking", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	for _, aspect := range sentiment.Aspects {
		insights := sentiment.AspectInsights(ranked, aspect, m.Config.Sentiment.MinAspectMentions, 0)
		scores := lo.Map(insights, func(insight sentiment.AspectInsight, _ int) cache.Score {
			return cache.Score{Id: insight.ItemId, Score: insight.Score}
		})
		if err := m.CacheClient.ReplaceScores(ctx, cache.AspectSentiment, aspect, scores); err != nil {
			log.Logger().Error("failed to write aspect ranking", zap.String("aspect", aspect), zap.Error(err))
		}
	}
	if err := m.CacheClient.Set(ctx, cache.Time(cache.Key(cache.GlobalMeta, cache.LastUpdateSentimentTime), snapshot.Timestamp)); err != nil {
		log.Logger().Error("failed to write sentiment update time", zap.Error(err))
	}
	return nil
}
