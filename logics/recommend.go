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
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/model/factor"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	ContentRecommender       = "content"
	UserBasedRecommender     = "user_based"
	ItemBasedRecommender     = "item_based"
	CollaborativeRecommender = "collaborative"
	HybridRecommender        = "hybrid"
)

// Methods lists every recommendation method.
var Methods = []string{
	ContentRecommender,
	UserBasedRecommender,
	ItemBasedRecommender,
	CollaborativeRecommender,
	factor.SGDName,
	factor.SVDName,
	factor.NMFName,
	factor.HybridName,
	HybridRecommender,
}

// Snapshot is the state fitted by the last complete recompute. A snapshot is
// never modified after it is published.
type Snapshot struct {
	Timestamp time.Time
	Ratings   *dataset.RatingMatrix
	Models    map[string]factor.Model
	Features  map[string]FeatureVector
	Catalog   *CatalogStats
}

// Model returns a fitted model by name, or nil.
func (s *Snapshot) Model(name string) factor.Model {
	if s == nil {
		return nil
	}
	m, ok := s.Models[name]
	if !ok || m.Invalid() {
		return nil
	}
	return m
}

type SnapshotProvider interface {
	Snapshot() *Snapshot
}

// Recommender serves recommendations of a user from materialized state.
type Recommender struct {
	config      config.Config
	cacheClient cache.Database
	dataClient  data.Database
	snapshot    *Snapshot

	userId     string
	history    []data.Interaction
	profile    *PreferenceProfile
	excludeSet mapset.Set[string]
}

type RecommenderFunc func(ctx context.Context, n int) ([]cache.Score, error)

func NewRecommender(config config.Config,
	cacheClient cache.Database,
	dataClient data.Database,
	snapshot *Snapshot,
	userId string,
) *Recommender {
	return &Recommender{
		config:      config,
		cacheClient: cacheClient,
		dataClient:  dataClient,
		snapshot:    snapshot,
		userId:      userId,
		excludeSet:  mapset.NewSet[string](),
	}
}

func (r *Recommender) Parse(method string) (RecommenderFunc, error) {
	switch method {
	case ContentRecommender:
		return r.recommendContent, nil
	case UserBasedRecommender:
		return r.recommendUserBased, nil
	case ItemBasedRecommender:
		return r.recommendItemBased, nil
	case CollaborativeRecommender:
		return r.recommendCollaborative, nil
	case factor.SGDName, factor.SVDName, factor.NMFName, factor.HybridName:
		return r.recommendFactor(method), nil
	case HybridRecommender, "":
		return r.recommendHybrid, nil
	}
	return nil, errors.NotValidf("recommendation method %q", method)
}

// Recommend returns at most n items for the user. Items the user purchased,
// added to cart or wishlisted are never returned. Users without history and
// preferences get trending items, so does the hybrid method when every
// source is empty.
func (r *Recommender) Recommend(ctx context.Context, method string, n int) ([]cache.Score, error) {
	recommend, err := r.Parse(method)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = r.load(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	if len(r.history) == 0 && r.profile.IsEmpty() {
		return r.recommendTrending(ctx, n)
	}
	scores, err := recommend(ctx, n)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(scores) == 0 && (method == HybridRecommender || method == "") {
		return r.recommendTrending(ctx, n)
	}
	return scores, nil
}

func (r *Recommender) load(ctx context.Context) error {
	var err error
	r.history, err = r.dataClient.GetUserInteractions(ctx, r.userId)
	if err != nil {
		return errors.Trace(err)
	}
	for _, interaction := range r.history {
		if dataset.BehaviorType(interaction.Type).IsOwned() {
			r.excludeSet.Add(interaction.ItemId)
		}
	}
	r.profile, err = LoadProfile(ctx, r.cacheClient, r.userId)
	return errors.Trace(err)
}

// filter removes excluded items and keeps the top n.
func (r *Recommender) filter(scores []cache.Score, n int) []cache.Score {
	scores = lo.Filter(scores, func(s cache.Score, _ int) bool {
		return !r.excludeSet.Contains(s.Id)
	})
	if n > 0 && len(scores) > n {
		scores = scores[:n]
	}
	return scores
}

func (r *Recommender) recommendTrending(ctx context.Context, n int) ([]cache.Score, error) {
	var products []data.Product
	if r.snapshot != nil && r.snapshot.Catalog != nil {
		products = r.snapshot.Catalog.Products()
	} else {
		var err error
		if products, err = r.dataClient.GetProducts(ctx); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return Trending(products, r.excludeSet, n), nil
}

func (r *Recommender) recommendContent(ctx context.Context, n int) ([]cache.Score, error) {
	if r.snapshot == nil {
		return nil, nil
	}
	query, err := LoadPreferenceVector(ctx, r.cacheClient, r.userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if query == nil {
		query = BuildUserPreferenceVector(r.profile, r.history, r.snapshot.Catalog)
	}
	return ContentRecommend(ItemSpace(query, r.profile), r.snapshot.Features, r.excludeSet,
		r.config.Recommend.Content.SimilarityThreshold, n), nil
}

func (r *Recommender) recommendUserBased(ctx context.Context, n int) ([]cache.Score, error) {
	if r.snapshot == nil {
		return nil, nil
	}
	neighbors, err := r.cacheClient.SearchScores(ctx, cache.UserNeighbors, r.userId, 0, -1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return r.filter(UserBasedRecommend(r.snapshot.Ratings, neighbors, r.userId, 0), n), nil
}

func (r *Recommender) recommendItemBased(ctx context.Context, n int) ([]cache.Score, error) {
	if r.snapshot == nil || r.snapshot.Ratings == nil {
		return nil, nil
	}
	rated := lo.Keys(r.snapshot.Ratings.UserRatings(r.userId))
	sort.Strings(rated)
	neighbors := make(map[string][]cache.Score, len(rated))
	for _, itemId := range rated {
		scores, err := r.cacheClient.SearchScores(ctx, cache.ItemNeighbors, itemId, 0, -1)
		if err != nil {
			return nil, errors.Trace(err)
		}
		neighbors[itemId] = scores
	}
	scores := ItemBasedRecommend(r.snapshot.Ratings, func(itemId string) []cache.Score {
		return neighbors[itemId]
	}, r.userId, r.config.Recommend.Collaborative.SimilarityThreshold, 0)
	return r.filter(scores, n), nil
}

func (r *Recommender) candidates(n int) int {
	return max(1, r.config.Recommend.Hybrid.CandidateMultiplier) * n
}

func (r *Recommender) recommendCollaborative(ctx context.Context, n int) ([]cache.Score, error) {
	userBased, err := r.recommendUserBased(ctx, r.candidates(n))
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemBased, err := r.recommendItemBased(ctx, r.candidates(n))
	if err != nil {
		return nil, errors.Trace(err)
	}
	userWeight, itemWeight := CollaborativeWeights(r.config.Recommend.Collaborative, 1)
	return Blend([]RankedList{
		{Source: UserBasedSource, Weight: userWeight, Scores: userBased},
		{Source: ItemBasedSource, Weight: itemWeight, Scores: itemBased},
	}, r.excludeSet, n), nil
}

func (r *Recommender) recommendFactor(name string) RecommenderFunc {
	return func(ctx context.Context, n int) ([]cache.Score, error) {
		m := r.snapshot.Model(name)
		if m == nil {
			return nil, nil
		}
		return r.filter(m.Recommend(r.userId, 0), n), nil
	}
}

func (r *Recommender) recommendHybrid(ctx context.Context, n int) ([]cache.Score, error) {
	k := r.candidates(n)
	content, err := r.recommendContent(ctx, k)
	if err != nil {
		return nil, errors.Trace(err)
	}
	userBased, err := r.recommendUserBased(ctx, k)
	if err != nil {
		return nil, errors.Trace(err)
	}
	itemBased, err := r.recommendItemBased(ctx, k)
	if err != nil {
		return nil, errors.Trace(err)
	}
	factorMethod := r.config.Recommend.Hybrid.FactorMethod
	withFactor := factorMethod != "" && r.snapshot.Model(factorMethod) != nil
	weights := HybridWeights(r.config.Recommend, withFactor)
	lists := []RankedList{
		{Source: ContentSource, Weight: weights[ContentSource], Scores: content},
		{Source: UserBasedSource, Weight: weights[UserBasedSource], Scores: userBased},
		{Source: ItemBasedSource, Weight: weights[ItemBasedSource], Scores: itemBased},
	}
	if withFactor {
		factorScores, err := r.recommendFactor(factorMethod)(ctx, k)
		if err != nil {
			return nil, errors.Trace(err)
		}
		lists = append(lists, RankedList{Source: FactorSource, Weight: weights[FactorSource], Scores: factorScores})
	}
	return Blend(lists, r.excludeSet, n), nil
}

// LoadSimilarItems returns materialized content neighbors of an item. If none
// is materialized, products of the same category are returned from the newest
// with score 0.
func LoadSimilarItems(ctx context.Context, cacheClient cache.Database, dataClient data.Database, itemId string, n int) ([]cache.Score, error) {
	product, err := dataClient.GetProduct(ctx, itemId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	end := -1
	if n > 0 {
		end = n
	}
	scores, err := cacheClient.SearchScores(ctx, cache.SimilarItems, itemId, 0, end)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(scores) > 0 || product.Category == "" {
		return scores, nil
	}
	products, err := dataClient.GetProducts(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sameCategory := lo.Filter(products, func(p data.Product, _ int) bool {
		return p.Category == product.Category && p.ItemId != itemId
	})
	sort.Slice(sameCategory, func(i, j int) bool {
		if !sameCategory[i].CreatedAt.Equal(sameCategory[j].CreatedAt) {
			return sameCategory[i].CreatedAt.After(sameCategory[j].CreatedAt)
		}
		return sameCategory[i].ItemId < sameCategory[j].ItemId
	})
	if n > 0 && len(sameCategory) > n {
		sameCategory = sameCategory[:n]
	}
	return lo.Map(sameCategory, func(p data.Product, _ int) cache.Score {
		return cache.Score{Id: p.ItemId}
	}), nil
}
