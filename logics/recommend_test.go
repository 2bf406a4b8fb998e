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
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/model/factor"
	"github.com/gorse-io/insight/storage"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type RecommenderTestSuite struct {
	suite.Suite
	redis       *miniredis.Miniredis
	config      *config.Config
	dataClient  data.Database
	cacheClient cache.Database
}

func (suite *RecommenderTestSuite) SetupSuite() {
	var err error
	suite.config = config.GetDefaultConfig()
	suite.dataClient, err = data.Open(fmt.Sprintf("sqlite://%s/data.db", suite.T().TempDir()), "")
	suite.NoError(err)
	suite.NoError(suite.dataClient.Init())
	suite.redis, err = miniredis.Run()
	suite.NoError(err)
	suite.cacheClient, err = cache.Open(storage.RedisPrefix+suite.redis.Addr(), "")
	suite.NoError(err)
	suite.NoError(suite.cacheClient.Init())
}

func (suite *RecommenderTestSuite) TearDownSuite() {
	suite.NoError(suite.dataClient.Close())
	suite.NoError(suite.cacheClient.Close())
	suite.redis.Close()
}

func (suite *RecommenderTestSuite) SetupTest() {
	suite.NoError(suite.dataClient.Purge())
	suite.NoError(suite.cacheClient.Purge())
}

func (suite *RecommenderTestSuite) recommend(snapshot *Snapshot, userId, method string, n int) []cache.Score {
	recommender := NewRecommender(*suite.config, suite.cacheClient, suite.dataClient, snapshot, userId)
	scores, err := recommender.Recommend(context.Background(), method, n)
	suite.NoError(err)
	return scores
}

func (suite *RecommenderTestSuite) TestLedger() {
	ctx := context.Background()
	ledger := NewLedger(suite.dataClient)
	_, err := ledger.Record(ctx, "u1", "i1", "view", 1, now)
	suite.NoError(err)
	merged, err := ledger.Record(ctx, "u1", "i1", "view", 3, now.Add(time.Hour))
	suite.NoError(err)
	suite.Equal(2.0, merged.Weight)
	stored, err := suite.dataClient.GetInteraction(ctx, "u1", "i1", "view")
	suite.NoError(err)
	suite.Equal(2.0, stored.Weight)
	suite.True(stored.Timestamp.Equal(now.Add(time.Hour)))

	// an older observation keeps the newer timestamp
	merged, err = ledger.Record(ctx, "u1", "i1", "view", 4, now)
	suite.NoError(err)
	suite.Equal(3.0, merged.Weight)
	suite.True(merged.Timestamp.Equal(now.Add(time.Hour)))

	_, err = ledger.Record(ctx, "u1", "i1", "like", 1, now)
	suite.True(errors.Is(err, errors.NotValid))
	_, err = ledger.Record(ctx, "u1", "i1", "view", -1, now)
	suite.True(errors.Is(err, errors.NotValid))
	_, err = ledger.Record(ctx, "", "i1", "view", 1, now)
	suite.True(errors.Is(err, errors.NotValid))
	interactions, err := suite.dataClient.GetInteractions(ctx)
	suite.NoError(err)
	suite.Len(interactions, 1)
}

func (suite *RecommenderTestSuite) TestColdStart() {
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	suite.NoError(suite.dataClient.BatchInsertProducts(ctx, []data.Product{
		{ItemId: "t1", IsTrending: true, CreatedAt: day},
		{ItemId: "t2", IsTrending: true, CreatedAt: day.Add(24 * time.Hour)},
		{ItemId: "p3", CreatedAt: day.Add(48 * time.Hour)},
	}))
	for _, method := range Methods {
		scores := suite.recommend(nil, "new", method, 10)
		suite.Equal([]string{"t2", "t1"}, ids(scores), method)
	}
	suite.Equal([]string{"t2"}, ids(suite.recommend(nil, "new", "", 1)))

	_, err := NewRecommender(*suite.config, suite.cacheClient, suite.dataClient, nil, "new").Recommend(ctx, "popular", 10)
	suite.True(errors.Is(err, errors.NotValid))
}

func (suite *RecommenderTestSuite) TestInsufficientData() {
	ctx := context.Background()
	_, err := NewLedger(suite.dataClient).Record(ctx, "u1", "p1", "view", 1, now)
	suite.NoError(err)
	ratings := dataset.BuildRatingMatrix([]data.Interaction{interaction("u1", "p1", dataset.View)}, now, dataset.DefaultDecayRate)
	models := make(map[string]factor.Model)
	for _, name := range []string{factor.SGDName, factor.SVDName, factor.NMFName, factor.HybridName} {
		m, err := factor.NewModel(name, suite.config.Recommend.Factor)
		suite.NoError(err)
		suite.False(m.Fit(ctx, ratings))
		models[name] = m
	}
	snapshot := &Snapshot{Timestamp: now, Ratings: ratings, Models: models}
	for _, name := range []string{factor.SGDName, factor.SVDName, factor.NMFName, factor.HybridName} {
		suite.Nil(snapshot.Model(name))
		suite.Empty(suite.recommend(snapshot, "u1", name, 10), name)
	}
}

func (suite *RecommenderTestSuite) TestExcludeOwnedItems() {
	ctx := context.Background()
	products := []data.Product{
		{ItemId: "p1", Name: "Casual Sneakers", Category: "Sneakers", Brand: "Nike", Price: 3000, CreatedAt: now},
		{ItemId: "p2", Name: "Running Sneakers", Category: "Sneakers", Brand: "Nike", Price: 4000, CreatedAt: now},
		{ItemId: "p3", Name: "Leather Boots", Category: "Boots", Brand: "Clarks", Price: 9000, CreatedAt: now},
		{ItemId: "p4", Name: "Canvas Sneakers", Category: "Sneakers", Brand: "Vans", Price: 2500, CreatedAt: now},
		{ItemId: "p5", Name: "Casual Sneakers", Category: "Sneakers", Brand: "Nike", Price: 3500, IsTrending: true, CreatedAt: now},
		{ItemId: "p6", Name: "Suede Boots", Category: "Boots", Brand: "Clarks", Price: 12000, IsTrending: true, CreatedAt: now},
	}
	suite.NoError(suite.dataClient.BatchInsertProducts(ctx, products))
	ledger := NewLedger(suite.dataClient)
	for _, event := range []lo.Tuple3[string, string, dataset.BehaviorType]{
		{A: "u1", B: "p1", C: dataset.Purchase},
		{A: "u1", B: "p2", C: dataset.CartAdd},
		{A: "u1", B: "p3", C: dataset.Wishlist},
		{A: "u1", B: "p4", C: dataset.View},
		{A: "u2", B: "p1", C: dataset.Purchase},
		{A: "u2", B: "p2", C: dataset.Purchase},
		{A: "u2", B: "p3", C: dataset.Purchase},
		{A: "u2", B: "p5", C: dataset.Purchase},
		{A: "u3", B: "p1", C: dataset.View},
		{A: "u3", B: "p4", C: dataset.View},
		{A: "u3", B: "p6", C: dataset.Purchase},
	} {
		_, err := ledger.Record(ctx, event.A, event.B, string(event.C), 1, now)
		suite.NoError(err)
	}
	interactions, err := suite.dataClient.GetInteractions(ctx)
	suite.NoError(err)

	// materialize state
	snapshot := &Snapshot{
		Timestamp: now,
		Ratings:   dataset.BuildRatingMatrix(interactions, now, suite.config.Recommend.DecayRate),
		Models:    make(map[string]factor.Model),
		Features:  make(map[string]FeatureVector),
		Catalog:   NewCatalogStats(products, nil, interactions),
	}
	for _, product := range products {
		snapshot.Features[product.ItemId] = ExtractProductFeatures(product, snapshot.Catalog, now)
	}
	for _, name := range []string{factor.SGDName, factor.SVDName, factor.NMFName, factor.HybridName} {
		m, err := factor.NewModel(name, suite.config.Recommend.Factor)
		suite.NoError(err)
		suite.True(m.Fit(ctx, snapshot.Ratings), name)
		snapshot.Models[name] = m
	}
	users := NewNeighborSearch(snapshot.Ratings, UserNeighborOptions(suite.config.Recommend.Collaborative))
	for _, userId := range snapshot.Ratings.UserDict().Strings() {
		suite.NoError(suite.cacheClient.ReplaceScores(ctx, cache.UserNeighbors, userId, users.NeighborsOf(userId)))
	}
	items := NewNeighborSearch(snapshot.Ratings.Transpose(), ItemNeighborOptions(suite.config.Recommend.Collaborative))
	for _, itemId := range snapshot.Ratings.ItemDict().Strings() {
		suite.NoError(suite.cacheClient.ReplaceScores(ctx, cache.ItemNeighbors, itemId, items.NeighborsOf(itemId)))
	}
	learner := NewPreferenceLearner(suite.config)
	history := lo.Filter(interactions, func(i data.Interaction, _ int) bool { return i.UserId == "u1" })
	profile := learner.Learn("u1", history, snapshot.Catalog, now)
	suite.NoError(StoreProfile(ctx, suite.cacheClient, profile, BuildUserPreferenceVector(profile, history, snapshot.Catalog)))

	owned := []string{"p1", "p2", "p3"}
	for _, method := range Methods {
		scores := suite.recommend(snapshot, "u1", method, 10)
		for _, itemId := range owned {
			suite.NotContains(ids(scores), itemId, method)
		}
	}
	suite.NotEmpty(suite.recommend(snapshot, "u1", ContentRecommender, 10))
	suite.NotEmpty(suite.recommend(snapshot, "u1", HybridRecommender, 10))
	suite.ElementsMatch([]string{"p5", "p6"}, ids(suite.recommend(snapshot, "u1", UserBasedRecommender, 10)))

	// the hybrid blend falls back to trending without any signal
	bare := &Snapshot{Timestamp: now, Catalog: snapshot.Catalog}
	suite.Equal([]string{"p5", "p6"}, ids(suite.recommend(bare, "u1", HybridRecommender, 10)))
}

func (suite *RecommenderTestSuite) TestLoadSimilarItems() {
	ctx := context.Background()
	suite.NoError(suite.dataClient.BatchInsertProducts(ctx, []data.Product{
		{ItemId: "p1", Category: "Sneakers", CreatedAt: now},
		{ItemId: "p2", Category: "Sneakers", CreatedAt: now.Add(time.Hour)},
		{ItemId: "p3", Category: "Boots", CreatedAt: now},
	}))
	scores, err := LoadSimilarItems(ctx, suite.cacheClient, suite.dataClient, "p1", 10)
	suite.NoError(err)
	suite.Equal([]cache.Score{{Id: "p2"}}, scores)

	suite.NoError(suite.cacheClient.ReplaceScores(ctx, cache.SimilarItems, "p1", []cache.Score{{Id: "p3", Score: 0.5}}))
	scores, err = LoadSimilarItems(ctx, suite.cacheClient, suite.dataClient, "p1", 10)
	suite.NoError(err)
	suite.Equal([]cache.Score{{Id: "p3", Score: 0.5}}, scores)

	_, err = LoadSimilarItems(ctx, suite.cacheClient, suite.dataClient, "p9", 10)
	suite.True(errors.Is(err, errors.NotFound))
}

func TestRecommender(t *testing.T) {
	suite.Run(t, new(RecommenderTestSuite))
}
