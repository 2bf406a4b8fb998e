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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorse-io/insight/base/task"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/logics"
	"github.com/gorse-io/insight/sentiment"
	"github.com/gorse-io/insight/storage"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/jaswdr/faker"
	"github.com/samber/lo"
	"github.com/steinfletcher/apitest"
	"github.com/stretchr/testify/suite"
)

const apiKey = "test_api_key"

var timestamp = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type mockMaster struct {
	snapshot  *logics.Snapshot
	tasks     []task.Task
	scheduled []bool
}

func (m *mockMaster) Snapshot() *logics.Snapshot {
	return m.snapshot
}

func (m *mockMaster) Tasks() []task.Task {
	return m.tasks
}

func (m *mockMaster) Schedule(force bool) {
	m.scheduled = append(m.scheduled, force)
}

type ServerTestSuite struct {
	suite.Suite
	*RestServer
	master  *mockMaster
	redis   *miniredis.Miniredis
	handler http.Handler
	fake    faker.Faker
}

func (suite *ServerTestSuite) SetupSuite() {
	dataClient, err := data.Open(fmt.Sprintf("sqlite://%s/data.db", suite.T().TempDir()), "")
	suite.NoError(err)
	suite.NoError(dataClient.Init())
	suite.redis, err = miniredis.Run()
	suite.NoError(err)
	cacheClient, err := cache.Open(storage.RedisPrefix+suite.redis.Addr(), "")
	suite.NoError(err)
	suite.NoError(cacheClient.Init())
	cfg := config.GetDefaultConfig()
	cfg.Server.APIKey = apiKey
	// read cache is covered by its own test
	cfg.Server.CacheExpire = 0
	suite.master = &mockMaster{}
	suite.RestServer = NewRestServer(cfg, dataClient, cacheClient, suite.master)
	suite.handler = suite.Handler()
	suite.fake = faker.New()
}

func (suite *ServerTestSuite) TearDownSuite() {
	suite.NoError(suite.DataClient.Close())
	suite.NoError(suite.CacheClient.Close())
	suite.redis.Close()
}

func (suite *ServerTestSuite) SetupTest() {
	suite.NoError(suite.DataClient.Purge())
	suite.NoError(suite.CacheClient.Purge())
	suite.readCache.DeleteAll()
	suite.master.snapshot = nil
	suite.master.tasks = nil
	suite.master.scheduled = nil
}

func (suite *ServerTestSuite) marshal(v any) string {
	s, err := json.Marshal(v)
	suite.NoError(err)
	return string(s)
}

func (suite *ServerTestSuite) insertProducts() []data.Product {
	products := []data.Product{
		{ItemId: "p1", Name: suite.fake.Lorem().Word(), Category: "Shoes", Brand: "Nike", Price: 100, CreatedAt: timestamp.Add(-3 * time.Hour)},
		{ItemId: "p2", Name: suite.fake.Lorem().Word(), Category: "Shoes", Brand: "Nike", Price: 110, IsTrending: true, CreatedAt: timestamp.Add(-2 * time.Hour)},
		{ItemId: "p3", Name: suite.fake.Lorem().Word(), Category: "Shoes", Brand: "Puma", Price: 90, IsTrending: true, CreatedAt: timestamp.Add(-time.Hour)},
		{ItemId: "p4", Name: suite.fake.Lorem().Word(), Category: "Shirts", Brand: "Puma", Price: 20, CreatedAt: timestamp},
	}
	suite.NoError(suite.DataClient.BatchInsertProducts(context.Background(), products))
	return products
}

func (suite *ServerTestSuite) TestAuth() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Get("/api/status").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/status").
		Header("X-API-Key", "wrong").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func (suite *ServerTestSuite) TestInteraction() {
	t := suite.T()
	apitest.New().
		Handler(suite.handler).
		Post("/api/interaction").
		Header("X-API-Key", apiKey).
		JSON(`{"user_id":"u1","item_id":"p1","type":"purchase","weight":1,"timestamp":"2026-06-01 12:00:00"}`).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(data.Interaction{UserId: "u1", ItemId: "p1", Type: "purchase", Weight: 1, Timestamp: timestamp})).
		End()
	// merged with the existing observation
	apitest.New().
		Handler(suite.handler).
		Post("/api/interaction").
		Header("X-API-Key", apiKey).
		JSON(`{"user_id":"u1","item_id":"p1","type":"purchase","weight":3,"timestamp":"2026-06-02T12:00:00Z"}`).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(data.Interaction{UserId: "u1", ItemId: "p1", Type: "purchase", Weight: 2, Timestamp: timestamp.Add(24 * time.Hour)})).
		End()
	interactions, err := suite.DataClient.GetUserInteractions(context.Background(), "u1")
	suite.NoError(err)
	suite.Len(interactions, 1)
	suite.Equal(2.0, interactions[0].Weight)

	for _, body := range []string{
		`{"user_id":"","item_id":"p1","type":"view"}`,
		`{"user_id":"u1","item_id":"","type":"view"}`,
		`{"user_id":"u1","item_id":"p1","type":"like"}`,
		`{"user_id":"u1","item_id":"p1","type":"view","weight":-1}`,
		`{"user_id":"u1","item_id":"p1","type":"view","timestamp":"yesterday"}`,
	} {
		apitest.New().
			Handler(suite.handler).
			Post("/api/interaction").
			Header("X-API-Key", apiKey).
			JSON(body).
			Expect(t).
			Status(http.StatusBadRequest).
			End()
	}
}

func (suite *ServerTestSuite) TestRecommend() {
	t := suite.T()
	suite.insertProducts()
	// cold start users get trending products
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/u1").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal([]cache.Score{
			{Id: "p3", Score: float64(timestamp.Add(-time.Hour).Unix())},
			{Id: "p2", Score: float64(timestamp.Add(-2 * time.Hour).Unix())},
		})).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/u1").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"method": "content", "n": "1"}).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal([]cache.Score{
			{Id: "p3", Score: float64(timestamp.Add(-time.Hour).Unix())},
		})).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/recommend/u1").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"method": "random"}).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
	for _, n := range []string{"0", "-1", "ten"} {
		apitest.New().
			Handler(suite.handler).
			Get("/api/recommend/u1").
			Header("X-API-Key", apiKey).
			QueryParams(map[string]string{"n": n}).
			Expect(t).
			Status(http.StatusBadRequest).
			End()
	}
}

func (suite *ServerTestSuite) TestSimilarItems() {
	t := suite.T()
	ctx := context.Background()
	suite.insertProducts()
	suite.NoError(suite.CacheClient.ReplaceScores(ctx, cache.SimilarItems, "p1", []cache.Score{
		{Id: "p2", Score: 0.9},
		{Id: "p3", Score: 0.5},
	}))
	apitest.New().
		Handler(suite.handler).
		Get("/api/item/p1/similar").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"n": "1"}).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal([]cache.Score{{Id: "p2", Score: 0.9}})).
		End()
	// same category from the newest
	apitest.New().
		Handler(suite.handler).
		Get("/api/item/p2/similar").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal([]cache.Score{{Id: "p3", Score: 0}, {Id: "p1", Score: 0}})).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/item/p9/similar").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func (suite *ServerTestSuite) TestPreference() {
	t := suite.T()
	ctx := context.Background()
	apitest.New().
		Handler(suite.handler).
		Get("/api/user/u1/preference").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(`{"categories":[],"brands":[],"price_range":{"min":0,"max":0},"confidence":0}`).
		End()

	profile := &logics.PreferenceProfile{
		UserId:     "u1",
		Categories: []logics.WeightedName{{Name: "Shoes", Weight: 0.8}},
		Brands:     []logics.WeightedName{{Name: "Nike", Weight: 0.4}},
		UpdatedAt:  timestamp,
	}
	suite.NoError(logics.StoreProfile(ctx, suite.CacheClient, profile, logics.FeatureVector{"category_shoes": 1}))
	apitest.New().
		Handler(suite.handler).
		Get("/api/user/u1/preference").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(profile.Summary())).
		End()

	suite.NoError(suite.CacheClient.ReplaceScores(ctx, cache.SimilarUsers, "u1", []cache.Score{
		{Id: "u2", Score: 0.7},
		{Id: "u3", Score: 0.3},
	}))
	apitest.New().
		Handler(suite.handler).
		Get("/api/user/u1/similar").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"n": "1"}).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal([]cache.Score{{Id: "u2", Score: 0.7}})).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/user/u9/similar").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(`[]`).
		End()
}

func (suite *ServerTestSuite) TestSentiment() {
	t := suite.T()
	ctx := context.Background()
	summary := sentiment.Summary{
		ItemId:           "p1",
		OverallSentiment: sentiment.Positive,
		Score:            0.6,
		Confidence:       0.8,
		ReviewStats:      sentiment.ReviewStats{Total: 2, Positive: 2},
		Aspects: map[string]sentiment.AspectSummary{
			"comfort": {Aspect: "comfort", Score: 0.7, PositiveMentions: 3, TotalMentions: 3, Confidence: 0.7},
		},
		UpdatedAt: timestamp,
	}
	suite.NoError(suite.CacheClient.Set(ctx, lo.Must(cache.JSON(cache.Key(cache.ItemSentiment, "p1"), summary))))
	apitest.New().
		Handler(suite.handler).
		Get("/api/item/p1/sentiment").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(summary)).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/item/p2/sentiment").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusNotFound).
		End()

	// aspect rankings are enriched by summaries
	suite.NoError(suite.CacheClient.ReplaceScores(ctx, cache.AspectSentiment, "comfort", []cache.Score{
		{Id: "p1", Score: 0.7},
		{Id: "p2", Score: 0.2},
	}))
	apitest.New().
		Handler(suite.handler).
		Get("/api/aspect/comfort").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal([]sentiment.AspectInsight{
			{ItemId: "p1", AspectSummary: summary.Aspects["comfort"]},
			{ItemId: "p2", AspectSummary: sentiment.AspectSummary{Aspect: "comfort", Score: 0.2}},
		})).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/aspect/taste").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func (suite *ServerTestSuite) TestTopSentiment() {
	t := suite.T()
	ctx := context.Background()
	suite.NoError(suite.CacheClient.ReplaceScores(ctx, cache.SentimentRank, string(sentiment.TopPositive), []cache.Score{
		{Id: "p1", Score: 0.8},
		{Id: "p2", Score: 0.4},
	}))
	suite.NoError(suite.CacheClient.ReplaceScores(ctx, cache.SentimentRank, string(sentiment.TopNegative), []cache.Score{
		{Id: "p3", Score: 0.6},
		{Id: "p4", Score: 0.2},
	}))
	apitest.New().
		Handler(suite.handler).
		Get("/api/sentiment/top").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal([]cache.Score{{Id: "p1", Score: 0.8}, {Id: "p2", Score: 0.4}})).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/sentiment/top").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"type": "negative", "n": "1"}).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal([]cache.Score{{Id: "p3", Score: -0.6}})).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/sentiment/top").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"type": "all"}).
		Expect(t).
		Status(http.StatusOK).
		Body(`[]`).
		End()
	apitest.New().
		Handler(suite.handler).
		Get("/api/sentiment/top").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"type": "mixed"}).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func (suite *ServerTestSuite) TestInsights() {
	t := suite.T()
	ctx := context.Background()
	analyzer := sentiment.NewAnalyzer(suite.Config.Sentiment)
	insights := analyzer.Insights("p1", []data.Review{
		{ReviewId: "r1", UserId: "u1", ItemId: "p1", Stars: 5, Text: "Great shoes, very comfortable", Timestamp: timestamp},
		{ReviewId: "r2", UserId: "u2", ItemId: "p1", Stars: 4, Text: suite.fake.Lorem().Sentence(8), Timestamp: timestamp},
	}, timestamp)
	suite.NoError(suite.CacheClient.Set(ctx,
		lo.Must(cache.JSON(cache.Key(cache.ItemSentiment, "p1"), insights.Summary)),
		lo.Must(cache.JSON(cache.Key(cache.ItemTrend, "p1"), insights.Trend)),
		lo.Must(cache.JSON(cache.Key(cache.ItemRecentReviews, "p1"), insights.RecentReviews))))
	// served from the materialized values only
	suite.NoError(suite.DataClient.BatchInsertReviews(ctx, []data.Review{
		{ReviewId: "r3", UserId: "u3", ItemId: "p1", Stars: 1, Text: "awful", Timestamp: timestamp},
	}))
	apitest.New().
		Handler(suite.handler).
		Get("/api/item/p1/insights").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(insights)).
		End()
	// a summary without trend and recent reviews is incomplete
	suite.NoError(suite.CacheClient.Set(ctx, lo.Must(cache.JSON(cache.Key(cache.ItemSentiment, "p2"), insights.Summary))))
	apitest.New().
		Handler(suite.handler).
		Get("/api/item/p2/insights").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func (suite *ServerTestSuite) TestOperations() {
	t := suite.T()
	ctx := context.Background()
	suite.insertProducts()
	suite.NoError(suite.CacheClient.Set(ctx, cache.Time(cache.Key(cache.GlobalMeta, cache.LastFitFactorModelsTime), timestamp)))
	suite.master.snapshot = &logics.Snapshot{Timestamp: timestamp}
	apitest.New().
		Handler(suite.handler).
		Get("/api/status").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Assert(func(response *http.Response, _ *http.Request) error {
			var status Status
			if err := json.NewDecoder(response.Body).Decode(&status); err != nil {
				return err
			}
			if status.Products != 4 || status.SnapshotTime == nil || !status.SnapshotTime.Equal(timestamp) {
				return fmt.Errorf("unexpected status %+v", status)
			}
			if !status.LastFitFactorModelsTime.Equal(timestamp) || !status.LastUpdateSentimentTime.IsZero() {
				return fmt.Errorf("unexpected status %+v", status)
			}
			return nil
		}).
		End()

	suite.master.tasks = []task.Task{{Name: "Load dataset", Status: task.StatusComplete, Done: 1, Total: 1}}
	apitest.New().
		Handler(suite.handler).
		Get("/api/tasks").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(suite.marshal(suite.master.tasks)).
		End()

	apitest.New().
		Handler(suite.handler).
		Post("/api/recompute").
		Header("X-API-Key", apiKey).
		Expect(t).
		Status(http.StatusOK).
		Body(`{"scheduled":true,"force":false}`).
		End()
	apitest.New().
		Handler(suite.handler).
		Post("/api/recompute").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"force": "true"}).
		Expect(t).
		Status(http.StatusOK).
		Body(`{"scheduled":true,"force":true}`).
		End()
	apitest.New().
		Handler(suite.handler).
		Post("/api/recompute").
		Header("X-API-Key", apiKey).
		QueryParams(map[string]string{"force": "maybe"}).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
	suite.Equal([]bool{false, true}, suite.master.scheduled)
}

func (suite *ServerTestSuite) TestReadCache() {
	ctx := context.Background()
	suite.Config.Server.CacheExpire = time.Minute
	defer func() { suite.Config.Server.CacheExpire = 0 }()
	key := cache.Key(cache.ItemSentiment, "p1")
	suite.NoError(suite.CacheClient.Set(ctx, lo.Must(cache.JSON(key, sentiment.Summary{ItemId: "p1", Score: 0.5}))))
	var summary sentiment.Summary
	suite.NoError(suite.readThrough(ctx, key, &summary))
	suite.Equal(0.5, summary.Score)

	// served from the read cache until it expires
	suite.NoError(suite.CacheClient.Set(ctx, lo.Must(cache.JSON(key, sentiment.Summary{ItemId: "p1", Score: -0.5}))))
	suite.NoError(suite.readThrough(ctx, key, &summary))
	suite.Equal(0.5, summary.Score)
	suite.readCache.Delete(key)
	suite.NoError(suite.readThrough(ctx, key, &summary))
	suite.Equal(-0.5, summary.Score)

	// missing values are not cached
	err := suite.readThrough(ctx, cache.Key(cache.ItemSentiment, "p2"), &summary)
	suite.Error(err)
	suite.Nil(suite.readCache.Get(cache.Key(cache.ItemSentiment, "p2")))
}

func TestServer(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
