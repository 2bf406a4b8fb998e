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
	"math"
	"testing"
	"time"

	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/storage/data"
	"github.com/stretchr/testify/assert"
)

func TestFeatureVectorSet(t *testing.T) {
	v := make(FeatureVector)
	v.Set("a", 2)
	v.Set("b", -1)
	v.Set("c", 0.3)
	v.Set("c", 0)
	assert.Equal(t, FeatureVector{"a": 1}, v)
	assert.Equal(t, []string{"a"}, v.Keys())
}

func TestSimilarity(t *testing.T) {
	a := FeatureVector{"style_casual": 1, "price_range_budget": 1, "avg_rating": 0.8}
	b := FeatureVector{"style_casual": 1, "avg_rating": 0.2, "brand_nike": 1}
	assert.InDelta(t, 1.0, Similarity(a, a), 1e-12)
	assert.Equal(t, Similarity(a, b), Similarity(b, a))
	assert.InDelta(t, 1.16/(math.Sqrt(1.64)*math.Sqrt(1.04)), Similarity(a, b), 1e-12)
	// disjoint keys
	assert.Zero(t, Similarity(a, FeatureVector{"brand_nike": 1}))
	assert.Zero(t, Similarity(a, FeatureVector{}))
	assert.Zero(t, Similarity(nil, nil))
}

func testCatalog() ([]data.Product, []data.Review, []data.Interaction) {
	products := []data.Product{
		{
			ItemId:          "p1",
			Name:            "Classic Leather Sneakers",
			Description:     "Comfortable black shoes for casual walking",
			Category:        "Sneakers",
			Brand:           "Nike",
			Price:           4000,
			DiscountedPrice: 3000,
			IsTrending:      true,
			CreatedAt:       now.Add(-73 * 24 * time.Hour),
		},
		{
			ItemId:    "p2",
			Name:      "Boot",
			Category:  "Boots",
			Price:     20000,
			CreatedAt: now.Add(-400 * 24 * time.Hour),
		},
	}
	reviews := []data.Review{
		{ReviewId: "r1", ItemId: "p1", Stars: 5},
		{ReviewId: "r2", ItemId: "p1", Stars: 4},
		{ReviewId: "r3", ItemId: "p1", Stars: 1},
	}
	interactions := []data.Interaction{
		interaction("u1", "p1", dataset.View),
		interaction("u2", "p1", dataset.View),
		interaction("u1", "p2", dataset.Purchase),
	}
	return products, reviews, interactions
}

func TestExtractProductFeatures(t *testing.T) {
	products, reviews, interactions := testCatalog()
	stats := NewCatalogStats(products, reviews, interactions)

	features := ExtractProductFeatures(products[0], stats, now)
	for _, key := range []string{
		"style_classic", "style_casual", "occasion_casual", "occasion_walking", "material_leather",
		"comfort_comfortable", "color_black", "price_range_affordable", "has_discount",
		"category_sneakers", "brand_nike", "is_trending", "seasonal_summer",
	} {
		assert.Equal(t, 1.0, features[key], key)
	}
	assert.NotContains(t, features, "is_newest")
	assert.NotContains(t, features, "brand_unknown")
	assert.InDelta(t, 0.25, features["discount_percent"], 1e-12)
	assert.Equal(t, 1.0, features["price_competitiveness"])
	assert.Equal(t, 1.0, features["category_popularity"])
	assert.Equal(t, 1.0, features["brand_popularity"])
	assert.InDelta(t, 10.0/3/5, features["avg_rating"], 1e-12)
	assert.Equal(t, 1.0, features["review_popularity"])
	assert.InDelta(t, 2.0/3, features["positive_review_ratio"], 1e-12)
	assert.InDelta(t, 1.0/3, features["negative_review_ratio"], 1e-12)
	assert.Equal(t, 1.0, features["behavior_view"])
	assert.Equal(t, 1.0, features["total_behavior_popularity"])
	assert.InDelta(t, 0.8, features["product_age"], 1e-12)
	assert.InDelta(t, 0.09, features["text_complexity"], 1e-12)
	assert.InDelta(t, 0.85, features["text_sentiment_positive"], 1e-12)
	for _, value := range features {
		assert.Greater(t, value, 0.0)
		assert.LessOrEqual(t, value, 1.0)
	}

	features = ExtractProductFeatures(products[1], stats, now)
	assert.Equal(t, 1.0, features["price_range_luxury"])
	assert.Equal(t, 1.0, features["brand_unknown"])
	assert.Equal(t, 1.0, features["category_boots"])
	assert.Equal(t, 1.0, features["behavior_purchase"])
	assert.InDelta(t, 0.6, features["price_competitiveness"], 1e-12)
	assert.InDelta(t, 1/1.5, features["total_behavior_popularity"], 1e-12)
	assert.NotContains(t, features, "has_discount")
	assert.NotContains(t, features, "avg_rating")
	assert.NotContains(t, features, "product_age")
}

func TestPriceBucket(t *testing.T) {
	assert.Equal(t, "budget", PriceBucket(0))
	assert.Equal(t, "budget", PriceBucket(1000))
	assert.Equal(t, "affordable", PriceBucket(1000.5))
	assert.Equal(t, "mid_range", PriceBucket(7000))
	assert.Equal(t, "premium", PriceBucket(15000))
	assert.Equal(t, "luxury", PriceBucket(15001))
	assert.Equal(t, "winter", Season(1))
	assert.Equal(t, "fall", Season(10))
	assert.Equal(t, "running_shoes", Slug("Running  Shoes!"))
}

func TestBuildUserPreferenceVector(t *testing.T) {
	products, reviews, interactions := testCatalog()
	stats := NewCatalogStats(products, reviews, interactions)
	profile := &PreferenceProfile{
		Categories: []WeightedName{{Name: "Sneakers", Weight: 0.8}},
		Brands:     []WeightedName{{Name: "Nike", Weight: 0.5}},
	}
	history := []data.Interaction{
		interaction("u1", "p1", dataset.View),
		interaction("u1", "p2", dataset.Purchase),
	}
	vector := BuildUserPreferenceVector(profile, history, stats)
	assert.Equal(t, FeatureVector{
		"pref_category_sneakers":       0.8,
		"pref_brand_nike":              0.5,
		"pref_avg_price":               1,
		"pref_price_range":             1,
		"pref_category_share_sneakers": 0.5,
		"pref_category_share_boots":    0.5,
		"pref_brand_share_nike":        0.5,
		"pref_behavior_view":           0.5,
		"pref_behavior_purchase":       0.5,
	}, vector)

	vector = BuildUserPreferenceVector(nil, history[:1], stats)
	assert.InDelta(t, 0.3, vector["pref_avg_price"], 1e-12)
	assert.NotContains(t, vector, "pref_price_range")
	assert.Empty(t, BuildUserPreferenceVector(nil, nil, stats))
}

func TestItemSpace(t *testing.T) {
	preference := FeatureVector{
		"pref_category_sneakers":       0.8,
		"pref_brand_nike":              0.5,
		"pref_category_share_boots":    0.3,
		"pref_category_share_sneakers": 0.6,
		"pref_avg_price":               0.25,
		"pref_behavior_view":           1,
	}
	assert.Equal(t, FeatureVector{
		"category_sneakers":      0.8,
		"brand_nike":             0.5,
		"category_boots":         0.3,
		"price_range_affordable": 1,
	}, ItemSpace(preference, nil))

	projected := ItemSpace(preference, &PreferenceProfile{PriceRange: PriceRange{Min: 2000, Max: 10000}})
	assert.Equal(t, 1.0, projected["price_range_mid_range"])
	assert.NotContains(t, projected, "price_range_affordable")
}
