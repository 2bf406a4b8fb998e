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

	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/storage/data"
	"github.com/stretchr/testify/assert"
)

func TestPreferenceLearner(t *testing.T) {
	products := []data.Product{
		{ItemId: "p1", Category: "Sneakers", Brand: "Nike", Price: 4000, DiscountedPrice: 3000},
		{ItemId: "p2", Category: "Boots", Price: 20000},
		{ItemId: "p3", Category: "Sneakers", Brand: "Adidas", Price: 5000},
	}
	stats := NewCatalogStats(products, nil, nil)
	old := interaction("u1", "p2", dataset.View)
	old.Timestamp = now.Add(-10 * 24 * time.Hour)
	history := []data.Interaction{
		interaction("u1", "p1", dataset.Purchase),
		interaction("u1", "p3", dataset.View),
		old,
		interaction("u1", "missing", dataset.Purchase),
	}
	learner := NewPreferenceLearner(config.GetDefaultConfig())
	profile := learner.Learn("u1", history, stats, now)
	decay := math.Pow(0.95, 10)

	assert.Equal(t, "u1", profile.UserId)
	assert.Equal(t, now, profile.UpdatedAt)
	assert.Len(t, profile.Categories, 2)
	assert.Equal(t, WeightedName{Name: "Sneakers", Weight: 0.6}, profile.Categories[0])
	assert.Equal(t, "Boots", profile.Categories[1].Name)
	assert.InDelta(t, decay/10, profile.Categories[1].Weight, 1e-12)
	assert.Equal(t, []WeightedName{{Name: "Nike", Weight: 0.5}, {Name: "Adidas", Weight: 0.1}}, profile.Brands)
	mean := (3000*5 + 5000 + 20000*decay) / (6 + decay)
	assert.Zero(t, profile.PriceRange.Min)
	assert.InDelta(t, mean+8500, profile.PriceRange.Max, 1e-6)

	summary := profile.Summary()
	assert.InDelta(t, (0.6+decay/10+0.5+0.1)/4, summary.Confidence, 1e-12)
	assert.Equal(t, profile.Categories, summary.Categories)

	// empty history
	profile = learner.Learn("u2", nil, stats, now)
	assert.True(t, profile.IsEmpty())
	assert.Zero(t, profile.Summary().Confidence)
	assert.NotNil(t, profile.Summary().Brands)
}

func TestPreferenceLearnerTopN(t *testing.T) {
	var products []data.Product
	var history []data.Interaction
	for _, category := range []string{"a", "b", "c", "d", "e", "f"} {
		products = append(products, data.Product{ItemId: category, Category: category, Brand: category})
		history = append(history, interaction("u1", category, dataset.View))
	}
	history = append(history, interaction("u1", "f", dataset.Purchase))
	learner := NewPreferenceLearner(config.GetDefaultConfig())
	profile := learner.Learn("u1", history, NewCatalogStats(products, nil, nil), now)
	assert.Equal(t, []string{"f", "a", "b", "c", "d"}, sortedWeightedNames(profile.Categories))
	assert.Equal(t, []string{"f", "a", "b"}, sortedWeightedNames(profile.Brands))

	// stale behaviors fall under the minimum score
	old := interaction("u1", "a", dataset.View)
	old.Timestamp = now.Add(-60 * 24 * time.Hour)
	profile = learner.Learn("u1", []data.Interaction{old}, NewCatalogStats(products, nil, nil), now)
	assert.Empty(t, profile.Categories)
}

func sortedWeightedNames(names []WeightedName) []string {
	result := make([]string, len(names))
	for i, name := range names {
		result[i] = name.Name
	}
	return result
}

func TestPreferenceLearnerIsStale(t *testing.T) {
	learner := NewPreferenceLearner(config.GetDefaultConfig())
	assert.True(t, learner.IsStale(time.Time{}, now))
	assert.False(t, learner.IsStale(now.Add(-24*time.Hour), now))
	assert.True(t, learner.IsStale(now.Add(-7*24*time.Hour), now))
}

func TestSimilarUsers(t *testing.T) {
	a := &PreferenceProfile{UserId: "a", Categories: []WeightedName{{"Sneakers", 0.6}}, Brands: []WeightedName{{"Nike", 0.5}}}
	b := &PreferenceProfile{UserId: "b", Categories: []WeightedName{{"Sneakers", 0.6}}, Brands: []WeightedName{{"Nike", 0.5}}}
	c := &PreferenceProfile{UserId: "c", Categories: []WeightedName{{"Sneakers", 0.6}, {"Boots", 0.6}}}
	d := &PreferenceProfile{UserId: "d", Categories: []WeightedName{{"Sandals", 1}}}
	assert.InDelta(t, 1.0, ProfileSimilarity(a, b), 1e-12)
	assert.Equal(t, ProfileSimilarity(a, c), ProfileSimilarity(c, a))
	assert.Zero(t, ProfileSimilarity(a, d))
	assert.Zero(t, ProfileSimilarity(a, nil))

	scores := SimilarUsers(a, []*PreferenceProfile{a, b, c, d, nil}, 10)
	assert.Equal(t, []string{"b", "c"}, ids(scores))
	assert.Len(t, SimilarUsers(a, []*PreferenceProfile{b, c}, 1), 1)
	assert.Empty(t, SimilarUsers(&PreferenceProfile{UserId: "e"}, []*PreferenceProfile{a}, 10))
}
