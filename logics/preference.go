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

	"github.com/gorse-io/insight/common/heap"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

type WeightedName struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PreferenceProfile is the learned taste of a user. A profile is replaced as
// a whole on every recompute.
type PreferenceProfile struct {
	UserId     string         `json:"user_id"`
	Categories []WeightedName `json:"categories"`
	Brands     []WeightedName `json:"brands"`
	PriceRange PriceRange     `json:"price_range"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// IsEmpty returns true if the profile carries no preference.
func (p *PreferenceProfile) IsEmpty() bool {
	return p == nil || (len(p.Categories) == 0 && len(p.Brands) == 0 && p.PriceRange.Max == 0)
}

// PreferenceSummary is the public view of a profile.
type PreferenceSummary struct {
	Categories []WeightedName `json:"categories"`
	Brands     []WeightedName `json:"brands"`
	PriceRange PriceRange     `json:"price_range"`
	Confidence float64        `json:"confidence"`
}

// Summary returns the profile with its confidence, the mean weight of its
// categories and brands. A nil profile has an empty summary.
func (p *PreferenceProfile) Summary() PreferenceSummary {
	summary := PreferenceSummary{Categories: []WeightedName{}, Brands: []WeightedName{}}
	if p == nil {
		return summary
	}
	summary.Categories = append(summary.Categories, p.Categories...)
	summary.Brands = append(summary.Brands, p.Brands...)
	summary.PriceRange = p.PriceRange
	weights := append(lo.Map(p.Categories, func(c WeightedName, _ int) float64 { return c.Weight }),
		lo.Map(p.Brands, func(b WeightedName, _ int) float64 { return b.Weight })...)
	if len(weights) > 0 {
		summary.Confidence = lo.Sum(weights) / float64(len(weights))
	}
	return summary
}

// PreferenceLearner aggregates decayed behaviors into preference profiles.
type PreferenceLearner struct {
	config    config.PreferenceConfig
	decayRate float64
	window    time.Duration
}

func NewPreferenceLearner(cfg *config.Config) *PreferenceLearner {
	return &PreferenceLearner{
		config:    cfg.Recommend.Preference,
		decayRate: cfg.Recommend.DecayRate,
		window:    cfg.Master.StalenessWindow,
	}
}

// IsStale returns true if a profile updated at updatedAt should be rebuilt.
func (l *PreferenceLearner) IsStale(updatedAt, now time.Time) bool {
	return updatedAt.IsZero() || now.Sub(updatedAt) >= l.window
}

// Learn builds the profile of a user from the behavior history. Behaviors on
// products missing from the catalog are ignored.
func (l *PreferenceLearner) Learn(userId string, history []data.Interaction, stats *CatalogStats, now time.Time) *PreferenceProfile {
	profile := &PreferenceProfile{
		UserId:     userId,
		Categories: []WeightedName{},
		Brands:     []WeightedName{},
		UpdatedAt:  now,
	}
	categoryScores := make(map[string]float64)
	brandScores := make(map[string]float64)
	var prices, priceWeights []float64
	for _, interaction := range history {
		product, ok := stats.Product(interaction.ItemId)
		if !ok {
			continue
		}
		base, ok := dataset.BaseWeight[dataset.BehaviorType(interaction.Type)]
		if !ok {
			continue
		}
		score := base * math.Pow(l.decayRate, float64(dataset.AgeDays(interaction.Timestamp, now)))
		if product.Category != "" {
			categoryScores[product.Category] += score
		}
		if product.Brand != "" {
			brandScores[product.Brand] += score
		}
		if price := product.EffectivePrice(); price > 0 {
			prices = append(prices, price)
			priceWeights = append(priceWeights, score)
		}
	}
	profile.Categories = topPreferences(categoryScores, l.config.TopCategories, l.config.MinScore)
	profile.Brands = topPreferences(brandScores, l.config.TopBrands, l.config.MinScore)
	if len(prices) > 0 {
		var weightedSum, weightSum float64
		for i, price := range prices {
			weightedSum += price * priceWeights[i]
			weightSum += priceWeights[i]
		}
		if weightSum > 0 {
			mean := weightedSum / weightSum
			spread := (lo.Max(prices) - lo.Min(prices)) / 2
			profile.PriceRange = PriceRange{Min: max(0, mean-spread), Max: max(0, mean+spread)}
		}
	}
	return profile
}

// topPreferences keeps the top n names scoring above minScore. Weights are
// min(score/10, 1).
func topPreferences(scores map[string]float64, n int, minScore float64) []WeightedName {
	filter := heap.NewTopKFilter[string, float64](n)
	for name, score := range scores {
		if score > minScore {
			filter.Push(name, score)
		}
	}
	return lo.Map(filter.PopAll(), func(elem heap.Elem[string, float64], _ int) WeightedName {
		return WeightedName{Name: elem.Value, Weight: min(elem.Weight/10, 1)}
	})
}

func profileVector(profile *PreferenceProfile) FeatureVector {
	vector := make(FeatureVector)
	if profile == nil {
		return vector
	}
	for _, category := range profile.Categories {
		vector.Set("category_"+Slug(category.Name), category.Weight)
	}
	for _, brand := range profile.Brands {
		vector.Set("brand_"+Slug(brand.Name), brand.Weight)
	}
	return vector
}

// ProfileSimilarity is the cosine between the category and brand weights of
// two profiles over full norms.
func ProfileSimilarity(a, b *PreferenceProfile) float64 {
	x, y := profileVector(a), profileVector(b)
	var dot, normX, normY float64
	for key, value := range x {
		dot += value * y[key]
		normX += value * value
	}
	for _, value := range y {
		normY += value * value
	}
	if normX == 0 || normY == 0 {
		return 0
	}
	return clampSimilarity(dot / (math.Sqrt(normX) * math.Sqrt(normY)))
}

// SimilarUsers ranks candidate profiles by their similarity with a profile.
// The user itself and candidates without a shared preference are skipped.
func SimilarUsers(profile *PreferenceProfile, candidates []*PreferenceProfile, n int) []cache.Score {
	if profile.IsEmpty() {
		return nil
	}
	filter := heap.NewTopKFilter[string, float64](n)
	for _, candidate := range candidates {
		if candidate == nil || candidate.UserId == profile.UserId {
			continue
		}
		if score := ProfileSimilarity(profile, candidate); score > 0 {
			filter.Push(candidate.UserId, score)
		}
	}
	return elemsToScores(filter.PopAll())
}

// LoadProfile reads the materialized profile of a user. It returns nil if the
// user has no profile.
func LoadProfile(ctx context.Context, cacheClient cache.Database, userId string) (*PreferenceProfile, error) {
	var profile PreferenceProfile
	if err := cacheClient.Get(ctx, cache.Key(cache.UserProfile, userId)).JSON(&profile); err != nil {
		if errors.Is(err, errors.NotFound) {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}
	return &profile, nil
}

// LoadPreferenceVector reads the materialized preference vector of a user. It
// returns nil if the user has no vector.
func LoadPreferenceVector(ctx context.Context, cacheClient cache.Database, userId string) (FeatureVector, error) {
	var vector FeatureVector
	if err := cacheClient.Get(ctx, cache.Key(cache.UserFeatures, userId)).JSON(&vector); err != nil {
		if errors.Is(err, errors.NotFound) {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}
	return vector, nil
}

// StoreProfile replaces the profile and the preference vector of a user.
func StoreProfile(ctx context.Context, cacheClient cache.Database, profile *PreferenceProfile, vector FeatureVector) error {
	profileValue, err := cache.JSON(cache.Key(cache.UserProfile, profile.UserId), profile)
	if err != nil {
		return errors.Trace(err)
	}
	vectorValue, err := cache.JSON(cache.Key(cache.UserFeatures, profile.UserId), vector)
	if err != nil {
		return errors.Trace(err)
	}
	return cacheClient.Set(ctx, profileValue, vectorValue,
		cache.Time(cache.Key(cache.LastUpdate, cache.UserProfile, profile.UserId), profile.UpdatedAt))
}
