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
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/sentiment"
	"github.com/gorse-io/insight/storage/data"
	"github.com/samber/lo"
)

// FeatureVector is a sparse vector of features in [0, 1]. Keys are namespaced
// by a family prefix, such as style_casual or price_range_budget. Unknown keys
// are kept as they are.
type FeatureVector map[string]float64

// Set stores a feature clamped to [0, 1]. Zero features are omitted since they
// never contribute to a similarity.
func (v FeatureVector) Set(key string, value float64) {
	if math.IsNaN(value) {
		return
	}
	value = max(0, min(1, value))
	if value == 0 {
		delete(v, key)
		return
	}
	v[key] = value
}

// Keys returns feature names in ascending order.
func (v FeatureVector) Keys() []string {
	keys := lo.Keys(v)
	sort.Strings(keys)
	return keys
}

// Similarity is the cosine between two vectors over their shared keys. It is 0
// if there is no shared key or a restricted norm is 0.
func Similarity(a, b FeatureVector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot, normA, normB float64
	for _, key := range a.Keys() {
		y, ok := b[key]
		if !ok {
			continue
		}
		x := a[key]
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return clampSimilarity(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

type reviewStats struct {
	count    int
	stars    int
	positive int
	negative int
}

// CatalogStats holds catalog wide aggregates used to normalize product features.
type CatalogStats struct {
	products          map[string]data.Product
	avgPrice          float64
	categoryCounts    map[string]int
	avgCategoryCount  float64
	brandCounts       map[string]int
	avgBrandCount     float64
	reviews           map[string]reviewStats
	avgReviewCount    float64
	behaviorCounts    map[string]map[dataset.BehaviorType]int
	avgBehaviorCounts map[dataset.BehaviorType]float64
	totalBehaviors    map[string]int
	avgTotalBehaviors float64
}

func NewCatalogStats(products []data.Product, reviews []data.Review, interactions []data.Interaction) *CatalogStats {
	stats := &CatalogStats{
		products:          make(map[string]data.Product, len(products)),
		categoryCounts:    make(map[string]int),
		brandCounts:       make(map[string]int),
		reviews:           make(map[string]reviewStats),
		behaviorCounts:    make(map[string]map[dataset.BehaviorType]int),
		avgBehaviorCounts: make(map[dataset.BehaviorType]float64),
		totalBehaviors:    make(map[string]int),
	}
	var totalPrice float64
	for _, product := range products {
		stats.products[product.ItemId] = product
		totalPrice += product.Price
		if product.Category != "" {
			stats.categoryCounts[product.Category]++
		}
		if product.Brand != "" {
			stats.brandCounts[product.Brand]++
		}
	}
	if len(products) > 0 {
		stats.avgPrice = totalPrice / float64(len(products))
	}
	stats.avgCategoryCount = average(lo.Values(stats.categoryCounts))
	stats.avgBrandCount = average(lo.Values(stats.brandCounts))

	for _, review := range reviews {
		s := stats.reviews[review.ItemId]
		s.count++
		s.stars += review.Stars
		if review.Stars >= 4 {
			s.positive++
		} else if review.Stars <= 2 {
			s.negative++
		}
		stats.reviews[review.ItemId] = s
	}
	if len(products) > 0 {
		stats.avgReviewCount = float64(len(reviews)) / float64(len(products))
	}

	itemsPerType := make(map[dataset.BehaviorType]int)
	for _, interaction := range interactions {
		typ := dataset.BehaviorType(interaction.Type)
		counts, exist := stats.behaviorCounts[interaction.ItemId]
		if !exist {
			counts = make(map[dataset.BehaviorType]int)
			stats.behaviorCounts[interaction.ItemId] = counts
		}
		if counts[typ] == 0 {
			itemsPerType[typ]++
		}
		counts[typ]++
		stats.totalBehaviors[interaction.ItemId]++
	}
	typeTotals := make(map[dataset.BehaviorType]int)
	for _, counts := range stats.behaviorCounts {
		for typ, count := range counts {
			typeTotals[typ] += count
		}
	}
	for typ, total := range typeTotals {
		stats.avgBehaviorCounts[typ] = float64(total) / float64(itemsPerType[typ])
	}
	stats.avgTotalBehaviors = average(lo.Values(stats.totalBehaviors))
	return stats
}

func average(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	return float64(lo.Sum(values)) / float64(len(values))
}

// ratio returns count / avg capped at 1, or 0 if avg is 0.
func ratio(count int, avg float64) float64 {
	if avg <= 0 {
		return 0
	}
	return min(1, float64(count)/avg)
}

// Product returns a product in the catalog.
func (s *CatalogStats) Product(itemId string) (data.Product, bool) {
	if s == nil {
		return data.Product{}, false
	}
	product, ok := s.products[itemId]
	return product, ok
}

// Products returns products ordered by item id.
func (s *CatalogStats) Products() []data.Product {
	if s == nil {
		return nil
	}
	products := lo.Values(s.products)
	sort.Slice(products, func(i, j int) bool {
		return products[i].ItemId < products[j].ItemId
	})
	return products
}

// ExtractProductFeatures builds the content feature vector of a product.
func ExtractProductFeatures(product data.Product, stats *CatalogStats, now time.Time) FeatureVector {
	features := make(FeatureVector)

	// text
	text := product.Name + " " + product.Description
	tokens := mapset.NewSet(sentiment.Tokenize(text)...)
	for _, family := range textFamilies {
		for _, word := range family.words {
			if tokens.Contains(word) {
				features.Set(family.name+"_"+word, 1)
			}
		}
	}
	features.Set("text_sentiment_positive", (sentiment.Polarity(text)+1)/2)
	features.Set("text_complexity", float64(len(strings.Fields(text)))/100)

	// price
	price := product.EffectivePrice()
	features.Set("price_range_"+PriceBucket(price), 1)
	if product.DiscountedPrice > 0 && product.DiscountedPrice < product.Price {
		features.Set("has_discount", 1)
		features.Set("discount_percent", (product.Price-product.DiscountedPrice)/product.Price)
	}
	if price > 0 {
		features.Set("price_competitiveness", stats.avgPrice/price)
	} else {
		features.Set("price_competitiveness", 1)
	}

	// category and brand
	if product.Category != "" {
		features.Set("category_"+Slug(product.Category), 1)
		features.Set("category_popularity", ratio(stats.categoryCounts[product.Category], stats.avgCategoryCount))
	}
	if product.Brand != "" {
		features.Set("brand_"+Slug(product.Brand), 1)
		features.Set("brand_popularity", ratio(stats.brandCounts[product.Brand], stats.avgBrandCount))
	} else {
		features.Set("brand_unknown", 1)
	}

	// flags
	features.Set("is_trending", lo.Ternary(product.IsTrending, 1.0, 0.0))
	features.Set("is_newest", lo.Ternary(product.IsNewest, 1.0, 0.0))
	features.Set("is_men", lo.Ternary(product.ForMen, 1.0, 0.0))
	features.Set("is_women", lo.Ternary(product.ForWomen, 1.0, 0.0))
	features.Set("color_variants", float64(product.ColorVariants)/10)
	features.Set("size_variants", float64(product.SizeVariants)/10)

	// reviews
	if reviews, ok := stats.reviews[product.ItemId]; ok && reviews.count > 0 {
		n := float64(reviews.count)
		features.Set("avg_rating", float64(reviews.stars)/n/5)
		features.Set("review_popularity", ratio(reviews.count, stats.avgReviewCount))
		features.Set("positive_review_ratio", float64(reviews.positive)/n)
		features.Set("negative_review_ratio", float64(reviews.negative)/n)
	}

	// behaviors
	for typ, count := range stats.behaviorCounts[product.ItemId] {
		features.Set("behavior_"+string(typ), ratio(count, stats.avgBehaviorCounts[typ]))
	}
	features.Set("total_behavior_popularity", ratio(stats.totalBehaviors[product.ItemId], stats.avgTotalBehaviors))

	// time
	features.Set("product_age", 1-float64(dataset.AgeDays(product.CreatedAt, now))/365)
	features.Set("seasonal_"+Season(int(now.Month())), 1)
	return features
}

const (
	prefCategoryPrefix      = "pref_category_"
	prefBrandPrefix         = "pref_brand_"
	prefCategorySharePrefix = "pref_category_share_"
	prefBrandSharePrefix    = "pref_brand_share_"
	prefBehaviorPrefix      = "pref_behavior_"
	prefAvgPrice            = "pref_avg_price"
	prefPriceRange          = "pref_price_range"

	// priceScale normalizes prices in preference vectors.
	priceScale = 10000
)

// BuildUserPreferenceVector combines the preference profile of a user with
// aggregates of the behavior history.
func BuildUserPreferenceVector(profile *PreferenceProfile, history []data.Interaction, stats *CatalogStats) FeatureVector {
	vector := make(FeatureVector)
	if profile != nil {
		for _, category := range profile.Categories {
			vector.Set(prefCategoryPrefix+Slug(category.Name), category.Weight)
		}
		for _, brand := range profile.Brands {
			vector.Set(prefBrandPrefix+Slug(brand.Name), brand.Weight)
		}
	}
	if len(history) == 0 {
		return vector
	}

	var prices []float64
	categoryCounts := make(map[string]int)
	brandCounts := make(map[string]int)
	behaviorCounts := make(map[string]int)
	for _, interaction := range history {
		behaviorCounts[interaction.Type]++
		product, ok := stats.Product(interaction.ItemId)
		if !ok {
			continue
		}
		prices = append(prices, product.EffectivePrice())
		if product.Category != "" {
			categoryCounts[product.Category]++
		}
		if product.Brand != "" {
			brandCounts[product.Brand]++
		}
	}
	if len(prices) > 0 {
		vector.Set(prefAvgPrice, lo.Sum(prices)/float64(len(prices))/priceScale)
		vector.Set(prefPriceRange, (lo.Max(prices)-lo.Min(prices))/priceScale)
	}
	n := float64(len(history))
	for category, count := range categoryCounts {
		vector.Set(prefCategorySharePrefix+Slug(category), float64(count)/n)
	}
	for brand, count := range brandCounts {
		vector.Set(prefBrandSharePrefix+Slug(brand), float64(count)/n)
	}
	for typ, count := range behaviorCounts {
		vector.Set(prefBehaviorPrefix+typ, float64(count)/n)
	}
	return vector
}

// ItemSpace projects a preference vector onto product feature keys so that the
// two can be compared. Preferred categories and brands map to category_ and
// brand_ features, falling back to interaction shares when the profile has
// none. The preferred price maps to a price_range_ bucket.
func ItemSpace(preference FeatureVector, profile *PreferenceProfile) FeatureVector {
	projected := make(FeatureVector)
	for _, key := range preference.Keys() {
		value := preference[key]
		switch {
		case strings.HasPrefix(key, prefCategorySharePrefix), strings.HasPrefix(key, prefBrandSharePrefix):
		case strings.HasPrefix(key, prefCategoryPrefix):
			projected.Set("category_"+strings.TrimPrefix(key, prefCategoryPrefix), value)
		case strings.HasPrefix(key, prefBrandPrefix):
			projected.Set("brand_"+strings.TrimPrefix(key, prefBrandPrefix), value)
		}
	}
	for _, key := range preference.Keys() {
		value := preference[key]
		if slug, ok := strings.CutPrefix(key, prefCategorySharePrefix); ok {
			if _, exist := projected["category_"+slug]; !exist {
				projected.Set("category_"+slug, value)
			}
		} else if slug, ok := strings.CutPrefix(key, prefBrandSharePrefix); ok {
			if _, exist := projected["brand_"+slug]; !exist {
				projected.Set("brand_"+slug, value)
			}
		}
	}
	if profile != nil && profile.PriceRange.Max > 0 {
		projected.Set("price_range_"+PriceBucket((profile.PriceRange.Min+profile.PriceRange.Max)/2), 1)
	} else if avg, ok := preference[prefAvgPrice]; ok && avg < 1 {
		projected.Set("price_range_"+PriceBucket(avg*priceScale), 1)
	}
	return projected
}
