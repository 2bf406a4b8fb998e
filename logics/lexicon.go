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
	"strings"
	"unicode"
)

// featureFamily is a namespace of text features. A product whose name or
// description contains a word gets the feature <family>_<word>.
type featureFamily struct {
	name  string
	words []string
}

var textFamilies = []featureFamily{
	{"style", []string{"casual", "formal", "sporty", "elegant", "trendy", "classic", "modern", "vintage", "minimalist", "bold", "sophisticated"}},
	{"occasion", []string{"work", "party", "casual", "sports", "outdoor", "indoor", "travel", "gym", "running", "walking", "dancing", "hiking"}},
	{"comfort", []string{"comfortable", "cushioned", "breathable", "lightweight", "flexible", "supportive", "soft", "durable", "waterproof"}},
	{"material", []string{"leather", "canvas", "mesh", "synthetic", "rubber", "suede", "nylon", "polyester", "cotton", "wool", "denim", "velvet"}},
	{"color", []string{"black", "white", "brown", "blue", "red", "green", "yellow", "pink", "purple", "orange", "gray", "navy", "beige", "cream"}},
}

type priceBucket struct {
	name  string
	upper float64
}

// priceLadder buckets effective prices. Upper bounds are inclusive.
var priceLadder = []priceBucket{
	{"budget", 1000},
	{"affordable", 3000},
	{"mid_range", 7000},
	{"premium", 15000},
	{"luxury", math.Inf(1)},
}

// PriceBucket returns the bucket name of a price.
func PriceBucket(price float64) string {
	for _, bucket := range priceLadder {
		if price <= bucket.upper {
			return bucket.name
		}
	}
	return priceLadder[len(priceLadder)-1].name
}

// Season of a month on the northern hemisphere.
func Season(month int) string {
	switch month {
	case 12, 1, 2:
		return "winter"
	case 3, 4, 5:
		return "spring"
	case 6, 7, 8:
		return "summer"
	default:
		return "fall"
	}
}

// Slug lowercases a name and joins its words by underscores.
func Slug(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "_")
}
