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

package sentiment

import (
	"strings"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

type aspectLexicon struct {
	name     string
	keywords []string
	positive []string
	negative []string
}

var aspects = []aspectLexicon{
	{
		name:     "comfort",
		keywords: []string{"comfort", "comfortable", "cushion", "cushioned", "soft", "support", "supportive"},
		positive: []string{"comfortable", "soft", "cushioned", "supportive", "cozy", "pleasant"},
		negative: []string{"uncomfortable", "hard", "stiff", "painful", "rough", "irritating"},
	},
	{
		name:     "quality",
		keywords: []string{"quality", "durable", "durability", "well-made", "sturdy", "solid", "reliable"},
		positive: []string{"excellent", "great", "good", "durable", "sturdy", "reliable", "solid"},
		negative: []string{"poor", "bad", "cheap", "flimsy", "weak", "unreliable", "broken"},
	},
	{
		name:     "style",
		keywords: []string{"style", "stylish", "fashion", "fashionable", "look", "appearance", "design"},
		positive: []string{"stylish", "fashionable", "beautiful", "attractive", "elegant", "modern"},
		negative: []string{"ugly", "unattractive", "outdated", "unfashionable", "boring", "plain"},
	},
	{
		name:     "fit",
		keywords: []string{"fit", "fitting", "size", "sizing", "tight", "loose", "perfect fit"},
		positive: []string{"perfect", "ideal", "comfortable", "well-fitting", "snug", "appropriate"},
		negative: []string{"loose", "tight", "uncomfortable", "ill-fitting", "wrong size", "awkward"},
	},
	{
		name:     "price",
		keywords: []string{"price", "expensive", "cheap", "affordable", "value", "worth", "cost"},
		positive: []string{"affordable", "reasonable", "worth", "value", "cheap", "inexpensive"},
		negative: []string{"expensive", "overpriced", "costly", "pricey", "unaffordable", "waste"},
	},
	{
		name:     "material",
		keywords: []string{"material", "leather", "canvas", "mesh", "synthetic", "fabric"},
		positive: []string{"premium", "quality", "durable", "soft", "breathable", "comfortable"},
		negative: []string{"cheap", "poor", "rough", "uncomfortable", "stiff", "low-quality"},
	},
	{
		name:     "performance",
		keywords: []string{"performance", "grip", "traction", "breathable", "waterproof"},
		positive: []string{"excellent", "great", "effective", "efficient", "reliable", "consistent"},
		negative: []string{"poor", "bad", "ineffective", "unreliable", "inconsistent", "failing"},
	},
	{
		name:     "brand",
		keywords: []string{"brand", "nike", "adidas", "puma", "reebok", "brand quality"},
		positive: []string{"trusted", "reliable", "quality", "premium", "famous", "popular"},
		negative: []string{"unreliable", "poor", "cheap", "unknown", "untrusted", "bad"},
	},
	{
		name:     "delivery",
		keywords: []string{"delivery", "shipping", "fast", "slow", "packaging", "arrived"},
		positive: []string{"fast", "quick", "efficient", "on-time", "prompt", "reliable"},
		negative: []string{"slow", "late", "delayed", "poor", "unreliable", "problematic"},
	},
	{
		name:     "service",
		keywords: []string{"service", "customer service", "support", "helpful", "responsive"},
		positive: []string{"helpful", "responsive", "friendly", "professional", "excellent", "great"},
		negative: []string{"unhelpful", "unresponsive", "rude", "poor", "bad", "terrible"},
	},
}

// Aspects lists the product attributes sentiment is attributed to.
var Aspects = lo.Map(aspects, func(a aspectLexicon, _ int) string { return a.name })

func IsAspect(name string) bool {
	return lo.Contains(Aspects, name)
}

func ParseAspect(name string) (string, error) {
	if !IsAspect(name) {
		return "", errors.NotValidf("aspect %q", name)
	}
	return name, nil
}

// Mention is an aspect mentioned by a review.
type Mention struct {
	Aspect   string
	Positive int
	Negative int
}

// Polarity of a mention in [-1, 1].
func (m Mention) Polarity() float64 {
	if m.Positive+m.Negative == 0 {
		return 0
	}
	return float64(m.Positive-m.Negative) / float64(m.Positive+m.Negative)
}

// Confidence grows with the number of opinion words.
func (m Mention) Confidence() float64 {
	return min(1, float64(m.Positive+m.Negative)/5)
}

// phrase is a text normalized for whole word and phrase lookups.
type phrase string

func newPhrase(text string) phrase {
	return phrase(" " + strings.Join(Tokenize(text), " ") + " ")
}

func (p phrase) contains(word string) bool {
	return strings.Contains(string(p), " "+word+" ")
}

func (p phrase) count(words []string) int {
	return lo.CountBy(words, p.contains)
}

// DetectAspects finds aspects mentioned in a text. For each mentioned aspect
// the opinion words of that aspect are counted.
func DetectAspects(text string) []Mention {
	p := newPhrase(text)
	var mentions []Mention
	for _, aspect := range aspects {
		if !lo.SomeBy(aspect.keywords, p.contains) {
			continue
		}
		mentions = append(mentions, Mention{
			Aspect:   aspect.name,
			Positive: p.count(aspect.positive),
			Negative: p.count(aspect.negative),
		})
	}
	return mentions
}

// AspectSummary aggregates the mentions of an aspect over reviews.
type AspectSummary struct {
	Aspect           string  `json:"aspect"`
	Score            float64 `json:"sentiment_score"`
	PositiveMentions int     `json:"positive_mentions"`
	NegativeMentions int     `json:"negative_mentions"`
	TotalMentions    int     `json:"total_mentions"`
	Confidence       float64 `json:"confidence_score"`
}

// SummarizeAspects aggregates aspect records per aspect. The score of an
// aspect is (positive mentions − negative mentions) / total mentions.
func SummarizeAspects(records []AspectRecord) map[string]AspectSummary {
	summaries := make(map[string]AspectSummary)
	for _, record := range records {
		summary := summaries[record.Aspect]
		summary.Aspect = record.Aspect
		summary.TotalMentions++
		if record.Polarity > 0 {
			summary.PositiveMentions++
		} else if record.Polarity < 0 {
			summary.NegativeMentions++
		}
		summaries[record.Aspect] = summary
	}
	for name, summary := range summaries {
		summary.Score = float64(summary.PositiveMentions-summary.NegativeMentions) / float64(summary.TotalMentions)
		summary.Confidence = min(1, float64(summary.TotalMentions)/5)
		summaries[name] = summary
	}
	return summaries
}
