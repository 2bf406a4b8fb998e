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
	"sort"
	"time"
	"unicode/utf8"

	"github.com/gorse-io/insight/common/heap"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Record is the sentiment of a review.
type Record struct {
	ReviewId     string    `json:"review_id"`
	ItemId       string    `json:"item_id"`
	Polarity     float64   `json:"polarity"`
	Subjectivity float64   `json:"subjectivity"`
	Label        Label     `json:"label"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
}

// AspectRecord is the sentiment of a review on an aspect.
type AspectRecord struct {
	ReviewId   string  `json:"review_id"`
	Aspect     string  `json:"aspect"`
	Polarity   float64 `json:"polarity"`
	Confidence float64 `json:"confidence"`
}

type ReviewStats struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Summary is the sentiment of an item over all its reviews.
type Summary struct {
	ItemId           string                   `json:"item_id"`
	OverallSentiment Label                    `json:"overall_sentiment"`
	Score            float64                  `json:"sentiment_score"`
	Confidence       float64                  `json:"confidence_score"`
	ReviewStats      ReviewStats              `json:"review_stats"`
	Aspects          map[string]AspectSummary `json:"aspects"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

type RecentReview struct {
	ReviewId     string  `json:"id"`
	Text         string  `json:"text"`
	Polarity     float64 `json:"sentiment_score"`
	Subjectivity float64 `json:"subjectivity"`
	Stars        int     `json:"rating"`
	Date         string  `json:"date"`
}

// Insights combine the summary, the trend and recent reviews of an item.
type Insights struct {
	*Summary
	Trend         Trend          `json:"trend"`
	RecentReviews []RecentReview `json:"recent_reviews"`
}

// Analyzer computes review sentiment.
type Analyzer struct {
	config config.SentimentConfig
}

func NewAnalyzer(cfg config.SentimentConfig) *Analyzer {
	return &Analyzer{config: cfg}
}

// AnalyzeReview scores a review and its aspects.
func (a *Analyzer) AnalyzeReview(review data.Review) (Record, []AspectRecord) {
	analysis := Analyze(review.Text)
	record := Record{
		ReviewId:     review.ReviewId,
		ItemId:       review.ItemId,
		Polarity:     analysis.Polarity,
		Subjectivity: analysis.Subjectivity,
		Label:        Classify(analysis.Polarity, a.config.NeutralThreshold),
		Confidence:   min(1, float64(analysis.Matched)/3),
		Timestamp:    review.Timestamp,
	}
	aspectRecords := lo.Map(DetectAspects(review.Text), func(m Mention, _ int) AspectRecord {
		return AspectRecord{
			ReviewId:   review.ReviewId,
			Aspect:     m.Aspect,
			Polarity:   m.Polarity(),
			Confidence: m.Confidence(),
		}
	})
	return record, aspectRecords
}

// Summarize aggregates the reviews of an item. It returns nil if there is no review.
func (a *Analyzer) Summarize(itemId string, reviews []data.Review, now time.Time) *Summary {
	records, aspectRecords := a.analyzeAll(reviews)
	return a.summarize(itemId, records, aspectRecords, now)
}

// Trend analyzes reviews inside the trend window ending at now.
func (a *Analyzer) Trend(itemId string, reviews []data.Review, now time.Time) Trend {
	records, _ := a.analyzeAll(reviews)
	return a.trend(itemId, records, now)
}

// Insights returns nil if there is no review. Every review is analyzed once.
func (a *Analyzer) Insights(itemId string, reviews []data.Review, now time.Time) *Insights {
	records, aspectRecords := a.analyzeAll(reviews)
	summary := a.summarize(itemId, records, aspectRecords, now)
	if summary == nil {
		return nil
	}
	insights := &Insights{
		Summary:       summary,
		Trend:         a.trend(itemId, records, now),
		RecentReviews: []RecentReview{},
	}
	if insights.Trend.DataPoints == 0 {
		insights.Trend.Direction = Unknown
	}
	start := now.Add(-a.config.TrendWindow)
	recent := lo.Filter(lo.Range(len(reviews)), func(i, _ int) bool {
		return !reviews[i].Timestamp.Before(start)
	})
	sort.SliceStable(recent, func(i, j int) bool {
		x, y := reviews[recent[i]], reviews[recent[j]]
		if !x.Timestamp.Equal(y.Timestamp) {
			return x.Timestamp.After(y.Timestamp)
		}
		return x.ReviewId < y.ReviewId
	})
	for _, i := range lo.Subset(recent, 0, uint(a.config.RecentReviews)) {
		insights.RecentReviews = append(insights.RecentReviews, RecentReview{
			ReviewId:     reviews[i].ReviewId,
			Text:         truncate(reviews[i].Text, 100),
			Polarity:     records[i].Polarity,
			Subjectivity: records[i].Subjectivity,
			Stars:        reviews[i].Stars,
			Date:         reviews[i].Timestamp.UTC().Format(time.DateOnly),
		})
	}
	return insights
}

// analyzeAll returns one record per review, in order, and the aspect records
// of all reviews.
func (a *Analyzer) analyzeAll(reviews []data.Review) ([]Record, []AspectRecord) {
	records := make([]Record, 0, len(reviews))
	var aspectRecords []AspectRecord
	for _, review := range reviews {
		record, aspects := a.AnalyzeReview(review)
		records = append(records, record)
		aspectRecords = append(aspectRecords, aspects...)
	}
	return records, aspectRecords
}

func (a *Analyzer) summarize(itemId string, records []Record, aspectRecords []AspectRecord, now time.Time) *Summary {
	if len(records) == 0 {
		return nil
	}
	summary := &Summary{
		ItemId:    itemId,
		UpdatedAt: now.UTC(),
	}
	var total float64
	for _, record := range records {
		total += record.Polarity
		switch record.Label {
		case Positive:
			summary.ReviewStats.Positive++
		case Negative:
			summary.ReviewStats.Negative++
		default:
			summary.ReviewStats.Neutral++
		}
	}
	summary.ReviewStats.Total = len(records)
	summary.Score = total / float64(len(records))
	summary.OverallSentiment = Classify(summary.Score, a.config.NeutralThreshold)
	summary.Confidence = min(1, float64(len(records))/10)
	summary.Aspects = SummarizeAspects(aspectRecords)
	return summary
}

func (a *Analyzer) trend(itemId string, records []Record, now time.Time) Trend {
	start := now.Add(-a.config.TrendWindow)
	inWindow := lo.Filter(records, func(record Record, _ int) bool {
		return !record.Timestamp.Before(start)
	})
	trend := AnalyzeTrend(BucketByWeek(itemId, inWindow), a.config.TrendThreshold)
	trend.PeriodDays = int(a.config.TrendWindow.Hours() / 24)
	return trend
}

func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}

type TopKind string

const (
	TopPositive TopKind = "positive"
	TopNegative TopKind = "negative"
	TopAll      TopKind = "all"
)

func ParseTopKind(s string) (TopKind, error) {
	switch kind := TopKind(s); kind {
	case TopPositive, TopNegative, TopAll:
		return kind, nil
	case "":
		return TopPositive, nil
	}
	return "", errors.NotValidf("sentiment type %q", s)
}

// TopProducts ranks items by sentiment. Positive items are ranked by score
// descending, negative items by score ascending and all items by score
// descending. Ties are broken by item id.
func TopProducts(summaries []*Summary, kind TopKind, n int) []cache.Score {
	filter := heap.NewTopKFilter[string, float64](n)
	for _, summary := range summaries {
		switch kind {
		case TopPositive:
			if summary.OverallSentiment == Positive {
				filter.Push(summary.ItemId, summary.Score)
			}
		case TopNegative:
			if summary.OverallSentiment == Negative {
				filter.Push(summary.ItemId, -summary.Score)
			}
		default:
			filter.Push(summary.ItemId, summary.Score)
		}
	}
	return lo.Map(filter.PopAll(), func(elem heap.Elem[string, float64], _ int) cache.Score {
		if kind == TopNegative {
			return cache.Score{Id: elem.Value, Score: -elem.Weight}
		}
		return cache.Score{Id: elem.Value, Score: elem.Weight}
	})
}

// AspectInsight is the sentiment of an item on an aspect.
type AspectInsight struct {
	ItemId string `json:"item_id"`
	AspectSummary
}

// AspectInsights ranks items mentioned on an aspect at least minMentions times
// by aspect score descending, then item id.
func AspectInsights(summaries []*Summary, aspect string, minMentions, n int) []AspectInsight {
	var insights []AspectInsight
	for _, summary := range summaries {
		if s, ok := summary.Aspects[aspect]; ok && s.TotalMentions >= minMentions {
			insights = append(insights, AspectInsight{ItemId: summary.ItemId, AspectSummary: s})
		}
	}
	sort.Slice(insights, func(i, j int) bool {
		if insights[i].Score != insights[j].Score {
			return insights[i].Score > insights[j].Score
		}
		return insights[i].ItemId < insights[j].ItemId
	})
	if n > 0 && len(insights) > n {
		insights = insights[:n]
	}
	return insights
}
