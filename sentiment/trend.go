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
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

type Direction string

const (
	Improving Direction = "improving"
	Declining Direction = "declining"
	Stable    Direction = "stable"
	Unknown   Direction = "unknown"
)

// TrendPoint is the sentiment of an item in the week starting at Week.
type TrendPoint struct {
	ItemId          string    `json:"item_id"`
	Week            time.Time `json:"week"`
	Positive        int       `json:"positive"`
	Negative        int       `json:"negative"`
	Neutral         int       `json:"neutral"`
	AveragePolarity float64   `json:"average_polarity"`
}

// Count returns the number of reviews in the bucket.
func (p TrendPoint) Count() int {
	return p.Positive + p.Negative + p.Neutral
}

// Trend is a linear regression over weekly average polarities.
type Trend struct {
	Direction        Direction    `json:"direction"`
	Strength         float64      `json:"strength"`
	AverageSentiment float64      `json:"average_sentiment"`
	Volatility       float64      `json:"volatility"`
	PeriodDays       int          `json:"period_days"`
	DataPoints       int          `json:"data_points"`
	Points           []TrendPoint `json:"points,omitempty"`
}

// WeekStart returns Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// BucketByWeek merges records into one point per week in chronological order.
func BucketByWeek(itemId string, records []Record) []TrendPoint {
	buckets := make(map[time.Time]*TrendPoint)
	sums := make(map[time.Time]float64)
	for _, record := range records {
		week := WeekStart(record.Timestamp)
		point, exist := buckets[week]
		if !exist {
			point = &TrendPoint{ItemId: itemId, Week: week}
			buckets[week] = point
		}
		switch record.Label {
		case Positive:
			point.Positive++
		case Negative:
			point.Negative++
		default:
			point.Neutral++
		}
		sums[week] += record.Polarity
	}
	points := make([]TrendPoint, 0, len(buckets))
	for week, point := range buckets {
		point.AveragePolarity = sums[week] / float64(point.Count())
		points = append(points, *point)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Week.Before(points[j].Week)
	})
	return points
}

// AnalyzeTrend fits average polarity against the bucket index. A slope above
// threshold is improving and a slope below -threshold is declining. Fewer
// than two buckets are stable.
func AnalyzeTrend(points []TrendPoint, threshold float64) Trend {
	trend := Trend{Direction: Stable, DataPoints: len(points), Points: points}
	if len(points) == 0 {
		return trend
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, point := range points {
		xs[i] = float64(i)
		ys[i] = point.AveragePolarity
	}
	trend.AverageSentiment = stat.Mean(ys, nil)
	if len(points) < 2 {
		return trend
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if slope > threshold {
		trend.Direction = Improving
	} else if slope < -threshold {
		trend.Direction = Declining
	}
	trend.Strength = math.Abs(slope)
	trend.Volatility = stat.PopStdDev(ys, nil)
	return trend
}
