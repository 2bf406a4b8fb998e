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

package dataset

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gorse-io/insight/base"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// record is a csv row addressed by the column names of the header.
type record struct {
	line    int
	columns map[string]int
	fields  []string
	err     error
}

func (r *record) string(name string) string {
	if i, ok := r.columns[name]; ok && i < len(r.fields) {
		return strings.TrimSpace(r.fields[i])
	}
	return ""
}

func (r *record) id(name string) string {
	s := r.string(name)
	if r.err == nil {
		if err := base.ValidateId(s); err != nil {
			r.err = errors.Annotatef(err, "line %d: %s", r.line, name)
		}
	}
	return s
}

func (r *record) float(name string, fallback float64) float64 {
	s := r.string(name)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && r.err == nil {
		r.err = errors.NewNotValid(err, "line "+strconv.Itoa(r.line)+": "+name)
	}
	return v
}

func (r *record) int(name string) int {
	s := r.string(name)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil && r.err == nil {
		r.err = errors.NewNotValid(err, "line "+strconv.Itoa(r.line)+": "+name)
	}
	return v
}

func (r *record) bool(name string) bool {
	s := r.string(name)
	if s == "" {
		return false
	}
	v, err := strconv.ParseBool(s)
	if err != nil && r.err == nil {
		r.err = errors.NewNotValid(err, "line "+strconv.Itoa(r.line)+": "+name)
	}
	return v
}

func (r *record) time(name string, fallback time.Time) time.Time {
	s := r.string(name)
	if s == "" {
		return fallback
	}
	v, err := dateparse.ParseAny(s)
	if err != nil && r.err == nil {
		r.err = errors.NewNotValid(err, "line "+strconv.Itoa(r.line)+": "+name)
	}
	return v.UTC()
}

// readRecords reads a csv file with a header. Columns are matched by name
// and missing required columns are rejected.
func readRecords(r io.Reader, sep string, required []string, handle func(*record) error) error {
	var columns map[string]int
	var err error
	readErr := base.ReadLines(bufio.NewScanner(r), sep, func(i int, fields []string) bool {
		if i == 0 {
			columns = make(map[string]int, len(fields))
			for j, name := range fields {
				columns[strings.ToLower(strings.TrimSpace(name))] = j
			}
			if missing, _ := lo.Difference(required, lo.Keys(columns)); len(missing) > 0 {
				err = errors.NotValidf("missing columns %v", missing)
				return false
			}
			return true
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			// blank line
			return true
		}
		err = handle(&record{line: i + 1, columns: columns, fields: fields})
		return err == nil
	})
	if readErr != nil {
		return errors.Trace(readErr)
	}
	return err
}

// ReadInteractions reads interactions with columns user_id, item_id, type,
// weight and timestamp. Weight defaults to 1 and timestamp defaults to now.
func ReadInteractions(r io.Reader, sep string, now time.Time) ([]data.Interaction, error) {
	var interactions []data.Interaction
	err := readRecords(r, sep, []string{"user_id", "item_id", "type"}, func(rec *record) error {
		interaction := data.Interaction{
			UserId:    rec.id("user_id"),
			ItemId:    rec.id("item_id"),
			Type:      rec.string("type"),
			Weight:    rec.float("weight", 1),
			Timestamp: rec.time("timestamp", now),
		}
		if rec.err != nil {
			return rec.err
		}
		if _, err := ParseBehaviorType(interaction.Type); err != nil {
			return errors.Annotatef(err, "line %d", rec.line)
		}
		interactions = append(interactions, interaction)
		return nil
	})
	return interactions, err
}

// ReadProducts reads products. Only item_id is required.
func ReadProducts(r io.Reader, sep string, now time.Time) ([]data.Product, error) {
	var products []data.Product
	err := readRecords(r, sep, []string{"item_id"}, func(rec *record) error {
		product := data.Product{
			ItemId:          rec.id("item_id"),
			Name:            rec.string("name"),
			Description:     rec.string("description"),
			Category:        rec.string("category"),
			Brand:           rec.string("brand"),
			Price:           rec.float("price", 0),
			DiscountedPrice: rec.float("discounted_price", 0),
			IsTrending:      rec.bool("is_trending"),
			IsNewest:        rec.bool("is_newest"),
			ForMen:          rec.bool("for_men"),
			ForWomen:        rec.bool("for_women"),
			ColorVariants:   rec.int("color_variants"),
			SizeVariants:    rec.int("size_variants"),
			CreatedAt:       rec.time("created_at", now),
		}
		if rec.err != nil {
			return rec.err
		}
		products = append(products, product)
		return nil
	})
	return products, err
}

// ReadReviews reads reviews with columns review_id, user_id, item_id, stars,
// text and timestamp. Stars must be between 1 and 5.
func ReadReviews(r io.Reader, sep string, now time.Time) ([]data.Review, error) {
	var reviews []data.Review
	err := readRecords(r, sep, []string{"review_id", "item_id", "stars"}, func(rec *record) error {
		review := data.Review{
			ReviewId:  rec.id("review_id"),
			UserId:    rec.string("user_id"),
			ItemId:    rec.id("item_id"),
			Stars:     rec.int("stars"),
			Text:      rec.string("text"),
			Timestamp: rec.time("timestamp", now),
		}
		if rec.err != nil {
			return rec.err
		}
		if review.Stars < 1 || review.Stars > 5 {
			return errors.NotValidf("line %d: stars %d", rec.line, review.Stars)
		}
		reviews = append(reviews, review)
		return nil
	})
	return reviews, err
}
