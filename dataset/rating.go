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
	"math"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

type BehaviorType string

const (
	View     BehaviorType = "view"
	CartAdd  BehaviorType = "cart_add"
	Purchase BehaviorType = "purchase"
	Wishlist BehaviorType = "wishlist"
	Review   BehaviorType = "review"
)

// DefaultDecayRate is the daily decay of implicit ratings.
const DefaultDecayRate = 0.95

var BaseWeight = map[BehaviorType]float64{
	Purchase: 5.0,
	Wishlist: 4.0,
	CartAdd:  3.0,
	Review:   2.5,
	View:     1.0,
}

// BehaviorTypes in the order of decreasing base weight.
var BehaviorTypes = []BehaviorType{Purchase, Wishlist, CartAdd, Review, View}

// ownedTypes are behaviors after which an item is no longer recommended.
var ownedTypes = mapset.NewSet(Purchase, CartAdd, Wishlist)

func ParseBehaviorType(s string) (BehaviorType, error) {
	t := BehaviorType(s)
	if _, ok := BaseWeight[t]; !ok {
		return "", errors.NotValidf("behavior type %q", s)
	}
	return t, nil
}

// IsOwned returns true if the behavior marks the item as owned by the user.
func (t BehaviorType) IsOwned() bool {
	return ownedTypes.Contains(t)
}

// AgeDays returns whole days elapsed between timestamp and now. Future timestamps are 0 days old.
func AgeDays(timestamp, now time.Time) int {
	if !now.After(timestamp) {
		return 0
	}
	return int(now.Sub(timestamp).Hours() / 24)
}

// ImplicitRating converts an interaction into baseWeight × weight × decay^ageDays.
func ImplicitRating(interaction data.Interaction, now time.Time, decayRate float64) float64 {
	base, ok := BaseWeight[BehaviorType(interaction.Type)]
	if !ok {
		base = BaseWeight[View]
	}
	weight := max(0, interaction.Weight)
	return base * weight * math.Pow(decayRate, float64(AgeDays(interaction.Timestamp, now)))
}

// RatingMatrix is a sparse user-item matrix of implicit ratings. Users and items are indexed in
// ascending id order.
type RatingMatrix struct {
	userDict *FreqDict
	itemDict *FreqDict
	userRows []map[int]float64
	itemRows []map[int]float64
	count    int
}

// BuildRatingMatrix sums implicit ratings per (user, item). Ids are indexed in
// ascending order and the dicts count interactions per user and item.
func BuildRatingMatrix(interactions []data.Interaction, now time.Time, decayRate float64) *RatingMatrix {
	userIds := lo.Uniq(lo.Map(interactions, func(i data.Interaction, _ int) string { return i.UserId }))
	itemIds := lo.Uniq(lo.Map(interactions, func(i data.Interaction, _ int) string { return i.ItemId }))
	sort.Strings(userIds)
	sort.Strings(itemIds)
	m := &RatingMatrix{
		userDict: NewFreqDict(),
		itemDict: NewFreqDict(),
		userRows: make([]map[int]float64, len(userIds)),
		itemRows: make([]map[int]float64, len(itemIds)),
	}
	for i, userId := range userIds {
		m.userDict.Register(userId)
		m.userRows[i] = make(map[int]float64)
	}
	for i, itemId := range itemIds {
		m.itemDict.Register(itemId)
		m.itemRows[i] = make(map[int]float64)
	}
	for _, interaction := range interactions {
		u, i := m.userDict.Add(interaction.UserId), m.itemDict.Add(interaction.ItemId)
		rating := ImplicitRating(interaction, now, decayRate)
		if _, exist := m.userRows[u][i]; !exist {
			m.count++
		}
		m.userRows[u][i] += rating
		m.itemRows[i][u] += rating
	}
	return m
}

func (m *RatingMatrix) UserDict() *FreqDict {
	return m.userDict
}

func (m *RatingMatrix) ItemDict() *FreqDict {
	return m.itemDict
}

func (m *RatingMatrix) CountUsers() int {
	return len(m.userRows)
}

func (m *RatingMatrix) CountItems() int {
	return len(m.itemRows)
}

// Count returns the number of non-empty cells.
func (m *RatingMatrix) Count() int {
	return m.count
}

// UserRow returns ratings of a user keyed by item index.
func (m *RatingMatrix) UserRow(userIndex int) map[int]float64 {
	if userIndex < 0 || userIndex >= len(m.userRows) {
		return nil
	}
	return m.userRows[userIndex]
}

// ItemRow returns ratings of an item keyed by user index.
func (m *RatingMatrix) ItemRow(itemIndex int) map[int]float64 {
	if itemIndex < 0 || itemIndex >= len(m.itemRows) {
		return nil
	}
	return m.itemRows[itemIndex]
}

// Get returns the rating of a user on an item. Missing cells are 0.
func (m *RatingMatrix) Get(userId, itemId string) float64 {
	row := m.UserRow(m.userDict.Id(userId))
	if row == nil {
		return 0
	}
	return row[m.itemDict.Id(itemId)]
}

// UserRatings returns ratings of a user keyed by item id.
func (m *RatingMatrix) UserRatings(userId string) map[string]float64 {
	row := m.UserRow(m.userDict.Id(userId))
	ratings := make(map[string]float64, len(row))
	for i, r := range row {
		itemId, _ := m.itemDict.String(i)
		ratings[itemId] = r
	}
	return ratings
}

// Transpose returns the item-user view of the matrix. Rows are shared, not copied.
func (m *RatingMatrix) Transpose() *RatingMatrix {
	return &RatingMatrix{
		userDict: m.itemDict,
		itemDict: m.userDict,
		userRows: m.itemRows,
		itemRows: m.userRows,
		count:    m.count,
	}
}

// Dense converts the matrix into a gonum dense matrix with users as rows.
func (m *RatingMatrix) Dense() *mat.Dense {
	if m.CountUsers() == 0 || m.CountItems() == 0 {
		return nil
	}
	dense := mat.NewDense(m.CountUsers(), m.CountItems(), nil)
	for u, row := range m.userRows {
		for i, r := range row {
			dense.Set(u, i, r)
		}
	}
	return dense
}
