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
	"strings"
	"testing"
	"time"

	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestReadInteractions(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	interactions, err := ReadInteractions(strings.NewReader(
		"user_id,item_id,type,weight,timestamp\n"+
			"u1,p1,purchase,2,2026-05-01 10:00:00\n"+
			"\n"+
			"u2,p1,view,,\n"), ",", now)
	assert.NoError(t, err)
	assert.Equal(t, []data.Interaction{
		{UserId: "u1", ItemId: "p1", Type: "purchase", Weight: 2, Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
		{UserId: "u2", ItemId: "p1", Type: "view", Weight: 1, Timestamp: now},
	}, interactions)

	// columns are matched by name
	interactions, err = ReadInteractions(strings.NewReader("type\titem_id\tuser_id\ncart_add\tp2\tu3"), "\t", now)
	assert.NoError(t, err)
	assert.Equal(t, []data.Interaction{{UserId: "u3", ItemId: "p2", Type: "cart_add", Weight: 1, Timestamp: now}}, interactions)

	for _, text := range []string{
		"user_id,item_id\nu1,p1",
		"user_id,item_id,type\nu1,p1,like",
		"user_id,item_id,type\n,p1,view",
		"user_id,item_id,type,weight\nu1,p1,view,heavy",
		"user_id,item_id,type,timestamp\nu1,p1,view,someday",
	} {
		_, err = ReadInteractions(strings.NewReader(text), ",", now)
		assert.True(t, errors.Is(err, errors.NotValid), text)
	}
}

func TestReadProducts(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	products, err := ReadProducts(strings.NewReader(
		"item_id,name,description,category,brand,price,discounted_price,is_trending,for_women,color_variants,created_at\n"+
			"p1,Runner,\"Light, breathable\",Shoes,Nike,100,80,true,1,3,2026-01-02\n"+
			"p2,Tee,,Shirts,Puma,20,,false,0,,\n"), ",", now)
	assert.NoError(t, err)
	assert.Equal(t, []data.Product{
		{
			ItemId: "p1", Name: "Runner", Description: "Light, breathable", Category: "Shoes", Brand: "Nike",
			Price: 100, DiscountedPrice: 80, IsTrending: true, ForWomen: true, ColorVariants: 3,
			CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		{ItemId: "p2", Name: "Tee", Category: "Shirts", Brand: "Puma", Price: 20, CreatedAt: now},
	}, products)

	_, err = ReadProducts(strings.NewReader("item_id,price\np1,free"), ",", now)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = ReadProducts(strings.NewReader("item_id,is_trending\np1,maybe"), ",", now)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestReadReviews(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	reviews, err := ReadReviews(strings.NewReader(
		"review_id,user_id,item_id,stars,text\n"+
			"r1,u1,p1,5,\"Great fit, \"\"very\"\" comfortable\"\n"), ",", now)
	assert.NoError(t, err)
	assert.Equal(t, []data.Review{
		{ReviewId: "r1", UserId: "u1", ItemId: "p1", Stars: 5, Text: "Great fit, \"very\" comfortable", Timestamp: now},
	}, reviews)

	_, err = ReadReviews(strings.NewReader("review_id,item_id,stars\nr1,p1,6"), ",", now)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = ReadReviews(strings.NewReader("review_id,item_id\nr1,p1"), ",", now)
	assert.True(t, errors.Is(err, errors.NotValid))
}
