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

package storage

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestAppendURLParams(t *testing.T) {
	url, err := AppendURLParams(`c:\\insight.db`, []lo.Tuple2[string, string]{{A: "_pragma", B: "busy_timeout(10000)"}})
	assert.NoError(t, err)
	assert.Equal(t, `c:\\insight.db?_pragma=busy_timeout%2810000%29`, url)
	url, err = AppendURLParams(`postgres://localhost/insight?sslmode=disable`, []lo.Tuple2[string, string]{{A: "application_name", B: "insight"}})
	assert.NoError(t, err)
	assert.Equal(t, `postgres://localhost/insight?application_name=insight&sslmode=disable`, url)
}

func TestAppendMySQLParams(t *testing.T) {
	dsn, err := AppendMySQLParams("root:password@tcp(127.0.0.1:3306)/insight?autocommit=true", map[string]string{
		"autocommit": "false",
		"charset":    "utf8mb4",
	})
	assert.NoError(t, err)
	assert.Contains(t, dsn, "autocommit=true")
	assert.NotContains(t, dsn, "autocommit=false")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestTablePrefix(t *testing.T) {
	prefix := TablePrefix("shop_")
	assert.Equal(t, "shop_interactions", prefix.InteractionsTable())
	assert.Equal(t, "shop_products", prefix.ProductsTable())
	assert.Equal(t, "shop_reviews", prefix.ReviewsTable())
	assert.Equal(t, "shop_similarity_edges", prefix.EdgesTable())
	assert.Equal(t, "shop_scores", prefix.Key("scores"))
}
