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

package data

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/gorse-io/insight/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

var (
	ErrInteractionNotExist = errors.NotFoundf("interaction")
	ErrProductNotExist     = errors.NotFoundf("product")
)

// Interaction is a behavior event of a user on an item. There is at most one
// interaction per (user, item, type).
type Interaction struct {
	UserId    string    `gorm:"column:user_id;type:varchar(256);primaryKey;index:interaction_user" json:"user_id"`
	ItemId    string    `gorm:"column:item_id;type:varchar(256);primaryKey;index:interaction_item" json:"item_id"`
	Type      string    `gorm:"column:type;type:varchar(32);primaryKey" json:"type"`
	Weight    float64   `gorm:"column:weight" json:"weight"`
	Timestamp time.Time `gorm:"column:time_stamp" json:"timestamp"`
}

// Product is the catalog metadata of an item. DiscountedPrice is zero when
// the product is not on sale.
type Product struct {
	ItemId          string    `gorm:"column:item_id;type:varchar(256);primaryKey" json:"item_id"`
	Name            string    `gorm:"column:name" json:"name"`
	Description     string    `gorm:"column:description" json:"description"`
	Category        string    `gorm:"column:category;type:varchar(256)" json:"category"`
	Brand           string    `gorm:"column:brand;type:varchar(256)" json:"brand"`
	Price           float64   `gorm:"column:price" json:"price"`
	DiscountedPrice float64   `gorm:"column:discounted_price" json:"discounted_price"`
	IsTrending      bool      `gorm:"column:is_trending" json:"is_trending"`
	IsNewest        bool      `gorm:"column:is_newest" json:"is_newest"`
	ForMen          bool      `gorm:"column:for_men" json:"for_men"`
	ForWomen        bool      `gorm:"column:for_women" json:"for_women"`
	ColorVariants   int       `gorm:"column:color_variants" json:"color_variants"`
	SizeVariants    int       `gorm:"column:size_variants" json:"size_variants"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
}

// EffectivePrice is the price a customer pays.
func (p *Product) EffectivePrice() float64 {
	if p.DiscountedPrice > 0 && p.DiscountedPrice < p.Price {
		return p.DiscountedPrice
	}
	return p.Price
}

// Review is a star rating with free text.
type Review struct {
	ReviewId  string    `gorm:"column:review_id;type:varchar(256);primaryKey" json:"review_id"`
	UserId    string    `gorm:"column:user_id;type:varchar(256)" json:"user_id"`
	ItemId    string    `gorm:"column:item_id;type:varchar(256);index:review_item" json:"item_id"`
	Stars     int       `gorm:"column:stars" json:"stars"`
	Text      string    `gorm:"column:text" json:"text"`
	Timestamp time.Time `gorm:"column:time_stamp" json:"timestamp"`
}

// Stats counts the rows feeding the engine.
type Stats struct {
	Users        int64
	Products     int64
	Reviews      int64
	Interactions int64
}

type InteractionRepo interface {
	// UpsertInteraction inserts an interaction and returns the stored record. If the
	// (user, item, type) exists, the stored weight becomes the mean of both weights
	// and the newer timestamp is kept. The merge happens inside the upsert statement,
	// so concurrent writers of the same key never lose an observation.
	UpsertInteraction(ctx context.Context, interaction Interaction) (Interaction, error)
	GetInteraction(ctx context.Context, userId, itemId, typ string) (Interaction, error)
	GetInteractions(ctx context.Context) ([]Interaction, error)
	GetUserInteractions(ctx context.Context, userId string) ([]Interaction, error)
}

type CatalogRepo interface {
	BatchInsertProducts(ctx context.Context, products []Product) error
	GetProduct(ctx context.Context, itemId string) (Product, error)
	GetProducts(ctx context.Context) ([]Product, error)
}

type ReviewRepo interface {
	BatchInsertReviews(ctx context.Context, reviews []Review) error
	GetReviews(ctx context.Context, itemId string) ([]Review, error)
	GetAllReviews(ctx context.Context) ([]Review, error)
}

type Database interface {
	InteractionRepo
	CatalogRepo
	ReviewRepo
	Init() error
	Ping() error
	Close() error
	Purge() error
	Stats(ctx context.Context) (Stats, error)
}

// Open a connection to a database.
func Open(path, tablePrefix string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		// probe isolation variable name
		isolationVarName, err := storage.ProbeMySQLIsolationVariableName(name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		// append parameters
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"sql_mode":       "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			isolationVarName: "'READ-COMMITTED'",
			"parseTime":      "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database := &SQLDatabase{driver: MySQL, TablePrefix: storage.TablePrefix(tablePrefix)}
		if database.client, err = otelsql.Open("mysql", name,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database := &SQLDatabase{driver: Postgres, TablePrefix: storage.TablePrefix(tablePrefix)}
		if database.client, err = otelsql.Open("postgres", path,
			otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		database.gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: database.client}), storage.NewGORMConfig(tablePrefix))
		if err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		database := &SQLDatabase{driver: SQLite, TablePrefix: storage.TablePrefix(tablePrefix)}
		if database.client, database.gormDB, err = OpenSQLite(path, tablePrefix); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}

// OpenSQLite opens a SQLite file in WAL mode.
func OpenSQLite(path, tablePrefix string) (*sql.DB, *gorm.DB, error) {
	path, err := storage.AppendURLParams(path, []lo.Tuple2[string, string]{
		{A: "_pragma", B: "busy_timeout(10000)"},
		{A: "_pragma", B: "journal_mode(wal)"},
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	name := path[len(storage.SQLitePrefix):]
	client, err := otelsql.Open("sqlite", name,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	// SQLite allows a single writer.
	client.SetMaxOpenConns(1)
	gormDB, err := gorm.Open(sqlite.Dialector{Conn: client}, storage.NewGORMConfig(tablePrefix))
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return client, gormDB, nil
}
