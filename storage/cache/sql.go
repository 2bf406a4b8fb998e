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

package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/gorse-io/insight/storage"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLValue struct {
	Name  string `gorm:"column:name;type:varchar(256);primaryKey"`
	Value string `gorm:"column:value;type:text"`
}

type SQLScore struct {
	Collection string  `gorm:"column:collection;type:varchar(128);primaryKey"`
	Subset     string  `gorm:"column:subset;type:varchar(256);primaryKey"`
	Id         string  `gorm:"column:id;type:varchar(256);primaryKey"`
	Score      float64 `gorm:"column:score;index:scores_score"`
}

type SQLEdge struct {
	Kind      string    `gorm:"column:kind;type:varchar(64);primaryKey"`
	A         string    `gorm:"column:a;type:varchar(256);primaryKey"`
	B         string    `gorm:"column:b;type:varchar(256);primaryKey"`
	Score     float64   `gorm:"column:score"`
	Timestamp time.Time `gorm:"column:time_stamp;index:edges_time_stamp"`
}

// SQLDatabase stores materialized state in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver data.SQLDriver
}

func (db *SQLDatabase) Init() error {
	gormDB := db.gormDB
	if db.driver == data.MySQL {
		gormDB = gormDB.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	return errors.Trace(gormDB.AutoMigrate(&SQLValue{}, &SQLScore{}, &SQLEdge{}))
}

func (db *SQLDatabase) Ping() error {
	return db.client.Ping()
}

func (db *SQLDatabase) Close() error {
	return db.client.Close()
}

func (db *SQLDatabase) Purge() error {
	tx := db.gormDB.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []any{&SQLValue{}, &SQLScore{}, &SQLEdge{}} {
		if err := tx.Delete(model).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *SQLDatabase) Get(ctx context.Context, name string) *ReturnValue {
	var value SQLValue
	result := db.gormDB.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&value)
	if result.Error != nil {
		return &ReturnValue{err: errors.Trace(result.Error)}
	}
	if result.RowsAffected == 0 {
		return &ReturnValue{err: errors.NotFoundf("value %s", name)}
	}
	return &ReturnValue{value: value.Value}
}

func (db *SQLDatabase) Set(ctx context.Context, values ...Value) error {
	if len(values) == 0 {
		return nil
	}
	rows := lo.Map(values, func(v Value, _ int) SQLValue {
		return SQLValue{Name: v.name, Value: v.value}
	})
	err := db.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (db *SQLDatabase) scoreRows(collection, subset string, scores []Score) []SQLScore {
	return lo.Map(scores, func(s Score, _ int) SQLScore {
		return SQLScore{Collection: collection, Subset: subset, Id: s.Id, Score: s.Score}
	})
}

func (db *SQLDatabase) ReplaceScores(ctx context.Context, collection, subset string, scores []Score) error {
	return db.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ? AND subset = ?", collection, subset).Delete(&SQLScore{}).Error; err != nil {
			return errors.Trace(err)
		}
		if len(scores) == 0 {
			return nil
		}
		rows := db.scoreRows(collection, subset, lo.UniqBy(scores, func(s Score) string { return s.Id }))
		return errors.Trace(tx.Create(&rows).Error)
	})
}

func (db *SQLDatabase) SearchScores(ctx context.Context, collection, subset string, begin, end int) ([]Score, error) {
	tx := db.gormDB.WithContext(ctx).Model(&SQLScore{}).
		Where("collection = ? AND subset = ?", collection, subset).
		Order("score DESC").Order("id").Offset(begin)
	if end >= 0 {
		if end <= begin {
			return nil, nil
		}
		tx = tx.Limit(end - begin)
	}
	var rows []SQLScore
	if err := tx.Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(rows, func(row SQLScore, _ int) Score {
		return Score{Id: row.Id, Score: row.Score}
	}), nil
}

func (db *SQLDatabase) AddEdges(ctx context.Context, edges []SimilarityEdge) error {
	if len(edges) == 0 {
		return nil
	}
	rows := lo.Map(edges, func(e SimilarityEdge, _ int) SQLEdge {
		e = NewSimilarityEdge(e.Kind, e.A, e.B, e.Score, e.Timestamp)
		return SQLEdge{Kind: e.Kind, A: e.A, B: e.B, Score: e.Score, Timestamp: e.Timestamp}
	})
	rows = lo.UniqBy(rows, func(e SQLEdge) string { return e.Kind + "\x00" + e.A + "\x00" + e.B })
	err := db.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "a"}, {Name: "b"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "time_stamp"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (db *SQLDatabase) DeleteEdges(ctx context.Context, kind string, before time.Time) error {
	err := db.gormDB.WithContext(ctx).Where("kind = ? AND time_stamp < ?", kind, before.UTC()).Delete(&SQLEdge{}).Error
	return errors.Trace(err)
}
