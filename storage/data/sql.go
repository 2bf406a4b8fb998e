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
	"fmt"

	"github.com/gorse-io/insight/storage"
	"github.com/juju/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// SQLDatabase implements Database on MySQL, Postgres and SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates tables.
func (d *SQLDatabase) Init() error {
	db := d.gormDB
	if d.driver == MySQL {
		db = db.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := db.Table(d.InteractionsTable()).AutoMigrate(&Interaction{}); err != nil {
		return errors.Trace(err)
	}
	if err := db.Table(d.ProductsTable()).AutoMigrate(&Product{}); err != nil {
		return errors.Trace(err)
	}
	if err := db.Table(d.ReviewsTable()).AutoMigrate(&Review{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge deletes all rows. It is used by tests.
func (d *SQLDatabase) Purge() error {
	tx := d.gormDB.Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := tx.Table(d.InteractionsTable()).Delete(&Interaction{}).Error; err != nil {
		return errors.Trace(err)
	}
	if err := tx.Table(d.ProductsTable()).Delete(&Product{}).Error; err != nil {
		return errors.Trace(err)
	}
	if err := tx.Table(d.ReviewsTable()).Delete(&Review{}).Error; err != nil {
		return errors.Trace(err)
	}
	return nil
}

// mergeAssignments averages the stored and incoming weights and keep the newer
// timestamp. Assignments only read the stored row, so their order is free.
func (d *SQLDatabase) mergeAssignments() []clause.Assignment {
	table := d.InteractionsTable()
	var weight, timestamp string
	switch d.driver {
	case MySQL:
		weight = fmt.Sprintf("(%s.weight + VALUES(weight)) / 2", table)
		timestamp = fmt.Sprintf("GREATEST(%s.time_stamp, VALUES(time_stamp))", table)
	case Postgres:
		weight = fmt.Sprintf("(%s.weight + excluded.weight) / 2", table)
		timestamp = fmt.Sprintf("GREATEST(%s.time_stamp, excluded.time_stamp)", table)
	default:
		weight = fmt.Sprintf("(%s.weight + excluded.weight) / 2", table)
		timestamp = fmt.Sprintf("MAX(%s.time_stamp, excluded.time_stamp)", table)
	}
	return []clause.Assignment{
		{Column: clause.Column{Name: "weight"}, Value: gorm.Expr(weight)},
		{Column: clause.Column{Name: "time_stamp"}, Value: gorm.Expr(timestamp)},
	}
}

func (d *SQLDatabase) UpsertInteraction(ctx context.Context, interaction Interaction) (Interaction, error) {
	var stored Interaction
	err := d.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(d.InteractionsTable()).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}, {Name: "type"}},
			DoUpdates: d.mergeAssignments(),
		}).Create(&interaction).Error; err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(tx.Table(d.InteractionsTable()).
			Where("user_id = ? AND item_id = ? AND type = ?", interaction.UserId, interaction.ItemId, interaction.Type).
			Take(&stored).Error)
	})
	if err != nil {
		return Interaction{}, err
	}
	stored.Timestamp = stored.Timestamp.UTC()
	return stored, nil
}

func (d *SQLDatabase) GetInteraction(ctx context.Context, userId, itemId, typ string) (Interaction, error) {
	var interaction Interaction
	result := d.gormDB.WithContext(ctx).Table(d.InteractionsTable()).
		Where("user_id = ? AND item_id = ? AND type = ?", userId, itemId, typ).
		Limit(1).Find(&interaction)
	if result.Error != nil {
		return Interaction{}, errors.Trace(result.Error)
	}
	if result.RowsAffected == 0 {
		return Interaction{}, errors.Annotatef(ErrInteractionNotExist, "%s/%s/%s", userId, itemId, typ)
	}
	return interaction, nil
}

func (d *SQLDatabase) GetInteractions(ctx context.Context) ([]Interaction, error) {
	var interactions []Interaction
	err := d.gormDB.WithContext(ctx).Table(d.InteractionsTable()).
		Order("user_id, item_id, type").Find(&interactions).Error
	return interactions, errors.Trace(err)
}

func (d *SQLDatabase) GetUserInteractions(ctx context.Context, userId string) ([]Interaction, error) {
	var interactions []Interaction
	err := d.gormDB.WithContext(ctx).Table(d.InteractionsTable()).
		Where("user_id = ?", userId).Order("item_id, type").Find(&interactions).Error
	return interactions, errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertProducts(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}
	err := d.gormDB.WithContext(ctx).Table(d.ProductsTable()).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "item_id"}}, UpdateAll: true}).
		Create(&products).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetProduct(ctx context.Context, itemId string) (Product, error) {
	var product Product
	result := d.gormDB.WithContext(ctx).Table(d.ProductsTable()).Where("item_id = ?", itemId).Limit(1).Find(&product)
	if result.Error != nil {
		return Product{}, errors.Trace(result.Error)
	}
	if result.RowsAffected == 0 {
		return Product{}, errors.Annotate(ErrProductNotExist, itemId)
	}
	return product, nil
}

func (d *SQLDatabase) GetProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	err := d.gormDB.WithContext(ctx).Table(d.ProductsTable()).Order("item_id").Find(&products).Error
	return products, errors.Trace(err)
}

func (d *SQLDatabase) BatchInsertReviews(ctx context.Context, reviews []Review) error {
	if len(reviews) == 0 {
		return nil
	}
	err := d.gormDB.WithContext(ctx).Table(d.ReviewsTable()).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "review_id"}}, UpdateAll: true}).
		Create(&reviews).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetReviews(ctx context.Context, itemId string) ([]Review, error) {
	var reviews []Review
	err := d.gormDB.WithContext(ctx).Table(d.ReviewsTable()).
		Where("item_id = ?", itemId).Order("time_stamp DESC, review_id").Find(&reviews).Error
	return reviews, errors.Trace(err)
}

func (d *SQLDatabase) GetAllReviews(ctx context.Context) ([]Review, error) {
	var reviews []Review
	err := d.gormDB.WithContext(ctx).Table(d.ReviewsTable()).
		Order("item_id, time_stamp DESC, review_id").Find(&reviews).Error
	return reviews, errors.Trace(err)
}

func (d *SQLDatabase) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	db := d.gormDB.WithContext(ctx)
	if err := db.Table(d.InteractionsTable()).Distinct("user_id").Count(&stats.Users).Error; err != nil {
		return Stats{}, errors.Trace(err)
	}
	if err := db.Table(d.InteractionsTable()).Count(&stats.Interactions).Error; err != nil {
		return Stats{}, errors.Trace(err)
	}
	if err := db.Table(d.ProductsTable()).Count(&stats.Products).Error; err != nil {
		return Stats{}, errors.Trace(err)
	}
	if err := db.Table(d.ReviewsTable()).Count(&stats.Reviews).Error; err != nil {
		return Stats{}, errors.Trace(err)
	}
	return stats, nil
}
