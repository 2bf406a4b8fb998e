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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/dataset"
	"github.com/gorse-io/insight/logics"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const importBatchSize = 1000

func init() {
	cliCommand.AddCommand(importCommand)
	importCommand.Flags().StringP("config", "c", "", "configuration file path")
	importCommand.Flags().String("sep", ",", "separator of csv fields")
}

var importCommand = &cobra.Command{
	Use:   "import {interactions|products|reviews} FILE",
	Short: "Import a csv file with header into the data store",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		sep, _ := cmd.Flags().GetString("sep")
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		dataClient, err := data.Open(conf.Database.DataStore, conf.Database.TablePrefix)
		if err != nil {
			log.Logger().Fatal("failed to connect data store",
				zap.String("database", log.RedactDBURL(conf.Database.DataStore)), zap.Error(err))
		}
		defer dataClient.Close()
		if err = dataClient.Init(); err != nil {
			log.Logger().Fatal("failed to init data store", zap.Error(err))
		}
		file, err := os.Open(args[1])
		if err != nil {
			log.Logger().Fatal("failed to open file", zap.String("file", args[1]), zap.Error(err))
		}
		defer file.Close()

		n, err := importFile(cmd.Context(), dataClient, args[0], file, sep)
		if err != nil {
			log.Logger().Fatal("failed to import", zap.String("file", args[1]), zap.Error(err))
		}
		fmt.Printf("imported %d %s\n", n, args[0])
	},
}

func importFile(ctx context.Context, dataClient data.Database, kind string, file io.Reader, sep string) (int, error) {
	now := time.Now().UTC()
	switch kind {
	case "interactions":
		interactions, err := dataset.ReadInteractions(file, sep, now)
		if err != nil {
			return 0, errors.Trace(err)
		}
		ledger := logics.NewLedger(dataClient)
		bar := progressbar.Default(int64(len(interactions)), "import interactions")
		for _, interaction := range interactions {
			if _, err = ledger.Record(ctx, interaction.UserId, interaction.ItemId,
				interaction.Type, interaction.Weight, interaction.Timestamp); err != nil {
				return 0, errors.Trace(err)
			}
			_ = bar.Add(1)
		}
		return len(interactions), nil
	case "products":
		products, err := dataset.ReadProducts(file, sep, now)
		if err != nil {
			return 0, errors.Trace(err)
		}
		bar := progressbar.Default(int64(len(products)), "import products")
		for _, chunk := range lo.Chunk(products, importBatchSize) {
			if err = dataClient.BatchInsertProducts(ctx, chunk); err != nil {
				return 0, errors.Trace(err)
			}
			_ = bar.Add(len(chunk))
		}
		return len(products), nil
	case "reviews":
		reviews, err := dataset.ReadReviews(file, sep, now)
		if err != nil {
			return 0, errors.Trace(err)
		}
		bar := progressbar.Default(int64(len(reviews)), "import reviews")
		for _, chunk := range lo.Chunk(reviews, importBatchSize) {
			if err = dataClient.BatchInsertReviews(ctx, chunk); err != nil {
				return 0, errors.Trace(err)
			}
			_ = bar.Add(len(chunk))
		}
		return len(reviews), nil
	}
	return 0, errors.NotValidf("import kind %q", kind)
}
