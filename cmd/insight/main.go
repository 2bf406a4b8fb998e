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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/cmd/version"
	"github.com/gorse-io/insight/config"
	"github.com/gorse-io/insight/master"
	"github.com/gorse-io/insight/server"
	"github.com/gorse-io/insight/storage/cache"
	"github.com/gorse-io/insight/storage/data"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var insightCommand = &cobra.Command{
	Use:   "insight",
	Short: "Recommendation and sentiment intelligence engine.",
	Run: func(cmd *cobra.Command, args []string) {
		// show version
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}

		// setup logger
		debug, _ := cmd.PersistentFlags().GetBool("debug")
		log.SetLogger(cmd.PersistentFlags(), debug)
		defer log.CloseLogger()

		// load config
		configPath, _ := cmd.PersistentFlags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}

		// setup tracing
		tp, err := conf.Tracing.NewTracerProvider()
		if err != nil {
			log.Logger().Fatal("failed to create trace provider", zap.Error(err))
		}
		otel.SetTracerProvider(tp)
		otel.SetErrorHandler(log.GetErrorHandler())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// connect stores
		maxElapsed, _ := cmd.PersistentFlags().GetDuration("connect-timeout")
		dataClient, err := backoff.Retry(ctx, func() (data.Database, error) {
			return openDataStore(conf)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxElapsedTime(maxElapsed),
			backoff.WithNotify(notify("data store")))
		if err != nil {
			log.Logger().Fatal("failed to connect data store",
				zap.String("database", log.RedactDBURL(conf.Database.DataStore)), zap.Error(err))
		}
		defer dataClient.Close()
		cacheClient, err := backoff.Retry(ctx, func() (cache.Database, error) {
			return openCacheStore(conf)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxElapsedTime(maxElapsed),
			backoff.WithNotify(notify("cache store")))
		if err != nil {
			log.Logger().Fatal("failed to connect cache store",
				zap.String("database", log.RedactDBURL(conf.Database.CacheStore)), zap.Error(err))
		}
		defer cacheClient.Close()

		// start
		m := master.NewMaster(conf, dataClient, cacheClient)
		s := server.NewRestServer(conf, dataClient, cacheClient, m)
		if err = serve(ctx, m, s); err != nil {
			log.Logger().Fatal("failed to serve", zap.Error(err))
		}
		log.Logger().Info("stop insight successfully")
	},
}

type tasksLoop interface {
	RunTasksLoop(ctx context.Context) error
}

type httpServer interface {
	StartHttpServer() error
	Shutdown(ctx context.Context) error
}

// serve runs the tasks loop and the HTTP server until ctx is done or either
// of them fails. A failure stops the other one.
func serve(ctx context.Context, loop tasksLoop, srv httpServer) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.RunTasksLoop(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Trace(err)
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.StartHttpServer(); err != nil {
			return errors.Trace(err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openDataStore(conf *config.Config) (data.Database, error) {
	dataClient, err := data.Open(conf.Database.DataStore, conf.Database.TablePrefix)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = dataClient.Init(); err != nil {
		_ = dataClient.Close()
		return nil, errors.Trace(err)
	}
	return dataClient, nil
}

func openCacheStore(conf *config.Config) (cache.Database, error) {
	cacheClient, err := cache.Open(conf.Database.CacheStore, conf.Database.TablePrefix)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = cacheClient.Init(); err != nil {
		_ = cacheClient.Close()
		return nil, errors.Trace(err)
	}
	return cacheClient, nil
}

func notify(store string) backoff.Notify {
	return func(err error, next time.Duration) {
		log.Logger().Warn("failed to connect "+store+", retrying",
			zap.Duration("next", next), zap.Error(err))
	}
}

func init() {
	log.AddFlags(insightCommand.PersistentFlags())
	insightCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	insightCommand.PersistentFlags().BoolP("version", "v", false, "insight version")
	insightCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	insightCommand.PersistentFlags().Duration("connect-timeout", time.Minute, "timeout of connecting to stores")
}

func main() {
	if err := insightCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
