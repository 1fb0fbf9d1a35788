/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nacrooks/materialize/pkg/catalog"
	"github.com/nacrooks/materialize/pkg/coord"
	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/metrics"
	jsclient "github.com/nacrooks/materialize/pkg/shared/clients/nats"
	"github.com/nacrooks/materialize/pkg/shared/logging"
	sharedutil "github.com/nacrooks/materialize/pkg/shared/util"
	"github.com/nacrooks/materialize/pkg/store"
	inmemstore "github.com/nacrooks/materialize/pkg/store/inmem"
	jsstore "github.com/nacrooks/materialize/pkg/store/jetstream"
	redisstore "github.com/nacrooks/materialize/pkg/store/redis"
	sqlitestore "github.com/nacrooks/materialize/pkg/store/sqlite"
	"github.com/nacrooks/materialize/pkg/timestamper"
)

func NewTimestamperCommand() *cobra.Command {

	var (
		configFile string
	)
	command := &cobra.Command{
		Use:   "timestamper",
		Short: "Start the timestamp assignment daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger().Named("timestamper")
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			v := viper.New()
			v.SetConfigFile(configFile)
			v.SetEnvPrefix("MATERIALIZE")
			v.AutomaticEnv()
			v.SetDefault("frequency", "1s")
			v.SetDefault("maxIncrementSize", sharedutil.LookupEnvIntOr("MATERIALIZE_MAX_INCREMENT_SIZE", 1000))
			v.SetDefault("metrics.addr", ":2470")
			v.SetDefault("store.type", "sqlite")
			v.SetDefault("store.sqlite.path", "materialize-timestamps.db")
			v.SetDefault("store.redis.url", sharedutil.LookupEnvStringOr("MATERIALIZE_REDIS_URL", "localhost:6379"))
			v.SetDefault("store.jetstream.url", sharedutil.LookupEnvStringOr("MATERIALIZE_JETSTREAM_URL", "localhost:4222"))
			v.SetDefault("store.jetstream.bucket", "materialize-timestamps")
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file %q, %w", configFile, err)
			}

			storage, err := buildStore(ctx, v)
			if err != nil {
				return err
			}
			defer func() { _ = storage.Close() }()

			notifier := coord.NewChannelNotifier()
			ts, err := timestamper.New(ctx, storage, notifier,
				timestamper.WithLogger(logger),
				timestamper.WithFrequency(v.GetDuration("frequency")),
				timestamper.WithMaxIncrementSize(v.GetInt64("maxIncrementSize")),
			)
			if err != nil {
				return err
			}

			loader, err := catalog.NewLoader(configFile, logger)
			if err != nil {
				return err
			}
			for _, s := range loader.Catalog().Sources {
				ts.Send(timestamper.Add{
					ID:          s.InstanceID(),
					Connector:   s.Connector,
					Consistency: s.Consistency,
					Envelope:    s.Envelope,
				})
			}
			loader.Watch(func(added []catalog.Source, removed []dataflow.SourceInstanceID) {
				for _, id := range removed {
					ts.Send(timestamper.DropInstance{ID: id})
				}
				for _, s := range added {
					ts.Send(timestamper.Add{
						ID:          s.InstanceID(),
						Connector:   s.Connector,
						Consistency: s.Consistency,
						Envelope:    s.Envelope,
					})
				}
			})

			metricsServer := metrics.NewMetricsServer(v.GetString("metrics.addr"))
			shutdownMetrics, err := metricsServer.Start(ctx)
			if err != nil {
				return fmt.Errorf("failed to start metrics server, %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdownMetrics(shutdownCtx); err != nil {
					logger.Errorw("Failed to shut down metrics server", zap.Error(err))
				}
			}()

			// The coordinator is external; drain its notifications here so
			// the pump never backs up, and surface them at debug level.
			go func() {
				for m := range notifier.Out() {
					logger.Debugw("Advance source timestamp", zap.String("update", m.String()))
				}
			}()
			defer notifier.Close()

			return ts.Run(ctx)
		},
	}
	command.Flags().StringVarP(&configFile, "config", "c", "timestamper.yaml", "Path to the config and source catalog file")
	return command
}

func buildStore(ctx context.Context, v *viper.Viper) (store.TimestampStore, error) {
	storeType := v.GetString("store.type")
	switch storeType {
	case "sqlite":
		return sqlitestore.NewTimestampStore(v.GetString("store.sqlite.path"))
	case "redis":
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs: []string{v.GetString("store.redis.url")},
		})
		return redisstore.NewTimestampStore(client), nil
	case "jetstream":
		client, err := jsclient.NewNATSClient(ctx, v.GetString("store.jetstream.url"))
		if err != nil {
			return nil, err
		}
		return jsstore.NewTimestampStore(ctx, v.GetString("store.jetstream.bucket"), client)
	case "inmem":
		return inmemstore.NewTimestampStore(), nil
	default:
		return nil, fmt.Errorf("unrecognized store type %q", storeType)
	}
}
