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

package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/nacrooks/materialize/pkg/shared/logging"
)

// Client is a client for NATS server which can be shared by multiple
// connections (kv, subscriptions, etc.)
type Client struct {
	nc    *nats.Conn
	jsCtx nats.JetStreamContext
	log   *zap.SugaredLogger
}

// NewNATSClient creates a new NATS client connected to the given url.
func NewNATSClient(ctx context.Context, url string, natsOptions ...nats.Option) (*Client, error) {
	log := logging.FromContext(ctx)
	opts := []nats.Option{
		// if max reconnects is set to -1, it will try to reconnect forever
		nats.MaxReconnects(-1),
		nats.PingInterval(3 * time.Second),
		nats.MaxPingsOutstanding(2),
		// retry on failed connect should be true, else it wont try to reconnect during initial connect
		nats.RetryOnFailedConnect(true),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorw("Nats default: error occurred for subscription", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Errorw("Nats default: disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Nats default: reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("Nats default: connection closed")
		}),
		nats.FlusherTimeout(10 * time.Second),
	}
	opts = append(opts, natsOptions...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url=%s: %w", url, err)
	}
	jsCtx, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create to nats jetstream context: %w", err)
	}
	return &Client{nc: nc, jsCtx: jsCtx, log: log}, nil
}

// BindKVStore binds to the JetStream KV store with the given name,
// creating it if it does not exist yet.
func (c *Client) BindKVStore(kvName string) (nats.KeyValue, error) {
	kv, err := c.jsCtx.KeyValue(kvName)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to bind kv store %q: %w", kvName, err)
	}
	kv, err = c.jsCtx.CreateKeyValue(&nats.KeyValueConfig{Bucket: kvName})
	if err != nil {
		return nil, fmt.Errorf("failed to create kv store %q: %w", kvName, err)
	}
	return kv, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.nc != nil && !c.nc.IsClosed() {
		c.nc.Close()
	}
}
