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

package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/shared/logging"
	sharedutil "github.com/nacrooks/materialize/pkg/shared/util"
)

// Connector implements the full capability surface on a Kafka topic.
type Connector struct {
	// topic to consume messages from, or to fetch watermarks of
	topic string
	// kafka brokers
	brokers []string
	// sarama client, also used to fetch metadata and watermarks
	client sarama.Client
	// consumer for the control stream, created lazily on first poll
	consumer sarama.Consumer
	// partition consumer on partition 0 of the topic
	partitionConsumer sarama.PartitionConsumer
	// per-attempt timeout for a message poll
	pollTimeout time.Duration
	// backoff between metadata fetch attempts
	metadataRetryInterval time.Duration
	// logger
	logger *zap.SugaredLogger
}

type Option func(*Connector) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Connector) error {
		o.logger = l
		return nil
	}
}

// WithPollTimeout sets the per-attempt poll timeout
func WithPollTimeout(t time.Duration) Option {
	return func(o *Connector) error {
		o.pollTimeout = t
		return nil
	}
}

// WithMetadataRetryInterval sets the backoff between metadata fetches
func WithMetadataRetryInterval(t time.Duration) Option {
	return func(o *Connector) error {
		o.metadataRetryInterval = t
		return nil
	}
}

// NewConnector returns a Connector on the given topic. clientID names
// the consumer on the broker side.
func NewConnector(ctx context.Context, spec dataflow.KafkaSourceConnector, topic, clientID string, opts ...Option) (*Connector, error) {
	connector := &Connector{
		topic:                 topic,
		brokers:               spec.Brokers,
		pollTimeout:           60 * time.Millisecond, // default poll timeout
		metadataRetryInterval: 1 * time.Second,       // default metadata backoff
		logger:                logging.FromContext(ctx),
	}
	for _, o := range opts {
		if err := o(connector); err != nil {
			return nil, err
		}
	}
	connector.logger = connector.logger.With("topic", topic)

	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	if spec.CACertFile != "" {
		c, err := sharedutil.GetTLSConfigFromCACert(spec.CACertFile)
		if err != nil {
			return nil, err
		}
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = c
	}

	client, err := sarama.NewClient(spec.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client, %w", err)
	}
	connector.client = client
	return connector, nil
}

// PollMessage returns the payload of the next message on partition 0 of
// the topic, or nil if nothing arrives within the poll timeout. The
// control topic is expected to have a single partition, which is checked
// at registration time.
func (c *Connector) PollMessage(ctx context.Context) ([]byte, error) {
	if c.partitionConsumer == nil {
		consumer, err := sarama.NewConsumerFromClient(c.client)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka consumer, %w", err)
		}
		partitionConsumer, err := consumer.ConsumePartition(c.topic, 0, sarama.OffsetOldest)
		if err != nil {
			_ = consumer.Close()
			return nil, fmt.Errorf("failed to consume partition 0 of topic %q, %w", c.topic, err)
		}
		c.consumer = consumer
		c.partitionConsumer = partitionConsumer
	}
	select {
	case msg, ok := <-c.partitionConsumer.Messages():
		if !ok {
			return nil, fmt.Errorf("message channel of topic %q is closed", c.topic)
		}
		if msg.Value == nil {
			c.logger.Error("Unexpected null payload")
			return nil, nil
		}
		return msg.Value, nil
	case err := <-c.partitionConsumer.Errors():
		c.logger.Errorw("Failed to process message", zap.Error(err))
		return nil, nil
	case <-time.After(c.pollTimeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListPartitions returns the partition ids of the topic. It retries
// until the metadata yields a non-empty partition set; an offset
// decision is meaningless before the partitions are known.
func (c *Connector) ListPartitions(ctx context.Context) ([]int32, error) {
	for {
		partitions, err := c.client.Partitions(c.topic)
		if err != nil {
			c.logger.Errorw("Failed to obtain partition information", zap.Error(err))
		} else if len(partitions) > 0 {
			return partitions, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.metadataRetryInterval):
		}
		if err := c.client.RefreshMetadata(c.topic); err != nil {
			c.logger.Errorw("Failed to refresh metadata", zap.Error(err))
		}
	}
}

// FetchHighWatermark returns the newest offset of the partition.
func (c *Connector) FetchHighWatermark(_ context.Context, partition int32) (int64, error) {
	offset, err := c.client.GetOffset(c.topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, fmt.Errorf("failed to get offset of topic %q, partition %v, %w", c.topic, partition, err)
	}
	return offset, nil
}

// Close closes the consumers and the underlying client.
func (c *Connector) Close() error {
	var errs error
	if c.partitionConsumer != nil {
		errs = multierr.Append(errs, c.partitionConsumer.Close())
	}
	if c.consumer != nil {
		errs = multierr.Append(errs, c.consumer.Close())
	}
	if !c.client.Closed() {
		errs = multierr.Append(errs, c.client.Close())
	}
	return errs
}
