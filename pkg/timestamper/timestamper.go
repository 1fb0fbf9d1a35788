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

/*
Package timestamper assigns a single, globally monotonic logical
timestamp to data arriving from partitioned, at-least-once streaming
sources, so the coordinator can treat ingested data as a strictly
ordered, batched sequence.

Two consistency models are supported. Real-time sources are polled for
their per-partition high watermarks and closed off under one freshly
minted timestamp per tick. Bring-your-own sources carry a control topic
on which an external producer declares (partition count, partition,
timestamp, offset) boundaries itself; the timestamper validates the
declared order and relays it.

All mutable state (registries, the global clock) is owned by the single
goroutine running the control loop; the rest of the system talks to it
through the control channel and the outbound notifier.
*/
package timestamper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nacrooks/materialize/pkg/coord"
	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/shared/logging"
	"github.com/nacrooks/materialize/pkg/sources"
	"github.com/nacrooks/materialize/pkg/store"
)

const (
	defaultFrequency        = 1 * time.Second
	defaultMaxIncrementSize = int64(1000)
	defaultRetryInterval    = 1 * time.Second
	controlChannelSize      = 64
)

// rtConsumer is the per-source progress state of a real-time source.
type rtConsumer struct {
	spec      dataflow.SourceConnector
	connector sources.Connector
	// the high-water offset already assigned, shared across the
	// partitions of this source, monotonically non-decreasing
	lastOffset int64
}

// byoConsumer is the per-source progress state of a BYO source.
type byoConsumer struct {
	spec      dataflow.SourceConnector
	connector sources.Connector
	// the name control messages must carry to be applied to this source
	sourceName string
	envelope   dataflow.Envelope
	// maximum accepted timestamp per partition
	lastPartitionTS map[int32]uint64
	// maximum accepted timestamp across all partitions
	lastTS uint64
	// partition count as last declared by the control stream
	partitionCount int32
}

// Timestamper owns the tracked-source registries and the global clock.
// It is driven by Run on a single goroutine; nothing else mutates it.
type Timestamper struct {
	// current list of up to date sources that use a real time consistency model
	rtSources map[dataflow.SourceInstanceID]*rtConsumer
	// current list of up to date sources that use a BYO consistency model
	byoSources map[dataflow.SourceInstanceID]*byoConsumer

	storage  store.TimestampStore
	notifier coord.Notifier

	controlCh chan Message

	// last minted timestamp (kept explicitly because wall-clock reads
	// are not necessarily increasing)
	currentTimestamp uint64

	// frequency at which the loop ticks
	frequency time.Duration
	// bounds both the offset range covered by one RT timestamp and the
	// number of BYO control messages drained per source per tick
	maxIncrementSize int64
	// backoff for persistence and metadata retries
	retryInterval time.Duration
	// wall clock, swappable in tests
	now func() time.Time

	logger *zap.SugaredLogger
}

type Option func(*Timestamper) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(t *Timestamper) error {
		t.logger = l
		return nil
	}
}

// WithFrequency sets the tick frequency
func WithFrequency(d time.Duration) Option {
	return func(t *Timestamper) error {
		if d <= 0 {
			return fmt.Errorf("frequency must be positive, got %v", d)
		}
		t.frequency = d
		return nil
	}
}

// WithMaxIncrementSize caps how much offset range a single timestamp can cover
func WithMaxIncrementSize(s int64) Option {
	return func(t *Timestamper) error {
		if s <= 0 {
			return fmt.Errorf("max increment size must be positive, got %d", s)
		}
		t.maxIncrementSize = s
		return nil
	}
}

// WithRetryInterval sets the backoff used for persistence and metadata retries
func WithRetryInterval(d time.Duration) Option {
	return func(t *Timestamper) error {
		t.retryInterval = d
		return nil
	}
}

// New returns a Timestamper whose global clock is seeded with the
// maximum persisted timestamp, so a restart never reuses or regresses a
// previously emitted timestamp.
func New(ctx context.Context, storage store.TimestampStore, notifier coord.Notifier, opts ...Option) (*Timestamper, error) {
	t := &Timestamper{
		rtSources:        make(map[dataflow.SourceInstanceID]*rtConsumer),
		byoSources:       make(map[dataflow.SourceInstanceID]*byoConsumer),
		storage:          storage,
		notifier:         notifier,
		controlCh:        make(chan Message, controlChannelSize),
		frequency:        defaultFrequency,
		maxIncrementSize: defaultMaxIncrementSize,
		retryInterval:    defaultRetryInterval,
		now:              time.Now,
		logger:           logging.FromContext(ctx),
	}
	for _, o := range opts {
		if err := o(t); err != nil {
			return nil, err
		}
	}
	maxTS, err := storage.MaxTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover max persisted timestamp, %w", err)
	}
	t.currentTimestamp = maxTS
	t.logger.Infow("Starting timestamping", zap.Duration("frequency", t.frequency))
	return t, nil
}

// Send enqueues a control message for the loop to apply at the top of
// its next tick.
func (t *Timestamper) Send(m Message) {
	t.controlCh <- m
}

// Run drives the control loop until a Shutdown message is drained, the
// context is canceled, or a terminal error (e.g. a closed notifier)
// occurs.
func (t *Timestamper) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.frequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			shutdown, err := t.runTick(ctx)
			if err != nil {
				return err
			}
			if shutdown {
				t.logger.Info("Shutting down timestamping")
				return nil
			}
		}
	}
}

// runTick is one advance of the loop: drain the control channel, then
// run the RT assigner, then the BYO assigner. Split out from Run so the
// core logic is drivable without timers.
func (t *Timestamper) runTick(ctx context.Context) (bool, error) {
	shutdown, err := t.updateSources(ctx)
	if err != nil {
		return false, err
	}
	if shutdown {
		return true, nil
	}
	if err := t.updateRtTimestamp(ctx); err != nil {
		return false, err
	}
	if err := t.updateByoTimestamp(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// updateSources drains all pending control messages and applies them to
// the registries. A Shutdown message still finishes the drain before it
// is reported.
func (t *Timestamper) updateSources(ctx context.Context) (bool, error) {
	shutdown := false
	for {
		select {
		case m := <-t.controlCh:
			switch msg := m.(type) {
			case Add:
				if err := t.addSource(ctx, msg); err != nil {
					return false, err
				}
			case DropInstance:
				t.dropInstance(ctx, msg.ID)
			case Shutdown:
				shutdown = true
			}
		default:
			return shutdown, nil
		}
	}
}

func (t *Timestamper) addSource(ctx context.Context, msg Add) error {
	if _, ok := t.rtSources[msg.ID]; ok {
		return nil
	}
	if _, ok := t.byoSources[msg.ID]; ok {
		return nil
	}
	switch {
	case msg.Consistency.RealTime != nil:
		t.logger.Infow("Timestamping source with real time consistency", zap.String("source", msg.ID.String()))
		lastOffset, err := t.rtRecoverSource(ctx, msg.ID)
		if err != nil {
			return err
		}
		consumer, err := t.createRtConsumer(ctx, msg.ID, msg.Connector, lastOffset)
		if err != nil {
			t.logger.Errorw("Failed to create source connector", zap.String("source", msg.ID.String()), zap.Error(err))
			return nil
		}
		t.rtSources[msg.ID] = consumer
		trackedSourcesGauge.WithLabelValues("real-time").Set(float64(len(t.rtSources)))
	case msg.Consistency.BringYourOwn != nil:
		controlTopic := msg.Consistency.BringYourOwn.ControlTopic
		t.logger.Infow("Timestamping source with BYO consistency",
			zap.String("source", msg.ID.String()), zap.String("controlTopic", controlTopic))
		consumer, err := t.createByoConsumer(ctx, msg.ID, msg.Connector, controlTopic, msg.Envelope)
		if err != nil {
			t.logger.Errorw("Failed to create control stream connector", zap.String("source", msg.ID.String()), zap.Error(err))
			return nil
		}
		t.byoSources[msg.ID] = consumer
		trackedSourcesGauge.WithLabelValues("byo").Set(float64(len(t.byoSources)))
	default:
		t.logger.Errorw("Source has no consistency model set", zap.String("source", msg.ID.String()))
	}
	return nil
}

func (t *Timestamper) dropInstance(ctx context.Context, id dataflow.SourceInstanceID) {
	t.logger.Infow("Dropping timestamping for source", zap.String("source", id.String()))
	t.retryForever(ctx, "delete timestamp records", func() error {
		return t.storage.DeleteSource(ctx, id)
	})
	var errs error
	if c, ok := t.rtSources[id]; ok {
		errs = multierr.Append(errs, c.connector.Close())
		delete(t.rtSources, id)
		trackedSourcesGauge.WithLabelValues("real-time").Set(float64(len(t.rtSources)))
	}
	if c, ok := t.byoSources[id]; ok {
		errs = multierr.Append(errs, c.connector.Close())
		delete(t.byoSources, id)
		trackedSourcesGauge.WithLabelValues("byo").Set(float64(len(t.byoSources)))
	}
	if errs != nil {
		t.logger.Errorw("Failed to close source connector", zap.String("source", id.String()), zap.Error(errs))
	}
}

func (t *Timestamper) createRtConsumer(ctx context.Context, id dataflow.SourceInstanceID, spec dataflow.SourceConnector, lastOffset int64) (*rtConsumer, error) {
	var topic, clientID string
	if spec.Kafka != nil {
		topic = spec.Kafka.Topic
		clientID = fmt.Sprintf("materialize-rt-%s-%s", topic, id)
	}
	connector, err := sources.NewConnector(ctx, spec, topic, clientID)
	if err != nil {
		return nil, err
	}
	return &rtConsumer{spec: spec, connector: connector, lastOffset: lastOffset}, nil
}

func (t *Timestamper) createByoConsumer(ctx context.Context, id dataflow.SourceInstanceID, spec dataflow.SourceConnector, controlTopic string, envelope dataflow.Envelope) (*byoConsumer, error) {
	sourceName := ""
	if spec.Kafka != nil {
		sourceName = spec.Kafka.Topic
	} else {
		t.logger.Errorw("Source kind is unsupported for BYO timestamping",
			zap.String("source", id.String()), zap.String("kind", spec.Kind()))
	}
	clientID := fmt.Sprintf("materialize-byo-%s-%s", controlTopic, id)
	connector, err := sources.NewConnector(ctx, spec, controlTopic, clientID)
	if err != nil {
		return nil, err
	}
	if spec.Kafka != nil {
		// declared order is only total within a single partition
		partitions, err := connector.ListPartitions(ctx)
		if err != nil {
			_ = connector.Close()
			return nil, err
		}
		if len(partitions) != 1 {
			t.logger.Errorw("Control topic should contain a single partition",
				zap.String("controlTopic", controlTopic), zap.Int("partitions", len(partitions)))
		}
	}
	if envelope == "" {
		envelope = dataflow.EnvelopeNone
	}
	return &byoConsumer{
		spec:            spec,
		connector:       connector,
		sourceName:      sourceName,
		envelope:        envelope,
		lastPartitionTS: make(map[int32]uint64),
		// a source starts with one partition; the first declared update
		// must not look like a partition addition
		partitionCount: 1,
	}, nil
}

// retryForever runs f until it succeeds, logging and backing off on
// every failure. This deliberately stalls the affected source rather
// than dropping an update. A canceled context breaks the loop.
func (t *Timestamper) retryForever(ctx context.Context, op string, f func() error) {
	for {
		err := f()
		if err == nil {
			return
		}
		t.logger.Errorw("Failed to "+op+", retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.retryInterval):
		}
	}
}
