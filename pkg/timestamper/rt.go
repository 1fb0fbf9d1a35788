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

package timestamper

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nacrooks/materialize/pkg/coord"
	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/store"
)

// rtUpdate is one per-partition offset target computed during a tick.
type rtUpdate struct {
	id             dataflow.SourceInstanceID
	partitionCount int32
	partitionID    int32
	offset         int64
}

// updateRtTimestamp implements the real-time timestamping logic: query
// all RT sources for their watermark targets, mint one new global
// timestamp, persist every target under it, then notify the
// coordinator.
func (t *Timestamper) updateRtTimestamp(ctx context.Context) error {
	updates := t.rtQuerySources(ctx)
	t.rtGenerateNextTimestamp()
	t.rtPersistTimestamps(ctx, updates)
	for _, u := range updates {
		err := t.notifier.Notify(coord.AdvanceSourceTimestamp{
			ID:             u.id,
			PartitionCount: u.partitionCount,
			PartitionID:    u.partitionID,
			Timestamp:      t.currentTimestamp,
			Offset:         u.offset,
		})
		if err != nil {
			return fmt.Errorf("failed to send timestamp update to coordinator, %w", err)
		}
		rtUpdatesCount.WithLabelValues(u.id.SourceID, u.id.ViewID).Inc()
	}
	return nil
}

// rtQuerySources computes, for every partition of every RT source, the
// next offset to close off: min(high watermark, lastOffset +
// maxIncrementSize). The bound keeps any one timestamp from covering an
// arbitrarily large batch, so downstream views become visible promptly.
func (t *Timestamper) rtQuerySources(ctx context.Context) []rtUpdate {
	var updates []rtUpdate
	for id, consumer := range t.rtSources {
		switch {
		case consumer.spec.Kafka != nil:
			partitions, err := consumer.connector.ListPartitions(ctx)
			if err != nil {
				t.logger.Errorw("Failed to obtain partition information", zap.String("source", id.String()), zap.Error(err))
				continue
			}
			partitionCount := int32(len(partitions))
			for _, p := range partitions {
				high, err := consumer.connector.FetchHighWatermark(ctx, p)
				if err != nil {
					t.logger.Errorw("Failed to obtain watermark information",
						zap.String("source", id.String()), zap.Int32("partition", p), zap.Error(err))
					continue
				}
				// a watermark behind lastOffset (e.g. topic recreation)
				// is taken as-is and pulls lastOffset back with it
				nextOffset := high
				if high-consumer.lastOffset > t.maxIncrementSize {
					nextOffset = consumer.lastOffset + t.maxIncrementSize
				}
				consumer.lastOffset = nextOffset
				updates = append(updates, rtUpdate{id: id, partitionCount: partitionCount, partitionID: p, offset: nextOffset})
			}
		case consumer.spec.File != nil:
			t.logger.Errorw("Timestamping for file sources is not supported", zap.String("source", id.String()))
		case consumer.spec.Kinesis != nil:
			// Shard progress is not tracked yet; push the current global
			// timestamp as a stand-in offset, partition id and count zero.
			updates = append(updates, rtUpdate{id: id, partitionCount: 0, partitionID: 0, offset: int64(t.currentTimestamp)})
		}
	}
	return updates
}

// rtGenerateNextTimestamp mints a timestamp that is guaranteed to be
// strictly greater than every previously minted one. Wall-clock reads
// are not necessarily increasing between calls, so the clock is
// re-sampled until a greater value is observed.
func (t *Timestamper) rtGenerateNextTimestamp() {
	var newTS uint64
	for newTS <= t.currentTimestamp {
		newTS = uint64(t.now().UnixMilli())
	}
	t.currentTimestamp = newTS
	timestampsMintedCount.Inc()
}

// rtPersistTimestamps writes every update of the tick under the current
// timestamp, retrying each insert until it succeeds. An update must
// never be lost or skipped, so a failing store stalls progress instead.
func (t *Timestamper) rtPersistTimestamps(ctx context.Context, updates []rtUpdate) {
	for _, u := range updates {
		record := store.TimestampRecord{
			SourceID:       u.id.SourceID,
			ViewID:         u.id.ViewID,
			PartitionCount: u.partitionCount,
			PartitionID:    u.partitionID,
			Timestamp:      t.currentTimestamp,
			Offset:         u.offset,
		}
		t.retryForever(ctx, "insert timestamp record into persistent store", func() error {
			return t.storage.Insert(ctx, record)
		})
	}
}

// rtRecoverSource replays any persisted timestamp updates for the
// instance to the coordinator and returns the maximum persisted offset,
// so live tracking resumes where the previous incarnation stopped.
func (t *Timestamper) rtRecoverSource(ctx context.Context, id dataflow.SourceInstanceID) (int64, error) {
	var records []store.TimestampRecord
	t.retryForever(ctx, "replay timestamp records", func() error {
		var err error
		records, err = t.storage.ReplaySource(ctx, id)
		return err
	})
	var maxOffset int64
	for _, r := range records {
		if r.Offset > maxOffset {
			maxOffset = r.Offset
		}
		err := t.notifier.Notify(coord.AdvanceSourceTimestamp{
			ID:             id,
			PartitionCount: r.PartitionCount,
			PartitionID:    r.PartitionID,
			Timestamp:      r.Timestamp,
			Offset:         r.Offset,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to send timestamp update to coordinator, %w", err)
		}
	}
	return maxOffset, nil
}
