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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/nacrooks/materialize/pkg/coord"
	"github.com/nacrooks/materialize/pkg/dataflow"
	srcerrors "github.com/nacrooks/materialize/pkg/sources/errors"
)

// byoUpdate is one externally-declared timestamp boundary.
type byoUpdate struct {
	partitionCount int32
	partitionID    int32
	timestamp      uint64
	offset         int64
}

// ViolationError is the error logged when a BYO control message breaks
// the timestamp assignment rules. The offending update is dropped
// without mutating state, so an untrusted producer cannot corrupt the
// global order.
type ViolationError struct {
	ID     dataflow.SourceInstanceID
	Update byoUpdate
}

func (e ViolationError) Error() string {
	return fmt.Sprintf("source %s: update (pcount=%d, pid=%d, ts=%d, offset=%d) violates the timestamp assignment rules: "+
		"a timestamp must be greater than 0 and strictly smaller than the maximum representable value; "+
		"if no new partition is added it must be strictly greater than the last timestamp in its partition "+
		"and greater or equal to all timestamps assigned across all partitions; "+
		"if a new partition is added it must be strictly greater than the last timestamp",
		e.ID, e.Update.partitionCount, e.Update.partitionID, e.Update.timestamp, e.Update.offset)
}

// updateByoTimestamp implements the BYO timestamping logic.
//
// If the partition count remains the same, a new timestamp must be
// 1) strictly greater than the last timestamp in this partition
// 2) greater or equal to all the timestamps assigned so far across all partitions
// If the partition count increases, a new timestamp must be
// 1) strictly greater than the last timestamp
// This guarantees the timestamp could not have been closed yet.
func (t *Timestamper) updateByoTimestamp(ctx context.Context) error {
	for id, consumer := range t.byoSources {
		messages := t.byoQuerySource(ctx, id, consumer)
		switch consumer.envelope {
		case dataflow.EnvelopeNone:
			for _, update := range t.byoExtractUpdates(consumer, messages) {
				if !consumer.accepts(update) {
					byoViolationsCount.WithLabelValues(id.SourceID, id.ViewID).Inc()
					t.logger.Errorw("Dropping BYO timestamp update", zap.Error(ViolationError{ID: id, Update: update}))
					continue
				}
				if update.partitionCount > consumer.partitionCount {
					// A new partition has appeared. Partitions are added
					// contiguously, so the new one is partitionCount-1. Close
					// it out up to the already-closed time before any real
					// data for it is expected; offset 0 denotes the empty
					// interval.
					err := t.notifier.Notify(coord.AdvanceSourceTimestamp{
						ID:             id,
						PartitionCount: update.partitionCount,
						PartitionID:    update.partitionCount - 1,
						Timestamp:      consumer.lastTS,
						Offset:         0,
					})
					if err != nil {
						return fmt.Errorf("failed to send timestamp update to coordinator, %w", err)
					}
				}
				consumer.partitionCount = update.partitionCount
				consumer.lastTS = update.timestamp
				consumer.lastPartitionTS[update.partitionID] = update.timestamp
				err := t.notifier.Notify(coord.AdvanceSourceTimestamp{
					ID:             id,
					PartitionCount: update.partitionCount,
					PartitionID:    update.partitionID,
					Timestamp:      update.timestamp,
					Offset:         update.offset,
				})
				if err != nil {
					return fmt.Errorf("failed to send timestamp update to coordinator, %w", err)
				}
				byoAcceptedCount.WithLabelValues(id.SourceID, id.ViewID).Inc()
			}
		case dataflow.EnvelopeDebezium:
			t.logger.Panicw("BYO timestamping for the Debezium envelope is not implemented",
				zap.String("source", id.String()))
		}
	}
	return nil
}

// accepts reports whether an update satisfies the ordering invariants
// given the consumer's current state.
func (c *byoConsumer) accepts(u byoUpdate) bool {
	if u.timestamp == 0 || u.timestamp == math.MaxUint64 {
		return false
	}
	if u.timestamp <= c.lastPartitionTS[u.partitionID] {
		return false
	}
	if u.timestamp < c.lastTS {
		return false
	}
	// without a partition addition, an exact repeat of lastTS is not a
	// new boundary
	if u.partitionCount <= c.partitionCount && u.timestamp == c.lastTS {
		return false
	}
	return true
}

// byoQuerySource polls the control stream for up to maxIncrementSize
// raw messages, bounding the per-tick work for one source.
func (t *Timestamper) byoQuerySource(ctx context.Context, id dataflow.SourceInstanceID, consumer *byoConsumer) [][]byte {
	if consumer.spec.Kafka == nil {
		t.logger.Errorw("Timestamping for this source kind is unimplemented",
			zap.String("source", id.String()), zap.String("kind", consumer.spec.Kind()))
		return nil
	}
	var messages [][]byte
	for int64(len(messages)) < t.maxIncrementSize {
		payload, err := consumer.connector.PollMessage(ctx)
		if err != nil {
			if !errors.Is(err, srcerrors.ErrUnsupported) && !errors.Is(err, context.Canceled) {
				t.logger.Errorw("Failed to poll control stream", zap.String("source", id.String()), zap.Error(err))
			}
			break
		}
		if payload == nil {
			break
		}
		messages = append(messages, payload)
	}
	return messages
}

// byoExtractUpdates parses raw control messages. A message is UTF-8
// text with exactly five comma-separated fields:
// SourceName,PartitionCount,PartitionId,TS,Offset. Unparseable messages
// are discarded one at a time; messages for other sources are skipped
// because the control topic may be shared.
func (t *Timestamper) byoExtractUpdates(consumer *byoConsumer, messages [][]byte) []byoUpdate {
	var updates []byoUpdate
	for _, payload := range messages {
		if !utf8.Valid(payload) {
			byoMalformedCount.Inc()
			t.logger.Error("Incorrect payload format, not valid UTF-8")
			continue
		}
		split := strings.Split(string(payload), ",")
		if len(split) != 5 {
			byoMalformedCount.Inc()
			t.logger.Error("Incorrect payload format. Expected: SourceName,PartitionCount,PartitionId,TS,Offset")
			continue
		}
		sourceName := split[0]
		partitionCount, err := strconv.ParseInt(split[1], 10, 32)
		if err != nil {
			byoMalformedCount.Inc()
			t.logger.Errorw("Incorrect timestamp format", zap.Error(err))
			continue
		}
		partitionID, err := strconv.ParseInt(split[2], 10, 32)
		if err != nil {
			byoMalformedCount.Inc()
			t.logger.Errorw("Incorrect timestamp format", zap.Error(err))
			continue
		}
		timestamp, err := strconv.ParseUint(split[3], 10, 64)
		if err != nil {
			byoMalformedCount.Inc()
			t.logger.Errorw("Incorrect timestamp format", zap.Error(err))
			continue
		}
		offset, err := strconv.ParseInt(split[4], 10, 64)
		if err != nil {
			byoMalformedCount.Inc()
			t.logger.Errorw("Incorrect timestamp format", zap.Error(err))
			continue
		}
		if sourceName != consumer.sourceName {
			t.logger.Debugw("Skipping control message for other source", zap.String("sourceName", sourceName))
			continue
		}
		updates = append(updates, byoUpdate{
			partitionCount: int32(partitionCount),
			partitionID:    int32(partitionID),
			timestamp:      timestamp,
			offset:         offset,
		})
	}
	return updates
}
