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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/store/inmem"
)

func newByoConsumer(topic string, messages ...string) *byoConsumer {
	raw := make([][]byte, len(messages))
	for i, m := range messages {
		raw[i] = []byte(m)
	}
	return &byoConsumer{
		spec:            kafkaSpec(topic),
		connector:       &fakeConnector{messages: raw},
		sourceName:      topic,
		envelope:        dataflow.EnvelopeNone,
		lastPartitionTS: map[int32]uint64{},
		partitionCount:  1,
	}
}

func TestByoAcceptsDeclaredUpdate(t *testing.T) {
	notifier := &captureNotifier{}
	ts := newTestTimestamper(t, inmem.NewTimestampStore(), notifier)
	id := testInstanceID(1)
	consumer := newByoConsumer("S", "S,1,0,100,50")
	ts.byoSources[id] = consumer

	require.NoError(t, ts.updateByoTimestamp(context.Background()))
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, id, notifier.notified[0].ID)
	assert.Equal(t, int32(1), notifier.notified[0].PartitionCount)
	assert.Equal(t, int32(0), notifier.notified[0].PartitionID)
	assert.Equal(t, uint64(100), notifier.notified[0].Timestamp)
	assert.Equal(t, int64(50), notifier.notified[0].Offset)
	assert.Equal(t, uint64(100), consumer.lastTS)
	assert.Equal(t, uint64(100), consumer.lastPartitionTS[0])
}

func TestByoPartitionGrowthEmitsSyntheticClose(t *testing.T) {
	notifier := &captureNotifier{}
	ts := newTestTimestamper(t, inmem.NewTimestampStore(), notifier)
	id := testInstanceID(1)
	consumer := newByoConsumer("S", "S,1,0,100,10", "S,2,1,150,5")
	ts.byoSources[id] = consumer

	require.NoError(t, ts.updateByoTimestamp(context.Background()))
	require.Len(t, notifier.notified, 3)
	// the new partition is closed up to the last timestamp before any
	// real update for it is forwarded
	synthetic := notifier.notified[1]
	assert.Equal(t, int32(2), synthetic.PartitionCount)
	assert.Equal(t, int32(1), synthetic.PartitionID)
	assert.Equal(t, uint64(100), synthetic.Timestamp)
	assert.Equal(t, int64(0), synthetic.Offset)
	real := notifier.notified[2]
	assert.Equal(t, int32(2), real.PartitionCount)
	assert.Equal(t, int32(1), real.PartitionID)
	assert.Equal(t, uint64(150), real.Timestamp)
	assert.Equal(t, int64(5), real.Offset)
	assert.Equal(t, int32(2), consumer.partitionCount)
	assert.Equal(t, uint64(150), consumer.lastTS)
}

func TestByoRejectsRegressingTimestamp(t *testing.T) {
	notifier := &captureNotifier{}
	ts := newTestTimestamper(t, inmem.NewTimestampStore(), notifier)
	id := testInstanceID(1)
	consumer := newByoConsumer("S", "S,1,0,200,10", "S,1,0,150,20")
	ts.byoSources[id] = consumer

	require.NoError(t, ts.updateByoTimestamp(context.Background()))
	// only the first update is forwarded; the regression leaves state
	// untouched
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, uint64(200), notifier.notified[0].Timestamp)
	assert.Equal(t, uint64(200), consumer.lastTS)
	assert.Equal(t, uint64(200), consumer.lastPartitionTS[0])
}

func TestByoDiscardsMalformedMessages(t *testing.T) {
	notifier := &captureNotifier{}
	ts := newTestTimestamper(t, inmem.NewTimestampStore(), notifier)
	id := testInstanceID(1)
	consumer := newByoConsumer("S",
		"S,1,100",              // wrong field count
		"S,x,0,100,10",         // non-numeric partition count
		"S,1,0,not-a-ts,10",    // non-numeric timestamp
		string([]byte{0xff}),   // invalid UTF-8
		"other,1,0,999,10",     // another source's control message
		"S,1,0,100,10",         // valid
	)
	ts.byoSources[id] = consumer

	require.NoError(t, ts.updateByoTimestamp(context.Background()))
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, uint64(100), notifier.notified[0].Timestamp)
}

func TestByoAcceptanceRules(t *testing.T) {
	consumer := &byoConsumer{
		lastPartitionTS: map[int32]uint64{0: 100, 1: 80},
		lastTS:          100,
		partitionCount:  2,
	}
	tests := []struct {
		name     string
		update   byoUpdate
		accepted bool
	}{
		{"zero timestamp", byoUpdate{partitionCount: 2, partitionID: 0, timestamp: 0}, false},
		{"max timestamp", byoUpdate{partitionCount: 2, partitionID: 0, timestamp: math.MaxUint64}, false},
		{"advance on most recent partition", byoUpdate{partitionCount: 2, partitionID: 0, timestamp: 150}, true},
		{"exact repeat of global timestamp", byoUpdate{partitionCount: 2, partitionID: 0, timestamp: 100}, false},
		{"behind global timestamp", byoUpdate{partitionCount: 2, partitionID: 1, timestamp: 90}, false},
		{"other partition repeating global timestamp", byoUpdate{partitionCount: 2, partitionID: 1, timestamp: 100}, false},
		{"other partition moving past global timestamp", byoUpdate{partitionCount: 2, partitionID: 1, timestamp: 110}, true},
		{"behind its own partition", byoUpdate{partitionCount: 2, partitionID: 0, timestamp: 95}, false},
		{"growth with strictly greater timestamp", byoUpdate{partitionCount: 3, partitionID: 2, timestamp: 120}, true},
		{"growth repeating global timestamp", byoUpdate{partitionCount: 3, partitionID: 2, timestamp: 100}, true},
		{"growth behind global timestamp", byoUpdate{partitionCount: 3, partitionID: 2, timestamp: 90}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.accepted, consumer.accepts(tt.update))
		})
	}
}

func TestByoDrainIsBoundedPerTick(t *testing.T) {
	notifier := &captureNotifier{}
	ts := newTestTimestamper(t, inmem.NewTimestampStore(), notifier)
	ts.maxIncrementSize = 3
	id := testInstanceID(1)
	var messages []string
	for i := 1; i <= 10; i++ {
		messages = append(messages, fmt.Sprintf("S,1,0,%d,%d", i*100, i))
	}
	consumer := newByoConsumer("S", messages...)
	ts.byoSources[id] = consumer

	require.NoError(t, ts.updateByoTimestamp(context.Background()))
	assert.Len(t, notifier.notified, 3)
	require.NoError(t, ts.updateByoTimestamp(context.Background()))
	assert.Len(t, notifier.notified, 6)
}

func TestByoDebeziumEnvelopePanics(t *testing.T) {
	ts := newTestTimestamper(t, inmem.NewTimestampStore(), &captureNotifier{})
	id := testInstanceID(1)
	consumer := newByoConsumer("S", "S,1,0,100,10")
	consumer.envelope = dataflow.EnvelopeDebezium
	ts.byoSources[id] = consumer

	assert.Panics(t, func() {
		_ = ts.updateByoTimestamp(context.Background())
	})
}

func TestByoNonKafkaSourceProducesNoUpdates(t *testing.T) {
	notifier := &captureNotifier{}
	ts := newTestTimestamper(t, inmem.NewTimestampStore(), notifier)
	id := testInstanceID(1)
	ts.byoSources[id] = &byoConsumer{
		spec:            dataflow.SourceConnector{File: &dataflow.FileSourceConnector{Path: "/tmp/data"}},
		connector:       &fakeConnector{},
		sourceName:      "S",
		envelope:        dataflow.EnvelopeNone,
		lastPartitionTS: map[int32]uint64{},
		partitionCount:  1,
	}

	require.NoError(t, ts.updateByoTimestamp(context.Background()))
	assert.Empty(t, notifier.notified)
}
