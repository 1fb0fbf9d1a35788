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

package jetstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacrooks/materialize/pkg/dataflow"
	jsclient "github.com/nacrooks/materialize/pkg/shared/clients/nats"
	natstest "github.com/nacrooks/materialize/pkg/shared/clients/nats/test"
	"github.com/nacrooks/materialize/pkg/store"
)

func TestJetStreamStore(t *testing.T) {
	srv := natstest.RunJetStreamServer(t)
	defer natstest.ShutdownJetStreamServer(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, err := jsclient.NewNATSClient(ctx, srv.ClientURL())
	require.NoError(t, err)
	defer client.Close()

	s, err := NewTimestampStore(ctx, "testTimestamps", client)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	max, err := s.MaxTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), max)

	id := dataflow.SourceInstanceID{SourceID: "u1", ViewID: "v1"}
	for _, r := range []store.TimestampRecord{
		{SourceID: "u1", ViewID: "v1", PartitionCount: 2, PartitionID: 1, Timestamp: 200, Offset: 20},
		{SourceID: "u1", ViewID: "v1", PartitionCount: 2, PartitionID: 0, Timestamp: 100, Offset: 10},
		{SourceID: "u2", ViewID: "v2", PartitionCount: 1, PartitionID: 0, Timestamp: 900, Offset: 9},
	} {
		require.NoError(t, s.Insert(ctx, r))
	}

	max, err = s.MaxTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), max)

	records, err := s.ReplaySource(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(100), records[0].Timestamp)
	assert.Equal(t, uint64(200), records[1].Timestamp)
	assert.Equal(t, int64(20), records[1].Offset)

	require.NoError(t, s.DeleteSource(ctx, id))
	records, err = s.ReplaySource(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, records)
	// the other instance is untouched
	records, err = s.ReplaySource(ctx, dataflow.SourceInstanceID{SourceID: "u2", ViewID: "v2"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	require.NoError(t, s.DeleteSource(ctx, id))
}
