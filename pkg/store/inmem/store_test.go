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

package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/store"
)

func TestInMemStore(t *testing.T) {
	ctx := context.Background()
	s := NewTimestampStore()
	defer func() { _ = s.Close() }()

	max, err := s.MaxTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), max)

	id1 := dataflow.SourceInstanceID{SourceID: "u1", ViewID: "v1"}
	id2 := dataflow.SourceInstanceID{SourceID: "u2", ViewID: "v2"}
	// out of order on purpose, replay must sort by timestamp
	for _, r := range []store.TimestampRecord{
		{SourceID: "u1", ViewID: "v1", PartitionCount: 1, Timestamp: 300, Offset: 30},
		{SourceID: "u1", ViewID: "v1", PartitionCount: 1, Timestamp: 100, Offset: 10},
		{SourceID: "u1", ViewID: "v1", PartitionCount: 1, Timestamp: 200, Offset: 20},
		{SourceID: "u2", ViewID: "v2", PartitionCount: 1, Timestamp: 500, Offset: 5},
	} {
		require.NoError(t, s.Insert(ctx, r))
	}

	max, err = s.MaxTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), max)

	records, err := s.ReplaySource(ctx, id1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, uint64(100), records[0].Timestamp)
	assert.Equal(t, uint64(200), records[1].Timestamp)
	assert.Equal(t, uint64(300), records[2].Timestamp)

	require.NoError(t, s.DeleteSource(ctx, id1))
	records, err = s.ReplaySource(ctx, id1)
	require.NoError(t, err)
	assert.Empty(t, records)
	// other instances are untouched
	records, err = s.ReplaySource(ctx, id2)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	// deleting an unknown instance is not an error
	require.NoError(t, s.DeleteSource(ctx, id1))
}
