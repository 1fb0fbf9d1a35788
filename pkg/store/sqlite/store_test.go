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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/store"
)

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "timestamps.db")
	s, err := NewTimestampStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	max, err := s.MaxTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), max)

	id := dataflow.SourceInstanceID{SourceID: "u1", ViewID: "v1"}
	for _, r := range []store.TimestampRecord{
		{SourceID: "u1", ViewID: "v1", PartitionCount: 2, PartitionID: 1, Timestamp: 200, Offset: 20},
		{SourceID: "u1", ViewID: "v1", PartitionCount: 2, PartitionID: 0, Timestamp: 100, Offset: 10},
		{SourceID: "u2", ViewID: "v2", PartitionCount: 1, PartitionID: 0, Timestamp: 700, Offset: 7},
	} {
		require.NoError(t, s.Insert(ctx, r))
	}

	max, err = s.MaxTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), max)

	records, err := s.ReplaySource(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(100), records[0].Timestamp)
	assert.Equal(t, int64(10), records[0].Offset)
	assert.Equal(t, uint64(200), records[1].Timestamp)
	assert.Equal(t, int32(1), records[1].PartitionID)

	require.NoError(t, s.DeleteSource(ctx, id))
	records, err = s.ReplaySource(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, s.DeleteSource(ctx, id))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "timestamps.db")
	s, err := NewTimestampStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, store.TimestampRecord{
		SourceID: "u1", ViewID: "v1", PartitionCount: 1, Timestamp: 5000, Offset: 1,
	}))
	require.NoError(t, s.Close())

	reopened, err := NewTimestampStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	max, err := reopened.MaxTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), max)
}
