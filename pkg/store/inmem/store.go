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
Package inmem implements the timestamp store in memory. Nothing survives
a restart, so it is only suitable for tests and local development.
*/
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/store"
)

// inMemStore implements the timestamp store backed up by an in mem map.
type inMemStore struct {
	records map[dataflow.SourceInstanceID][]store.TimestampRecord
	lock    *sync.RWMutex
}

var _ store.TimestampStore = (*inMemStore)(nil)

// NewTimestampStore returns an in-memory timestamp store.
func NewTimestampStore() store.TimestampStore {
	return &inMemStore{
		records: make(map[dataflow.SourceInstanceID][]store.TimestampRecord),
		lock:    new(sync.RWMutex),
	}
}

func (s *inMemStore) MaxTimestamp(_ context.Context) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var max uint64
	for _, records := range s.records {
		for _, r := range records {
			if r.Timestamp > max {
				max = r.Timestamp
			}
		}
	}
	return max, nil
}

func (s *inMemStore) Insert(_ context.Context, record store.TimestampRecord) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	id := record.InstanceID()
	s.records[id] = append(s.records[id], record)
	return nil
}

func (s *inMemStore) ReplaySource(_ context.Context, id dataflow.SourceInstanceID) ([]store.TimestampRecord, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	records := make([]store.TimestampRecord, len(s.records[id]))
	copy(records, s.records[id])
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

func (s *inMemStore) DeleteSource(_ context.Context, id dataflow.SourceInstanceID) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.records, id)
	return nil
}

func (s *inMemStore) Close() error {
	return nil
}
