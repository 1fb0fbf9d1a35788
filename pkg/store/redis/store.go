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
Package redis implements the timestamp store on Redis. Records of one
source instance live in a sorted set scored by timestamp, so ordered
replay is a range scan. A separate set tracks the known instances for
the startup max-timestamp query.
*/
package redis

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/store"
)

const instancesKey = "materialize:timestamps:instances"

// redisStore implements the timestamp store backed up by Redis.
type redisStore struct {
	client redis.UniversalClient
}

var _ store.TimestampStore = (*redisStore)(nil)

// NewTimestampStore returns a Redis timestamp store on the given client.
// The client is owned by the store and closed with it.
func NewTimestampStore(client redis.UniversalClient) store.TimestampStore {
	return &redisStore{client: client}
}

func instanceKey(id dataflow.SourceInstanceID) string {
	return fmt.Sprintf("materialize:timestamps:{%s:%s}", id.SourceID, id.ViewID)
}

func (s *redisStore) MaxTimestamp(ctx context.Context) (uint64, error) {
	members, err := s.client.SMembers(ctx, instancesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list known instances, %w", err)
	}
	var max uint64
	for _, member := range members {
		var id dataflow.SourceInstanceID
		if err := json.Unmarshal([]byte(member), &id); err != nil {
			return 0, fmt.Errorf("failed to decode instance entry %q, %w", member, err)
		}
		top, err := s.client.ZRevRangeWithScores(ctx, instanceKey(id), 0, 0).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to query max timestamp for %q, %w", id, err)
		}
		if len(top) > 0 && uint64(top[0].Score) > max {
			max = uint64(top[0].Score)
		}
	}
	return max, nil
}

func (s *redisStore) Insert(ctx context.Context, r store.TimestampRecord) error {
	id := r.InstanceID()
	member, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode timestamp record, %w", err)
	}
	idMember, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode instance id, %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, instancesKey, string(idMember))
	pipe.ZAdd(ctx, instanceKey(id), redis.Z{Score: float64(r.Timestamp), Member: string(member)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert timestamp record, %w", err)
	}
	return nil
}

func (s *redisStore) ReplaySource(ctx context.Context, id dataflow.SourceInstanceID) ([]store.TimestampRecord, error) {
	members, err := s.client.ZRange(ctx, instanceKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamp records for %q, %w", id, err)
	}
	var records []store.TimestampRecord
	for _, member := range members {
		var r store.TimestampRecord
		if err := json.Unmarshal([]byte(member), &r); err != nil {
			return nil, fmt.Errorf("failed to decode timestamp record, %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *redisStore) DeleteSource(ctx context.Context, id dataflow.SourceInstanceID) error {
	idMember, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode instance id, %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, instanceKey(id))
	pipe.SRem(ctx, instancesKey, string(idMember))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete timestamp records for %q, %w", id, err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
