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

// Package store defines the persistent timestamp store the timestamper
// records its assignments in. The storage engine is a shared resource
// also used by other parts of the system; implementations must serialize
// access internally.
package store

import (
	"context"

	"github.com/nacrooks/materialize/pkg/dataflow"
)

// TimestampRecord is one persisted timestamp assignment. Records are
// append-only; a (source, partition, timestamp) combination only ever
// grows by strictly increasing timestamps, so duplicate inserts under
// retry are harmless.
type TimestampRecord struct {
	SourceID       string `json:"sid"`
	ViewID         string `json:"vid"`
	PartitionCount int32  `json:"pcount"`
	PartitionID    int32  `json:"pid"`
	Timestamp      uint64 `json:"timestamp"`
	Offset         int64  `json:"offset"`
}

// InstanceID returns the source instance the record belongs to.
func (r TimestampRecord) InstanceID() dataflow.SourceInstanceID {
	return dataflow.SourceInstanceID{SourceID: r.SourceID, ViewID: r.ViewID}
}

// TimestampStore is the durable record of timestamp assignments. All
// operations may fail transiently; the caller decides the retry policy.
type TimestampStore interface {
	// MaxTimestamp returns the maximum timestamp over all persisted
	// records, or 0 if there are none. Used once at startup to seed the
	// global clock.
	MaxTimestamp(ctx context.Context) (uint64, error)
	// Insert appends one record. Idempotency is not guaranteed.
	Insert(ctx context.Context, record TimestampRecord) error
	// ReplaySource returns all records for the given instance ordered by
	// timestamp.
	ReplaySource(ctx context.Context, id dataflow.SourceInstanceID) ([]TimestampRecord, error)
	// DeleteSource removes all records for the given instance. Deleting
	// an unknown instance is not an error.
	DeleteSource(ctx context.Context, id dataflow.SourceInstanceID) error
	// Close closes the backend connection.
	Close() error
}
