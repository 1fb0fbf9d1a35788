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

// Package sources defines the capability surface the timestamper needs
// from an external source, and the construction of its variants. Each
// variant decides per capability whether it is supported, rather than
// the caller switching on the source kind at every call site.
package sources

import (
	"context"
	"fmt"

	"github.com/nacrooks/materialize/pkg/dataflow"
	srcerrors "github.com/nacrooks/materialize/pkg/sources/errors"
	"github.com/nacrooks/materialize/pkg/sources/file"
	"github.com/nacrooks/materialize/pkg/sources/kafka"
	"github.com/nacrooks/materialize/pkg/sources/kinesis"
)

// ErrUnsupported is returned by a capability a connector variant does
// not implement.
var ErrUnsupported = srcerrors.ErrUnsupported

// Connector is the uniform capability surface over heterogeneous source
// kinds.
type Connector interface {
	// PollMessage returns the next raw message, or nil if none arrived
	// within the poll timeout.
	PollMessage(ctx context.Context) ([]byte, error)
	// ListPartitions returns the partition ids of the source. It blocks,
	// retrying, until metadata yields a non-empty partition set or the
	// context is canceled; it never returns an empty set.
	ListPartitions(ctx context.Context) ([]int32, error)
	// FetchHighWatermark returns the highest offset the source is known
	// to have produced for the partition.
	FetchHighWatermark(ctx context.Context, partition int32) (int64, error)
	// Close closes the backend connection.
	Close() error
}

// NewConnector builds the connector variant for the given spec. For
// Kafka, topic is the topic to consume (the data topic for real-time
// sources, the control topic for BYO sources) and clientID names the
// consumer; both are ignored by the other kinds.
func NewConnector(ctx context.Context, spec dataflow.SourceConnector, topic, clientID string, opts ...kafka.Option) (Connector, error) {
	switch {
	case spec.Kafka != nil:
		return kafka.NewConnector(ctx, *spec.Kafka, topic, clientID, opts...)
	case spec.File != nil:
		return file.NewConnector(ctx, *spec.File), nil
	case spec.Kinesis != nil:
		return kinesis.NewConnector(ctx, *spec.Kinesis)
	default:
		return nil, fmt.Errorf("source connector spec has no variant set")
	}
}
