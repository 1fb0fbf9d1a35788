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

// Package file holds the connector stub for file sources. Timestamping
// is unsupported for file sources; every capability reports so.
package file

import (
	"context"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/shared/logging"
	srcerrors "github.com/nacrooks/materialize/pkg/sources/errors"
)

// Connector is a stub; it holds no connection.
type Connector struct {
	path string
}

// NewConnector returns a file connector stub.
func NewConnector(ctx context.Context, spec dataflow.FileSourceConnector) *Connector {
	logging.FromContext(ctx).Error("Timestamping is unsupported for file sources")
	return &Connector{path: spec.Path}
}

func (c *Connector) PollMessage(_ context.Context) ([]byte, error) {
	return nil, srcerrors.ErrUnsupported
}

func (c *Connector) ListPartitions(_ context.Context) ([]int32, error) {
	return nil, srcerrors.ErrUnsupported
}

func (c *Connector) FetchHighWatermark(_ context.Context, _ int32) (int64, error) {
	return 0, srcerrors.ErrUnsupported
}

func (c *Connector) Close() error {
	return nil
}
