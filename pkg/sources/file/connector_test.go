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

package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nacrooks/materialize/pkg/dataflow"
	srcerrors "github.com/nacrooks/materialize/pkg/sources/errors"
)

func TestFileConnectorIsUnsupported(t *testing.T) {
	ctx := context.Background()
	c := NewConnector(ctx, dataflow.FileSourceConnector{Path: "/tmp/data"})

	_, err := c.PollMessage(ctx)
	assert.ErrorIs(t, err, srcerrors.ErrUnsupported)
	_, err = c.ListPartitions(ctx)
	assert.ErrorIs(t, err, srcerrors.ErrUnsupported)
	_, err = c.FetchHighWatermark(ctx, 0)
	assert.ErrorIs(t, err, srcerrors.ErrUnsupported)
	assert.NoError(t, c.Close())
}
