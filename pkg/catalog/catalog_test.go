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

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacrooks/materialize/pkg/dataflow"
)

const testCatalogYAML = `sources:
  - sourceId: u1
    viewId: v1
    envelope: None
    connector:
      kafka:
        brokers:
          - localhost:9092
        topic: events
    consistency:
      realTime: {}
  - sourceId: u2
    viewId: v2
    connector:
      kafka:
        brokers:
          - localhost:9092
        topic: orders
    consistency:
      bringYourOwn:
        controlTopic: orders-consistency
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoaderReadsCatalog(t *testing.T) {
	l, err := NewLoader(writeCatalog(t, testCatalogYAML), nil)
	require.NoError(t, err)
	c := l.Catalog()
	require.Len(t, c.Sources, 2)

	rt := c.Sources[0]
	assert.Equal(t, dataflow.SourceInstanceID{SourceID: "u1", ViewID: "v1"}, rt.InstanceID())
	assert.Equal(t, dataflow.EnvelopeNone, rt.Envelope)
	require.NotNil(t, rt.Connector.Kafka)
	assert.Equal(t, "events", rt.Connector.Kafka.Topic)
	assert.NotNil(t, rt.Consistency.RealTime)
	assert.Nil(t, rt.Consistency.BringYourOwn)

	byo := c.Sources[1]
	require.NotNil(t, byo.Consistency.BringYourOwn)
	assert.Equal(t, "orders-consistency", byo.Consistency.BringYourOwn.ControlTopic)
}

func TestLoaderRejectsMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	kafka := func(topic string) dataflow.SourceConnector {
		return dataflow.SourceConnector{Kafka: &dataflow.KafkaSourceConnector{Brokers: []string{"localhost:9092"}, Topic: topic}}
	}
	rt := dataflow.Consistency{RealTime: &dataflow.RealTimeConsistency{}}
	s1 := Source{SourceID: "u1", ViewID: "v1", Connector: kafka("a"), Consistency: rt}
	s2 := Source{SourceID: "u2", ViewID: "v2", Connector: kafka("b"), Consistency: rt}

	t.Run("no changes", func(t *testing.T) {
		added, removed := Diff(Catalog{Sources: []Source{s1, s2}}, Catalog{Sources: []Source{s1, s2}})
		assert.Empty(t, added)
		assert.Empty(t, removed)
	})

	t.Run("addition and removal", func(t *testing.T) {
		s3 := Source{SourceID: "u3", ViewID: "v3", Connector: kafka("c"), Consistency: rt}
		added, removed := Diff(Catalog{Sources: []Source{s1, s2}}, Catalog{Sources: []Source{s1, s3}})
		require.Len(t, added, 1)
		assert.Equal(t, "u3", added[0].SourceID)
		require.Len(t, removed, 1)
		assert.Equal(t, s2.InstanceID(), removed[0])
	})

	t.Run("changed declaration appears in both", func(t *testing.T) {
		changed := s1
		changed.Connector = kafka("renamed")
		added, removed := Diff(Catalog{Sources: []Source{s1}}, Catalog{Sources: []Source{changed}})
		require.Len(t, added, 1)
		assert.Equal(t, "renamed", added[0].Connector.Kafka.Topic)
		require.Len(t, removed, 1)
		assert.Equal(t, s1.InstanceID(), removed[0])
	})
}
