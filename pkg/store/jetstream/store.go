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
Package jetstream implements the timestamp store on a JetStream KV
bucket. Keys are prefixed with the instance identity and carry a
zero-padded timestamp, so a prefix scan yields records in timestamp
order.
*/
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/nacrooks/materialize/pkg/dataflow"
	jsclient "github.com/nacrooks/materialize/pkg/shared/clients/nats"
	"github.com/nacrooks/materialize/pkg/shared/logging"
	"github.com/nacrooks/materialize/pkg/store"
)

// jetStreamStore implements the timestamp store backed up by a
// JetStream KV bucket.
type jetStreamStore struct {
	kvName string
	client *jsclient.Client
	kv     nats.KeyValue

	log *zap.SugaredLogger
}

var _ store.TimestampStore = (*jetStreamStore)(nil)

// NewTimestampStore returns a timestamp store on the given KV bucket,
// creating the bucket if needed. The client is owned by the caller.
func NewTimestampStore(ctx context.Context, kvName string, client *jsclient.Client) (store.TimestampStore, error) {
	kv, err := client.BindKVStore(kvName)
	if err != nil {
		return nil, fmt.Errorf("failed to bind kv store: %w", err)
	}
	return &jetStreamStore{
		kvName: kvName,
		client: client,
		kv:     kv,
		log:    logging.FromContext(ctx).With("kvName", kvName),
	}, nil
}

// recordKey builds the KV key of a record. The zero-padded timestamp
// keeps keys of one instance in timestamp order; the partition id keeps
// the keys of one tick distinct.
func recordKey(r store.TimestampRecord) string {
	return fmt.Sprintf("%s/%020d/%010d", instancePrefix(r.InstanceID()), r.Timestamp, r.PartitionID)
}

func instancePrefix(id dataflow.SourceInstanceID) string {
	return fmt.Sprintf("%s/%s", id.SourceID, id.ViewID)
}

func (jss *jetStreamStore) keys() ([]string, error) {
	keyLister, err := jss.kv.ListKeys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	defer func() {
		_ = keyLister.Stop()
	}()
	var keys []string
	for key := range keyLister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

func (jss *jetStreamStore) record(key string) (store.TimestampRecord, error) {
	var r store.TimestampRecord
	entry, err := jss.kv.Get(key)
	if err != nil {
		return r, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return r, fmt.Errorf("failed to decode record at key %q: %w", key, err)
	}
	return r, nil
}

func (jss *jetStreamStore) MaxTimestamp(_ context.Context) (uint64, error) {
	keys, err := jss.keys()
	if err != nil {
		return 0, fmt.Errorf("failed to list keys: %w", err)
	}
	var max uint64
	for _, key := range keys {
		r, err := jss.record(key)
		if err != nil {
			return 0, err
		}
		if r.Timestamp > max {
			max = r.Timestamp
		}
	}
	return max, nil
}

func (jss *jetStreamStore) Insert(_ context.Context, r store.TimestampRecord) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := jss.kv.Put(recordKey(r), value); err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (jss *jetStreamStore) ReplaySource(_ context.Context, id dataflow.SourceInstanceID) ([]store.TimestampRecord, error) {
	keys, err := jss.keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	prefix := instancePrefix(id) + "/"
	var records []store.TimestampRecord
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		r, err := jss.record(key)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

func (jss *jetStreamStore) DeleteSource(_ context.Context, id dataflow.SourceInstanceID) error {
	keys, err := jss.keys()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	prefix := instancePrefix(id) + "/"
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := jss.kv.Purge(key); err != nil {
			return fmt.Errorf("failed to purge key %q: %w", key, err)
		}
	}
	return nil
}

func (jss *jetStreamStore) Close() error {
	return nil
}
