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

// Package catalog loads the declared set of sources from a YAML file
// and watches it for changes, diffing successive versions into add and
// drop deltas for the timestamper.
package catalog

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nacrooks/materialize/pkg/dataflow"
	"github.com/nacrooks/materialize/pkg/shared/logging"
)

// Source is one declared source instance.
type Source struct {
	SourceID    string                   `mapstructure:"sourceId"`
	ViewID      string                   `mapstructure:"viewId"`
	Connector   dataflow.SourceConnector `mapstructure:"connector"`
	Consistency dataflow.Consistency     `mapstructure:"consistency"`
	Envelope    dataflow.Envelope        `mapstructure:"envelope"`
}

// InstanceID returns the registry key of the source.
func (s Source) InstanceID() dataflow.SourceInstanceID {
	return dataflow.SourceInstanceID{SourceID: s.SourceID, ViewID: s.ViewID}
}

// Catalog is the declared source set.
type Catalog struct {
	Sources []Source `mapstructure:"sources"`
}

// Loader reads the catalog file and republishes deltas on change.
type Loader struct {
	v       *viper.Viper
	lock    *sync.RWMutex
	current Catalog
	log     *zap.SugaredLogger
}

// NewLoader loads the catalog from the given file.
func NewLoader(path string, log *zap.SugaredLogger) (*Loader, error) {
	if log == nil {
		log = logging.NewLogger()
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read catalog file %q, %w", path, err)
	}
	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog file %q, %w", path, err)
	}
	return &Loader{v: v, lock: new(sync.RWMutex), current: c, log: log}, nil
}

// Catalog returns the currently loaded source set.
func (l *Loader) Catalog() Catalog {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.current
}

// Watch starts watching the catalog file. On every change, onChange is
// called with the sources added by the new version and the instances no
// longer present. A source whose declaration changed appears in both.
func (l *Loader) Watch(onChange func(added []Source, removed []dataflow.SourceInstanceID)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.log.Infow("Catalog file changed", zap.String("file", e.Name))
		var next Catalog
		if err := l.v.Unmarshal(&next); err != nil {
			l.log.Errorw("Failed to unmarshal catalog file after change, keeping previous catalog", zap.Error(err))
			return
		}
		l.lock.Lock()
		previous := l.current
		l.current = next
		l.lock.Unlock()
		added, removed := Diff(previous, next)
		if len(added) > 0 || len(removed) > 0 {
			onChange(added, removed)
		}
	})
	l.v.WatchConfig()
}

// Diff compares two catalog versions.
func Diff(previous, next Catalog) (added []Source, removed []dataflow.SourceInstanceID) {
	prevByID := make(map[dataflow.SourceInstanceID]Source, len(previous.Sources))
	for _, s := range previous.Sources {
		prevByID[s.InstanceID()] = s
	}
	nextByID := make(map[dataflow.SourceInstanceID]Source, len(next.Sources))
	for _, s := range next.Sources {
		nextByID[s.InstanceID()] = s
	}
	for id, s := range nextByID {
		prev, ok := prevByID[id]
		if !ok {
			added = append(added, s)
			continue
		}
		if !reflect.DeepEqual(prev, s) {
			// changed declaration: drop the old instance, add the new one
			removed = append(removed, id)
			added = append(added, s)
		}
	}
	for id := range prevByID {
		if _, ok := nextByID[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
