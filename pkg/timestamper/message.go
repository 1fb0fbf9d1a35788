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

package timestamper

import "github.com/nacrooks/materialize/pkg/dataflow"

// Message is a control message for the timestamper loop. The set of
// implementations is sealed.
type Message interface {
	isMessage()
}

// Add registers a source instance for timestamp tracking. Adding an
// instance that is already tracked is a no-op.
type Add struct {
	ID          dataflow.SourceInstanceID
	Connector   dataflow.SourceConnector
	Consistency dataflow.Consistency
	Envelope    dataflow.Envelope
}

// DropInstance removes a source instance and purges its persisted
// history. Dropping an untracked instance only issues the idempotent
// store delete.
type DropInstance struct {
	ID dataflow.SourceInstanceID
}

// Shutdown terminates the timestamper loop.
type Shutdown struct{}

func (Add) isMessage()          {}
func (DropInstance) isMessage() {}
func (Shutdown) isMessage()     {}
