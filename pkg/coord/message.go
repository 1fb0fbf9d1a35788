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

// Package coord holds the boundary between the timestamper and the
// coordinator that performs the actual view computation. The coordinator
// itself lives outside this repository; only the notification surface it
// consumes is defined here.
package coord

import (
	"fmt"

	"github.com/nacrooks/materialize/pkg/dataflow"
)

// AdvanceSourceTimestamp tells the coordinator that all offsets of a
// source partition up to Offset are closed at Timestamp. Deliveries are
// at-least-once; per-partition timestamps strictly increase, so the
// coordinator can suppress duplicates.
type AdvanceSourceTimestamp struct {
	ID             dataflow.SourceInstanceID
	PartitionCount int32
	PartitionID    int32
	Timestamp      uint64
	Offset         int64
}

func (m AdvanceSourceTimestamp) String() string {
	return fmt.Sprintf("AdvanceSourceTimestamp(%s, pcount=%d, pid=%d, ts=%d, offset=%d)",
		m.ID, m.PartitionCount, m.PartitionID, m.Timestamp, m.Offset)
}
