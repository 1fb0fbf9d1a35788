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

package coord

import (
	"errors"
	"sync"
)

// ErrNotifierClosed is returned by Notify once the notifier has been
// closed. The timestamper treats it as a terminal condition.
var ErrNotifierClosed = errors.New("notifier is closed")

// Notifier delivers advance notifications to the coordinator. Notify
// must never block the caller waiting for the coordinator to consume.
type Notifier interface {
	Notify(AdvanceSourceTimestamp) error
}

// ChannelNotifier is an unbounded Notifier. Notifications are buffered
// in an internal queue and pumped to the Out channel by a dedicated
// goroutine, so the producing side never blocks.
type ChannelNotifier struct {
	lock   *sync.Mutex
	cond   *sync.Cond
	queue  []AdvanceSourceTimestamp
	closed bool
	out    chan AdvanceSourceTimestamp
}

var _ Notifier = (*ChannelNotifier)(nil)

// NewChannelNotifier returns a started ChannelNotifier.
func NewChannelNotifier() *ChannelNotifier {
	lock := new(sync.Mutex)
	n := &ChannelNotifier{
		lock: lock,
		cond: sync.NewCond(lock),
		out:  make(chan AdvanceSourceTimestamp),
	}
	go n.pump()
	return n
}

// Notify enqueues a notification. It only fails once the notifier is
// closed.
func (n *ChannelNotifier) Notify(m AdvanceSourceTimestamp) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.closed {
		return ErrNotifierClosed
	}
	n.queue = append(n.queue, m)
	n.cond.Signal()
	return nil
}

// Out returns the channel the consumer reads notifications from. The
// channel is closed after Close once the queue has drained.
func (n *ChannelNotifier) Out() <-chan AdvanceSourceTimestamp {
	return n.out
}

// Close stops the notifier. Pending notifications are still delivered
// to Out before it is closed.
func (n *ChannelNotifier) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.cond.Signal()
}

func (n *ChannelNotifier) pump() {
	for {
		n.lock.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		if len(n.queue) == 0 && n.closed {
			n.lock.Unlock()
			close(n.out)
			return
		}
		m := n.queue[0]
		n.queue = n.queue[1:]
		n.lock.Unlock()
		n.out <- m
	}
}
