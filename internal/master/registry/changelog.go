// Copyright 2024 The LizardFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"sync"

	"github.com/lizardfs/lizardfs-sub001/internal/metalogger"
)

// Changelog is the master's half of the metalogger change stream (§4.7):
// every mutating registry operation appends one line here, and each
// connected metalogger gets its own subscription relaying new lines as
// they're appended, plus a one-time replay of whatever the in-memory
// ring still holds at the version the metalogger asked for in its
// MLTOMA_REGISTER want_since_version. Ported from
// original_source/src/master/matomlserv.c's matomlserv_send_archived_changes
// / matomlserv_send_old_changes pair, with the on-disk changelog.N.mfs
// chain collapsed to metalogger.Stream's bounded ring — a metalogger
// asking for a version older than the ring holds gets a short replay and
// must fall back to a full metadata redownload, same as the original's
// "no matching changelog.N.mfs" case.
type Changelog struct {
	mu      sync.Mutex
	nextID  uint64
	stream  *metalogger.Stream
	nextSub int
	subs    map[int]chan metalogger.Change
}

// NewChangelog builds a Changelog appending into stream, which also
// mirrors every line to disk the same way the metalogger's own stream
// does (both sides reuse package metalogger's ring+mirror for exactly
// this reason).
func NewChangelog(stream *metalogger.Stream) *Changelog {
	return &Changelog{stream: stream, subs: make(map[int]chan metalogger.Change)}
}

// Append records one mutation line, assigning it the next sequential
// change id, and fans it out to every live subscriber. A subscriber
// whose buffer is full is skipped rather than blocking the mutating
// operation that called Append — it will fall behind and eventually
// notice a gap via metalogger.ErrGap on its own Stream.Append, the same
// outcome a dropped packet on a real connection would produce.
func (cl *Changelog) Append(line string) metalogger.Change {
	cl.mu.Lock()
	cl.nextID++
	chg := metalogger.Change{ID: cl.nextID, Line: line}
	_ = cl.stream.Append(chg)
	listeners := make([]chan metalogger.Change, 0, len(cl.subs))
	for _, ch := range cl.subs {
		listeners = append(listeners, ch)
	}
	cl.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- chg:
		default:
		}
	}
	return chg
}

// Subscribe registers a new metalogger listener and returns a channel of
// changes going forward, a replay of whatever the ring still holds
// strictly after sinceVersion, and a cancel func to drop the
// subscription once the connection closes.
func (cl *Changelog) Subscribe(sinceVersion uint64) (<-chan metalogger.Change, []metalogger.Change, func()) {
	cl.mu.Lock()
	id := cl.nextSub
	cl.nextSub++
	ch := make(chan metalogger.Change, 256)
	cl.subs[id] = ch

	var backlog []metalogger.Change
	for _, chg := range cl.stream.Tail(metalogger.BlockSize) {
		if chg.ID > sinceVersion {
			backlog = append(backlog, chg)
		}
	}
	cl.mu.Unlock()

	return ch, backlog, func() {
		cl.mu.Lock()
		delete(cl.subs, id)
		cl.mu.Unlock()
	}
}
