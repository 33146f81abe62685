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

package chunkserver

import (
	"bufio"
	"net"
	"sync"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/netsrv"
)

// writeInitWriteID is the sentinel writeid the server uses to acknowledge
// CLTOCS_WRITE itself, before any CLTOCS_WRITE_DATA arrives, so the caller
// learns immediately whether the rest of the chain is reachable (§4.5).
const writeInitWriteID = ^uint32(0)

// writeSession tracks one open write chain at this hop: the chunk being
// written and, if this hop is not the tail, the raw connection forwarding
// blocks to the next hop.
type writeSession struct {
	id      chunk.ID
	version chunk.Version
	typ     chunk.Type

	downstream       net.Conn
	downstreamReader *bufio.Reader
	tail             bool
}

// writeSessions keys the one write chain a given client connection may
// have open against this hop by the *netsrv.Conn itself, which is stable
// for the socket's lifetime.
type writeSessions struct {
	mu       sync.Mutex
	sessions map[*netsrv.Conn]*writeSession
}

func newWriteSessions() *writeSessions {
	return &writeSessions{sessions: make(map[*netsrv.Conn]*writeSession)}
}

func (ws *writeSessions) get(c *netsrv.Conn) (*writeSession, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	s, ok := ws.sessions[c]
	return s, ok
}

func (ws *writeSessions) set(c *netsrv.Conn, s *writeSession) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.sessions[c] = s
}

func (ws *writeSessions) drop(c *netsrv.Conn) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.sessions, c)
}
