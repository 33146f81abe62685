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

// Package pool implements the client's chunkserver connection pool,
// grounded on original_source/src/common/chunk_connector.cc's
// ChunkConnectorUsingPool: connections are keyed by server address and
// returned to the pool after use rather than closed, so a read plan that
// touches the same chunkserver repeatedly within one request (or across
// back-to-back requests to a hot chunk) reuses the TCP connection instead
// of re-handshaking. Idle entries expire after a fixed TTL the way the
// original's pool does ("close connections unused for 2 seconds").
package pool

import (
	"net"
	"sync"
	"time"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
)

// IdleTTL is how long an unused pooled connection is kept before being
// closed, matching the original's 2-second pool expiry.
const IdleTTL = 2 * time.Second

// Dialer opens a fresh connection to a chunkserver. Production code passes
// net.Dialer.DialContext-equivalent via connector.Dial; tests substitute a
// fake.
type Dialer func(addr chunk.NetworkAddress) (net.Conn, error)

type entry struct {
	conn     net.Conn
	lastUsed time.Time
}

// Pool is a per-address free list of idle connections.
type Pool struct {
	dial Dialer

	mu   sync.Mutex
	free map[chunk.NetworkAddress][]*entry

	stopCh chan struct{}
	once   sync.Once
}

// New builds a Pool that dials new connections with dial and reaps idle
// ones every IdleTTL/2.
func New(dial Dialer) *Pool {
	p := &Pool{
		dial:   dial,
		free:   make(map[chunk.NetworkAddress][]*entry),
		stopCh: make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// Get returns a pooled connection to addr if one is idle and fresh, or
// dials a new one.
func (p *Pool) Get(addr chunk.NetworkAddress) (net.Conn, error) {
	p.mu.Lock()
	list := p.free[addr]
	for len(list) > 0 {
		e := list[len(list)-1]
		list = list[:len(list)-1]
		p.free[addr] = list
		if time.Since(e.lastUsed) >= IdleTTL {
			_ = e.conn.Close()
			continue
		}
		p.mu.Unlock()
		return e.conn, nil
	}
	p.mu.Unlock()
	return p.dial(addr)
}

// Put returns conn to the pool for addr, to be reused by a future Get
// within IdleTTL. Callers must not use conn after calling Put.
func (p *Pool) Put(addr chunk.NetworkAddress, conn net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free[addr] = append(p.free[addr], &entry{conn: conn, lastUsed: time.Now()})
}

// Discard closes conn without returning it to the pool, for use after a
// protocol error that leaves the connection's framing state unknown.
func (p *Pool) Discard(conn net.Conn) {
	_ = conn.Close()
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.reapOnce(time.Now())
		}
	}
}

func (p *Pool) reapOnce(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, list := range p.free {
		kept := list[:0]
		for _, e := range list {
			if now.Sub(e.lastUsed) >= IdleTTL {
				_ = e.conn.Close()
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(p.free, addr)
		} else {
			p.free[addr] = kept
		}
	}
}

// Close stops the reaper and closes every pooled connection.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.stopCh) })
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr, list := range p.free {
		for _, e := range list {
			_ = e.conn.Close()
		}
		delete(p.free, addr)
	}
}
