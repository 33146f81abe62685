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

// Package write implements the client's chain-replicated write pipeline
// (§4.5), grounded on original_source/src/mount/chunkserver_write_chain.cc
// (the chain itself) and write_executor.h (pipelined, writeid-correlated
// acknowledgement): the client opens one connection to the chain's head,
// which forwards each block to the next server in the chain; each server
// writes the block to its local copy, then acknowledges it upward, by
// writeid rather than by block order, so several blocks may be in flight
// unacknowledged at once.
package write

import (
	"context"
	"fmt"
	"sync"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// MaxInFlight bounds how many blocks may be sent before their acks have
// been collected, i.e. the size of the ring of staging buffers the
// original calls BUFFERS.
const MaxInFlight = 10

// Ack is one chunkserver chain's acknowledgement of a previously sent
// block, correlated by WriteID rather than by send order (§4.5, §8
// "acks may arrive out of order; correlate by writeid").
type Ack struct {
	WriteID uint32
	Status  wire.Status
	// Server names which chain member reported Status, so a failure can be
	// excluded from the chain on retry instead of blaming the whole chain.
	Server chunk.NetworkAddress
}

// Chain is the client's open connection to the head of a write chain. One
// Chain corresponds to one CLTOMA_FUSE_WRITE_CHUNK lease.
type Chain interface {
	// SendBlock ships one block to the chain head, which forwards it on.
	SendBlock(ctx context.Context, writeID uint32, block int, offset uint32, data []byte) error
	// RecvAck blocks until the next acknowledgement arrives from anywhere
	// in the chain (acks propagate back up it in generally-but-not-always
	// send order).
	RecvAck(ctx context.Context) (Ack, error)
	// Close ends the write, sending CLTOCS_WRITE_FINISH down the chain.
	Close(ctx context.Context) error
}

// Opener establishes a Chain to the given server list, in head-first
// order, for the given chunk (§4.5 "the client opens by connecting to the
// chain head and naming the rest of the chain in the init packet").
type Opener interface {
	Open(ctx context.Context, servers []chunk.NetworkAddress, id chunk.ID, version chunk.Version, typ chunk.Type) (Chain, error)
}

// Pipeline drives one chunk's write: splitting the payload into
// wire.BlockSize blocks, keeping up to MaxInFlight outstanding, and
// retrying with a rebuilt chain (excluding the server an ack names) when an
// ack reports a non-OK status. Open and send errors are returned without a
// retry.
type Pipeline struct {
	Opener  Opener
	Servers []chunk.NetworkAddress
	ID      chunk.ID
	Version chunk.Version
	Type    chunk.Type
}

// New builds a Pipeline targeting the given chain of chunkservers.
func New(opener Opener, servers []chunk.NetworkAddress, id chunk.ID, version chunk.Version, typ chunk.Type) *Pipeline {
	return &Pipeline{Opener: opener, Servers: servers, ID: id, Version: version, Type: typ}
}

// block is one outstanding write, tracked until acknowledged.
type block struct {
	writeID uint32
	index   int
	offset  uint32
	data    []byte
}

// Write sends data starting at chunk-relative byte offset, split into
// wire.BlockSize-aligned blocks, pipelining up to MaxInFlight of them and
// waiting for every ack before returning. On a chain failure it retries
// once against a chain with the failing server removed (a single retry
// with a shrunk chain, not an unbounded reattempt loop).
func (p *Pipeline) Write(ctx context.Context, offset uint32, data []byte) error {
	servers := p.Servers
	var lastErr error
	for attempt := 0; attempt <= 1; attempt++ {
		err := p.writeOnce(ctx, servers, offset, data)
		if err == nil {
			return nil
		}
		lastErr = err
		var ce *chainError
		if !asChainError(err, &ce) || len(servers) <= 1 {
			return lastErr
		}
		servers = removeServer(servers, ce.server)
		if len(servers) == 0 {
			return lastErr
		}
	}
	return lastErr
}

type chainError struct {
	server chunk.NetworkAddress
	status wire.Status
}

func (e *chainError) Error() string {
	return fmt.Sprintf("write: chunkserver %s reported %s", e.server, e.status)
}

func asChainError(err error, target **chainError) bool {
	ce, ok := err.(*chainError)
	if ok {
		*target = ce
	}
	return ok
}

func removeServer(servers []chunk.NetworkAddress, victim chunk.NetworkAddress) []chunk.NetworkAddress {
	out := make([]chunk.NetworkAddress, 0, len(servers))
	for _, s := range servers {
		if s != victim {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pipeline) writeOnce(ctx context.Context, servers []chunk.NetworkAddress, offset uint32, data []byte) error {
	chain, err := p.Opener.Open(ctx, servers, p.ID, p.Version, p.Type)
	if err != nil {
		return err
	}
	defer chain.Close(ctx)

	blocks := splitBlocks(offset, data)
	pending := make(map[uint32]block, len(blocks))
	var mu sync.Mutex
	sendErrCh := make(chan error, 1)
	// sem bounds how many blocks may be outstanding at once: the sender
	// acquires a slot before each send, and the ack-collection loop below
	// releases one per processed ack, implementing MaxInFlight pipelining.
	sem := make(chan struct{}, MaxInFlight)

	go func() {
		defer close(sendErrCh)
		for i, b := range blocks {
			select {
			case <-ctx.Done():
				sendErrCh <- ctx.Err()
				return
			case sem <- struct{}{}:
			}
			mu.Lock()
			pending[b.writeID] = b
			mu.Unlock()
			if err := chain.SendBlock(ctx, b.writeID, b.index, b.offset, b.data); err != nil {
				sendErrCh <- fmt.Errorf("write: sending block %d: %w", i, err)
				return
			}
		}
	}()

	remaining := len(blocks)
	for remaining > 0 {
		select {
		case err, ok := <-sendErrCh:
			if ok && err != nil {
				return err
			}
		default:
		}

		ack, err := chain.RecvAck(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		_, ok := pending[ack.WriteID]
		if ok {
			delete(pending, ack.WriteID)
		}
		mu.Unlock()
		if !ok {
			continue
		}
		<-sem
		remaining--
		if ack.Status != wire.StatusOK {
			return &chainError{server: ack.Server, status: ack.Status}
		}
	}
	return nil
}

func splitBlocks(offset uint32, data []byte) []block {
	var blocks []block
	writeID := uint32(0)
	pos := 0
	for pos < len(data) {
		blockOffset := offset + uint32(pos)
		blockIndex := int(blockOffset / wire.BlockSize)
		within := blockOffset % wire.BlockSize
		end := pos + int(wire.BlockSize-within)
		if end > len(data) {
			end = len(data)
		}
		blocks = append(blocks, block{
			writeID: writeID,
			index:   blockIndex,
			offset:  within,
			data:    data[pos:end],
		})
		writeID++
		pos = end
	}
	return blocks
}
