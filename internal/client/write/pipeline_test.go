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

package write

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// fakeChain acknowledges every block it receives, optionally out of
// order, optionally failing a configured writeID.
type fakeChain struct {
	mu        sync.Mutex
	acks      chan Ack
	failWrite map[uint32]wire.Status
	failOn    chunk.NetworkAddress
	closed    bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{acks: make(chan Ack, 64), failWrite: map[uint32]wire.Status{}}
}

func (f *fakeChain) SendBlock(ctx context.Context, writeID uint32, block int, offset uint32, data []byte) error {
	status := wire.StatusOK
	if s, ok := f.failWrite[writeID]; ok {
		status = s
	}
	f.acks <- Ack{WriteID: writeID, Status: status, Server: f.failOn}
	return nil
}

func (f *fakeChain) RecvAck(ctx context.Context) (Ack, error) {
	select {
	case a := <-f.acks:
		return a, nil
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	}
}

func (f *fakeChain) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

type fakeOpener struct {
	chain      *fakeChain
	openCalls  int
	lastServers []chunk.NetworkAddress
}

func (o *fakeOpener) Open(ctx context.Context, servers []chunk.NetworkAddress, id chunk.ID, version chunk.Version, typ chunk.Type) (Chain, error) {
	o.openCalls++
	o.lastServers = servers
	return o.chain, nil
}

func testServers() []chunk.NetworkAddress {
	return []chunk.NetworkAddress{
		{Host: "10.0.0.1", Port: 9422},
		{Host: "10.0.0.2", Port: 9422},
		{Host: "10.0.0.3", Port: 9422},
	}
}

func TestPipelineWriteSucceeds(t *testing.T) {
	opener := &fakeOpener{chain: newFakeChain()}
	p := New(opener, testServers(), 1, 1, chunk.Standard)

	data := make([]byte, wire.BlockSize*3)
	for i := range data {
		data[i] = byte(i)
	}
	err := p.Write(context.Background(), 0, data)
	require.NoError(t, err)
	assert.Equal(t, 1, opener.openCalls)
}

func TestPipelineWriteRetriesWithShrunkChainOnFailure(t *testing.T) {
	chain := newFakeChain()
	chain.failWrite[0] = wire.StatusChunkLost
	chain.failOn = testServers()[2]

	callCount := 0
	opener := &recordingOpener{build: func(servers []chunk.NetworkAddress) Chain {
		callCount++
		if callCount == 1 {
			return chain
		}
		return newFakeChain()
	}}
	p := New(opener, testServers(), 1, 1, chunk.Standard)

	data := make([]byte, wire.BlockSize)
	err := p.Write(context.Background(), 0, data)
	require.NoError(t, err)
	assert.Equal(t, 2, callCount)
	assert.Len(t, opener.lastServers, len(testServers())-1)
}

type recordingOpener struct {
	build       func([]chunk.NetworkAddress) Chain
	lastServers []chunk.NetworkAddress
}

func (o *recordingOpener) Open(ctx context.Context, servers []chunk.NetworkAddress, id chunk.ID, version chunk.Version, typ chunk.Type) (Chain, error) {
	o.lastServers = servers
	return o.build(servers), nil
}

func TestSplitBlocksRespectsBlockBoundaries(t *testing.T) {
	data := make([]byte, wire.BlockSize+10)
	blocks := splitBlocks(wire.BlockSize-5, data)
	require.Len(t, blocks, 2)
	assert.Equal(t, uint32(wire.BlockSize-5), blocks[0].offset)
	assert.Len(t, blocks[0].data, 5)
	assert.Equal(t, uint32(0), blocks[1].offset)
}
