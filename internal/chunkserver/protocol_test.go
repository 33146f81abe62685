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
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/client/connector"
	"github.com/lizardfs/lizardfs-sub001/internal/netsrv"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// serveOne starts a one-shot netsrv server on 127.0.0.1:0 dispatching to
// handler and returns its address; the server goroutine exits once ctx is
// canceled.
func serveOne(t *testing.T, ctx context.Context, handler netsrv.Handler) chunk.NetworkAddress {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := netsrv.NewServer(netsrv.Config{IdleTimeout: 2 * time.Second}, handler)
	go func() { _ = srv.Serve(ctx, ln) }()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	return chunk.NetworkAddress{Host: "127.0.0.1", Port: uint16(tcpAddr.Port)}
}

func TestMasterClientCreateAndDeleteRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore(1 << 30)
	server := NewServer(store, chunk.NetworkAddress{Host: "127.0.0.1", Port: 1}, nil)
	addr := serveOne(t, ctx, server.Handle)

	mc := &MasterClient{Connector: connector.New()}
	status, err := mc.Create(context.Background(), addr, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, status)

	status, err = mc.Delete(context.Background(), addr, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, status)

	status, err = mc.Delete(context.Background(), addr, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusNoChunk, status)
}

func TestReadClientFetchesWrittenBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore(1 << 30)
	require.Equal(t, wire.StatusOK, store.Create(9, 1, chunk.Standard))
	require.Equal(t, wire.StatusOK, store.WriteBlock(9, chunk.Standard, 1, 0, 0, []byte("payload")))

	server := NewServer(store, chunk.NetworkAddress{Host: "127.0.0.1", Port: 1}, nil)
	addr := serveOne(t, ctx, server.Handle)

	rc := NewReadClient()
	data, crc, err := rc.ReadBlock(context.Background(), addr, chunk.Standard, 9, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data[:7])
	assert.Equal(t, wire.BlockCRC(data), crc)
}

func TestChainOpenerWritesThroughSingleHopChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore(1 << 30)
	require.Equal(t, wire.StatusOK, store.Create(11, 1, chunk.Standard))

	server := NewServer(store, chunk.NetworkAddress{Host: "127.0.0.1", Port: 1}, nil)
	addr := serveOne(t, ctx, server.Handle)

	opener := NewChainOpener()
	ch, err := opener.Open(context.Background(), []chunk.NetworkAddress{addr}, 11, 1, chunk.Standard)
	require.NoError(t, err)

	require.NoError(t, ch.SendBlock(context.Background(), 0, 0, 0, []byte("abcdef")))
	ack, err := ch.RecvAck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, ack.Status)
	assert.Equal(t, uint32(0), ack.WriteID)

	require.NoError(t, ch.Close(context.Background()))

	got, _, status := store.ReadBlock(11, chunk.Standard, 1, 0)
	require.Equal(t, wire.StatusOK, status)
	assert.Equal(t, []byte("abcdef"), got[:6])
}

// TestChainOpenerWritesThroughThreeHopChain exercises a real three-hop
// chain (head, middle, tail on three separate listeners) and asserts a
// block traverses all three stores, matching handleWriteData's async
// forward-without-blocking path through every hop's pumpDownstreamAcks.
func TestChainOpenerWritesThroughThreeHopChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	head := NewStore(1 << 30)
	middle := NewStore(1 << 30)
	tail := NewStore(1 << 30)
	require.Equal(t, wire.StatusOK, head.Create(21, 1, chunk.Standard))
	require.Equal(t, wire.StatusOK, middle.Create(21, 1, chunk.Standard))
	require.Equal(t, wire.StatusOK, tail.Create(21, 1, chunk.Standard))

	headAddr := serveOne(t, ctx, NewServer(head, chunk.NetworkAddress{Host: "127.0.0.1", Port: 1}, nil).Handle)
	middleAddr := serveOne(t, ctx, NewServer(middle, chunk.NetworkAddress{Host: "127.0.0.1", Port: 2}, nil).Handle)
	tailAddr := serveOne(t, ctx, NewServer(tail, chunk.NetworkAddress{Host: "127.0.0.1", Port: 3}, nil).Handle)

	opener := NewChainOpener()
	ch, err := opener.Open(context.Background(), []chunk.NetworkAddress{headAddr, middleAddr, tailAddr}, 21, 1, chunk.Standard)
	require.NoError(t, err)

	for i := uint32(0); i < 3; i++ {
		require.NoError(t, ch.SendBlock(context.Background(), i, 0, 0, []byte("hop-data")))
	}
	seen := map[uint32]bool{}
	for i := 0; i < 3; i++ {
		ack, err := ch.RecvAck(context.Background())
		require.NoError(t, err)
		assert.Equal(t, wire.StatusOK, ack.Status)
		seen[ack.WriteID] = true
	}
	assert.Len(t, seen, 3)

	require.NoError(t, ch.Close(context.Background()))

	for _, s := range []*Store{head, middle, tail} {
		got, _, status := s.ReadBlock(21, chunk.Standard, 1, 0)
		require.Equal(t, wire.StatusOK, status)
		assert.Equal(t, []byte("hop-data"), got[:8])
	}
}

// TestChainOpenerReportsFailingTailHop induces a failure on the tail (it
// never receives CREATE for this chunk) and asserts the ack that reaches
// the client names the tail's own address as the failing hop, not the
// head or middle relaying it (§4.5, §8).
func TestChainOpenerReportsFailingTailHop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	head := NewStore(1 << 30)
	middle := NewStore(1 << 30)
	tail := NewStore(1 << 30)
	require.Equal(t, wire.StatusOK, head.Create(22, 1, chunk.Standard))
	require.Equal(t, wire.StatusOK, middle.Create(22, 1, chunk.Standard))
	// tail deliberately has no chunk 22 created, so its WriteBlock fails.

	tailSelf := chunk.NetworkAddress{Host: "127.0.0.1", Port: 3}
	headAddr := serveOne(t, ctx, NewServer(head, chunk.NetworkAddress{Host: "127.0.0.1", Port: 1}, nil).Handle)
	middleAddr := serveOne(t, ctx, NewServer(middle, chunk.NetworkAddress{Host: "127.0.0.1", Port: 2}, nil).Handle)
	tailAddr := serveOne(t, ctx, NewServer(tail, tailSelf, nil).Handle)

	opener := NewChainOpener()
	ch, err := opener.Open(context.Background(), []chunk.NetworkAddress{headAddr, middleAddr, tailAddr}, 22, 1, chunk.Standard)
	require.NoError(t, err)

	require.NoError(t, ch.SendBlock(context.Background(), 0, 0, 0, []byte("x")))
	ack, err := ch.RecvAck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.StatusNoChunk, ack.Status)
	assert.Equal(t, tailSelf, ack.Server)
}
