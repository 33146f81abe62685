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

package netsrv

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

func pipeConns(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server := <-acceptCh
	return client, server
}

func TestConnHandlesPacketsAndSkipsNop(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()

	var got int32
	handler := func(ctx context.Context, c *Conn, h wire.PacketHeader, payload []byte) error {
		atomic.AddInt32(&got, 1)
		return nil
	}

	conn := NewConn(server, Config{IdleTimeout: time.Second}, handler)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		conn.Serve(ctx)
		close(done)
	}()

	require.NoError(t, wire.WritePacket(client, wire.AntoanNop, nil))
	require.NoError(t, wire.WritePacket(client, wire.CstomaRegister, []byte("hello")))

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&got))

	cancel()
	<-done
}

func TestConnSendPacketRoundTrips(t *testing.T) {
	client, server := pipeConns(t)
	defer server.Close()
	defer client.Close()

	conn := NewConn(server, Config{IdleTimeout: time.Second}, func(ctx context.Context, c *Conn, h wire.PacketHeader, payload []byte) error {
		return nil
	})

	require.NoError(t, conn.SendPacket(wire.CstomaSpace, []byte("space")))

	header, payload, err := wire.ReadPacket(client, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, wire.CstomaSpace, header.Type)
	assert.Equal(t, "space", string(payload))
}

func TestConnBeforeCloseRunsOnce(t *testing.T) {
	client, server := pipeConns(t)
	defer client.Close()

	var closed int32
	conn := NewConn(server, Config{IdleTimeout: time.Second}, func(ctx context.Context, c *Conn, h wire.PacketHeader, payload []byte) error {
		return nil
	})
	conn.BeforeClose = func(c *Conn) { atomic.AddInt32(&closed, 1) }

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.EqualValues(t, 1, atomic.LoadInt32(&closed))
}
