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

// Package netsrv implements the connection manager shared by every daemon
// role (§4.2): one reactor goroutine per peer socket, staged header/data
// reads against wire.PacketHeader framing, an ANTOAN_NOP keep-alive sent at
// half the idle timeout, and timeout-based disconnection. Grounded on
// original_source/src/common/server_connection.cc's ServerConnection
// (KeptAliveServerConnection's background NOP thread in particular) and
// original_source/src/master/matocsserv.c's per-socket reactor, rendered in
// Go as one goroutine reading in a loop instead of a poll()-driven state
// machine.
package netsrv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// Handler processes one decoded packet from a Conn. Returning an error
// closes the connection.
type Handler func(ctx context.Context, c *Conn, header wire.PacketHeader, payload []byte) error

// Config controls a Conn's timeout and framing behavior.
type Config struct {
	// IdleTimeout is how long a Conn tolerates silence from its peer before
	// disconnecting; a NOP is sent at IdleTimeout/2 to keep well-behaved
	// peers from ever hitting it (mirrors KeptAliveServerConnection).
	IdleTimeout time.Duration
	MaxPacketSize uint32
	Logger        *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 10 * time.Second
	}
	if c.MaxPacketSize == 0 {
		c.MaxPacketSize = wire.MaxPacketSizeChunkServerToMaster
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Conn wraps one peer socket with the shared reactor behavior. BeforeClose,
// if set, runs synchronously just before the underlying socket is closed —
// used by the master's chunkserver registration handler to drop a
// chunkserver's ServerInfo from the server table.
type Conn struct {
	nc          net.Conn
	r           *bufio.Reader
	cfg         Config
	handler     Handler
	BeforeClose func(c *Conn)

	mu       sync.Mutex
	closed   bool
	lastSent time.Time

	// RemoteAddr caches nc.RemoteAddr().String() since it's read from
	// multiple goroutines (the reactor and the NOP pinger).
	RemoteAddr string
}

// NewConn wraps an already-established socket. Call Serve to run its
// reactor loop; it blocks until the connection closes or ctx is canceled.
func NewConn(nc net.Conn, cfg Config, handler Handler) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		nc:         nc,
		r:          bufio.NewReaderSize(nc, 64*1024),
		cfg:        cfg,
		handler:    handler,
		RemoteAddr: nc.RemoteAddr().String(),
	}
}

// Serve runs the read loop and the NOP keep-alive pinger concurrently,
// returning when either stops (peer disconnect, read timeout, handler
// error, or ctx cancellation).
func (c *Conn) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.readLoop(ctx) }()
	go c.nopLoop(ctx)

	err := <-errCh
	c.Close()
	return err
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		if deadline, ok := ctx.Deadline(); ok {
			_ = c.nc.SetReadDeadline(deadline)
		} else {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}

		header, payload, err := wire.ReadPacket(c.r, c.cfg.MaxPacketSize)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("netsrv: read from %s: %w", c.RemoteAddr, err)
		}

		if header.Type == wire.AntoanNop {
			continue
		}

		if err := c.handler(ctx, c, header, payload); err != nil {
			return fmt.Errorf("netsrv: handling %s from %s: %w", header, c.RemoteAddr, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// nopLoop sends ANTOAN_NOP every IdleTimeout/2 unless a real packet went
// out more recently, matching KeptAliveServerConnection's background
// thread so the peer's own idle timer never fires against us.
func (c *Conn) nopLoop(ctx context.Context) {
	interval := c.cfg.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			idle := time.Since(c.lastSent) >= interval
			c.mu.Unlock()
			if idle {
				_ = c.SendPacket(wire.AntoanNop, nil)
			}
		}
	}
}

// SendPacket writes one framed packet, tracking send time for the NOP
// pinger's idleness check. Safe for concurrent use: the write itself is
// serialized under mu, not just the lastSent bookkeeping, since a
// chunkserver write-chain hop relays downstream acks from a goroutine
// independent of its own reactor loop and both may call SendPacket at once.
func (c *Conn) SendPacket(msgType wire.MessageType, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.IdleTimeout))
	if err := wire.WritePacket(c.nc, msgType, payload); err != nil {
		return err
	}
	c.lastSent = time.Now()
	return nil
}

// Close runs BeforeClose (if set) and closes the underlying socket. Safe
// to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.BeforeClose != nil {
		c.BeforeClose(c)
	}
	return c.nc.Close()
}
