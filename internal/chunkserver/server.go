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
	"context"
	"fmt"
	"log/slog"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/client/connector"
	"github.com/lizardfs/lizardfs-sub001/internal/netsrv"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// Server dispatches MATOCS_* directives from the master and CLTOCS_* read
// and write-chain requests from clients against a Store. A chain write
// that is not yet at its tail forwards each block to the next hop using
// Connector and relays that hop's acknowledgement back up, the same
// recursive shape original_source/src/mount/chunkserver_write_chain.cc
// drives from the client side, mirrored here on the server side of the
// same CLTOCS_WRITE/CLTOCS_WRITE_DATA exchange.
type Server struct {
	Store     *Store
	Address   chunk.NetworkAddress
	Connector *connector.Connector
	Logger    *slog.Logger

	writes *writeSessions
}

// NewServer builds a Server backed by store, advertising self as address
// (used to identify this hop when reporting write failures up a chain).
func NewServer(store *Store, self chunk.NetworkAddress, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Store:     store,
		Address:   self,
		Connector: connector.New(),
		Logger:    logger,
		writes:    newWriteSessions(),
	}
}

// Handle implements netsrv.Handler.
func (s *Server) Handle(ctx context.Context, c *netsrv.Conn, header wire.PacketHeader, payload []byte) error {
	switch header.Type {
	case wire.MatocsCreate:
		return s.handleCreate(c, payload)
	case wire.MatocsDelete:
		return s.handleDelete(c, payload)
	case wire.MatocsSetVersion:
		return s.handleSetVersion(c, payload)
	case wire.MatocsDuplicate:
		return s.handleDuplicate(c, payload)
	case wire.MatocsTruncate:
		return s.handleTruncate(c, payload)
	case wire.MatocsDuptrunc:
		return s.handleDupTrunc(c, payload)
	case wire.CltocsRead:
		return s.handleRead(c, payload)
	case wire.MatocsReplicate:
		return s.handleReplicate(ctx, c, payload)
	case wire.CltocsWrite:
		return s.handleWriteOpen(ctx, c, payload)
	case wire.CltocsWriteData:
		return s.handleWriteData(ctx, c, payload)
	case wire.CltocsWriteFinish:
		return s.handleWriteFinish(c, payload)
	default:
		return fmt.Errorf("chunkserver: unhandled message type %d", header.Type)
	}
}

func (s *Server) handleCreate(c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	version := chunk.Version(d.U32())
	typ := getType(d)
	if d.Err() != nil {
		return d.Err()
	}
	status := s.Store.Create(id, version, typ)
	return s.reply(c, wire.CstomaCreate, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU8(uint8(status))
	})
}

func (s *Server) handleDelete(c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	version := chunk.Version(d.U32())
	typ := getType(d)
	if d.Err() != nil {
		return d.Err()
	}
	status := s.Store.Delete(id, typ, version)
	return s.reply(c, wire.CstomaDelete, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU8(uint8(status))
	})
}

func (s *Server) handleSetVersion(c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	oldVersion := chunk.Version(d.U32())
	newVersion := chunk.Version(d.U32())
	typ := getType(d)
	if d.Err() != nil {
		return d.Err()
	}
	status := s.Store.SetVersion(id, typ, oldVersion, newVersion)
	return s.reply(c, wire.CstomaSetVersion, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU8(uint8(status))
	})
}

func (s *Server) handleDuplicate(c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	newID := chunk.ID(d.U64())
	newVersion := chunk.Version(d.U32())
	oldID := chunk.ID(d.U64())
	oldVersion := chunk.Version(d.U32())
	typ := getType(d)
	if d.Err() != nil {
		return d.Err()
	}
	status := s.Store.Duplicate(newID, newVersion, oldID, oldVersion, typ)
	return s.reply(c, wire.CstomaDuplicate, func(e *wire.Encoder) {
		e.PutU64(uint64(newID))
		e.PutU8(uint8(status))
	})
}

func (s *Server) handleTruncate(c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	oldVersion := chunk.Version(d.U32())
	newVersion := chunk.Version(d.U32())
	newLength := d.U32()
	typ := getType(d)
	if d.Err() != nil {
		return d.Err()
	}
	status := s.Store.Truncate(id, typ, oldVersion, newVersion, newLength)
	return s.reply(c, wire.CstomaTruncate, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU8(uint8(status))
	})
}

func (s *Server) handleDupTrunc(c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	newID := chunk.ID(d.U64())
	newVersion := chunk.Version(d.U32())
	oldID := chunk.ID(d.U64())
	oldVersion := chunk.Version(d.U32())
	newLength := d.U32()
	typ := getType(d)
	if d.Err() != nil {
		return d.Err()
	}
	status := s.Store.DupTrunc(newID, newVersion, oldID, oldVersion, typ, newLength)
	return s.reply(c, wire.CstomaDuptrunc, func(e *wire.Encoder) {
		e.PutU64(uint64(newID))
		e.PutU8(uint8(status))
	})
}

func (s *Server) handleRead(c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	version := chunk.Version(d.U32())
	typ := getType(d)
	block := int(d.U32())
	if d.Err() != nil {
		return d.Err()
	}
	data, crc, status := s.Store.ReadBlock(id, typ, version, block)
	if status != wire.StatusOK {
		return s.reply(c, wire.CstoclReadStatus, func(e *wire.Encoder) {
			e.PutU64(uint64(id))
			e.PutU8(uint8(status))
		})
	}
	return s.reply(c, wire.CstoclReadData, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU32(uint32(block))
		e.PutU32(crc)
		e.PutU32(uint32(len(data)))
		e.PutRaw(data)
	})
}

func (s *Server) reply(c *netsrv.Conn, msgType wire.MessageType, build func(*wire.Encoder)) error {
	e := wire.NewEncoder(nil)
	build(e)
	return c.SendPacket(msgType, e.Bytes())
}

// handleReplicate pulls id/version from the first listed source and
// stores it locally, answering MATOCS_REPLICATE the way a chunkserver
// answers the master's undergoal repair directive (§4.3 healthloop). The
// stub pulls every block up to wire.BlocksPerChunk rather than first
// learning the source's true length, since Store's zero-filled reads make
// that bound safe and the original's length negotiation is part of the
// on-disk layout this package intentionally does not model.
func (s *Server) handleReplicate(ctx context.Context, c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	version := chunk.Version(d.U32())
	typ := getType(d)
	sources := getAddressList(d)
	if d.Err() != nil {
		return d.Err()
	}
	if len(sources) == 0 {
		return s.reply(c, wire.CstomaReplicate, func(e *wire.Encoder) {
			e.PutU64(uint64(id))
			e.PutU8(uint8(wire.StatusNoChunkServers))
		})
	}

	status := s.Store.Create(id, version, typ)
	if status != wire.StatusOK && status != wire.StatusChunkExist {
		return s.reply(c, wire.CstomaReplicate, func(e *wire.Encoder) {
			e.PutU64(uint64(id))
			e.PutU8(uint8(status))
		})
	}

	source := sources[0]
	nc, err := s.Connector.Dial(ctx, source)
	if err != nil {
		return s.reply(c, wire.CstomaReplicate, func(e *wire.Encoder) {
			e.PutU64(uint64(id))
			e.PutU8(uint8(wire.StatusCantConnect))
		})
	}
	defer nc.Close()
	reader := bufio.NewReaderSize(nc, 64*1024)

	for block := 0; block < wire.BlocksPerChunk; block++ {
		re := wire.NewEncoder(nil)
		re.PutU64(uint64(id))
		re.PutU32(uint32(version))
		putType(re, typ)
		re.PutU32(uint32(block))
		if err := wire.WritePacket(nc, wire.CltocsRead, re.Bytes()); err != nil {
			return s.reply(c, wire.CstomaReplicate, func(e *wire.Encoder) {
				e.PutU64(uint64(id))
				e.PutU8(uint8(wire.StatusIO))
			})
		}
		header, reply, err := wire.ReadPacket(reader, wire.MaxPacketSizeChunkServerToServer)
		if err != nil {
			return s.reply(c, wire.CstomaReplicate, func(e *wire.Encoder) {
				e.PutU64(uint64(id))
				e.PutU8(uint8(wire.StatusIO))
			})
		}
		if header.Type != wire.CstoclReadData {
			break
		}
		rd := wire.NewDecoder(reply)
		_ = rd.U64()
		_ = rd.U32()
		crc := rd.U32()
		n := rd.U32()
		data := rd.Raw(int(n))
		if rd.Err() != nil || !wire.VerifyBlockCRC(data, crc) {
			return s.reply(c, wire.CstomaReplicate, func(e *wire.Encoder) {
				e.PutU64(uint64(id))
				e.PutU8(uint8(wire.StatusCRC))
			})
		}
		s.Store.WriteBlock(id, typ, version, block, 0, data)
	}

	return s.reply(c, wire.CstomaReplicate, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU8(uint8(wire.StatusOK))
	})
}

// handleWriteOpen opens this hop's half of a write chain. remaining names
// the chain members after this one; an empty list means this hop is the
// tail. The reply carries writeInitWriteID so the client can distinguish
// "chain established" from an ordinary block ack.
func (s *Server) handleWriteOpen(ctx context.Context, c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	id := chunk.ID(d.U64())
	version := chunk.Version(d.U32())
	typ := getType(d)
	remaining := getAddressList(d)
	if d.Err() != nil {
		return d.Err()
	}

	ws := &writeSession{id: id, version: version, typ: typ, tail: len(remaining) == 0}
	if ws.tail {
		s.writes.set(c, ws)
		return s.sendWriteStatus(c, writeInitWriteID, wire.StatusOK, s.Address)
	}

	next := remaining[0]
	nc, err := s.Connector.Dial(ctx, next)
	if err != nil {
		return s.sendWriteStatus(c, writeInitWriteID, wire.StatusCantConnect, next)
	}

	e := wire.NewEncoder(nil)
	e.PutU64(uint64(id))
	e.PutU32(uint32(version))
	putType(e, typ)
	putAddressList(e, remaining[1:])
	if err := wire.WritePacket(nc, wire.CltocsWrite, e.Bytes()); err != nil {
		nc.Close()
		return s.sendWriteStatus(c, writeInitWriteID, wire.StatusDisconnected, next)
	}

	reader := bufio.NewReaderSize(nc, 64*1024)
	header, reply, err := wire.ReadPacket(reader, wire.MaxPacketSizeChunkServerToServer)
	if err != nil || header.Type != wire.CstoclWriteStatus {
		nc.Close()
		return s.sendWriteStatus(c, writeInitWriteID, wire.StatusDisconnected, next)
	}
	rd := wire.NewDecoder(reply)
	_ = rd.U32() // downstream's echoed writeInitWriteID
	downStatus := wire.Status(rd.U8())
	reporter := getAddress(rd)
	if downStatus != wire.StatusOK {
		nc.Close()
		return s.sendWriteStatus(c, writeInitWriteID, downStatus, reporter)
	}

	ws.downstream = nc
	ws.downstreamReader = reader
	s.writes.set(c, ws)

	// pumpDownstreamAcks relays every subsequent block's ack upstream off
	// its own goroutine, independent of this Conn's readLoop, so a block
	// in flight to a deeper hop never blocks this hop from accepting the
	// client's next CLTOCS_WRITE_DATA (§4.5, §9 pipelining).
	go s.pumpDownstreamAcks(c, ws)
	return s.sendWriteStatus(c, writeInitWriteID, wire.StatusOK, s.Address)
}

// pumpDownstreamAcks reads CSTOCL_WRITE_STATUS packets off a non-tail
// hop's downstream connection and relays them upstream unchanged: the
// writeid and reporting address a deeper hop encodes survive the relay
// untouched, so the failing hop is always the one named in the ack
// (§4.5, §8), never this hop pretending the failure was its own. It runs
// for the lifetime of the downstream connection and returns once that
// connection errors or is closed by handleWriteFinish.
func (s *Server) pumpDownstreamAcks(c *netsrv.Conn, ws *writeSession) {
	for {
		header, reply, err := wire.ReadPacket(ws.downstreamReader, wire.MaxPacketSizeChunkServerToServer)
		if err != nil {
			return
		}
		if header.Type != wire.CstoclWriteStatus {
			continue
		}
		if err := c.SendPacket(wire.CstoclWriteStatus, reply); err != nil {
			return
		}
	}
}

// handleWriteData stores one block locally and, if this hop is not the
// tail, forwards it downstream. It does not wait for the downstream
// ack: that reply is relayed upstream by pumpDownstreamAcks on its own
// goroutine, which is what keeps many blocks in flight across the chain
// at once instead of serializing it into one round trip per block
// (§4.5, §9).
func (s *Server) handleWriteData(ctx context.Context, c *netsrv.Conn, payload []byte) error {
	d := wire.NewDecoder(payload)
	writeID := d.U32()
	block := int(d.U32())
	offset := d.U32()
	crc := d.U32()
	dataLen := d.U32()
	data := d.Raw(int(dataLen))
	if d.Err() != nil {
		return d.Err()
	}

	ws, ok := s.writes.get(c)
	if !ok {
		return fmt.Errorf("chunkserver: write data for %d with no open chain on this connection", writeID)
	}

	if !wire.VerifyBlockCRC(data, crc) {
		return s.sendWriteStatus(c, writeID, wire.StatusCRC, s.Address)
	}

	status := s.Store.WriteBlock(ws.id, ws.typ, ws.version, block, offset, data)
	if ws.tail || status != wire.StatusOK {
		return s.sendWriteStatus(c, writeID, status, s.Address)
	}

	fe := wire.NewEncoder(nil)
	fe.PutU32(writeID)
	fe.PutU32(uint32(block))
	fe.PutU32(offset)
	fe.PutU32(crc)
	fe.PutU32(uint32(len(data)))
	fe.PutRaw(data)
	if err := wire.WritePacket(ws.downstream, wire.CltocsWriteData, fe.Bytes()); err != nil {
		return s.sendWriteStatus(c, writeID, wire.StatusDisconnected, s.Address)
	}
	return nil
}

// handleWriteFinish propagates CLTOCS_WRITE_FINISH down the chain and
// closes this hop's half of the session.
func (s *Server) handleWriteFinish(c *netsrv.Conn, payload []byte) error {
	if ws, ok := s.writes.get(c); ok {
		if ws.downstream != nil {
			_ = wire.WritePacket(ws.downstream, wire.CltocsWriteFinish, payload)
			_ = ws.downstream.Close()
		}
	}
	s.writes.drop(c)
	return nil
}

func (s *Server) sendWriteStatus(c *netsrv.Conn, writeID uint32, status wire.Status, reporter chunk.NetworkAddress) error {
	return s.reply(c, wire.CstoclWriteStatus, func(e *wire.Encoder) {
		e.PutU32(writeID)
		e.PutU8(uint8(status))
		putAddress(e, reporter)
	})
}
