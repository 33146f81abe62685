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
	"net"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/client/connector"
	"github.com/lizardfs/lizardfs-sub001/internal/client/write"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// ChainOpener implements write.Opener: it dials the chain's head and sends
// CLTOCS_WRITE naming the rest of the chain, the way
// original_source/src/mount/chunkserver_write_chain.cc opens its
// connection (§4.5).
type ChainOpener struct {
	Connector *connector.Connector
}

// NewChainOpener builds a ChainOpener dialing via connector.New().
func NewChainOpener() *ChainOpener {
	return &ChainOpener{Connector: connector.New()}
}

// Open implements write.Opener.
func (o *ChainOpener) Open(ctx context.Context, servers []chunk.NetworkAddress, id chunk.ID, version chunk.Version, typ chunk.Type) (write.Chain, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("chunkserver: cannot open a write chain with no servers")
	}
	head := servers[0]
	nc, err := o.Connector.Dial(ctx, head)
	if err != nil {
		return nil, err
	}

	e := wire.NewEncoder(nil)
	e.PutU64(uint64(id))
	e.PutU32(uint32(version))
	putType(e, typ)
	putAddressList(e, servers[1:])
	if err := wire.WritePacket(nc, wire.CltocsWrite, e.Bytes()); err != nil {
		nc.Close()
		return nil, err
	}

	reader := bufio.NewReaderSize(nc, 64*1024)
	header, payload, err := wire.ReadPacket(reader, wire.MaxPacketSizeChunkServerToServer)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if header.Type != wire.CstoclWriteStatus {
		nc.Close()
		return nil, errShortReply(header.Type)
	}
	d := wire.NewDecoder(payload)
	_ = d.U32()
	status := wire.Status(d.U8())
	reporter := getAddress(d)
	if status != wire.StatusOK {
		nc.Close()
		return nil, fmt.Errorf("chunkserver: chain open failed at %s: %s", reporter, status)
	}

	return chainConnHandle{conn: nc, reader: reader}, nil
}

// chainConnHandle is the concrete Chain implementation handed back by
// Open: a live socket to the chain head plus its buffered reader.
type chainConnHandle struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (h chainConnHandle) SendBlock(ctx context.Context, writeID uint32, block int, offset uint32, data []byte) error {
	e := wire.NewEncoder(nil)
	e.PutU32(writeID)
	e.PutU32(uint32(block))
	e.PutU32(offset)
	e.PutU32(wire.BlockCRC(data))
	e.PutU32(uint32(len(data)))
	e.PutRaw(data)
	return wire.WritePacket(h.conn, wire.CltocsWriteData, e.Bytes())
}

func (h chainConnHandle) RecvAck(ctx context.Context) (write.Ack, error) {
	header, payload, err := wire.ReadPacket(h.reader, wire.MaxPacketSizeChunkServerToServer)
	if err != nil {
		return write.Ack{}, err
	}
	if header.Type != wire.CstoclWriteStatus {
		return write.Ack{}, errShortReply(header.Type)
	}
	d := wire.NewDecoder(payload)
	writeID := d.U32()
	status := wire.Status(d.U8())
	server := getAddress(d)
	return write.Ack{WriteID: writeID, Status: status, Server: server}, d.Err()
}

func (h chainConnHandle) Close(ctx context.Context) error {
	e := wire.NewEncoder(nil)
	if err := wire.WritePacket(h.conn, wire.CltocsWriteFinish, e.Bytes()); err != nil {
		h.conn.Close()
		return err
	}
	return h.conn.Close()
}
