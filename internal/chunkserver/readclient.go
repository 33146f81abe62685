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
	"net"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/client/connector"
	"github.com/lizardfs/lizardfs-sub001/internal/client/pool"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// ReadClient implements read.ChunkServerClient against real chunkservers,
// issuing one CLTOCS_READ per call over a pooled connection (§4.4).
type ReadClient struct {
	Pool *pool.Pool
}

// NewReadClient builds a ReadClient pooling connections dialed through a
// fresh connector.Connector.
func NewReadClient() *ReadClient {
	c := connector.New()
	return &ReadClient{Pool: pool.New(func(addr chunk.NetworkAddress) (net.Conn, error) {
		return c.Dial(context.Background(), addr)
	})}
}

// ReadBlock implements read.ChunkServerClient.
func (rc *ReadClient) ReadBlock(ctx context.Context, server chunk.NetworkAddress, typ chunk.Type, id chunk.ID, version chunk.Version, block int) ([]byte, uint32, error) {
	nc, err := rc.Pool.Get(server)
	if err != nil {
		return nil, 0, err
	}

	e := wire.NewEncoder(nil)
	e.PutU64(uint64(id))
	e.PutU32(uint32(version))
	putType(e, typ)
	e.PutU32(uint32(block))
	if err := wire.WritePacket(nc, wire.CltocsRead, e.Bytes()); err != nil {
		rc.Pool.Discard(nc)
		return nil, 0, err
	}

	header, payload, err := wire.ReadPacket(bufio.NewReader(nc), wire.MaxPacketSizeChunkServerToServer)
	if err != nil {
		rc.Pool.Discard(nc)
		return nil, 0, err
	}
	if header.Type != wire.CstoclReadData {
		d := wire.NewDecoder(payload)
		_ = d.U64()
		status := wire.Status(d.U8())
		rc.Pool.Put(server, nc)
		return nil, 0, wire.ErrStatus(status)
	}

	d := wire.NewDecoder(payload)
	_ = d.U64()
	_ = d.U32()
	crc := d.U32()
	n := d.U32()
	data := d.Raw(int(n))
	if d.Err() != nil {
		rc.Pool.Discard(nc)
		return nil, 0, d.Err()
	}
	rc.Pool.Put(server, nc)
	return data, crc, nil
}
