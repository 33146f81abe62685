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

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/client/connector"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// MasterClient implements registry.ChunkServerClient: the master's
// outbound caller of MATOCS_*/CSTOMA_* against a chunkserver. Each call
// opens a short-lived connection rather than pooling, since these
// directives are comparatively rare next to client reads and writes.
type MasterClient struct {
	Connector *connector.Connector
}

// NewMasterClient builds a MasterClient dialing with connector.New().
func NewMasterClient() *MasterClient {
	return &MasterClient{Connector: connector.New()}
}

func (m *MasterClient) roundTrip(ctx context.Context, server chunk.NetworkAddress, req wire.MessageType, build func(*wire.Encoder), reply wire.MessageType) (*wire.Decoder, error) {
	nc, err := m.Connector.Dial(ctx, server)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	e := wire.NewEncoder(nil)
	build(e)
	if err := wire.WritePacket(nc, req, e.Bytes()); err != nil {
		return nil, err
	}

	header, payload, err := wire.ReadPacket(bufio.NewReader(nc), wire.MaxPacketSizeChunkServerToMaster)
	if err != nil {
		return nil, err
	}
	if header.Type != reply {
		return nil, errShortReply(header.Type)
	}
	return wire.NewDecoder(payload), nil
}

func (m *MasterClient) Create(ctx context.Context, server chunk.NetworkAddress, id chunk.ID, version chunk.Version) (wire.Status, error) {
	d, err := m.roundTrip(ctx, server, wire.MatocsCreate, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU32(uint32(version))
		putType(e, chunk.Standard)
	}, wire.CstomaCreate)
	if err != nil {
		return 0, err
	}
	_ = d.U64()
	return wire.Status(d.U8()), d.Err()
}

func (m *MasterClient) Delete(ctx context.Context, server chunk.NetworkAddress, id chunk.ID, version chunk.Version) (wire.Status, error) {
	d, err := m.roundTrip(ctx, server, wire.MatocsDelete, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU32(uint32(version))
		putType(e, chunk.Standard)
	}, wire.CstomaDelete)
	if err != nil {
		return 0, err
	}
	_ = d.U64()
	return wire.Status(d.U8()), d.Err()
}

func (m *MasterClient) SetVersion(ctx context.Context, server chunk.NetworkAddress, id chunk.ID, oldVersion, newVersion chunk.Version) (wire.Status, error) {
	d, err := m.roundTrip(ctx, server, wire.MatocsSetVersion, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU32(uint32(oldVersion))
		e.PutU32(uint32(newVersion))
		putType(e, chunk.Standard)
	}, wire.CstomaSetVersion)
	if err != nil {
		return 0, err
	}
	_ = d.U64()
	return wire.Status(d.U8()), d.Err()
}

func (m *MasterClient) Duplicate(ctx context.Context, server chunk.NetworkAddress, newID chunk.ID, newVersion chunk.Version, oldID chunk.ID, oldVersion chunk.Version) (wire.Status, error) {
	d, err := m.roundTrip(ctx, server, wire.MatocsDuplicate, func(e *wire.Encoder) {
		e.PutU64(uint64(newID))
		e.PutU32(uint32(newVersion))
		e.PutU64(uint64(oldID))
		e.PutU32(uint32(oldVersion))
		putType(e, chunk.Standard)
	}, wire.CstomaDuplicate)
	if err != nil {
		return 0, err
	}
	_ = d.U64()
	return wire.Status(d.U8()), d.Err()
}

func (m *MasterClient) Truncate(ctx context.Context, server chunk.NetworkAddress, id chunk.ID, oldVersion, newVersion chunk.Version, newLength uint32) (wire.Status, error) {
	d, err := m.roundTrip(ctx, server, wire.MatocsTruncate, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU32(uint32(oldVersion))
		e.PutU32(uint32(newVersion))
		e.PutU32(newLength)
		putType(e, chunk.Standard)
	}, wire.CstomaTruncate)
	if err != nil {
		return 0, err
	}
	_ = d.U64()
	return wire.Status(d.U8()), d.Err()
}

func (m *MasterClient) DupTrunc(ctx context.Context, server chunk.NetworkAddress, newID chunk.ID, newVersion chunk.Version, oldID chunk.ID, oldVersion chunk.Version, newLength uint32) (wire.Status, error) {
	d, err := m.roundTrip(ctx, server, wire.MatocsDuptrunc, func(e *wire.Encoder) {
		e.PutU64(uint64(newID))
		e.PutU32(uint32(newVersion))
		e.PutU64(uint64(oldID))
		e.PutU32(uint32(oldVersion))
		e.PutU32(newLength)
		putType(e, chunk.Standard)
	}, wire.CstomaDuptrunc)
	if err != nil {
		return 0, err
	}
	_ = d.U64()
	return wire.Status(d.U8()), d.Err()
}

func (m *MasterClient) Replicate(ctx context.Context, target chunk.NetworkAddress, id chunk.ID, version chunk.Version, sources []chunk.NetworkAddress) (wire.Status, error) {
	d, err := m.roundTrip(ctx, target, wire.MatocsReplicate, func(e *wire.Encoder) {
		e.PutU64(uint64(id))
		e.PutU32(uint32(version))
		putType(e, chunk.Standard)
		putAddressList(e, sources)
	}, wire.CstomaReplicate)
	if err != nil {
		return 0, err
	}
	_ = d.U64()
	return wire.Status(d.U8()), d.Err()
}
