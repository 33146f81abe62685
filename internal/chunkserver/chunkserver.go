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

// Package chunkserver implements the chunkserver side of the CS protocol
// (§4.1, §4.3, §4.5): the handlers a chunkserver runs against MATOCS_*
// directives from the master and CLTOCS_* requests from clients, plus the
// matching client-side callers the master's registry and the client's read
// executor / write pipeline dial against. Per spec.md §1 Non-goals,
// on-disk chunk file layout is explicitly opaque; Store here is a minimal
// in-memory stand-in that gives the protocol surface something real to
// drive instead of a disk image, the same way the original keeps
// hddspacemgr.c's storage details behind a narrow internal API.
package chunkserver

import (
	"fmt"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

func putType(e *wire.Encoder, t chunk.Type) {
	e.PutU8(uint8(t.Level))
	e.PutU8(uint8(t.Part))
}

func getType(d *wire.Decoder) chunk.Type {
	level := chunk.Level(d.U8())
	part := chunk.Part(d.U8())
	return chunk.Type{Level: level, Part: part}
}

func putAddress(e *wire.Encoder, a chunk.NetworkAddress) {
	e.PutName(a.Host)
	e.PutU16(a.Port)
}

func getAddress(d *wire.Decoder) chunk.NetworkAddress {
	host := d.Name()
	port := d.U16()
	return chunk.NetworkAddress{Host: host, Port: port}
}

func putAddressList(e *wire.Encoder, addrs []chunk.NetworkAddress) {
	e.PutU8(uint8(len(addrs)))
	for _, a := range addrs {
		putAddress(e, a)
	}
}

func getAddressList(d *wire.Decoder) []chunk.NetworkAddress {
	n := d.U8()
	out := make([]chunk.NetworkAddress, n)
	for i := range out {
		out[i] = getAddress(d)
	}
	return out
}

// errShortReply is returned when a peer's response cannot be decoded,
// distinct from a wire.Status carried inside a well-formed reply.
func errShortReply(msgType wire.MessageType) error {
	return fmt.Errorf("chunkserver: short or malformed reply to %d", msgType)
}
