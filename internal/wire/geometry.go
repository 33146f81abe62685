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

// Package wire implements the MooseFS/LizardFS network packet framing: the
// type/length/payload envelope shared by master, chunkserver, metalogger and
// client peers, the legacy and versioned header flavors, message type
// numbers, fixed-width attribute records and the wire-level error taxonomy.
package wire

import "time"

// Chunk geometry. The "standard" build uses 64 KiB blocks / 64 MiB chunks;
// a "light" build (4 KiB / 4 MiB) exists in the original but is not wired
// into any running configuration here.
const (
	BlockSize        = 64 * 1024
	BlocksPerChunk   = 1024
	ChunkSize        = BlockSize * BlocksPerChunk
	MaxFileSize      = uint64(ChunkSize) << 31
	InodeReuseDelay  = 24 * time.Hour
	CRCPolynomial    = 0xEDB88320
)

// Maximum packet sizes per peer pairing (§4.1). Oversize packets cause a
// hard disconnect of that connection.
const (
	MaxPacketSizeChunkServerToMaster = 50 * 1024 * 1024
	MaxPacketSizeChunkServerToServer = 1536 * 1024
	MaxPacketSizeMasterToMetalogger  = 1536 * 1024
	MaxPacketSizeMasterToClient      = 1024 * 1024
)

// Default ports (§6).
const (
	DefaultPortMasterMetalogger  = 9419
	DefaultPortMasterChunkServer = 9420
	DefaultPortMasterClient      = 9421
)
