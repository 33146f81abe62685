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

package wire

import "fmt"

// MessageType identifies the kind of a packet's payload. Values in
// [MinLizPacketType, MaxLizPacketType] carry a versioned payload (a uint32 version
// field precedes the fields); everything else is legacy and the payload
// begins directly with the fields.
type MessageType uint32

const (
	MinOldPacketType MessageType = 0
	MaxOldPacketType MessageType = 1000
	MinLizPacketType MessageType = 1001
	MaxLizPacketType MessageType = 2000
)

// IsVersioned reports whether t uses the versioned envelope flavor.
func (t MessageType) IsVersioned() bool {
	return t >= MinLizPacketType && t <= MaxLizPacketType
}

// HeaderSize is the fixed on-wire size of a PacketHeader: type:u32 + length:u32.
const HeaderSize = 8

// PacketHeader is the 8-byte envelope preceding every packet's payload.
// Length is the size of the payload that follows, including the version
// field for versioned packets.
type PacketHeader struct {
	Type   MessageType
	Length uint32
}

func (h PacketHeader) String() string {
	return fmt.Sprintf("Packet{type=%d length=%d versioned=%v}", h.Type, h.Length, h.Type.IsVersioned())
}

// Well-known message types referenced directly by this module's state
// machines (the full catalogue spans hundreds of FUSE passthrough
// messages out of scope for the core; see MFSCommunication.h).
const (
	AntoanNop            MessageType = 0
	AntoanUnknownCommand MessageType = 1
	AntoanBadCommandSize MessageType = 2

	MltomaRegister       MessageType = 50
	MatomlMetachangesLog MessageType = 51
	MltomaDownloadStart  MessageType = 60
	MatomlDownloadStart  MessageType = 61
	MltomaDownloadData   MessageType = 62
	MatomlDownloadData   MessageType = 63
	MltomaDownloadEnd    MessageType = 64

	CstomaRegister     MessageType = 100
	CstomaSpace        MessageType = 101
	CstomaChunkDamaged MessageType = 102
	CstomaChunkLost    MessageType = 105
	CstomaErrorOccured MessageType = 106
	CstomaChunkNew     MessageType = 107

	MatocsCreate MessageType = 110
	CstomaCreate MessageType = 111

	MatocsDelete MessageType = 120
	CstomaDelete MessageType = 121

	MatocsDuplicate MessageType = 130
	CstomaDuplicate MessageType = 131

	MatocsSetVersion MessageType = 140
	CstomaSetVersion MessageType = 141

	MatocsReplicate MessageType = 150
	CstomaReplicate MessageType = 151

	MatocsTruncate MessageType = 160
	CstomaTruncate MessageType = 161

	MatocsDuptrunc MessageType = 170
	CstomaDuptrunc MessageType = 171

	CltocsRead       MessageType = 200
	CstoclReadStatus MessageType = 201
	CstoclReadData   MessageType = 202

	CltocsWrite       MessageType = 210
	CstoclWriteStatus MessageType = 211
	CltocsWriteData   MessageType = 212
	CltocsWriteFinish MessageType = 213

	CltomaCservList MessageType = 400
	MatoclCservList MessageType = 401

	CltomaFuseReadChunk     MessageType = 432
	MatoclFuseReadChunk     MessageType = 433
	CltomaFuseWriteChunk    MessageType = 434
	MatoclFuseWriteChunk    MessageType = 435
	CltomaFuseWriteChunkEnd MessageType = 436
	MatoclFuseWriteChunkEnd MessageType = 437
)
