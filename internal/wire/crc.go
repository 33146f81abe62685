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

import "hash/crc32"

// blockCRCTable is built from the reflected polynomial 0xEDB88320, which is
// exactly crc32.IEEE: the original's hand-rolled crc32_generate() computes
// the same table this library already ships (§6 "CRC").
var blockCRCTable = crc32.MakeTable(crc32.IEEE)

// BlockCRC computes the per-block CRC-32 used to validate CSTOCL_READ_DATA
// and CLTOCS_WRITE_DATA payloads: polynomial 0xEDB88320 (reflected), initial
// value 0xFFFFFFFF, output XOR 0xFFFFFFFF — the standard IEEE-802.3 CRC-32,
// computed here over exactly one block (or a short final block).
func BlockCRC(block []byte) uint32 {
	return crc32.Checksum(block, blockCRCTable)
}

// VerifyBlockCRC reports whether block matches the given expected CRC.
// A mismatch must never be surfaced to the caller as data (§8 property 6):
// callers should treat a false return as a CS protocol error and retry.
func VerifyBlockCRC(block []byte, expected uint32) bool {
	return BlockCRC(block) == expected
}
