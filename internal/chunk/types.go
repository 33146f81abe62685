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

// Package chunk defines the core data model shared by master, chunkserver
// and client: chunk identity and version, the Standard/Xor erasure scheme,
// and the network address a chunk copy lives at (§3).
package chunk

import "fmt"

// ID is a 64-bit monotonically allocated chunk identifier. It is never
// reused while any copy of the chunk exists.
type ID uint64

// Version is a 32-bit per-chunk monotonic counter, bumped before any
// mutating operation. Copies observed at an older version are invalid.
type Version uint32

// MaxXorLevel bounds the number of data parts an Xor scheme may stripe
// across (§3 "Lmax").
const MaxXorLevel = 9

// Part identifies a part within an Xor(L) scheme: 1..L for data parts,
// or PartParity for the parity part. Standard chunks have no parts.
type Part uint8

const PartParity Part = 0xFF

// Type is a chunk's erasure scheme: either a full Standard replica, or one
// part of an Xor(L) stripe (§3).
type Type struct {
	Level Level // 0 means Standard
	Part  Part  // meaningless when Level == 0
}

// Level is the number of data parts L in an Xor(L) scheme; zero means the
// chunk is Standard (whole, N-way replicated).
type Level uint8

// Standard is the non-erasure-coded chunk type: a full replica.
var Standard = Type{Level: 0}

// Xor builds the Type identifying data part `part` (1..level) of an
// Xor(level) scheme.
func Xor(level Level, part int) Type {
	return Type{Level: level, Part: Part(part)}
}

// XorParity builds the Type identifying the parity part of an Xor(level)
// scheme.
func XorParity(level Level) Type {
	return Type{Level: level, Part: PartParity}
}

// IsStandard reports whether t denotes a full, non-striped replica.
func (t Type) IsStandard() bool { return t.Level == 0 }

// IsParity reports whether t denotes the parity part of an Xor scheme.
func (t Type) IsParity() bool { return !t.IsStandard() && t.Part == PartParity }

func (t Type) String() string {
	if t.IsStandard() {
		return "standard"
	}
	if t.IsParity() {
		return fmt.Sprintf("xor%d/parity", t.Level)
	}
	return fmt.Sprintf("xor%d/%d", t.Level, t.Part)
}

// BlockOfStripe returns the block number, within this part's own stream,
// that corresponds to block `globalBlock` of the full (reconstructed)
// chunk. Only meaningful for a data part: part k holds every L-th block
// starting at block k-1 (§3).
func (t Type) BlockOfStripe(globalBlock int) int {
	if t.IsStandard() {
		return globalBlock
	}
	return globalBlock / int(t.Level)
}

// DataPartForBlock returns which data part (1..L) owns block `globalBlock`
// of an Xor(level) chunk.
func DataPartForBlock(level Level, globalBlock int) int {
	return (globalBlock % int(level)) + 1
}

// NetworkAddress is a (host, port) pair identifying a chunkserver, used as
// the connection-pool and read-plan location key (§4.4).
type NetworkAddress struct {
	Host string
	Port uint16
}

func (a NetworkAddress) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
