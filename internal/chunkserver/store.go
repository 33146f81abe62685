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
	"sync"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

type chunkKey struct {
	id  chunk.ID
	typ chunk.Type
}

type storedChunk struct {
	version chunk.Version
	length  uint32
	blocks  map[int][]byte
}

// Store is a minimal in-memory stand-in for a chunkserver's local chunk
// storage. It holds exactly what the CS protocol needs to exercise
// (version, blocks, a used/total byte count for CSTOMA_SPACE) and nothing
// of the original's on-disk layout, folder scanning or checksum journal,
// which spec.md §1 places out of scope.
type Store struct {
	mu     sync.Mutex
	chunks map[chunkKey]*storedChunk
	used   uint64
	total  uint64
}

// NewStore builds an empty Store advertising totalBytes of capacity in its
// CSTOMA_SPACE reports.
func NewStore(totalBytes uint64) *Store {
	return &Store{chunks: make(map[chunkKey]*storedChunk), total: totalBytes}
}

func (s *Store) Create(id chunk.ID, version chunk.Version, typ chunk.Type) wire.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chunkKey{id, typ}
	if _, ok := s.chunks[key]; ok {
		return wire.StatusChunkExist
	}
	s.chunks[key] = &storedChunk{version: version, blocks: make(map[int][]byte)}
	return wire.StatusOK
}

func (s *Store) Delete(id chunk.ID, typ chunk.Type, version chunk.Version) wire.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chunkKey{id, typ}
	c, ok := s.chunks[key]
	if !ok {
		return wire.StatusNoChunk
	}
	if c.version != version {
		return wire.StatusWrongVersion
	}
	s.used -= chunkUsedBytes(c)
	delete(s.chunks, key)
	return wire.StatusOK
}

func (s *Store) SetVersion(id chunk.ID, typ chunk.Type, oldVersion, newVersion chunk.Version) wire.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[chunkKey{id, typ}]
	if !ok {
		return wire.StatusNoChunk
	}
	if c.version != oldVersion {
		return wire.StatusWrongVersion
	}
	c.version = newVersion
	return wire.StatusOK
}

func (s *Store) Duplicate(newID chunk.ID, newVersion chunk.Version, oldID chunk.ID, oldVersion chunk.Version, typ chunk.Type) wire.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.chunks[chunkKey{oldID, typ}]
	if !ok {
		return wire.StatusNoChunk
	}
	if src.version != oldVersion {
		return wire.StatusWrongVersion
	}
	dstKey := chunkKey{newID, typ}
	if _, exists := s.chunks[dstKey]; exists {
		return wire.StatusChunkExist
	}
	clone := &storedChunk{version: newVersion, length: src.length, blocks: make(map[int][]byte, len(src.blocks))}
	for b, data := range src.blocks {
		cp := make([]byte, len(data))
		copy(cp, data)
		clone.blocks[b] = cp
	}
	s.chunks[dstKey] = clone
	s.used += chunkUsedBytes(clone)
	return wire.StatusOK
}

func (s *Store) Truncate(id chunk.ID, typ chunk.Type, oldVersion, newVersion chunk.Version, newLength uint32) wire.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[chunkKey{id, typ}]
	if !ok {
		return wire.StatusNoChunk
	}
	if c.version != oldVersion {
		return wire.StatusWrongVersion
	}
	s.used -= chunkUsedBytes(c)
	c.version = newVersion
	c.length = newLength
	lastBlock := int(newLength / wire.BlockSize)
	for b := range c.blocks {
		if b > lastBlock {
			delete(c.blocks, b)
		}
	}
	if within := newLength % wire.BlockSize; within > 0 {
		if data, ok := c.blocks[lastBlock]; ok && len(data) > int(within) {
			c.blocks[lastBlock] = data[:within]
		}
	}
	s.used += chunkUsedBytes(c)
	return wire.StatusOK
}

func (s *Store) DupTrunc(newID chunk.ID, newVersion chunk.Version, oldID chunk.ID, oldVersion chunk.Version, typ chunk.Type, newLength uint32) wire.Status {
	if status := s.Duplicate(newID, newVersion, oldID, oldVersion, typ); status != wire.StatusOK {
		return status
	}
	return s.Truncate(newID, typ, newVersion, newVersion, newLength)
}

// ReadBlock returns block's data and its CRC, or an error status if the
// chunk does not exist or its version differs. A block that was never
// written (or was dropped by Truncate) reads as wire.BlockSize zero bytes
// with StatusOK.
func (s *Store) ReadBlock(id chunk.ID, typ chunk.Type, version chunk.Version, block int) ([]byte, uint32, wire.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[chunkKey{id, typ}]
	if !ok {
		return nil, 0, wire.StatusNoChunk
	}
	if c.version != version {
		return nil, 0, wire.StatusWrongVersion
	}
	data, ok := c.blocks[block]
	if !ok {
		data = make([]byte, wire.BlockSize)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, wire.BlockCRC(out), wire.StatusOK
}

// WriteBlock stores data at byte offset within block of the given chunk.
func (s *Store) WriteBlock(id chunk.ID, typ chunk.Type, version chunk.Version, block int, offset uint32, data []byte) wire.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[chunkKey{id, typ}]
	if !ok {
		return wire.StatusNoChunk
	}
	if c.version != version {
		return wire.StatusWrongVersion
	}
	if offset+uint32(len(data)) > wire.BlockSize {
		return wire.StatusWrongOffset
	}
	s.used -= chunkUsedBytes(c)
	existing := c.blocks[block]
	need := int(offset) + len(data)
	if len(existing) < need {
		grown := make([]byte, need)
		copy(grown, existing)
		existing = grown
	}
	copy(existing[offset:], data)
	c.blocks[block] = existing
	if end := uint32(block)*wire.BlockSize + offset + uint32(len(data)); end > c.length {
		c.length = end
	}
	s.used += chunkUsedBytes(c)
	return wire.StatusOK
}

// Usage reports bytes used and the advertised total, for CSTOMA_SPACE.
func (s *Store) Usage() (used, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used, s.total
}

func chunkUsedBytes(c *storedChunk) uint64 {
	var total uint64
	for _, b := range c.blocks {
		total += uint64(len(b))
	}
	return total
}
