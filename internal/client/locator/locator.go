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

// Package locator resolves a (inode, chunk index) pair to chunk metadata
// and its current holder list (§4.4 "Locate"), talking
// CLTOMA_FUSE_READ_CHUNK / CLTOMA_FUSE_WRITE_CHUNK to the master. Grounded
// on original_source/src/mount/chunk_locator.cc's ChunkLocator, which draws
// exactly this ENOENT-is-unrecoverable / everything-else-is-retryable
// distinction between lookup failures.
package locator

import (
	"context"
	"errors"
	"fmt"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// Location is one chunk's current placement as reported by the master.
type Location struct {
	Length  uint64
	ID      chunk.ID
	Version chunk.Version
	Type    chunk.Type
	Servers []chunk.NetworkAddress
}

// MasterClient is the client's outbound view of the master lookup protocol.
type MasterClient interface {
	ReadChunk(ctx context.Context, inode uint32, index uint32) (Location, error)
	WriteChunk(ctx context.Context, inode uint32, index uint32) (Location, error)
	WriteChunkEnd(ctx context.Context, inode uint32, index uint32, chunkID chunk.ID, version chunk.Version) error
}

// ErrUnrecoverable wraps a lookup failure the caller should not retry
// (most notably ENOENT: the file was unlinked out from under the open
// handle).
var ErrUnrecoverable = errors.New("locator: unrecoverable lookup failure")

// Locator resolves chunk locations via a MasterClient.
type Locator struct {
	Master MasterClient
}

// New wraps a MasterClient.
func New(master MasterClient) *Locator {
	return &Locator{Master: master}
}

// ResolveForRead looks up the chunk backing (inode, index) for reading. A status
// of StatusENOENT is reported as ErrUnrecoverable; every other status
// follows its RetryClass so the caller (read executor) can apply the
// matching backoff policy.
func (l *Locator) ResolveForRead(ctx context.Context, inode uint32, index uint32) (Location, error) {
	loc, err := l.Master.ReadChunk(ctx, inode, index)
	return loc, classify(err)
}

// ResolveForWrite looks up (and, on the master, provisionally locks) the
// chunk backing (inode, index) for writing (§4.5 "the write pipeline opens
// by asking the master to lock the chunk for writing").
func (l *Locator) ResolveForWrite(ctx context.Context, inode uint32, index uint32) (Location, error) {
	loc, err := l.Master.WriteChunk(ctx, inode, index)
	return loc, classify(err)
}

// Commit tells the master the write finished, releasing its lock
// (CLTOMA_FUSE_WRITE_CHUNK_END, §4.5).
func (l *Locator) Commit(ctx context.Context, inode uint32, index uint32, id chunk.ID, version chunk.Version) error {
	return classify(l.Master.WriteChunkEnd(ctx, inode, index, id, version))
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var werr *wire.Error
	if errors.As(err, &werr) && werr.Status == wire.StatusENOENT {
		return fmt.Errorf("%w: %v", ErrUnrecoverable, err)
	}
	return err
}
