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

package registry

import (
	"context"
	"fmt"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// ChunkServerClient is the master's outbound view of the CS protocol
// (MATOCS_* / CSTOMA_*, §4.1): one call per operation the registry's state
// machine can issue against a chunkserver. Production wiring sends these
// over netsrv connections; tests substitute a fake.
type ChunkServerClient interface {
	Create(ctx context.Context, server chunk.NetworkAddress, id chunk.ID, version chunk.Version) (wire.Status, error)
	Delete(ctx context.Context, server chunk.NetworkAddress, id chunk.ID, version chunk.Version) (wire.Status, error)
	SetVersion(ctx context.Context, server chunk.NetworkAddress, id chunk.ID, oldVersion, newVersion chunk.Version) (wire.Status, error)
	Duplicate(ctx context.Context, server chunk.NetworkAddress, newID chunk.ID, newVersion chunk.Version, oldID chunk.ID, oldVersion chunk.Version) (wire.Status, error)
	Truncate(ctx context.Context, server chunk.NetworkAddress, id chunk.ID, oldVersion, newVersion chunk.Version, newLength uint32) (wire.Status, error)
	DupTrunc(ctx context.Context, server chunk.NetworkAddress, newID chunk.ID, newVersion chunk.Version, oldID chunk.ID, oldVersion chunk.Version, newLength uint32) (wire.Status, error)
	Replicate(ctx context.Context, target chunk.NetworkAddress, id chunk.ID, version chunk.Version, sources []chunk.NetworkAddress) (wire.Status, error)
}

// ErrNotDone is returned when every targeted chunkserver failed an
// operation (§7: "zero successes -> ERROR_NOTDONE").
var ErrNotDone = fmt.Errorf("registry: operation failed on all targets")

// Create allocates a new chunk, placing it on up to goal chunkservers chosen
// by weighted-random selection, and issues MATOCS_CREATE to each (§4.3
// "CREATE"). Partial success is acceptable: the chunk exists as long as at
// least one CSTOMA_CREATE succeeded; placements that failed are simply
// absent from the chunk's copy list, to be repaired later by the health
// loop's undergoal pass.
func (reg *Registry) Create(ctx context.Context, cs ChunkServerClient, goal int, typ chunk.Type) (*Record, error) {
	targets := reg.Servers.WeightedRandom(goal, true)
	if len(targets) == 0 {
		return nil, wire.ErrStatus(wire.StatusNoChunkServers)
	}

	reg.mu.Lock()
	rec := reg.allocate(goal, typ)
	id, version := rec.ID, rec.Version
	reg.mu.Unlock()

	successes := 0
	for _, srv := range targets {
		status, err := cs.Create(ctx, srv.Address, id, version)
		if err != nil || status != wire.StatusOK {
			continue
		}
		successes++
		reg.mu.Lock()
		rec.Copies = append(rec.Copies, Copy{Server: srv.Address, VersionSeen: version, State: CopyValid})
		reg.mu.Unlock()
	}

	if successes == 0 {
		reg.mu.Lock()
		delete(reg.chunks, id)
		reg.mu.Unlock()
		return nil, ErrNotDone
	}
	reg.logChange("CREATE(%d,%d,%d)", id, version, goal)
	return cloneRecord(rec), nil
}

// SetVersion bumps a chunk's version in place across all its current
// copies (§4.3 "SET_VERSION", used ahead of a write to fence stale
// readers). A copy that fails the bump is marked Outdated rather than
// removed — it still exists on disk at the old version and can be
// recovered by duplicating a valid copy onto it.
func (reg *Registry) SetVersion(ctx context.Context, cs ChunkServerClient, id chunk.ID) (*Record, error) {
	reg.mu.Lock()
	rec, ok := reg.chunks[id]
	if !ok {
		reg.mu.Unlock()
		return nil, ErrChunkNotFound
	}
	if err := rec.lockForOp(LockSetVersion); err != nil {
		reg.mu.Unlock()
		return nil, err
	}
	oldVersion := rec.Version
	newVersion := oldVersion + 1
	copies := append([]Copy(nil), rec.Copies...)
	reg.mu.Unlock()

	defer func() {
		reg.mu.Lock()
		rec.unlock()
		reg.mu.Unlock()
	}()

	successes := 0
	for i, c := range copies {
		status, err := cs.SetVersion(ctx, c.Server, id, oldVersion, newVersion)
		reg.mu.Lock()
		idx := rec.findCopy(c.Server)
		if idx < 0 {
			reg.mu.Unlock()
			continue
		}
		if err == nil && status == wire.StatusOK {
			rec.Copies[idx].VersionSeen = newVersion
			rec.Copies[idx].State = CopyValid
			successes++
		} else {
			rec.Copies[idx].State = CopyOutdated
		}
		reg.mu.Unlock()
		_ = i
	}

	if successes == 0 {
		return nil, ErrNotDone
	}
	reg.mu.Lock()
	rec.Version = newVersion
	out := cloneRecord(rec)
	reg.mu.Unlock()
	reg.logChange("SETVERSION(%d,%d)", id, newVersion)
	return out, nil
}

// Duplicate creates a new chunk id that is a copy-on-write clone of an
// existing one (§4.3 "DUPLICATE", used by file copy / hardlink-breaking
// semantics), placing the clone wherever the source currently has valid
// copies.
func (reg *Registry) Duplicate(ctx context.Context, cs ChunkServerClient, srcID chunk.ID) (*Record, error) {
	reg.mu.Lock()
	src, ok := reg.chunks[srcID]
	if !ok {
		reg.mu.Unlock()
		return nil, ErrChunkNotFound
	}
	sources := src.ValidCopies()
	typ, goal := src.Type, src.Goal
	srcVersion := src.Version
	dst := reg.allocate(goal, typ)
	dstID, dstVersion := dst.ID, dst.Version
	reg.mu.Unlock()

	if len(sources) == 0 {
		reg.mu.Lock()
		delete(reg.chunks, dstID)
		reg.mu.Unlock()
		return nil, ErrNotDone
	}

	successes := 0
	for _, c := range sources {
		status, err := cs.Duplicate(ctx, c.Server, dstID, dstVersion, srcID, srcVersion)
		if err != nil || status != wire.StatusOK {
			continue
		}
		successes++
		reg.mu.Lock()
		dst.Copies = append(dst.Copies, Copy{Server: c.Server, VersionSeen: dstVersion, State: CopyValid})
		reg.mu.Unlock()
	}

	if successes == 0 {
		reg.mu.Lock()
		delete(reg.chunks, dstID)
		reg.mu.Unlock()
		return nil, ErrNotDone
	}
	reg.mu.Lock()
	out := cloneRecord(dst)
	reg.mu.Unlock()
	reg.logChange("DUPLICATE(%d,%d,%d)", dstID, srcID, dstVersion)
	return out, nil
}

// Truncate changes a chunk's length in place, bumping its version the same
// way SET_VERSION does so stale readers are fenced (§4.3 "TRUNCATE").
func (reg *Registry) Truncate(ctx context.Context, cs ChunkServerClient, id chunk.ID, newLength uint32) (*Record, error) {
	reg.mu.Lock()
	rec, ok := reg.chunks[id]
	if !ok {
		reg.mu.Unlock()
		return nil, ErrChunkNotFound
	}
	if err := rec.lockForOp(LockTruncating); err != nil {
		reg.mu.Unlock()
		return nil, err
	}
	oldVersion := rec.Version
	newVersion := oldVersion + 1
	copies := append([]Copy(nil), rec.Copies...)
	reg.mu.Unlock()

	defer func() {
		reg.mu.Lock()
		rec.unlock()
		reg.mu.Unlock()
	}()

	successes := 0
	for _, c := range copies {
		status, err := cs.Truncate(ctx, c.Server, id, oldVersion, newVersion, newLength)
		reg.mu.Lock()
		idx := rec.findCopy(c.Server)
		if idx >= 0 {
			if err == nil && status == wire.StatusOK {
				rec.Copies[idx].VersionSeen = newVersion
				rec.Copies[idx].State = CopyValid
				successes++
			} else {
				rec.Copies[idx].State = CopyOutdated
			}
		}
		reg.mu.Unlock()
	}

	if successes == 0 {
		return nil, ErrNotDone
	}
	reg.mu.Lock()
	rec.Version = newVersion
	out := cloneRecord(rec)
	reg.mu.Unlock()
	reg.logChange("TRUNCATE(%d,%d,%d)", id, newVersion, newLength)
	return out, nil
}

// DupTrunc combines DUPLICATE and TRUNCATE in one chunkserver round trip
// (§4.3 "DUPTRUNC", used by ftruncate() extending a file that shares its
// last chunk with another inode via copy-on-write).
func (reg *Registry) DupTrunc(ctx context.Context, cs ChunkServerClient, srcID chunk.ID, newLength uint32) (*Record, error) {
	reg.mu.Lock()
	src, ok := reg.chunks[srcID]
	if !ok {
		reg.mu.Unlock()
		return nil, ErrChunkNotFound
	}
	sources := src.ValidCopies()
	typ, goal := src.Type, src.Goal
	srcVersion := src.Version
	dst := reg.allocate(goal, typ)
	dstID, dstVersion := dst.ID, dst.Version
	reg.mu.Unlock()

	if len(sources) == 0 {
		reg.mu.Lock()
		delete(reg.chunks, dstID)
		reg.mu.Unlock()
		return nil, ErrNotDone
	}

	successes := 0
	for _, c := range sources {
		status, err := cs.DupTrunc(ctx, c.Server, dstID, dstVersion, srcID, srcVersion, newLength)
		if err != nil || status != wire.StatusOK {
			continue
		}
		successes++
		reg.mu.Lock()
		dst.Copies = append(dst.Copies, Copy{Server: c.Server, VersionSeen: dstVersion, State: CopyValid})
		reg.mu.Unlock()
	}

	if successes == 0 {
		reg.mu.Lock()
		delete(reg.chunks, dstID)
		reg.mu.Unlock()
		return nil, ErrNotDone
	}
	reg.mu.Lock()
	out := cloneRecord(dst)
	reg.mu.Unlock()
	reg.logChange("DUPTRUNC(%d,%d,%d,%d)", dstID, srcID, dstVersion, newLength)
	return out, nil
}

// Replicate adds one more valid copy of an existing chunk onto `target`,
// sourced from the chunk's current valid copies (§4.3 "REPLICATE", driven
// by the health loop's undergoal pass). The target is expected to already
// be excluded from the chunk's current holders by the caller.
func (reg *Registry) Replicate(ctx context.Context, cs ChunkServerClient, id chunk.ID, target chunk.NetworkAddress) error {
	reg.mu.Lock()
	rec, ok := reg.chunks[id]
	if !ok {
		reg.mu.Unlock()
		return ErrChunkNotFound
	}
	sources := rec.ValidCopies()
	version := rec.Version
	reg.mu.Unlock()

	if len(sources) == 0 {
		return ErrNotDone
	}
	srcAddrs := make([]chunk.NetworkAddress, len(sources))
	for i, c := range sources {
		srcAddrs[i] = c.Server
	}

	status, err := cs.Replicate(ctx, target, id, version, srcAddrs)
	if err != nil || status != wire.StatusOK {
		return ErrNotDone
	}

	reg.mu.Lock()
	rec.Copies = append(rec.Copies, Copy{Server: target, VersionSeen: version, State: CopyValid})
	reg.mu.Unlock()
	reg.logChange("REPLICATE(%d,%d,%s)", id, version, target)
	return nil
}

// Delete removes a chunk entirely, issuing MATOCS_DELETE to every current
// copy and dropping the registry record regardless of per-server outcome:
// a chunkserver that misses the delete will self-correct the next time it
// reports a chunk the master no longer recognizes (§4.3 "DELETE").
func (reg *Registry) Delete(ctx context.Context, cs ChunkServerClient, id chunk.ID) error {
	reg.mu.Lock()
	rec, ok := reg.chunks[id]
	if !ok {
		reg.mu.Unlock()
		return ErrChunkNotFound
	}
	copies := append([]Copy(nil), rec.Copies...)
	version := rec.Version
	reg.mu.Unlock()

	for _, c := range copies {
		_, _ = cs.Delete(ctx, c.Server, id, version)
	}

	reg.mu.Lock()
	delete(reg.chunks, id)
	reg.mu.Unlock()
	reg.logChange("DELETE(%d)", id)
	return nil
}

// ReportDamaged marks a copy Damaged in response to CSTOMA_CHUNK_DAMAGED
// (§4.1); it is dropped from ValidCopies immediately but left in the list
// for operator visibility. The health loop does not remove it; only
// ReportLost or Delete does.
func (reg *Registry) ReportDamaged(id chunk.ID, server chunk.NetworkAddress) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.chunks[id]
	if !ok {
		return
	}
	if idx := rec.findCopy(server); idx >= 0 {
		rec.Copies[idx].State = CopyDamaged
	}
}

// ReportLost removes a copy outright in response to CSTOMA_CHUNK_LOST
// (§4.1, e.g. the chunkserver's disk holding it failed).
func (reg *Registry) ReportLost(id chunk.ID, server chunk.NetworkAddress) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec, ok := reg.chunks[id]
	if !ok {
		return
	}
	if idx := rec.findCopy(server); idx >= 0 {
		rec.Copies = append(rec.Copies[:idx], rec.Copies[idx+1:]...)
	}
}
