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

package read

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// ChunkServerClient is the client's outbound view of the read half of the
// CS protocol (CLTOCS_READ / CSTOCL_READ_STATUS / CSTOCL_READ_DATA, §4.1).
// One call fetches one block; the executor is responsible for issuing one
// call per block per source.
type ChunkServerClient interface {
	ReadBlock(ctx context.Context, server chunk.NetworkAddress, typ chunk.Type, id chunk.ID, version chunk.Version, block int) (data []byte, crc uint32, err error)
}

// Executor runs a Plan against a chunk id/version to produce block data.
type Executor struct {
	CS ChunkServerClient
}

// New wraps a ChunkServerClient for plan execution.
func New(cs ChunkServerClient) *Executor {
	return &Executor{CS: cs}
}

// ReadBlocks fetches globalBlocks [firstBlock, firstBlock+count) of the
// chunk described by plan, returning count blocks, each as long as the
// chunkserver sent it (a short block is not padded). Standard and all-data-parts plans fetch each block independently
// and concurrently (errgroup-bounded fan-out per
// original_source/src/mount/read_plan_executor.cc, which issues all of a
// plan's reads in parallel rather than serially). A parity plan
// additionally XORs its sources together per global block to recover the
// missing data part.
func (e *Executor) ReadBlocks(ctx context.Context, plan Plan, id chunk.ID, version chunk.Version, firstBlock, count int) ([][]byte, error) {
	switch plan.Kind {
	case KindStandard:
		return e.readStandard(ctx, plan, id, version, firstBlock, count)
	case KindXorData:
		return e.readXorData(ctx, plan, id, version, firstBlock, count)
	case KindXorParity:
		return e.readXorParity(ctx, plan, id, version, firstBlock, count)
	default:
		return nil, fmt.Errorf("read: unknown plan kind %d", plan.Kind)
	}
}

func (e *Executor) fetchVerified(ctx context.Context, src Source, id chunk.ID, version chunk.Version, block int) ([]byte, error) {
	data, crc, err := e.CS.ReadBlock(ctx, src.Server, src.Type, id, version, block)
	if err != nil {
		return nil, err
	}
	if !wire.VerifyBlockCRC(data, crc) {
		return nil, fmt.Errorf("read: %w", wire.ErrStatus(wire.StatusCRC))
	}
	return data, nil
}

func (e *Executor) readStandard(ctx context.Context, plan Plan, id chunk.ID, version chunk.Version, firstBlock, count int) ([][]byte, error) {
	src := plan.Sources[0]
	out := make([][]byte, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			data, err := e.fetchVerified(gctx, src, id, version, firstBlock+i)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Executor) readXorData(ctx context.Context, plan Plan, id chunk.ID, version chunk.Version, firstBlock, count int) ([][]byte, error) {
	out := make([][]byte, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		globalBlock := firstBlock + i
		src := plan.Sources[chunk.DataPartForBlock(plan.Level, globalBlock)-1]
		g.Go(func() error {
			data, err := e.fetchVerified(gctx, src, id, version, src.Type.BlockOfStripe(globalBlock))
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Executor) readXorParity(ctx context.Context, plan Plan, id chunk.ID, version chunk.Version, firstBlock, count int) ([][]byte, error) {
	out := make([][]byte, count)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		i := i
		globalBlock := firstBlock + i
		part := chunk.DataPartForBlock(plan.Level, globalBlock)
		g.Go(func() error {
			if part == plan.Missing {
				data, err := e.reconstructBlock(gctx, plan, id, version, globalBlock)
				if err != nil {
					return err
				}
				out[i] = data
				return nil
			}
			src := findSource(plan.Sources, chunk.Xor(plan.Level, part))
			data, err := e.fetchVerified(gctx, src, id, version, src.Type.BlockOfStripe(globalBlock))
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// reconstructBlock recovers the missing data part of globalBlock by
// XORing every other data part with the parity part (§3: "Xor(L) stores L
// data parts plus one parity part equal to their XOR").
func (e *Executor) reconstructBlock(ctx context.Context, plan Plan, id chunk.ID, version chunk.Version, globalBlock int) ([]byte, error) {
	var result []byte
	for part := 1; part <= int(plan.Level); part++ {
		if part == plan.Missing {
			continue
		}
		src := findSource(plan.Sources, chunk.Xor(plan.Level, part))
		data, err := e.fetchVerified(ctx, src, id, version, src.Type.BlockOfStripe(globalBlock))
		if err != nil {
			return nil, err
		}
		result = xorInto(result, data)
	}
	paritySrc := findSource(plan.Sources, chunk.XorParity(plan.Level))
	parity, err := e.fetchVerified(ctx, paritySrc, id, version, paritySrc.Type.BlockOfStripe(globalBlock))
	if err != nil {
		return nil, err
	}
	return xorInto(result, parity), nil
}

func xorInto(acc, data []byte) []byte {
	if acc == nil {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	for i := range acc {
		if i < len(data) {
			acc[i] ^= data[i]
		}
	}
	return acc
}

func findSource(sources []Source, typ chunk.Type) Source {
	for _, s := range sources {
		if s.Type == typ {
			return s
		}
	}
	return Source{}
}
