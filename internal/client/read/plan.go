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

// Package read implements the client's read plan selection and execution
// (§4.4), grounded on original_source/src/mount/read_plan_executor.cc and
// read_planner.cc: pick the cheapest way to reconstruct a chunk's data from
// whatever copies the master reports, then fetch and (if striped)
// XOR-reconstruct it.
package read

import (
	"fmt"
	"sort"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
)

// Kind distinguishes how a Plan reconstructs chunk data.
type Kind int

const (
	// KindStandard reads directly from a full replica.
	KindStandard Kind = iota
	// KindXorData reads all L data parts of an Xor(L) stripe and
	// interleaves them; no reconstruction arithmetic needed.
	KindXorData
	// KindXorParity reads the parity part plus L-1 of the L data parts and
	// XORs them together to recover the missing data part.
	KindXorParity
)

// Plan describes one way to read a chunk: which copies to fetch from,
// and how to combine them.
type Plan struct {
	Kind    Kind
	Level   chunk.Level // 0 for Standard
	Missing int         // which data part (1..Level) must be reconstructed; 0 if none
	// Sources lists (type, server) pairs to read from, in the order their
	// data must be combined.
	Sources []Source
}

// Source is one part to fetch as part of executing a Plan.
type Source struct {
	Type   chunk.Type
	Server chunk.NetworkAddress
}

// ErrNoViablePlan is returned when no combination of available copies can
// reconstruct the chunk (§4.4 "fail" outcome of plan selection, §7
// ERROR_CHUNKLOST surfaced to the caller).
var ErrNoViablePlan = fmt.Errorf("read: no viable plan from available copies")

// Availability maps each copy type present for a chunk to the servers
// holding it (a server may appear under only one type: a chunk is either
// Standard or Xor(L), never both, but several servers can hold the same
// part).
type Availability map[chunk.Type][]chunk.NetworkAddress

// SelectPlan picks the cheapest viable plan, in the order the spec
// prescribes: a full Standard replica first (one round trip per block, no
// reconstruction); failing that, all L data parts of some Xor(L) stripe
// (no reconstruction arithmetic, but L round trips); failing that, the
// parity part plus any L-1 of the L data parts of some Xor(L) stripe (L
// round trips plus an XOR); otherwise no plan exists.
func SelectPlan(avail Availability) (Plan, error) {
	for typ, servers := range avail {
		if typ.IsStandard() && len(servers) > 0 {
			return Plan{
				Kind:    KindStandard,
				Sources: []Source{{Type: typ, Server: servers[0]}},
			}, nil
		}
	}

	levels := xorLevelsPresent(avail)
	sort.Slice(levels, func(i, j int) bool { return levels[i] > levels[j] })

	for _, level := range levels {
		if plan, ok := planAllDataParts(avail, level); ok {
			return plan, nil
		}
	}
	for _, level := range levels {
		if plan, ok := planParityReconstruct(avail, level); ok {
			return plan, nil
		}
	}
	return Plan{}, ErrNoViablePlan
}

func xorLevelsPresent(avail Availability) []chunk.Level {
	seen := map[chunk.Level]bool{}
	var levels []chunk.Level
	for typ := range avail {
		if typ.IsStandard() {
			continue
		}
		if !seen[typ.Level] {
			seen[typ.Level] = true
			levels = append(levels, typ.Level)
		}
	}
	return levels
}

func planAllDataParts(avail Availability, level chunk.Level) (Plan, bool) {
	sources := make([]Source, 0, level)
	for part := 1; part <= int(level); part++ {
		typ := chunk.Xor(level, part)
		servers := avail[typ]
		if len(servers) == 0 {
			return Plan{}, false
		}
		sources = append(sources, Source{Type: typ, Server: servers[0]})
	}
	return Plan{Kind: KindXorData, Level: level, Sources: sources}, true
}

func planParityReconstruct(avail Availability, level chunk.Level) (Plan, bool) {
	parityServers := avail[chunk.XorParity(level)]
	if len(parityServers) == 0 {
		return Plan{}, false
	}

	var sources []Source
	missing := 0
	for part := 1; part <= int(level); part++ {
		typ := chunk.Xor(level, part)
		servers := avail[typ]
		if len(servers) == 0 {
			if missing != 0 {
				// More than one data part missing: parity alone can't
				// recover two unknowns.
				return Plan{}, false
			}
			missing = part
			continue
		}
		sources = append(sources, Source{Type: typ, Server: servers[0]})
	}
	if missing == 0 {
		// All data parts already present; no need to fall back to parity.
		return Plan{}, false
	}
	sources = append(sources, Source{Type: chunk.XorParity(level), Server: parityServers[0]})
	return Plan{Kind: KindXorParity, Level: level, Missing: missing, Sources: sources}, true
}
