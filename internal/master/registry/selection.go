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
	"math/rand"
	"sort"
	"sync"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
)

// ServerMode reflects whether a chunkserver is accepting new chunks.
type ServerMode int

const (
	ServerOK ServerMode = iota
	ServerKill
)

// maxUsageDiff is the band width (fraction of total space) used to tie-break
// servers into low/mid/high usage bands, ported from matocsserv_getservers_ordered's
// MAXUSAGEDIFF constant (0.01, i.e. 1%).
const maxUsageDiff = 0.01

// ServerInfo mirrors one row of the master's `servtab`: a registered
// chunkserver's advertised disk usage and its write-attempt history.
type ServerInfo struct {
	Address       chunk.NetworkAddress
	Mode          ServerMode
	Used          uint64
	Total         uint64
	// rndCarry accumulates fractional weight between calls to
	// weighted-random selection, ported from matocsserv_getservers_wrandom's
	// `carry` field — it is what lets a deterministic weight schedule still
	// produce a smoothed random distribution instead of strict round robin.
	rndCarry float64
}

// UsageFraction returns Used/Total, or 1.0 (full) if Total is zero.
func (s ServerInfo) UsageFraction() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Used) / float64(s.Total)
}

// weight is the selection weight used by weighted-random picks: total space
// in GiB, ported from matocsserv_getservers_wrandom's `totalspace>>30`.
func (s ServerInfo) weight() float64 {
	const gib = 1 << 30
	w := float64(s.Total) / gib
	if w < 1 {
		w = 1
	}
	return w
}

// ServerTable is the registry's live chunkserver roster, guarded separately
// from the chunk table itself since space reports (CSTOMA_SPACE, §4.1) and
// chunk operations arrive independently.
type ServerTable struct {
	mu      sync.Mutex
	servers map[chunk.NetworkAddress]*ServerInfo
}

// NewServerTable returns an empty roster.
func NewServerTable() *ServerTable {
	return &ServerTable{servers: make(map[chunk.NetworkAddress]*ServerInfo)}
}

// Register adds or updates a chunkserver's advertised space (CSTOMA_REGISTER
// / CSTOMA_SPACE, §4.1).
func (t *ServerTable) Register(addr chunk.NetworkAddress, used, total uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.servers[addr]; ok {
		s.Used, s.Total = used, total
		return
	}
	t.servers[addr] = &ServerInfo{Address: addr, Used: used, Total: total}
}

// Unregister drops a chunkserver from the roster (connection lost, §4.2).
func (t *ServerTable) Unregister(addr chunk.NetworkAddress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.servers, addr)
}

// Snapshot returns every registered server regardless of eligibility,
// for read-only inspection (the probe CLI's list-chunkservers, §4)
// rather than placement — unlike snapshotUsable this intentionally
// includes KILL-mode and under-provisioned servers so an operator can
// see why a server was excluded from selection.
func (t *ServerTable) Snapshot() []ServerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ServerInfo, 0, len(t.servers))
	for _, s := range t.servers {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.String() < out[j].Address.String() })
	return out
}

// SetMode marks a server as draining (ServerKill) or normal (ServerOK).
func (t *ServerTable) SetMode(addr chunk.NetworkAddress, mode ServerMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.servers[addr]; ok {
		s.Mode = mode
	}
}

// minFreeForWrite is the minimum free space (§4.6) a server must advertise
// to be eligible as a new-chunk write target: servers with less than
// 1 GiB of headroom are skipped by OrderedForWrite and by WeightedRandom
// when forWrite is set.
const minFreeForWrite = 1 << 30 // 1 GiB

// usable reports whether s is eligible for selection at all: not in
// ServerKill mode, and reporting sane space (a zero total means it hasn't
// sent its first CSTOMA_SPACE yet; used > total means a report raced a
// delete and should be treated as not-yet-trustworthy). forWrite further
// requires at least minFreeForWrite of headroom (§4.6), a rule that only
// applies to servers being chosen as a destination for new chunk data —
// read-path selection never goes through ServerTable.
func usable(s *ServerInfo, forWrite bool) bool {
	if s.Mode != ServerOK {
		return false
	}
	if s.Total == 0 || s.Used > s.Total {
		return false
	}
	if forWrite && s.Total-s.Used < minFreeForWrite {
		return false
	}
	return true
}

func (t *ServerTable) snapshotUsable(forWrite bool) []ServerInfo {
	out := make([]ServerInfo, 0, len(t.servers))
	for _, s := range t.servers {
		if !usable(s, forWrite) {
			continue
		}
		out = append(out, *s)
	}
	return out
}

// OrderedForWrite returns usable servers ordered for new-chunk placement,
// porting matocsserv_getservers_ordered's band tie-break: sort by usage
// fraction, then split the sorted list into a low band, a middle band and a
// high band at maxUsageDiff width from the extremes; shuffle the low and
// high bands independently (so ties within a band don't always resolve the
// same way) while keeping the middle band's relative order, then
// concatenate low+mid+high. This prefers emptier servers while avoiding
// strict round robin across equally-full machines.
func (t *ServerTable) OrderedForWrite() []ServerInfo {
	t.mu.Lock()
	list := t.snapshotUsable(true)
	t.mu.Unlock()

	if len(list) <= 1 {
		return list
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UsageFraction() < list[j].UsageFraction() })

	lowest := list[0].UsageFraction()
	highest := list[len(list)-1].UsageFraction()

	var lowEnd, highStart int
	for lowEnd = 0; lowEnd < len(list); lowEnd++ {
		if list[lowEnd].UsageFraction() > lowest+maxUsageDiff {
			break
		}
	}
	for highStart = len(list); highStart > lowEnd; highStart-- {
		if list[highStart-1].UsageFraction() < highest-maxUsageDiff {
			break
		}
	}
	if highStart < lowEnd {
		highStart = lowEnd
	}

	low := append([]ServerInfo(nil), list[:lowEnd]...)
	mid := list[lowEnd:highStart]
	high := append([]ServerInfo(nil), list[highStart:]...)

	rand.Shuffle(len(low), func(i, j int) { low[i], low[j] = low[j], low[i] })
	rand.Shuffle(len(high), func(i, j int) { high[i], high[j] = high[j], high[i] })

	out := make([]ServerInfo, 0, len(list))
	out = append(out, low...)
	out = append(out, mid...)
	out = append(out, high...)
	return out
}

// WeightedRandom picks n distinct usable servers biased toward larger
// capacity, ported from matocsserv_getservers_wrandom. Each server's weight
// (its capacity in GiB), scaled by a random factor in [0.5, 1.5), is added
// to a persistent carry counter; the server with the largest carry is
// picked and its carry reduced by its own weight, which smooths the random selection
// toward proportional long-run fairness rather than picking the single
// largest server every time.
func (t *ServerTable) WeightedRandom(n int, forWrite bool) []ServerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	candidates := make([]*ServerInfo, 0, len(t.servers))
	for _, s := range t.servers {
		if usable(s, forWrite) {
			candidates = append(candidates, s)
		}
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	picked := make([]ServerInfo, 0, n)
	used := make(map[chunk.NetworkAddress]bool, n)

	for i := 0; i < n; i++ {
		var best *ServerInfo
		for _, s := range candidates {
			if used[s.Address] {
				continue
			}
			s.rndCarry += s.weight() * (0.5 + rand.Float64())
			if best == nil || s.rndCarry > best.rndCarry {
				best = s
			}
		}
		if best == nil {
			break
		}
		best.rndCarry -= best.weight()
		used[best.Address] = true
		picked = append(picked, *best)
	}
	return picked
}
