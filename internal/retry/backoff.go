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

// Package retry provides a single explicit backoff Policy object, replacing
// the original's ad-hoc `sleep(1 + cnt/5)` calls scattered across the read
// planner, write executor and master registration paths (§9 design notes:
// "Prefer an explicit policy object... so backoff is uniform").
package retry

import (
	"math/rand"
	"time"
)

// Policy describes a capped, optionally jittered exponential backoff.
type Policy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	MaxRetries int
	// Jitter is the fraction (0..1) of the computed delay randomized away,
	// e.g. 0.2 means the actual delay is uniformly drawn from
	// [delay*0.8, delay*1.2].
	Jitter float64
}

// Transient is the ~1s fixed-interval policy used for ERROR_LOCKED /
// ERROR_CHUNKBUSY / ERROR_DELAYED, up to RETRIES (≈30) attempts (§4.5, §7).
var Transient = Policy{
	Initial:    time.Second,
	Multiplier: 1,
	Max:        time.Second,
	MaxRetries: 30,
	Jitter:     0,
}

// LongBackoff is used for cluster-wide ERROR_NOCHUNKSERVERS / ERROR_NOSPACE
// conditions (§7: "retry with long backoff ≈60s").
var LongBackoff = Policy{
	Initial:    time.Second,
	Multiplier: 2,
	Max:        60 * time.Second,
	MaxRetries: 10,
	Jitter:     0.1,
}

// Reconnect is used after a network failure before trying a different
// chunkserver copy (§7 "reconnect once; then pick another copy").
var Reconnect = Policy{
	Initial:    200 * time.Millisecond,
	Multiplier: 1.5,
	Max:        5 * time.Second,
	MaxRetries: 5,
	Jitter:     0.2,
}

// Delay returns the delay to wait before retry attempt `attempt`
// (0-indexed: attempt 0 is the delay before the first retry).
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	if max := float64(p.Max); d > max {
		d = max
	}
	if p.Jitter > 0 {
		delta := d * p.Jitter
		d = d - delta + rand.Float64()*2*delta
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt has used up the policy's retry budget.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxRetries > 0 && attempt >= p.MaxRetries
}
