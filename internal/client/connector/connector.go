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

// Package connector establishes the client's outbound TCP connections to
// chunkservers, grounded on original_source/src/common/chunk_connector.cc's
// ChunkConnector::startUsingConnection: a bare dial with a connect timeout,
// wrapped by internal/retry's Reconnect policy so a transient refusal (the
// chunkserver mid-restart, a blip in the network) doesn't immediately fail
// the calling read or write attempt.
package connector

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/retry"
)

// Connector dials chunkservers, retrying per Policy before giving up.
type Connector struct {
	Policy  retry.Policy
	Timeout time.Duration
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
}

// New returns a Connector using retry.Reconnect and a 3s connect timeout,
// the original's defaults.
func New() *Connector {
	return &Connector{
		Policy:  retry.Reconnect,
		Timeout: 3 * time.Second,
		dial:    (&net.Dialer{}).DialContext,
	}
}

// Dial connects to addr, retrying per c.Policy. It returns the first
// success; if every attempt fails it returns the last error.
func (c *Connector) Dial(ctx context.Context, addr chunk.NetworkAddress) (net.Conn, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		conn, err := c.dial(dialCtx, "tcp", addr.String())
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if c.Policy.Exhausted(attempt) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Policy.Delay(attempt)):
		}
	}
	return nil, fmt.Errorf("connector: dial %s: %w", addr, lastErr)
}
