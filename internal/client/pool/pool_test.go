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

package pool

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
)

func netPipe() (net.Conn, net.Conn) {
	return net.Pipe()
}

func TestGetDialsWhenPoolEmpty(t *testing.T) {
	var dials int32
	addr := chunk.NetworkAddress{Host: "10.0.0.1", Port: 9422}
	p := New(func(a chunk.NetworkAddress) (net.Conn, error) {
		atomic.AddInt32(&dials, 1)
		c, srv := netPipe()
		go srv.Close()
		return c, nil
	})
	defer p.Close()

	conn, err := p.Get(addr)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.EqualValues(t, 1, atomic.LoadInt32(&dials))
}

func TestPutThenGetReusesConnection(t *testing.T) {
	addr := chunk.NetworkAddress{Host: "10.0.0.1", Port: 9422}
	p := New(func(a chunk.NetworkAddress) (net.Conn, error) {
		t.Fatal("should not dial: pool should have served the reused conn")
		return nil, nil
	})
	defer p.Close()

	c1, _ := netPipe()
	p.Put(addr, c1)

	got, err := p.Get(addr)
	require.NoError(t, err)
	assert.Same(t, c1, got)
}

func TestReapOnceClosesExpiredEntries(t *testing.T) {
	addr := chunk.NetworkAddress{Host: "10.0.0.1", Port: 9422}
	p := New(func(a chunk.NetworkAddress) (net.Conn, error) { return nil, nil })
	defer p.Close()

	c1, _ := netPipe()
	p.Put(addr, c1)

	p.reapOnce(time.Now().Add(2 * IdleTTL))

	p.mu.Lock()
	remaining := len(p.free[addr])
	p.mu.Unlock()
	assert.Equal(t, 0, remaining)
}
