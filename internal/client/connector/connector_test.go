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

package connector

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/retry"
)

func TestDialSucceedsFirstTry(t *testing.T) {
	c := New()
	var calls int
	c.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		calls++
		client, srv := net.Pipe()
		go srv.Close()
		return client, nil
	}

	conn, err := c.Dial(context.Background(), chunk.NetworkAddress{Host: "10.0.0.1", Port: 9422})
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 1, calls)
}

func TestDialRetriesThenSucceeds(t *testing.T) {
	c := New()
	c.Policy = retry.Policy{Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 5}
	var calls int
	c.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		client, srv := net.Pipe()
		go srv.Close()
		return client, nil
	}

	conn, err := c.Dial(context.Background(), chunk.NetworkAddress{Host: "10.0.0.1", Port: 9422})
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 3, calls)
}

func TestDialExhaustsRetries(t *testing.T) {
	c := New()
	c.Policy = retry.Policy{Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 2}
	c.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	_, err := c.Dial(context.Background(), chunk.NetworkAddress{Host: "10.0.0.1", Port: 9422})
	assert.Error(t, err)
}
