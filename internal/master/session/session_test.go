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

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAndExpire(t *testing.T) {
	s := New(0, 0, 0, 0)
	start := time.Now()
	s.Reserve(42, start)

	assert.True(t, s.IsReserved(42, start.Add(time.Minute)))
	assert.False(t, s.IsReserved(42, start.Add(25*time.Hour)))

	freed := s.ExpireReservations(start.Add(25 * time.Hour))
	require.Len(t, freed, 1)
	assert.Equal(t, uint64(42), freed[0])
}

func TestReleaseClearsReservation(t *testing.T) {
	s := New(0, 0, 0, 0)
	now := time.Now()
	s.Reserve(7, now)
	s.Release(7)
	assert.False(t, s.IsReserved(7, now))
}

func TestReadOnlyFlag(t *testing.T) {
	s := New(FlagReadOnly|FlagDynamicIP, 0, 0, 0)
	assert.True(t, s.IsReadOnly())

	rw := New(FlagDynamicIP, 0, 0, 0)
	assert.False(t, rw.IsReadOnly())
}

func TestRegistryOpenLookupClose(t *testing.T) {
	reg := NewRegistry()
	s := New(0, 0, 0, 0)
	reg.Open(s)

	got, ok := reg.Lookup(s.ID)
	require.True(t, ok)
	assert.Equal(t, s, got)

	reg.Close(s.ID)
	_, ok = reg.Lookup(s.ID)
	assert.False(t, ok)
}
