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

package locator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lizardfs/lizardfs-sub001/internal/chunk"
	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

type fakeMaster struct {
	loc Location
	err error
}

func (f fakeMaster) ReadChunk(ctx context.Context, inode, index uint32) (Location, error) {
	return f.loc, f.err
}
func (f fakeMaster) WriteChunk(ctx context.Context, inode, index uint32) (Location, error) {
	return f.loc, f.err
}
func (f fakeMaster) WriteChunkEnd(ctx context.Context, inode, index uint32, id chunk.ID, v chunk.Version) error {
	return f.err
}

func TestResolveForReadSuccess(t *testing.T) {
	loc := Location{Length: 4096, ID: 7, Version: 1, Servers: []chunk.NetworkAddress{{Host: "10.0.0.1", Port: 9422}}}
	l := New(fakeMaster{loc: loc})

	got, err := l.ResolveForRead(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, loc, got)
}

func TestResolveForReadENoEntIsUnrecoverable(t *testing.T) {
	l := New(fakeMaster{err: wire.ErrStatus(wire.StatusENOENT)})

	_, err := l.ResolveForRead(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrUnrecoverable)
}

func TestResolveForReadOtherErrorIsRecoverable(t *testing.T) {
	l := New(fakeMaster{err: wire.ErrStatus(wire.StatusLocked)})

	_, err := l.ResolveForRead(context.Background(), 1, 0)
	assert.False(t, errors.Is(err, ErrUnrecoverable))
	assert.Error(t, err)
}

func TestCommitPassesThrough(t *testing.T) {
	l := New(fakeMaster{})
	err := l.Commit(context.Background(), 1, 0, 7, 1)
	assert.NoError(t, err)
}
