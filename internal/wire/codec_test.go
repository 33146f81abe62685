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

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := NewEncoder(nil)
	e.PutU8(0x7)
	e.PutU16(0x1234)
	e.PutU32(0xdeadbeef)
	e.PutU64(0x1122334455667788)
	e.PutName("chunk")
	e.PutPath("/a/b/c")
	e.PutLegacyPath("/x/y")

	d := NewDecoder(e.Bytes())
	assert.Equal(t, uint8(0x7), d.U8())
	assert.Equal(t, uint16(0x1234), d.U16())
	assert.Equal(t, uint32(0xdeadbeef), d.U32())
	assert.Equal(t, uint64(0x1122334455667788), d.U64())
	assert.Equal(t, "chunk", d.Name())
	assert.Equal(t, "/a/b/c", d.Path())
	assert.Equal(t, "/x/y", d.LegacyPath())
	require.NoError(t, d.Err())
	assert.Equal(t, 0, d.Remaining())
}

func TestDecoderShortBufferIsSticky(t *testing.T) {
	d := NewDecoder([]byte{0x01})
	_ = d.U32() // wants 4 bytes, only 1 present
	require.Error(t, d.Err())
	// once in error state, further reads stay zero and don't panic
	assert.Equal(t, uint64(0), d.U64())
	assert.ErrorIs(t, d.Err(), ErrShortBuffer)
}

func TestWriteReadPacketLegacy(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello chunk")
	require.NoError(t, WritePacket(&buf, CltocsRead, payload))

	hdr, got, err := ReadPacket(&buf, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, CltocsRead, hdr.Type)
	assert.Equal(t, uint32(len(payload)), hdr.Length)
	assert.Equal(t, payload, got)
}

func TestWriteReadPacketVersioned(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("versioned-payload")
	require.NoError(t, WriteVersionedPacket(&buf, MessageType(1500), 3, payload))

	hdr, got, err := ReadPacket(&buf, 1<<20)
	require.NoError(t, err)
	assert.True(t, hdr.Type.IsVersioned())
	assert.Equal(t, uint32(4+len(payload)), hdr.Length)

	d := NewDecoder(got)
	assert.Equal(t, uint32(3), d.U32())
	assert.Equal(t, payload, d.Raw(len(payload)))
}

func TestReadPacketRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, CltocsRead, make([]byte, 100)))

	_, _, err := ReadPacket(&buf, 10)
	require.Error(t, err)
}

func TestMessageTypeIsVersioned(t *testing.T) {
	assert.False(t, CltocsRead.IsVersioned())
	assert.True(t, MessageType(1001).IsVersioned())
	assert.True(t, MessageType(2000).IsVersioned())
	assert.False(t, MessageType(2001).IsVersioned())
}
