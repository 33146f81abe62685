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
	"encoding/binary"
	"fmt"
	"io"
)

// ErrShortBuffer is returned by Decode* functions when the source does not
// contain enough bytes for the requested field.
var ErrShortBuffer = fmt.Errorf("wire: buffer shorter than expected field")

// Encoder appends network-order fields to an in-memory buffer, mirroring
// the original's put8bit/put16bit/.../put64bit helpers from datapack.h.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with buf as its backing slice (may be nil).
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) PutU8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) PutU16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *Encoder) PutU32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *Encoder) PutU64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

func (e *Encoder) PutRaw(v []byte) { e.buf = append(e.buf, v...) }

// PutName writes the legacy u8-length-prefixed name encoding (no NUL).
func (e *Encoder) PutName(name string) {
	if len(name) > 255 {
		name = name[:255]
	}
	e.PutU8(uint8(len(name)))
	e.PutRaw([]byte(name))
}

// PutLegacyPath writes u32-length + bytes + trailing NUL.
func (e *Encoder) PutLegacyPath(path string) {
	e.PutU32(uint32(len(path) + 1))
	e.PutRaw([]byte(path))
	e.PutU8(0)
}

// PutPath writes u32-length + bytes, without a trailing NUL (new flavor).
func (e *Encoder) PutPath(path string) {
	e.PutU32(uint32(len(path)))
	e.PutRaw([]byte(path))
}

// PutHeader prepends a PacketHeader at the current end of the buffer,
// i.e. it must be the first call against a fresh Encoder.
func (e *Encoder) PutHeader(h PacketHeader) {
	e.PutU32(uint32(h.Type))
	e.PutU32(h.Length)
}

// Decoder consumes network-order fields from an immutable source slice,
// tracking position and surfacing short-read errors instead of panicking.
type Decoder struct {
	src []byte
	pos int
	err error
}

func NewDecoder(src []byte) *Decoder {
	return &Decoder{src: src}
}

// Err returns the first error encountered, if any.
func (d *Decoder) Err() error { return d.err }

// Remaining reports how many bytes are left unconsumed.
func (d *Decoder) Remaining() int { return len(d.src) - d.pos }

func (d *Decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.pos+n > len(d.src) {
		d.err = ErrShortBuffer
		return false
	}
	return true
}

func (d *Decoder) U8() uint8 {
	if !d.need(1) {
		return 0
	}
	v := d.src[d.pos]
	d.pos++
	return v
}

func (d *Decoder) U16() uint16 {
	if !d.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(d.src[d.pos:])
	d.pos += 2
	return v
}

func (d *Decoder) U32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.src[d.pos:])
	d.pos += 4
	return v
}

func (d *Decoder) U64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.src[d.pos:])
	d.pos += 8
	return v
}

func (d *Decoder) Raw(n int) []byte {
	if !d.need(n) {
		return nil
	}
	v := d.src[d.pos : d.pos+n]
	d.pos += n
	return v
}

// Name decodes a u8-length-prefixed name.
func (d *Decoder) Name() string {
	n := d.U8()
	return string(d.Raw(int(n)))
}

// LegacyPath decodes a u32-length-prefixed path with trailing NUL.
func (d *Decoder) LegacyPath() string {
	n := d.U32()
	if n == 0 {
		return ""
	}
	raw := d.Raw(int(n))
	if len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	return string(raw)
}

// Path decodes a u32-length-prefixed path without a trailing NUL.
func (d *Decoder) Path() string {
	n := d.U32()
	return string(d.Raw(int(n)))
}

// Header decodes the 8-byte PacketHeader from the front of the decoder.
func (d *Decoder) Header() PacketHeader {
	t := d.U32()
	l := d.U32()
	return PacketHeader{Type: MessageType(t), Length: l}
}

// ReadPacket reads one full packet (header + payload) from r, rejecting
// payloads larger than maxSize as a protocol violation (§4.1 "Oversize ⇒
// hard disconnect").
func ReadPacket(r io.Reader, maxSize uint32) (PacketHeader, []byte, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return PacketHeader{}, nil, err
	}
	d := NewDecoder(hdrBuf[:])
	h := d.Header()
	if h.Length > maxSize {
		return h, nil, fmt.Errorf("wire: packet of %d bytes exceeds max %d", h.Length, maxSize)
	}
	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return h, nil, err
		}
	}
	return h, payload, nil
}

// WritePacket writes a legacy-framed packet (no version field) to w.
func WritePacket(w io.Writer, t MessageType, payload []byte) error {
	e := NewEncoder(make([]byte, 0, HeaderSize+len(payload)))
	e.PutHeader(PacketHeader{Type: t, Length: uint32(len(payload))})
	e.PutRaw(payload)
	_, err := w.Write(e.Bytes())
	return err
}

// WriteVersionedPacket writes a versioned packet: header, then version,
// then payload, with Length covering version+payload.
func WriteVersionedPacket(w io.Writer, t MessageType, version uint32, payload []byte) error {
	e := NewEncoder(make([]byte, 0, HeaderSize+4+len(payload)))
	e.PutHeader(PacketHeader{Type: t, Length: uint32(4 + len(payload))})
	e.PutU32(version)
	e.PutRaw(payload)
	_, err := w.Write(e.Bytes())
	return err
}
