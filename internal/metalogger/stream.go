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

// Package metalogger implements the metalogger's change-log stream
// (§4.7): the master pushes each metadata mutation as one
// MATOML_METACHANGES_LOG line; the metalogger appends it to a bounded
// in-memory ring of the last BlockSize entries, mirrors it to an on-disk
// changelog file, and detects a gap in the monotonic change-id sequence,
// reporting it as ErrGap. The package does not patch the hole and does not
// start a metadata download.
package metalogger

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// BlockSize is how many change-log entries are grouped per ring block,
// matching the original's OLD_CHANGES_BLOCK_SIZE.
const BlockSize = 5000

// Change is one logged metadata mutation: a monotonic id and the
// human-readable mutation line the master generated for it (the same text
// format written to changelog.mfs on the master itself).
type Change struct {
	ID   uint64
	Line string
}

// ErrGap is returned when an incoming Change's id does not immediately
// follow the last one recorded, indicating the metalogger missed one or
// more changes (master restarted mid-stream, network drop, etc).
var ErrGap = fmt.Errorf("metalogger: gap detected in change stream")

// Stream tracks the metalogger's view of the master's change log: the
// in-memory ring plus an append-only on-disk mirror.
type Stream struct {
	mu      sync.Mutex
	lastID  uint64
	hasLast bool
	ring    []Change
	writer  *bufio.Writer
	closer  io.Closer
}

// New builds a Stream that mirrors every appended Change to w (typically
// an os.File opened for append), in addition to keeping the most recent
// BlockSize entries in memory for fast tail reads.
func New(w io.Writer) *Stream {
	s := &Stream{writer: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Append records one change. If id does not continue the sequence (id !=
// lastID+1, or this is the very first change and id != 1), it returns
// ErrGap and records nothing, so later changes keep failing until the
// expected id arrives or Reset is called. No repair or metadata download is attempted here or by the
// metalogger daemon, which only logs the error.
func (s *Stream) Append(c Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasLast && c.ID != s.lastID+1 {
		return fmt.Errorf("%w: expected id %d, got %d", ErrGap, s.lastID+1, c.ID)
	}
	if !s.hasLast && c.ID != 1 {
		return fmt.Errorf("%w: stream must start at id 1, got %d", ErrGap, c.ID)
	}

	s.lastID = c.ID
	s.hasLast = true

	s.ring = append(s.ring, c)
	if len(s.ring) > BlockSize {
		s.ring = s.ring[len(s.ring)-BlockSize:]
	}

	if _, err := fmt.Fprintln(s.writer, c.Line); err != nil {
		return fmt.Errorf("metalogger: writing changelog entry %d: %w", c.ID, err)
	}
	return s.writer.Flush()
}

// Reset clears the stream's sequence tracking and in-memory ring, called
// after a full metadata redownload establishes a fresh baseline at a new
// starting change id.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasLast = false
	s.lastID = 0
	s.ring = nil
}

// LastID reports the most recently appended change id, and whether any
// change has been appended yet.
func (s *Stream) LastID() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID, s.hasLast
}

// Tail returns up to n of the most recently appended changes, oldest
// first.
func (s *Stream) Tail(n int) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.ring) {
		n = len(s.ring)
	}
	out := make([]Change, n)
	copy(out, s.ring[len(s.ring)-n:])
	return out
}

// Close flushes and, if the underlying writer supports it, closes it.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
