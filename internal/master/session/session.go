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

// Package session tracks client mount sessions on the master (§3
// "Session"): the export flags and root-inode remapping a client
// negotiated at mount time, plus the reserved-inode bookkeeping that lets
// a client reconnect within MFS_INODE_REUSE_DELAY without losing unlinked-
// but-open files.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lizardfs/lizardfs-sub001/internal/wire"
)

// Flags are the export options negotiated at mount (§3, §6).
type Flags uint16

const (
	FlagReadOnly Flags = 1 << iota
	FlagAllowRootAccess
	FlagDynamicIP
	FlagAdminAccessible
	FlagIgnoreGID
	FlagAllCanChangeQuota
)

// ID identifies one mount session. Allocated with uuid.New() rather than
// the original's monotonically-assigned small integer, since the Go
// implementation has no single-threaded master process to hand them out
// serially.
type ID string

// NewID allocates a fresh session id.
func NewID() ID {
	return ID(uuid.NewString())
}

// Session is the master's record of one mounted client (§3).
type Session struct {
	ID             ID
	Flags          Flags
	RootInodeRemap uint32 // 0 means the real filesystem root
	RootUID        uint32
	RootGID        uint32

	// reservedInodes holds inodes this session has unlinked but kept open;
	// they survive a disconnect for InodeReuseDelay so a reconnecting
	// client doesn't race a freshly allocated inode into reuse (§3 "Session
	// persists reserved-inode state across reconnects for
	// MFS_INODE_REUSE_DELAY").
	reservedInodes map[uint64]time.Time
	mu             sync.Mutex
}

// New creates a session with the given export flags and root remap.
func New(flags Flags, rootRemap, rootUID, rootGID uint32) *Session {
	return &Session{
		ID:             NewID(),
		Flags:          flags,
		RootInodeRemap: rootRemap,
		RootUID:        rootUID,
		RootGID:        rootGID,
		reservedInodes: make(map[uint64]time.Time),
	}
}

// IsReadOnly reports whether this session may not perform mutating ops.
func (s *Session) IsReadOnly() bool { return s.Flags&FlagReadOnly != 0 }

// Reserve marks inode as unlink-but-open, starting its reuse-delay clock.
func (s *Session) Reserve(inode uint64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservedInodes[inode] = now.Add(wire.InodeReuseDelay)
}

// Release clears a reservation (the client closed its last handle).
func (s *Session) Release(inode uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reservedInodes, inode)
}

// IsReserved reports whether inode is still protected from reuse as of now.
func (s *Session) IsReserved(inode uint64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.reservedInodes[inode]
	if !ok {
		return false
	}
	return now.Before(expiry)
}

// ExpireReservations drops reservations whose InodeReuseDelay has elapsed,
// returning the inodes that were freed so the caller can finally release
// their backing chunks.
func (s *Session) ExpireReservations(now time.Time) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var freed []uint64
	for inode, expiry := range s.reservedInodes {
		if !now.Before(expiry) {
			freed = append(freed, inode)
			delete(s.reservedInodes, inode)
		}
	}
	return freed
}

// Registry tracks all live sessions by ID, guarding reconnect: a client
// presenting a known session id within InodeReuseDelay of disconnect
// recovers its reservations instead of starting fresh (§3).
type Registry struct {
	mu       sync.Mutex
	sessions map[ID]*Session
}

// NewRegistry returns an empty session table.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ID]*Session)}
}

// Open registers a new session.
func (r *Registry) Open(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Lookup returns the session for id, if still tracked.
func (r *Registry) Lookup(id ID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close drops a session outright (client sent an explicit unmount, or its
// reservations have all expired and it never reconnected).
func (r *Registry) Close(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}
