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

import "fmt"

// Status is the wire-level u8 error/status code carried in responses.
// Zero means OK (§4.1, §7).
type Status uint8

const (
	StatusOK             Status = 0
	StatusEPERM          Status = 1
	StatusENOTDIR        Status = 2
	StatusENOENT         Status = 3
	StatusEACCES         Status = 4
	StatusEEXIST         Status = 5
	StatusEINVAL         Status = 6
	StatusENOTEMPTY      Status = 7
	StatusChunkLost      Status = 8
	StatusOutOfMemory    Status = 9
	StatusIndexTooBig    Status = 10
	StatusLocked         Status = 11
	StatusNoChunkServers Status = 12
	StatusNoChunk        Status = 13
	StatusChunkBusy      Status = 14
	StatusRegister       Status = 15
	StatusNotDone        Status = 16
	StatusNotOpened      Status = 17
	StatusNotStarted     Status = 18
	StatusWrongVersion   Status = 19
	StatusChunkExist     Status = 20
	StatusNoSpace        Status = 21
	StatusIO             Status = 22
	StatusBNumTooBig     Status = 23
	StatusWrongSize      Status = 24
	StatusWrongOffset    Status = 25
	StatusCantConnect    Status = 26
	StatusWrongChunkID   Status = 27
	StatusDisconnected   Status = 28
	StatusCRC            Status = 29
	StatusDelayed        Status = 30
	StatusCantCreatePath Status = 31
	StatusMismatch       Status = 32
	StatusEROFS          Status = 33
	StatusQuota          Status = 34
	StatusBadSessionID   Status = 35
	StatusNoPassword     Status = 36
	StatusBadPassword    Status = 37
	StatusENoAttr        Status = 38
	StatusENotSup        Status = 39
	StatusERange         Status = 40
)

var statusStrings = map[Status]string{
	StatusOK:             "OK",
	StatusEPERM:          "operation not permitted",
	StatusENOTDIR:        "not a directory",
	StatusENOENT:         "no such file or directory",
	StatusEACCES:         "permission denied",
	StatusEEXIST:         "file exists",
	StatusEINVAL:         "invalid argument",
	StatusENOTEMPTY:      "directory not empty",
	StatusChunkLost:      "chunk lost",
	StatusOutOfMemory:    "out of memory",
	StatusIndexTooBig:    "index too big",
	StatusLocked:         "chunk locked",
	StatusNoChunkServers: "no chunk servers",
	StatusNoChunk:        "no such chunk",
	StatusChunkBusy:      "chunk is busy",
	StatusRegister:       "incorrect register blob",
	StatusNotDone:        "none of chunkservers performed requested operation",
	StatusNotOpened:      "file not opened",
	StatusNotStarted:     "write not started",
	StatusWrongVersion:   "wrong chunk version",
	StatusChunkExist:     "chunk already exists",
	StatusNoSpace:        "no space left",
	StatusIO:             "io error",
	StatusBNumTooBig:     "incorrect block number",
	StatusWrongSize:      "incorrect size",
	StatusWrongOffset:    "incorrect offset",
	StatusCantConnect:    "can't connect",
	StatusWrongChunkID:   "incorrect chunk id",
	StatusDisconnected:   "disconnected",
	StatusCRC:            "crc error",
	StatusDelayed:        "operation delayed",
	StatusCantCreatePath: "can't create path",
	StatusMismatch:       "data mismatch",
	StatusEROFS:          "read-only file system",
	StatusQuota:          "quota exceeded",
	StatusBadSessionID:   "bad session id",
	StatusNoPassword:     "password is needed",
	StatusBadPassword:    "incorrect password",
	StatusENoAttr:        "attribute not found",
	StatusENotSup:        "operation not supported",
	StatusERange:         "result too large",
}

func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown status %d", uint8(s))
}

// Error adapts Status to the error interface so it composes with
// fmt.Errorf("%w", ...) and errors.Is/As at call sites that need it.
type Error struct {
	Status Status
}

func (e *Error) Error() string { return e.Status.String() }

// Is supports errors.Is(err, wire.ErrStatus(wire.StatusChunkLost)).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Status == e.Status
}

// ErrStatus wraps a Status as an error. StatusOK wraps to nil, matching the
// common call pattern `if err := wire.ErrStatus(resp.Status); err != nil`.
func ErrStatus(s Status) error {
	if s == StatusOK {
		return nil
	}
	return &Error{Status: s}
}

// RetryClass classifies how a client should react to a given status,
// per §7's propagation table.
type RetryClass int

const (
	// RetryNone: semantic failure, surface as errno immediately.
	RetryNone RetryClass = iota
	// RetryTransient: sleep ~1s and retry up to a bounded count.
	RetryTransient
	// RetryLongBackoff: cluster-wide condition, retry with long backoff.
	RetryLongBackoff
	// RetryReplan: protocol/data integrity failure on one copy; kill that
	// connection and retry with a different plan.
	RetryReplan
	// RetryReconnect: network failure; reconnect once then try another copy.
	RetryReconnect
	// RetryFatal: registration failure, fatal to the session.
	RetryFatal
)

func (s Status) RetryClass() RetryClass {
	switch s {
	case StatusLocked, StatusChunkBusy, StatusDelayed:
		return RetryTransient
	case StatusNoChunkServers, StatusNoSpace:
		return RetryLongBackoff
	case StatusNotDone:
		return RetryTransient
	case StatusCRC, StatusWrongSize, StatusWrongOffset, StatusBNumTooBig,
		StatusWrongChunkID, StatusWrongVersion:
		return RetryReplan
	case StatusCantConnect, StatusDisconnected, StatusIO:
		return RetryReconnect
	case StatusBadSessionID, StatusRegister, StatusNoPassword, StatusBadPassword:
		return RetryFatal
	default:
		return RetryNone
	}
}
