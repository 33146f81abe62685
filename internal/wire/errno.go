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

import "syscall"

// ToErrno translates a wire Status into a POSIX errno. Per §7 this
// translation only happens at the client/FUSE edge; internal code should
// keep propagating the Status-wrapped error.
func (s Status) ToErrno() syscall.Errno {
	switch s {
	case StatusOK:
		return 0
	case StatusEPERM:
		return syscall.EPERM
	case StatusENOTDIR:
		return syscall.ENOTDIR
	case StatusENOENT:
		return syscall.ENOENT
	case StatusEACCES:
		return syscall.EACCES
	case StatusEEXIST:
		return syscall.EEXIST
	case StatusEINVAL:
		return syscall.EINVAL
	case StatusENOTEMPTY:
		return syscall.ENOTEMPTY
	case StatusOutOfMemory:
		return syscall.ENOMEM
	case StatusNoSpace:
		return syscall.ENOSPC
	case StatusIO:
		return syscall.EIO
	case StatusEROFS:
		return syscall.EROFS
	case StatusENoAttr:
		return syscall.ENODATA
	case StatusENotSup:
		return syscall.ENOTSUP
	case StatusERange:
		return syscall.ERANGE
	case StatusChunkLost, StatusNoChunkServers, StatusNoChunk, StatusNotDone:
		// No POSIX errno models "no surviving replica"; EIO is the closest
		// the original client reports for unrecoverable chunk loss.
		return syscall.EIO
	case StatusQuota:
		return syscall.EDQUOT
	default:
		return syscall.EIO
	}
}
