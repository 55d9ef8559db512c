// Copyright 2024 The P4VFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package placeholder installs and uninstalls the reparse-point + sparse
// placeholder files described in spec.md §4.D, and opens existing ones by
// file-id for hydration. The real implementation (manager_windows.go) talks
// to NTFS directly; manager_other.go is a portable stand-in used by tests
// and non-Windows development, simulating the same state machine with a
// sidecar metadata file instead of a kernel reparse point.
package placeholder

import (
	"errors"
	"io"
	"time"

	"github.com/p4vfs/core/libs/go/reparse"
)

// Attrs carries the subset of Windows file attributes Install/Uninstall
// manipulate, independent of platform.
type Attrs struct {
	ReadOnly bool
	Offline  bool
	Hidden   bool
	System   bool
}

const (
	attrReadOnly uint32 = 1 << 0
	attrHidden   uint32 = 1 << 1
	attrSystem   uint32 = 1 << 2
	attrOffline  uint32 = 1 << 12
)

func (a Attrs) encode() uint32 {
	var v uint32
	if a.ReadOnly {
		v |= attrReadOnly
	}
	if a.Hidden {
		v |= attrHidden
	}
	if a.System {
		v |= attrSystem
	}
	if a.Offline {
		v |= attrOffline
	}
	return v
}

// InstallRequest bundles Install's parameters, per spec.md §4.D.
type InstallRequest struct {
	Path          string
	Metadata      reparse.Metadata
	FileSize      int64
	Attrs         Attrs
	RetryCount    int
	RetryInterval time.Duration
}

// ErrOpenRetriesExhausted is returned when Install cannot obtain a handle
// to the target file after RetryCount attempts.
var ErrOpenRetriesExhausted = errors.New("placeholder: open retries exhausted")

// ErrNotPlaceholder is returned by DetectPlaceholder-adjacent calls when a
// handle's reparse data does not carry the P4VFS tag and GUID.
var ErrNotPlaceholder = errors.New("placeholder: not a placeholder")

// Handle is an opaque, platform-specific open file reference returned by
// OpenByFileID. Callers pass it back to Manager methods that read or write
// the still-open file; they must not inspect its contents.
type Handle interface {
	// Close releases the underlying OS handle.
	Close() error
}

// Manager installs, uninstalls, and opens placeholder files. A single
// Manager value is safe for concurrent use: every method operates on a
// path or handle given to it, with no shared mutable state beyond what the
// OS itself serializes.
type Manager interface {
	// Install ensures req.Path exists as a reparse-tagged, sparse
	// placeholder of logical length req.FileSize carrying req.Metadata. See
	// the sequencing invariant in spec.md §4.D: truncate/sparse-size occur
	// on the same handle that installs the reparse point, and the handle
	// closes before final attributes are applied.
	Install(req InstallRequest) error
	// Uninstall clears the read-only bit, deletes path, and best-effort
	// prunes now-empty parent directories up to (not including) clientRoot.
	Uninstall(path, clientRoot string) error
	// OpenByFileID opens path via its NTFS file-id, bypassing directory
	// access checks, with read/write access and the share modes described
	// in spec.md §4.D.
	OpenByFileID(path string, writable bool) (Handle, error)
	// DetectPlaceholder inspects h's reparse data and reports whether it
	// carries the P4VFS tag/GUID, returning its parsed Metadata when it
	// does.
	DetectPlaceholder(h Handle) (reparse.Metadata, bool, error)
	// FinalizeResident writes data into h's already-open handle, truncates
	// at len(data), then removes the reparse point and clears the sparse
	// bit — the (b)-(f) steps of spec.md §4.E's resident hydration
	// sequence. The caller closes h and clears the offline attribute
	// afterward via ClearOffline, preserving the close-before-attribute-
	// write ordering spec.md §4.D requires.
	FinalizeResident(h Handle, data []byte) error
	// FinalizeResidentStream is FinalizeResident's streaming counterpart:
	// it copies src into h's already-open handle directly, rather than
	// requiring the caller to buffer the full payload first, then
	// truncates to the number of bytes copied and clears the reparse
	// point and sparse bit exactly as FinalizeResident does.
	FinalizeResidentStream(h Handle, src io.Reader) error
	// ReplaceResident atomically swaps path's entire contents for data via
	// a temp file created alongside it, preserving path's prior
	// modification time on the replacement. Unlike FinalizeResident, the
	// replacement file never carries a reparse point, so the rename
	// itself clears the placeholder's residency state; used by the "move"
	// hydration method in place of writing into an already-open handle.
	ReplaceResident(path string, data []byte) error
	// ClearOffline clears the offline attribute on an already-closed file.
	ClearOffline(path string) error
}
