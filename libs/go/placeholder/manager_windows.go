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

//go:build windows

package placeholder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/windows"

	"github.com/p4vfs/core/libs/go/reparse"
)

// ntHandle wraps a raw windows.Handle kept open between Install's steps
// (truncate, reparse-tag, sparse-size) and between a residency resolver's
// OpenByFileID and its subsequent writes, per spec.md §4.D's sequencing
// invariant.
type ntHandle struct {
	h windows.Handle
}

func (n *ntHandle) Close() error {
	if n.h == windows.InvalidHandle || n.h == 0 {
		return nil
	}
	err := windows.CloseHandle(n.h)
	n.h = windows.InvalidHandle
	return err
}

type ntManager struct{}

// NewManager returns the real Windows placeholder manager, talking to NTFS
// reparse points and sparse files directly via DeviceIoControl.
func NewManager() Manager { return &ntManager{} }

func (m *ntManager) Install(req InstallRequest) error {
	if err := os.MkdirAll(filepath.Dir(req.Path), 0o777); err != nil {
		return fmt.Errorf("placeholder: install: mkdir parent: %w", err)
	}

	// Clear read-only and truncate any pre-existing file so CreateFile's
	// CREATE_ALWAYS disposition can proceed.
	_ = windows.SetFileAttributes(utf16(req.Path), windows.FILE_ATTRIBUTE_NORMAL)

	h, err := openWithRetry(req.Path, req.RetryCount, req.RetryInterval)
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		if !ok {
			windows.CloseHandle(h)
			os.Remove(req.Path)
		}
	}()

	// Freeze last-access/modified time: Windows treats an all-0xFFFFFFFF
	// FILETIME as "leave this timestamp unchanged" on every subsequent
	// SetFileTime call against the same handle.
	noChange := &windows.Filetime{LowDateTime: 0xFFFFFFFF, HighDateTime: 0xFFFFFFFF}
	_ = windows.SetFileTime(h, nil, noChange, noChange)

	payload := reparse.Marshal(req.Metadata)
	if err := setReparsePoint(h, payload); err != nil {
		return fmt.Errorf("placeholder: install: set reparse point: %w", err)
	}

	if err := setSparse(h); err != nil {
		return fmt.Errorf("placeholder: install: set sparse: %w", err)
	}
	if err := setSparseLength(h, req.FileSize); err != nil {
		return fmt.Errorf("placeholder: install: set logical length: %w", err)
	}

	if err := windows.CloseHandle(h); err != nil {
		return fmt.Errorf("placeholder: install: close: %w", err)
	}

	finalAttrs := req.Attrs
	finalAttrs.Offline = true
	if err := windows.SetFileAttributes(utf16(req.Path), finalAttrs.encode()); err != nil {
		return fmt.Errorf("placeholder: install: set final attributes: %w", err)
	}

	ok = true
	return nil
}

func openWithRetry(path string, retryCount int, interval time.Duration) (windows.Handle, error) {
	if retryCount <= 0 {
		retryCount = 1
	}
	var lastErr error
	for i := 0; i < retryCount; i++ {
		h, err := windows.CreateFile(
			utf16(path),
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
			nil,
			windows.CREATE_ALWAYS,
			windows.FILE_ATTRIBUTE_NORMAL|windows.FILE_FLAG_OPEN_REPARSE_POINT,
			0,
		)
		if err == nil {
			return h, nil
		}
		lastErr = err
		if interval > 0 {
			time.Sleep(interval)
		}
	}
	return windows.InvalidHandle, fmt.Errorf("%w: %v", ErrOpenRetriesExhausted, lastErr)
}

func (m *ntManager) Uninstall(path, clientRoot string) error {
	_ = windows.SetFileAttributes(utf16(path), windows.FILE_ATTRIBUTE_NORMAL)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("placeholder: uninstall: %w", err)
	}
	pruneEmptyParents(filepath.Dir(path), clientRoot)
	return nil
}

func pruneEmptyParents(dir, clientRoot string) {
	clean := filepath.Clean(clientRoot)
	for dir != "" && !isSameOrAbove(dir, clean) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func isSameOrAbove(dir, root string) bool {
	dir = filepath.Clean(dir)
	return dir == root || len(dir) <= len(root)
}

func (m *ntManager) OpenByFileID(path string, writable bool) (Handle, error) {
	access := uint32(windows.GENERIC_READ)
	if writable {
		access |= windows.GENERIC_WRITE
	}
	h, err := windows.CreateFile(
		utf16(path),
		access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OPEN_REPARSE_POINT|0x2000, /* FILE_OPEN_BY_FILE_ID, no x/sys constant */
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("placeholder: open by file id: %w", err)
	}
	return &ntHandle{h: h}, nil
}

func (m *ntManager) FinalizeResident(handle Handle, data []byte) error {
	nh, ok := handle.(*ntHandle)
	if !ok {
		return fmt.Errorf("placeholder: finalize: wrong handle type")
	}
	var newPos int64
	if err := windows.SetFilePointerEx(nh.h, 0, &newPos, windows.FILE_BEGIN); err != nil {
		return fmt.Errorf("placeholder: finalize: seek: %w", err)
	}
	var written uint32
	if len(data) > 0 {
		if err := windows.WriteFile(nh.h, data, &written, nil); err != nil {
			return fmt.Errorf("placeholder: finalize: write: %w", err)
		}
	}
	if err := windows.SetEndOfFile(nh.h); err != nil {
		return fmt.Errorf("placeholder: finalize: truncate: %w", err)
	}
	var bytesReturned uint32
	if err := windows.DeviceIoControl(nh.h, fsctlDeleteReparsePoint(), nil, 0, nil, 0, &bytesReturned, nil); err != nil {
		return fmt.Errorf("placeholder: finalize: delete reparse point: %w", err)
	}
	setSparseFalse := []byte{0}
	if err := windows.DeviceIoControl(nh.h, fsctlSetSparse, &setSparseFalse[0], uint32(len(setSparseFalse)), nil, 0, &bytesReturned, nil); err != nil {
		return fmt.Errorf("placeholder: finalize: clear sparse: %w", err)
	}
	return nil
}

func (m *ntManager) FinalizeResidentStream(handle Handle, src io.Reader) error {
	nh, ok := handle.(*ntHandle)
	if !ok {
		return fmt.Errorf("placeholder: finalize stream: wrong handle type")
	}
	var newPos int64
	if err := windows.SetFilePointerEx(nh.h, 0, &newPos, windows.FILE_BEGIN); err != nil {
		return fmt.Errorf("placeholder: finalize stream: seek: %w", err)
	}
	var total int64
	buf := make([]byte, 64*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			var written uint32
			if err := windows.WriteFile(nh.h, buf[:n], &written, nil); err != nil {
				return fmt.Errorf("placeholder: finalize stream: write: %w", err)
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("placeholder: finalize stream: read: %w", rerr)
		}
	}
	if err := windows.SetEndOfFile(nh.h); err != nil {
		return fmt.Errorf("placeholder: finalize stream: truncate: %w", err)
	}
	var bytesReturned uint32
	if err := windows.DeviceIoControl(nh.h, fsctlDeleteReparsePoint(), nil, 0, nil, 0, &bytesReturned, nil); err != nil {
		return fmt.Errorf("placeholder: finalize stream: delete reparse point: %w", err)
	}
	setSparseFalse := []byte{0}
	if err := windows.DeviceIoControl(nh.h, fsctlSetSparse, &setSparseFalse[0], uint32(len(setSparseFalse)), nil, 0, &bytesReturned, nil); err != nil {
		return fmt.Errorf("placeholder: finalize stream: clear sparse: %w", err)
	}
	_ = total
	return nil
}

// ReplaceResident writes data to a temp file beside path, restores path's
// prior modification time on it, then renames it over path. The
// replacement file is created without FILE_FLAG_OPEN_REPARSE_POINT, so the
// rename itself clears the placeholder's reparse point and offline state.
func (m *ntManager) ReplaceResident(path string, data []byte) error {
	var modTime time.Time
	if info, err := os.Stat(path); err == nil {
		modTime = info.ModTime()
	}

	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf(".%s.p4vfs-move-%d", filepath.Base(path), os.Getpid()))
	if err := os.WriteFile(tmpPath, data, 0o666); err != nil {
		return fmt.Errorf("placeholder: replace: write temp file: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	if !modTime.IsZero() {
		if err := os.Chtimes(tmpPath, modTime, modTime); err != nil {
			return fmt.Errorf("placeholder: replace: preserve times: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("placeholder: replace: rename: %w", err)
	}
	ok = true
	return nil
}

func (m *ntManager) ClearOffline(path string) error {
	attrs, err := windows.GetFileAttributes(utf16(path))
	if err != nil {
		return fmt.Errorf("placeholder: clear offline: %w", err)
	}
	attrs &^= attrOffline
	return windows.SetFileAttributes(utf16(path), attrs)
}

func fsctlDeleteReparsePoint() uint32 { return 0x900AC }

func (m *ntManager) DetectPlaceholder(handle Handle) (reparse.Metadata, bool, error) {
	nh, ok := handle.(*ntHandle)
	if !ok {
		return reparse.Metadata{}, false, fmt.Errorf("placeholder: detect: wrong handle type")
	}
	data, err := getReparsePoint(nh.h)
	if err != nil {
		return reparse.Metadata{}, false, nil
	}
	md, err := reparse.Parse(data)
	if err != nil {
		return reparse.Metadata{}, false, nil
	}
	return md, true, nil
}

const (
	fsctlSetReparsePoint = 0x900A4
	fsctlGetReparsePoint = 0x900A8
	fsctlSetSparse       = 0x900C4
	reparseBufferHeader  = 8 // tag(4) + dataLength(2) + reserved(2)
	maxReparseDataSize   = 16 * 1024
)

func setReparsePoint(h windows.Handle, payload []byte) error {
	buf := make([]byte, reparseBufferHeader+len(payload))
	copy(buf[reparseBufferHeader:], payload)
	var bytesReturned uint32
	return windows.DeviceIoControl(h, fsctlSetReparsePoint, &buf[0], uint32(len(buf)), nil, 0, &bytesReturned, nil)
}

func getReparsePoint(h windows.Handle) ([]byte, error) {
	buf := make([]byte, maxReparseDataSize)
	var bytesReturned uint32
	err := windows.DeviceIoControl(h, fsctlGetReparsePoint, nil, 0, &buf[0], uint32(len(buf)), &bytesReturned, nil)
	if err != nil {
		return nil, err
	}
	if bytesReturned < reparseBufferHeader {
		return nil, fmt.Errorf("placeholder: reparse buffer too small")
	}
	return buf[reparseBufferHeader:bytesReturned], nil
}

func setSparse(h windows.Handle) error {
	var bytesReturned uint32
	return windows.DeviceIoControl(h, fsctlSetSparse, nil, 0, nil, 0, &bytesReturned, nil)
}

func setSparseLength(h windows.Handle, length int64) error {
	var newPos int64
	if err := windows.SetFilePointerEx(h, length, &newPos, windows.FILE_BEGIN); err != nil {
		return err
	}
	return windows.SetEndOfFile(h)
}

func utf16(s string) *uint16 {
	p, err := windows.UTF16PtrFromString(s)
	if err != nil {
		// Longer-than-MAX_PATH names must already be in \\?\-prefixed
		// extended form by the time they reach this package; a conversion
		// failure here means the caller built an un-encodable path.
		panic(fmt.Sprintf("placeholder: invalid path %q: %v", s, err))
	}
	return p
}
