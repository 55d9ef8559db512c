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

//go:build !windows

package placeholder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/p4vfs/core/libs/go/reparse"
)

// sidecarSuffix names the file this simulated manager uses in place of a
// real NTFS reparse point: the target file itself is left zero-length, and
// its reparse payload lives beside it. Used for development and tests off
// Windows; production builds use manager_windows.go.
const sidecarSuffix = ".p4vfs-reparse"

type simHandle struct {
	path     string
	writable bool
	f        *os.File
}

func (h *simHandle) Close() error {
	if h.f == nil {
		return nil
	}
	return h.f.Close()
}

type simManager struct {
	mu sync.Mutex
}

// NewManager returns the portable placeholder manager used off Windows.
func NewManager() Manager { return &simManager{} }

func (m *simManager) Install(req InstallRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(req.Path), 0o777); err != nil {
		return fmt.Errorf("placeholder: install: mkdir parent: %w", err)
	}
	if err := os.Chmod(req.Path, 0o666); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("placeholder: install: clear read-only: %w", err)
	}

	f, err := os.OpenFile(req.Path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o666)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpenRetriesExhausted, err)
	}
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(req.Path)
			os.Remove(req.Path + sidecarSuffix)
		}
	}()

	if err := f.Truncate(req.FileSize); err != nil {
		return fmt.Errorf("placeholder: install: set logical length: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("placeholder: install: close: %w", err)
	}

	payload := reparse.Marshal(req.Metadata)
	if err := os.WriteFile(req.Path+sidecarSuffix, payload, 0o600); err != nil {
		return fmt.Errorf("placeholder: install: write sidecar: %w", err)
	}

	mode := os.FileMode(0o666)
	if req.Attrs.ReadOnly {
		mode = 0o444
	}
	if err := os.Chmod(req.Path, mode); err != nil {
		return fmt.Errorf("placeholder: install: set final attributes: %w", err)
	}

	ok = true
	return nil
}

func (m *simManager) Uninstall(path, clientRoot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = os.Chmod(path, 0o666)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("placeholder: uninstall: %w", err)
	}
	os.Remove(path + sidecarSuffix)
	pruneEmptyParents(filepath.Dir(path), clientRoot)
	return nil
}

func pruneEmptyParents(dir, clientRoot string) {
	clean := filepath.Clean(clientRoot)
	for dir != "" && filepath.Clean(dir) != clean {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) != 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func (m *simManager) OpenByFileID(path string, writable bool) (Handle, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("placeholder: open by file id: %w", err)
	}
	return &simHandle{path: path, writable: writable, f: f}, nil
}

func (m *simManager) FinalizeResident(handle Handle, data []byte) error {
	sh, ok := handle.(*simHandle)
	if !ok {
		return fmt.Errorf("placeholder: finalize: wrong handle type")
	}
	if _, err := sh.f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("placeholder: finalize: write: %w", err)
	}
	if err := sh.f.Truncate(int64(len(data))); err != nil {
		return fmt.Errorf("placeholder: finalize: truncate: %w", err)
	}
	if err := os.Remove(sh.path + sidecarSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("placeholder: finalize: remove reparse sidecar: %w", err)
	}
	return nil
}

func (m *simManager) FinalizeResidentStream(handle Handle, src io.Reader) error {
	sh, ok := handle.(*simHandle)
	if !ok {
		return fmt.Errorf("placeholder: finalize stream: wrong handle type")
	}
	if _, err := sh.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("placeholder: finalize stream: seek: %w", err)
	}
	written, err := io.Copy(sh.f, src)
	if err != nil {
		return fmt.Errorf("placeholder: finalize stream: copy: %w", err)
	}
	if err := sh.f.Truncate(written); err != nil {
		return fmt.Errorf("placeholder: finalize stream: truncate: %w", err)
	}
	if err := os.Remove(sh.path + sidecarSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("placeholder: finalize stream: remove reparse sidecar: %w", err)
	}
	return nil
}

func (m *simManager) ReplaceResident(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, statErr := os.Stat(path)

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".p4vfs-move-*")
	if err != nil {
		return fmt.Errorf("placeholder: replace: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("placeholder: replace: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("placeholder: replace: close temp: %w", err)
	}
	if statErr == nil {
		if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
			return fmt.Errorf("placeholder: replace: preserve times: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("placeholder: replace: rename: %w", err)
	}
	ok = true

	if err := os.Remove(path + sidecarSuffix); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("placeholder: replace: remove reparse sidecar: %w", err)
	}
	return nil
}

func (m *simManager) ClearOffline(path string) error {
	return os.Chmod(path, 0o666)
}

func (m *simManager) DetectPlaceholder(handle Handle) (reparse.Metadata, bool, error) {
	sh, ok := handle.(*simHandle)
	if !ok {
		return reparse.Metadata{}, false, fmt.Errorf("placeholder: detect: wrong handle type")
	}
	data, err := os.ReadFile(sh.path + sidecarSuffix)
	if err != nil {
		return reparse.Metadata{}, false, nil
	}
	md, err := reparse.Parse(data)
	if err != nil {
		return reparse.Metadata{}, false, nil
	}
	return md, true, nil
}
