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

package syncengine

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/p4vfs/core/libs/go/depot"
	"github.com/p4vfs/core/libs/go/placeholder"
	"github.com/p4vfs/core/libs/go/reparse"
)

// applyAll parallelizes the single-modification apply step (spec.md §4.H
// step 5) across a bounded set of depot sessions, one goroutine per
// session, pulling actions off a shared channel.
func (e *Engine) applyAll(req Request, actions []depot.SyncActionInfo, tracker *outcomeTracker, batchID string) {
	if len(actions) == 0 {
		return
	}

	workers := req.MaxConnections
	if workers <= 0 {
		workers = 1
	}
	if workers > len(actions) {
		workers = len(actions)
	}

	work := make(chan depot.SyncActionInfo, len(actions))
	for _, a := range actions {
		work <- a
	}
	close(work)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := e.Pool.Allocate(e.Config)
			if session == nil {
				for a := range work {
					e.logf(batchID, "syncengine: no session available for %s", a.DepotFile)
					tracker.recordError()
					_ = a
				}
				return
			}
			defer e.Pool.Free(e.Config.PoolKey(), session)

			for a := range work {
				e.applyOne(session, req, a, tracker, batchID)
			}
		}()
	}
	wg.Wait()
}

// applyOne performs the single-modification apply (step 5) and clobber
// check (step 6) for one sync action.
func (e *Engine) applyOne(session depot.Session, req Request, a depot.SyncActionInfo, tracker *outcomeTracker, batchID string) {
	if a.ActionKind.IsError() {
		tracker.recordError()
		e.logf(batchID, "syncengine: %s: %s", a.DepotFile, a.ActionKind)
		return
	}

	switch a.ActionKind {
	case depot.ActionNone, depot.ActionUpToDate:
		tracker.recordSkip()
		return

	case depot.ActionOpenedNotChanged:
		if err := e.verifyOpenedNotChanged(session, a); err != nil {
			tracker.recordError()
			e.logf(batchID, "syncengine: verify opened-not-changed for %s: %v", a.DepotFile, err)
			return
		}
		if err := e.flushHaveTable(session, a); err != nil {
			tracker.recordError()
			e.logf(batchID, "syncengine: flush have-table for %s: %v", a.DepotFile, err)
			return
		}
		tracker.recordWarning()
		return

	case depot.ActionDeleted:
		if a.ClientFile != "" {
			if err := e.Manager.Uninstall(a.ClientFile, req.Path); err != nil && !os.IsNotExist(err) {
				tracker.recordError()
				e.logf(batchID, "syncengine: uninstall %s: %v", a.ClientFile, err)
				return
			}
		}
		if err := e.flushHaveTableNone(session, a); err != nil {
			tracker.recordError()
			e.logf(batchID, "syncengine: flush have-table for %s: %v", a.DepotFile, err)
			return
		}
		tracker.addDiskBytes(0)

	case depot.ActionAdded, depot.ActionUpdated, depot.ActionRefreshed, depot.ActionReplaced:
		if !e.canClobber(a, req.AllowWritableClobber) {
			tracker.recordError()
			e.logf(batchID, "syncengine: %s: existing file is writable, refusing to clobber", a.ClientFile)
			return
		}
		if a.IsAlwaysResident {
			if err := e.flushHaveTable(session, a); err != nil {
				tracker.recordError()
				e.logf(batchID, "syncengine: force sync %s: %v", a.DepotFile, err)
				return
			}
			tracker.addDiskBytes(a.FileSize)
		} else {
			if err := e.installPlaceholder(session, req, a); err != nil {
				tracker.recordError()
				e.logf(batchID, "syncengine: install placeholder %s: %v", a.ClientFile, err)
				return
			}
			tracker.addVirtualBytes(a.FileSize)
		}

	default:
		tracker.recordWarning()
	}
}

// canClobber is the clobber check spec.md §4.H step 6 describes: an
// existing file may only be overwritten if it is read-only (i.e. not
// checked out for edit) or the caller explicitly permitted a writable
// clobber.
func (e *Engine) canClobber(a depot.SyncActionInfo, allowWritableClobber bool) bool {
	if allowWritableClobber || a.ActionFlags.Has(depot.FlagClientClobber) {
		return true
	}
	if a.ClientFile == "" {
		return true
	}
	info, err := os.Stat(a.ClientFile)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0200 == 0
}

// installPlaceholder installs a reparse-tagged placeholder for a, then
// updates the have-table for its revision without transferring the file's
// bytes.
func (e *Engine) installPlaceholder(session depot.Session, req Request, a depot.SyncActionInfo) error {
	if a.ClientFile == "" {
		return fmt.Errorf("syncengine: action for %s has no client path", a.DepotFile)
	}

	install := placeholder.InstallRequest{
		Path:     a.ClientFile,
		FileSize: a.FileSize,
		Metadata: reparse.Metadata{
			ResidencyPolicy: reparse.ResidencyResident,
			PopulatePolicy:  reparse.PopulateDepot,
			FileRevision:    uint32(a.Revision),
			DepotPath:       a.DepotFile,
			DepotServer:     e.Config.Port,
			DepotClient:     e.Config.Client,
			DepotUser:       e.Config.User,
			FileType:        a.HeadType,
		},
	}
	if err := e.Manager.Install(install); err != nil {
		return err
	}
	return e.flushHaveTable(session, a)
}

// flushHaveTable updates the server's per-client have-table for a's
// revision with "sync -k", which records the revision without writing the
// file to the workspace.
func (e *Engine) flushHaveTable(session depot.Session, a depot.SyncActionInfo) error {
	var result syncResult
	cmd := depot.Command{Name: "sync", Args: []string{"-k", fmt.Sprintf("%s#%d", a.DepotFile, a.Revision)}}
	if err := session.Run(cmd, &result); err != nil {
		return err
	}
	if result.HasError() {
		return fmt.Errorf("%s", strings.Join(result.StderrLines(), "; "))
	}
	return nil
}

// flushHaveTableNone is flushHaveTable's delete-path counterpart: the
// file no longer exists at any revision the client should have, so the
// have-table entry is cleared with "#none" rather than pinned to a's
// last-seen revision number.
func (e *Engine) flushHaveTableNone(session depot.Session, a depot.SyncActionInfo) error {
	var result syncResult
	cmd := depot.Command{Name: "sync", Args: []string{"-k", fmt.Sprintf("%s#none", a.DepotFile)}}
	if err := session.Run(cmd, &result); err != nil {
		return err
	}
	if result.HasError() {
		return fmt.Errorf("%s", strings.Join(result.StderrLines(), "; "))
	}
	return nil
}

// verifyOpenedNotChanged re-confirms a preview's "opened for edit but not
// changed" verdict by diffing the checked-out client file against its have
// revision, rather than trusting the preview outright: the file may have
// been modified and reverted to something that merely looks unchanged.
func (e *Engine) verifyOpenedNotChanged(session depot.Session, a depot.SyncActionInfo) error {
	if a.ClientFile == "" {
		return nil
	}
	tmp, err := printToTempFile(session, a)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	lines, err := session.Diff(a.ClientFile, tmp)
	if err != nil {
		return err
	}
	if len(lines) > 0 {
		return fmt.Errorf("client file differs from depot revision #%d despite being reported unchanged", a.Revision)
	}
	return nil
}

// printToTempFile writes a's depot revision to a temp file, since Diff
// compares two on-disk paths rather than in-memory buffers.
func printToTempFile(session depot.Session, a depot.SyncActionInfo) (string, error) {
	var result binaryCollector
	spec := fmt.Sprintf("%s#%d", a.DepotFile, a.Revision)
	cmd := depot.Command{Name: "print", Args: []string{"-q", spec}}
	if err := session.Run(cmd, &result); err != nil {
		return "", fmt.Errorf("print %s: %w", spec, err)
	}

	tmp, err := os.CreateTemp("", "p4vfs-verify-*")
	if err != nil {
		return "", fmt.Errorf("verify temp file: %w", err)
	}
	defer tmp.Close()
	if _, err := tmp.Write(result.data); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("verify temp file: write: %w", err)
	}
	return tmp.Name(), nil
}

// binaryCollector buffers a print command's binary payload, satisfying
// depot.ResultHandler + depot.BinaryHandler.
type binaryCollector struct {
	data []byte
}

func (r *binaryCollector) HandleInfo(level int, text string) {}
func (r *binaryCollector) HandleBinary(chunk []byte)          { r.data = append(r.data, chunk...) }

func (e *Engine) logf(batchID, format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Warningf("batch %s: "+format, append([]interface{}{batchID}, args...)...)
	}
}
