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

package p4fake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/p4vfs/core/libs/go/depot"
)

// runPrint answers "print [-q] <depotPath>[#rev]" by writing the
// revision's bytes through BinaryHandler if the caller wants binary, or
// as info/output lines otherwise.
func (s *Session) runPrint(cmd depot.Command, handler depot.ResultHandler) error {
	path, rev, _ := s.depotArg(cmd.Args)
	if path == "" {
		return fmt.Errorf("p4fake: print: no file argument")
	}
	f, err := s.Store.fileAt(path, rev)
	if err != nil {
		emitStderr(handler, err.Error())
		return nil
	}
	if f.deleted {
		emitStderr(handler, fmt.Sprintf("%s - no such file(s).", path))
		return nil
	}
	if bh, ok := handler.(depot.BinaryHandler); ok {
		bh.HandleBinary(f.content)
		return nil
	}
	emitStdout(handler, string(f.content))
	return nil
}

// runSync answers "sync [-n|-k] <depotPath/...>[@rev|#rev]" by diffing
// the client's have-table against the requested revision of every
// matching file and, unless previewing (-n), writing the result into the
// have-table; -k updates the have-table too, as a real server's sync -k does.
func (s *Session) runSync(cmd depot.Command, handler depot.ResultHandler) error {
	preview := hasFlag(cmd.Args, "-n")
	metadataOnly := hasFlag(cmd.Args, "-k")

	pattern, rev, hasRev := s.depotArg(cmd.Args)
	if pattern == "" {
		return fmt.Errorf("p4fake: sync: no file argument")
	}

	paths := s.Store.matchingPaths(pattern)
	if len(paths) == 0 {
		emitStderr(handler, fmt.Sprintf("%s - no file(s) found.", pattern))
		return nil
	}

	client := s.clientKey()
	tag := wantsTags(handler)

	for _, depotPath := range paths {
		target, err := s.targetRevision(depotPath, rev, hasRev)
		if err != nil {
			emitStderr(handler, err.Error())
			continue
		}

		have := s.Store.have(client)[depotPath]
		clientFile := s.clientFile(depotPath)

		var action string
		switch {
		case target.deleted && have == 0:
			action = "no file(s) found"
		case target.deleted:
			action = "deleted"
		case have == 0:
			action = "added"
		case have == target.number:
			action = "up-to-date"
		case have < target.number:
			action = "updated"
		default:
			action = "refreshed"
		}

		if action != "up-to-date" && action != "no file(s) found" && !preview {
			s.Store.SetHave(client, depotPath, target.number)
		}

		if tag {
			emitStat(handler, depot.TagRecord{
				"depotFile":  depotPath,
				"clientFile": clientFile,
				"rev":        fmt.Sprintf("#%d", target.number),
				"fileSize":   strconv.Itoa(len(target.content)),
				"action":     action,
				"type":       target.fileType,
			})
		} else {
			emitStdout(handler, fmt.Sprintf("%s#%d - %s as %s", depotPath, target.number, action, clientFile))
		}
		_ = metadataOnly
	}
	return nil
}

func (s *Session) targetRevision(depotPath string, rev int32, hasRev bool) (fileRevision, error) {
	if !hasRev || rev == 0 {
		return s.Store.fileAt(depotPath, 0)
	}
	return s.Store.fileAt(depotPath, rev)
}

// runFstat answers "fstat <depotPath/...>" with one tagged record per
// matching file describing its head revision and the client's have
// revision.
func (s *Session) runFstat(cmd depot.Command, handler depot.ResultHandler) error {
	pattern, _, _ := s.depotArg(cmd.Args)
	paths := s.Store.matchingPaths(pattern)
	client := s.clientKey()

	for _, depotPath := range paths {
		head, err := s.Store.fileAt(depotPath, 0)
		if err != nil {
			continue
		}
		have := s.Store.have(client)[depotPath]
		rec := depot.TagRecord{
			"depotFile":  depotPath,
			"clientFile": s.clientFile(depotPath),
			"headRev":    fmt.Sprintf("%d", head.number),
			"haveRev":    fmt.Sprintf("%d", have),
			"headType":   head.fileType,
		}
		if wantsTags(handler) {
			emitStat(handler, rec)
		} else {
			emitStdout(handler, fmt.Sprintf("%s#%d have #%d", depotPath, head.number, have))
		}
	}
	return nil
}

// runChanges answers "changes -m1 [-s submitted] <depotPath/...>" with the
// depot's current top changelist, the revision resolver relies on.
func (s *Session) runChanges(cmd depot.Command, handler depot.ResultHandler) error {
	top := s.Store.TopChangelist()
	if wantsTags(handler) {
		emitStat(handler, depot.TagRecord{"change": fmt.Sprintf("%d", top)})
	} else {
		emitStdout(handler, fmt.Sprintf("Change %d on submitted", top))
	}
	return nil
}

// runReconcile always reports nothing to reconcile: p4fake never models
// local edits outside of what sync itself performs, so after an Atomic
// sync the workspace is by construction clean (property P4).
func (s *Session) runReconcile(cmd depot.Command, handler depot.ResultHandler) error {
	emitInfo(handler, "no file(s) to reconcile.")
	return nil
}

func (s *Session) clientKey() string {
	cfg := s.Config()
	if cfg.Client != "" {
		return strings.ToLower(cfg.Client)
	}
	return strings.ToLower(s.ClientRoot)
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
