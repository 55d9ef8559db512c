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
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/p4vfs/core/libs/go/depot"
)

var errNoSession = errors.New("syncengine: no depot session available")

// syncResult collects a command's text/tag output, satisfying
// depot.ResultHandler + depot.StatHandler so the tagged fast path is used
// when the server offers it.
type syncResult struct {
	depot.Result
}

func (r *syncResult) HandleInfo(level int, text string) {}

// resolveRevision pins req.Revision to a concrete changelist when it is
// Empty or Head, per spec.md §4.H step 1: "read the top changelist once;
// pin all subsequent commands to @<N>" so every parallel worker sees the
// same snapshot.
func (e *Engine) resolveRevision(session depot.Session, req Request) (depot.Revision, error) {
	rev := req.Revision
	if rev == nil {
		rev = depot.RevisionEmpty
	}
	if rev != depot.RevisionEmpty && rev != depot.RevisionHead {
		return rev, nil
	}

	var result syncResult
	cmd := depot.Command{Name: "changes", Args: []string{"-m1", "-s", "submitted", req.Path + "/..."}}
	if err := session.Run(cmd, &result); err != nil {
		return nil, fmt.Errorf("syncengine: resolve revision: %w", err)
	}
	if result.HasError() {
		return nil, fmt.Errorf("syncengine: resolve revision: %s", strings.Join(result.StderrLines(), "; "))
	}

	cl, ok := topChangelistFromChanges(result.Texts, result.Tags)
	if !ok {
		return nil, fmt.Errorf("syncengine: resolve revision: no changelist found for %s", req.Path)
	}
	return depot.RevisionChangelist(cl), nil
}

func topChangelistFromChanges(texts []depot.TextLine, tags []depot.TagRecord) (int32, bool) {
	for _, rec := range tags {
		if v, ok := rec["change"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				return int32(n), true
			}
		}
	}
	for _, t := range texts {
		fields := strings.Fields(t.Text)
		if len(fields) >= 2 && fields[0] == "Change" {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				return int32(n), true
			}
		}
	}
	return 0, false
}

// plan runs the server's sync preview and parses its output into
// per-file sync-action records, preferring tagged records when present.
func (e *Engine) plan(session depot.Session, req Request, rev depot.Revision) ([]depot.SyncActionInfo, error) {
	flag := "-n"
	if req.FlushMode == depot.FlushSingle {
		flag = "-k"
	}

	var result syncResult
	cmd := depot.Command{Name: "sync", Args: []string{flag, req.Path + "/..." + rev.String()}}
	if err := session.Run(cmd, &result); err != nil {
		return nil, fmt.Errorf("syncengine: plan: %w", err)
	}

	if len(result.Tags) > 0 {
		return actionsFromTags(result.Tags), nil
	}
	return actionsFromText(result.Texts), nil
}

func actionsFromTags(tags []depot.TagRecord) []depot.SyncActionInfo {
	actions := make([]depot.SyncActionInfo, 0, len(tags))
	for _, rec := range tags {
		size, _ := strconv.ParseInt(rec["fileSize"], 10, 64)
		rev, _ := strconv.ParseInt(strings.TrimPrefix(rec["rev"], "#"), 10, 32)
		actions = append(actions, depot.SyncActionInfo{
			DepotFile:  rec["depotFile"],
			ClientFile: rec["clientFile"],
			FileSize:   size,
			Revision:   int32(rev),
			HeadType:   rec["type"],
			ActionKind: parseActionKind(rec["action"]),
		})
	}
	return actions
}

var actionKindByName = map[string]depot.ActionKind{
	"added":                             depot.ActionAdded,
	"deleted":                           depot.ActionDeleted,
	"updated":                           depot.ActionUpdated,
	"refreshed":                         depot.ActionRefreshed,
	"replaced":                          depot.ActionReplaced,
	"up-to-date":                        depot.ActionUpToDate,
	"no file(s) found":                  depot.ActionNoFilesFound,
	"no such file(s) at that revision":  depot.ActionNoFileAtRevision,
	"invalid pattern":                   depot.ActionInvalidPattern,
	"not in client view":                depot.ActionNotInClientView,
	"opened not changed":                depot.ActionOpenedNotChanged,
	"can't clobber writable file":       depot.ActionCantClobber,
	"needs resolve":                     depot.ActionNeedsResolve,
}

func parseActionKind(s string) depot.ActionKind {
	if k, ok := actionKindByName[strings.ToLower(s)]; ok {
		return k
	}
	if s == "" {
		return depot.ActionNone
	}
	return depot.ActionGenericError
}

// actionsFromText parses the untagged line form: "//depot/a.cpp#3 - added
// as c:\ws\a.cpp" or "//depot/a.cpp#3 - is opened and not changed".
func actionsFromText(lines []depot.TextLine) []depot.SyncActionInfo {
	var actions []depot.SyncActionInfo
	for _, line := range lines {
		depotFile, rev, kindText, clientFile, ok := splitSyncLine(line.Text)
		if !ok {
			continue
		}
		actions = append(actions, depot.SyncActionInfo{
			DepotFile:  depotFile,
			ClientFile: clientFile,
			Revision:   rev,
			ActionKind: parseActionKind(kindText),
		})
	}
	return actions
}

func splitSyncLine(line string) (depotFile string, rev int32, kind, clientFile string, ok bool) {
	idx := strings.Index(line, " - ")
	if idx < 0 {
		return "", 0, "", "", false
	}
	left := line[:idx]
	right := line[idx+3:]

	hash := strings.LastIndex(left, "#")
	if hash < 0 {
		return "", 0, "", "", false
	}
	depotFile = left[:hash]
	if n, err := strconv.Atoi(left[hash+1:]); err == nil {
		rev = int32(n)
	}

	if as := strings.Index(right, " as "); as >= 0 {
		kind = right[:as]
		clientFile = strings.TrimSpace(right[as+4:])
	} else {
		kind = right
	}
	return depotFile, rev, strings.TrimSpace(kind), clientFile, true
}
