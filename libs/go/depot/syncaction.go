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

package depot

import "time"

// ActionKind mirrors the canonical sync-action names the server reports in
// tagged sync output, grounded on original_source's DepotSyncAction.cpp and
// on teacher's line-oriented parsing of `p4 changes`/`p4 sync -n` output.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionAdded
	ActionDeleted
	ActionUpdated
	ActionRefreshed
	ActionReplaced
	ActionUpToDate
	ActionNoFilesFound
	ActionNoFileAtRevision
	ActionInvalidPattern
	ActionNotInClientView
	ActionOpenedNotChanged
	ActionCantClobber
	ActionNeedsResolve
	ActionGenericError
)

var actionKindNames = map[ActionKind]string{
	ActionNone:             "none",
	ActionAdded:            "added",
	ActionDeleted:          "deleted",
	ActionUpdated:          "updated",
	ActionRefreshed:        "refreshed",
	ActionReplaced:         "replaced",
	ActionUpToDate:         "up-to-date",
	ActionNoFilesFound:     "no file(s) found",
	ActionNoFileAtRevision: "no such file(s) at that revision",
	ActionInvalidPattern:   "invalid pattern",
	ActionNotInClientView: "not in client view",
	ActionOpenedNotChanged: "opened not changed",
	ActionCantClobber:      "can't clobber writable file",
	ActionNeedsResolve:     "needs resolve",
	ActionGenericError:     "error",
}

func (k ActionKind) String() string {
	if s, ok := actionKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsError reports whether k belongs to the error-classified family of
// outcomes spec.md §4.H step 8 folds into an overall Error verdict.
func (k ActionKind) IsError() bool {
	switch k {
	case ActionNoFilesFound, ActionNoFileAtRevision, ActionInvalidPattern,
		ActionNotInClientView, ActionCantClobber, ActionNeedsResolve, ActionGenericError:
		return true
	}
	return false
}

// ActionFlags is a bitset over the per-action write/clobber attributes the
// server reports alongside a sync preview line.
type ActionFlags uint32

const (
	FlagFileWrite ActionFlags = 1 << iota
	FlagHaveFileWrite
	FlagClientWrite
	FlagClientClobber
	FlagFileSymlink
)

func (f ActionFlags) Has(flag ActionFlags) bool { return f&flag != 0 }

// FlushMode selects whether the sync engine updates the have-table once per
// file (Single) or once for the whole batch after every placeholder is
// installed (Atomic).
type FlushMode int

const (
	FlushSingle FlushMode = iota
	FlushAtomic
)

// SyncActionInfo is the per-file record the sync planner produces, mirroring
// original_source's DepotSyncAction.h field set.
type SyncActionInfo struct {
	DepotFile         string
	ClientFile        string
	FileSize          int64
	Revision          int32
	HeadType          string
	ActionKind        ActionKind
	ActionFlags       ActionFlags
	SyncFlags         []string
	FlushMode         FlushMode
	IsAlwaysResident  bool
	PlanStart         time.Time
	PlanDuration      time.Duration
	PlaceholderDuration time.Duration
	FlushDuration     time.Duration
	SubActions        []SyncActionInfo
}

// Outcome is the overall classification of a sync call: spec.md §4.H step 8
// walks the operation's log and folds it to one of these three.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeWarning
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "Success"
	case OutcomeWarning:
		return "Warning"
	case OutcomeError:
		return "Error"
	default:
		return "Unknown"
	}
}
