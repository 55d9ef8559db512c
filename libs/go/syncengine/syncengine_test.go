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
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/p4vfs/core/libs/go/depot"
	"github.com/p4vfs/core/libs/go/placeholder"
	"github.com/p4vfs/core/libs/go/reparse"
)

// fakeSession answers "changes -m1" with a fixed changelist and the first
// "sync" command (the plan's preview, -n or -k) by emitting canned tagged
// records for req.Path, then recording every command it ran for assertions.
type fakeSession struct {
	mu       sync.Mutex
	changelist int32
	tags     []depot.TagRecord // returned once by the first sync preview call
	ran      []depot.Command
	served   bool
}

func (s *fakeSession) Connect(depot.Config) error { return nil }
func (s *fakeSession) Login() error               { return nil }
func (s *fakeSession) HasFault() bool             { return false }
func (s *fakeSession) Reset()                     {}
func (s *fakeSession) Close()                     {}
func (s *fakeSession) Diff(string, string) ([]string, error) { return nil, nil }
func (s *fakeSession) Config() depot.Config        { return depot.Config{} }

func (s *fakeSession) Run(cmd depot.Command, handler depot.ResultHandler) error {
	s.mu.Lock()
	s.ran = append(s.ran, cmd)
	first := cmd.Name == "sync" && !s.served
	if first {
		s.served = true
	}
	s.mu.Unlock()

	stat, hasStat := handler.(depot.StatHandler)

	switch cmd.Name {
	case "changes":
		if hasStat {
			stat.HandleStat(depot.TagRecord{"change": fmt.Sprintf("%d", s.changelist)})
		}
	case "sync":
		if first && hasStat {
			for _, rec := range s.tags {
				stat.HandleStat(rec)
			}
		}
	}
	return nil
}

type fakePool struct {
	session *fakeSession
}

func (p *fakePool) Allocate(depot.Config) depot.Session { return p.session }
func (p *fakePool) Free(depot.PoolKey, depot.Session)   {}

// fakeManager records every placeholder Install/Uninstall call it receives.
type fakeManager struct {
	mu        sync.Mutex
	installed []placeholder.InstallRequest
	uninstalled []string
}

func (m *fakeManager) Install(req placeholder.InstallRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installed = append(m.installed, req)
	return nil
}
func (m *fakeManager) Uninstall(path, clientRoot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uninstalled = append(m.uninstalled, path)
	return nil
}
func (m *fakeManager) OpenByFileID(string, bool) (placeholder.Handle, error) { return nil, nil }
func (m *fakeManager) DetectPlaceholder(placeholder.Handle) (reparse.Metadata, bool, error) {
	return reparse.Metadata{}, false, nil
}
func (m *fakeManager) FinalizeResident(placeholder.Handle, []byte) error       { return nil }
func (m *fakeManager) FinalizeResidentStream(placeholder.Handle, io.Reader) error { return nil }
func (m *fakeManager) ReplaceResident(string, []byte) error                   { return nil }
func (m *fakeManager) ClearOffline(string) error                              { return nil }

func newTestEngine(t *testing.T, session *fakeSession, mgr *fakeManager) *Engine {
	t.Helper()
	return New(&fakePool{session: session}, mgr, depot.Config{Port: "p4.example.com:1666", User: "bob", Client: "bob-ws"}, nil, nil)
}

func TestRunInstallsPlaceholdersForAddedFiles(t *testing.T) {
	root := t.TempDir()
	clientFile := filepath.Join(root, "a.cpp")

	session := &fakeSession{changelist: 42, tags: []depot.TagRecord{
		{"depotFile": "//depot/main/a.cpp", "clientFile": clientFile, "action": "added", "rev": "#3", "fileSize": "1024"},
	}}
	mgr := &fakeManager{}
	engine := newTestEngine(t, session, mgr)

	summary, err := engine.Run(Request{Path: "//depot/main", Revision: depot.RevisionHead, FlushMode: depot.FlushAtomic, MaxConnections: 2})
	require.NoError(t, err)
	require.Equal(t, depot.OutcomeSuccess, summary.Outcome)
	require.Equal(t, 1, summary.FileCount)
	require.Equal(t, 1, summary.PlaceholderCount)
	require.Equal(t, int64(1024), summary.VirtualBytes)

	require.Len(t, mgr.installed, 1)
	require.Equal(t, clientFile, mgr.installed[0].Path)
	require.Equal(t, "//depot/main/a.cpp", mgr.installed[0].Metadata.DepotPath)
	require.Equal(t, int32(3), int32(mgr.installed[0].Metadata.FileRevision))
}

func TestRunForcesAlwaysResidentFilesFullyResident(t *testing.T) {
	root := t.TempDir()
	clientFile := filepath.Join(root, "a.sln")

	session := &fakeSession{changelist: 1, tags: []depot.TagRecord{
		{"depotFile": "//depot/main/a.sln", "clientFile": clientFile, "action": "added", "rev": "#1", "fileSize": "512"},
	}}
	mgr := &fakeManager{}
	engine := newTestEngine(t, session, mgr)

	summary, err := engine.Run(Request{
		Path:            "//depot/main",
		Revision:        depot.RevisionHead,
		FlushMode:       depot.FlushSingle,
		ResidentPattern: `\.sln$`,
		MaxConnections:  1,
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.AlwaysResidentCount)
	require.Equal(t, 0, summary.PlaceholderCount)
	require.Equal(t, int64(512), summary.DiskBytes)
	require.Empty(t, mgr.installed)
}

func TestRunSkipsUpToDateFiles(t *testing.T) {
	session := &fakeSession{changelist: 7, tags: []depot.TagRecord{
		{"depotFile": "//depot/main/a.cpp", "action": "up-to-date"},
	}}
	mgr := &fakeManager{}
	engine := newTestEngine(t, session, mgr)

	summary, err := engine.Run(Request{Path: "//depot/main", Revision: depot.RevisionHead, MaxConnections: 1})
	require.NoError(t, err)
	require.Equal(t, 1, summary.SkippedCount)
	require.Equal(t, depot.OutcomeSuccess, summary.Outcome)
}

func TestRunReportsErrorOutcomeOnCantClobber(t *testing.T) {
	session := &fakeSession{changelist: 7, tags: []depot.TagRecord{
		{"depotFile": "//depot/main/a.cpp", "action": "can't clobber writable file"},
	}}
	mgr := &fakeManager{}
	engine := newTestEngine(t, session, mgr)

	summary, err := engine.Run(Request{Path: "//depot/main", Revision: depot.RevisionHead, MaxConnections: 1})
	require.NoError(t, err)
	require.Equal(t, depot.OutcomeError, summary.Outcome)
	require.Equal(t, 1, summary.ErrorCount)
}

func TestRunRefusesToClobberWritableExistingFile(t *testing.T) {
	root := t.TempDir()
	clientFile := filepath.Join(root, "a.cpp")
	require.NoError(t, writeFile(clientFile, "local edits", 0644))

	session := &fakeSession{changelist: 1, tags: []depot.TagRecord{
		{"depotFile": "//depot/main/a.cpp", "clientFile": clientFile, "action": "updated", "rev": "#2", "fileSize": "11"},
	}}
	mgr := &fakeManager{}
	engine := newTestEngine(t, session, mgr)

	summary, err := engine.Run(Request{Path: "//depot/main", Revision: depot.RevisionHead, MaxConnections: 1})
	require.NoError(t, err)
	require.Equal(t, depot.OutcomeError, summary.Outcome)
	require.Empty(t, mgr.installed)
}

func TestRunAllowsWritableClobberWhenRequested(t *testing.T) {
	root := t.TempDir()
	clientFile := filepath.Join(root, "a.cpp")
	require.NoError(t, writeFile(clientFile, "local edits", 0644))

	session := &fakeSession{changelist: 1, tags: []depot.TagRecord{
		{"depotFile": "//depot/main/a.cpp", "clientFile": clientFile, "action": "updated", "rev": "#2", "fileSize": "11"},
	}}
	mgr := &fakeManager{}
	engine := newTestEngine(t, session, mgr)

	summary, err := engine.Run(Request{
		Path: "//depot/main", Revision: depot.RevisionHead, MaxConnections: 1,
		AllowWritableClobber: true,
	})
	require.NoError(t, err)
	require.Equal(t, depot.OutcomeSuccess, summary.Outcome)
	require.Len(t, mgr.installed, 1)
}

func TestRunReturnsErrNoSessionWhenPoolExhausted(t *testing.T) {
	engine := New(&exhaustedPool{}, &fakeManager{}, depot.Config{}, nil, nil)
	_, err := engine.Run(Request{Path: "//depot/main"})
	require.ErrorIs(t, err, errNoSession)
}

type exhaustedPool struct{}

func (exhaustedPool) Allocate(depot.Config) depot.Session { return nil }
func (exhaustedPool) Free(depot.PoolKey, depot.Session)   {}

func TestResolveRevisionPinsHeadToTopChangelist(t *testing.T) {
	session := &fakeSession{changelist: 99}
	mgr := &fakeManager{}
	engine := newTestEngine(t, session, mgr)

	rev, err := engine.resolveRevision(session, Request{Path: "//depot/main", Revision: depot.RevisionHead})
	require.NoError(t, err)
	require.Equal(t, "@99", rev.String())
}

func TestResolveRevisionPassesThroughExplicitChangelist(t *testing.T) {
	session := &fakeSession{}
	mgr := &fakeManager{}
	engine := newTestEngine(t, session, mgr)

	rev, err := engine.resolveRevision(session, Request{Path: "//depot/main", Revision: depot.RevisionChangelist(12)})
	require.NoError(t, err)
	require.Equal(t, "@12", rev.String())
	require.Empty(t, session.ran)
}

func TestActionsFromTextParsesAddedLine(t *testing.T) {
	actions := actionsFromText([]depot.TextLine{
		{Text: `//depot/main/a.cpp#3 - added as c:\ws\a.cpp`},
	})
	require.Len(t, actions, 1)
	require.Equal(t, depot.ActionAdded, actions[0].ActionKind)
	require.Equal(t, int32(3), actions[0].Revision)
	require.Equal(t, `c:\ws\a.cpp`, actions[0].ClientFile)
}

func TestPartitionSplitsByResidentPatternAndFlushMode(t *testing.T) {
	actions := []depot.SyncActionInfo{
		{DepotFile: "//depot/main/a.cpp"},
		{DepotFile: "//depot/main/a.sln"},
	}
	re, err := compileResidentPattern(`\.sln$`)
	require.NoError(t, err)

	placeholders, resident := partition(actions, depot.FlushSingle, re)
	require.Len(t, placeholders, 1)
	require.Len(t, resident, 1)
	require.Equal(t, "//depot/main/a.sln", resident[0].DepotFile)

	placeholders, resident = partition(actions, depot.FlushAtomic, re)
	require.Len(t, placeholders, 2)
	require.Empty(t, resident)
}

func writeFile(path, contents string, perm os.FileMode) error {
	return os.WriteFile(path, []byte(contents), perm)
}
