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

// Package integration wires the real depotpool, placeholder manager,
// residency resolver, and syncengine together against a p4fake depot,
// exercising the end-to-end scenarios spec.md §8 describes without a real
// p4d or kernel minifilter. Grounded on marmos91-dittofs's test/e2e tree,
// which drives its own protocol stack the same way: real production
// packages wired to each other, with only the outermost transport (there,
// the wire protocol; here, the depot server) replaced by a fake.
package integration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/p4vfs/core/libs/go/depot"
	"github.com/p4vfs/core/libs/go/depotpool"
	"github.com/p4vfs/core/libs/go/p4fake"
	"github.com/p4vfs/core/libs/go/placeholder"
	"github.com/p4vfs/core/libs/go/residency"
	"github.com/p4vfs/core/libs/go/reparse"
	"github.com/p4vfs/core/libs/go/syncengine"
)

// seedPool returns a depotpool.Pool whose bucket for cfg already holds s, so
// the first Allocate call returns it instead of constructing a real p4
// subprocess.
func seedPool(cfg depot.Config, s depot.Session) *depotpool.Pool {
	pool := depotpool.New("", time.Minute)
	pool.Free(cfg.PoolKey(), s)
	return pool
}

// Scenario 1 (spec.md §8): hydrate single file. A virtual sync installs a
// placeholder whose reparse payload parses and whose sparse length matches
// the depot size; resolving it then yields the depot's exact bytes.
func TestHydrateSingleFile(t *testing.T) {
	clientRoot := t.TempDir()
	content := []byte("line one\nline two\nline three\n")

	store := p4fake.NewDepot()
	store.Submit("//depot/src/a.cpp", content)

	cfg := depot.Config{Port: "perforce:1666", User: "alice", Client: "alice-ws", Directory: clientRoot}
	session := p4fake.NewSession(store, "//depot", clientRoot)
	pool := seedPool(cfg, session)

	manager := placeholder.NewManager()
	engine := syncengine.New(pool, manager, cfg, nil, nil)

	summary, err := engine.Run(syncengine.Request{Path: "//depot/src", Revision: depot.RevisionHead, FlushMode: depot.FlushSingle})
	require.NoError(t, err)
	require.Equal(t, depot.OutcomeSuccess, summary.Outcome)
	require.Equal(t, 1, summary.PlaceholderCount)
	require.Equal(t, int64(len(content)), summary.VirtualBytes)

	clientFile := filepath.Join(clientRoot, "src", "a.cpp")
	info, err := os.Stat(clientFile)
	require.NoError(t, err)
	require.Equal(t, int64(len(content)), info.Size())

	handle, err := manager.OpenByFileID(clientFile, true)
	require.NoError(t, err)
	md, isPlaceholder, err := manager.DetectPlaceholder(handle)
	require.NoError(t, err)
	require.True(t, isPlaceholder)
	require.Equal(t, reparse.ResidencyResident, md.ResidencyPolicy)
	require.Equal(t, uint32(1), md.FileRevision)
	handle.Close()

	resolver := residency.NewResolver(pool, manager, residency.MethodCopy, nil)
	applied, err := resolver.Resolve(clientFile, clientRoot, cfg.User, cfg.Client, 1)
	require.NoError(t, err)
	require.Equal(t, residency.AppliedResident, applied)

	hydrated, err := os.ReadFile(clientFile)
	require.NoError(t, err)
	require.Equal(t, content, hydrated)
}

// Scenario 2 (spec.md §8): reject writable clobber. A local file made
// writable, with no clobber permission recorded by the server, must refuse
// the sync rather than overwrite it.
func TestRejectWritableClobber(t *testing.T) {
	clientRoot := t.TempDir()
	content := []byte("depot revision\n")

	store := p4fake.NewDepot()
	store.Submit("//depot/src/a.cpp", content)

	cfg := depot.Config{Port: "perforce:1666", User: "alice", Client: "alice-ws", Directory: clientRoot}
	session := p4fake.NewSession(store, "//depot", clientRoot)
	pool := seedPool(cfg, session)

	clientFile := filepath.Join(clientRoot, "src", "a.cpp")
	require.NoError(t, os.MkdirAll(filepath.Dir(clientFile), 0o755))
	require.NoError(t, os.WriteFile(clientFile, []byte("local edits\n"), 0o644))

	manager := placeholder.NewManager()
	engine := syncengine.New(pool, manager, cfg, nil, nil)

	summary, err := engine.Run(syncengine.Request{Path: "//depot/src", Revision: depot.RevisionHead, FlushMode: depot.FlushSingle})
	require.NoError(t, err)
	require.Equal(t, depot.OutcomeError, summary.Outcome)
	require.Equal(t, 1, summary.ErrorCount)

	unchanged, err := os.ReadFile(clientFile)
	require.NoError(t, err)
	require.Equal(t, "local edits\n", string(unchanged))
}

// Scenario 4 (spec.md §8): alternate-stream guard. Resolving a path that
// carries no placeholder metadata (the stand-in for an alternate data
// stream, which never gets its own reparse sidecar) must not hydrate and
// must report the file as already resident.
func TestAlternateStreamGuardSkipsResolve(t *testing.T) {
	clientRoot := t.TempDir()
	plainFile := filepath.Join(clientRoot, "a.cpp")
	require.NoError(t, os.WriteFile(plainFile, []byte("already a real file\n"), 0o644))

	store := p4fake.NewDepot()
	cfg := depot.Config{Port: "perforce:1666", User: "alice", Client: "alice-ws", Directory: clientRoot}
	pool := seedPool(cfg, p4fake.NewSession(store, "//depot", clientRoot))

	manager := placeholder.NewManager()
	resolver := residency.NewResolver(pool, manager, residency.MethodCopy, nil)

	applied, err := resolver.Resolve(plainFile, clientRoot, cfg.User, cfg.Client, 1)
	require.NoError(t, err)
	require.Equal(t, residency.AppliedResident, applied)

	unchanged, err := os.ReadFile(plainFile)
	require.NoError(t, err)
	require.Equal(t, "already a real file\n", string(unchanged))
}

// Scenario 1 extended: a second sync of the same path after the first has
// already flushed the have-table reports up-to-date rather than
// re-installing a placeholder, matching a real server's have-table check.
func TestResyncUpToDateSkipsReinstall(t *testing.T) {
	clientRoot := t.TempDir()
	content := []byte("stable content\n")

	store := p4fake.NewDepot()
	store.Submit("//depot/src/a.cpp", content)

	cfg := depot.Config{Port: "perforce:1666", User: "alice", Client: "alice-ws", Directory: clientRoot}
	session := p4fake.NewSession(store, "//depot", clientRoot)
	pool := seedPool(cfg, session)

	manager := placeholder.NewManager()
	engine := syncengine.New(pool, manager, cfg, nil, nil)

	_, err := engine.Run(syncengine.Request{Path: "//depot/src", Revision: depot.RevisionHead, FlushMode: depot.FlushSingle})
	require.NoError(t, err)

	summary, err := engine.Run(syncengine.Request{Path: "//depot/src", Revision: depot.RevisionHead, FlushMode: depot.FlushSingle})
	require.NoError(t, err)
	require.Equal(t, depot.OutcomeSuccess, summary.Outcome)
	require.Equal(t, 1, summary.SkippedCount)
	require.Equal(t, 0, summary.PlaceholderCount+summary.AlwaysResidentCount)
}
