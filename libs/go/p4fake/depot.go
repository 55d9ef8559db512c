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

// Package p4fake is an in-memory stand-in for a Perforce server, used to
// drive end-to-end tests of the sync/residency/service stack without a
// real p4d. Unlike a function-override mock, it holds actual depot state
// (per-path revisions, per-client have-tables) and answers commands by
// consulting that state, the way the real server would.
package p4fake

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/p4vfs/core/libs/go/pathutil"
)

const filepathSeparator = filepath.Separator

// fileRevision is one submitted revision of a depot file.
type fileRevision struct {
	number     int32
	changelist int32
	content    []byte
	deleted    bool
	fileType   string
}

// depotFile is a depot path's full revision history, oldest first.
type depotFile struct {
	revisions []fileRevision
}

func (f *depotFile) head() fileRevision {
	return f.revisions[len(f.revisions)-1]
}

func (f *depotFile) at(rev int32) (fileRevision, bool) {
	for i := len(f.revisions) - 1; i >= 0; i-- {
		if f.revisions[i].number == rev {
			return f.revisions[i], true
		}
	}
	return fileRevision{}, false
}

func (f *depotFile) atOrBeforeChangelist(cl int32) (fileRevision, bool) {
	var best fileRevision
	found := false
	for _, r := range f.revisions {
		if r.changelist <= cl {
			best = r
			found = true
		}
	}
	return best, found
}

// Depot is the shared in-memory server state a group of p4fake Sessions
// connect to. A Depot is safe for concurrent use.
type Depot struct {
	mu         sync.Mutex
	files      map[string]*depotFile // keyed by depot path
	haveTables map[string]map[string]int32 // client -> depot path -> have revision
	changelist int32
}

// NewDepot returns an empty Depot.
func NewDepot() *Depot {
	return &Depot{
		files:      make(map[string]*depotFile),
		haveTables: make(map[string]map[string]int32),
	}
}

// Submit adds a new revision of depotPath with the given content, returning
// the changelist it was submitted at. Submits are serialized; each advances
// the depot's global changelist counter by one, mirroring a real server.
// The revision's file type is left unset, which runSync/runFstat report as
// an empty type and which ClassifyFileType treats as an opaque binary
// passthrough; use SubmitTyped to exercise a specific type.
func (d *Depot) Submit(depotPath string, content []byte) int32 {
	return d.SubmitTyped(depotPath, content, "")
}

// SubmitTyped is Submit with an explicit p4 file type (e.g. "text",
// "utf16", "binary"), the type the server reports in sync/fstat tag
// records and that the sync engine carries into a placeholder's reparse
// metadata for the hydration path's charset/line-ending decision.
func (d *Depot) SubmitTyped(depotPath string, content []byte, fileType string) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.changelist++
	f, ok := d.files[depotPath]
	if !ok {
		f = &depotFile{}
		d.files[depotPath] = f
	}
	rev := int32(len(f.revisions) + 1)
	f.revisions = append(f.revisions, fileRevision{number: rev, changelist: d.changelist, content: content, fileType: fileType})
	return d.changelist
}

// Delete submits a deletion of depotPath, returning the changelist.
func (d *Depot) Delete(depotPath string) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.changelist++
	f, ok := d.files[depotPath]
	if !ok {
		f = &depotFile{}
		d.files[depotPath] = f
	}
	rev := int32(len(f.revisions) + 1)
	f.revisions = append(f.revisions, fileRevision{number: rev, changelist: d.changelist, deleted: true})
	return d.changelist
}

// SetHave seeds client's have-table entry for depotPath without going
// through a sync, useful for constructing a test's starting state.
func (d *Depot) SetHave(client, depotPath string, rev int32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.have(client)[depotPath] = rev
}

func (d *Depot) have(client string) map[string]int32 {
	t, ok := d.haveTables[client]
	if !ok {
		t = make(map[string]int32)
		d.haveTables[client] = t
	}
	return t
}

// TopChangelist returns the depot's current global changelist.
func (d *Depot) TopChangelist() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.changelist
}

// matchDepotPath reports whether pattern (a depot path, optionally
// ending in "/..." ) matches path.
func matchDepotPath(pattern, path string) bool {
	prefix := strings.TrimSuffix(pattern, "...")
	if prefix == pattern {
		return pathutil.EqualFold(pattern, path)
	}
	return strings.HasPrefix(strings.ToLower(path), strings.ToLower(prefix))
}

// matchingPaths returns every known depot path matching pattern, sorted.
func (d *Depot) matchingPaths(pattern string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for p := range d.files {
		if matchDepotPath(pattern, p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// depotPathToClientFile renders depotPath into clientRoot's tree, assuming
// a one-to-one view mapping rooted at depotRoot — real view mapping is out
// of scope for this simulation.
func depotPathToClientFile(depotRoot, clientRoot, depotPath string) string {
	rel := strings.TrimPrefix(depotPath, depotRoot)
	rel = strings.TrimPrefix(rel, "/")
	return clientRoot + string(filepathSeparator) + strings.ReplaceAll(rel, "/", string(filepathSeparator))
}

func (d *Depot) fileAt(depotPath string, rev int32) (fileRevision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[depotPath]
	if !ok {
		return fileRevision{}, fmt.Errorf("p4fake: no such file %s", depotPath)
	}
	if rev <= 0 {
		return f.head(), nil
	}
	r, ok := f.at(rev)
	if !ok {
		return fileRevision{}, fmt.Errorf("p4fake: no such revision %s#%d", depotPath, rev)
	}
	return r, nil
}
