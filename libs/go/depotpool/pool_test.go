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

package depotpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/p4vfs/core/libs/go/depot"
)

// fakeSession is a minimal depot.Session stand-in so Pool's bucket logic can
// be exercised without shelling out to a real p4 executable.
type fakeSession struct {
	cfg     depot.Config
	faulted bool
	closed  bool
}

func (f *fakeSession) Connect(cfg depot.Config) error { f.cfg = cfg; return nil }
func (f *fakeSession) Login() error                   { return nil }
func (f *fakeSession) Run(depot.Command, depot.ResultHandler) error { return nil }
func (f *fakeSession) Diff(string, string) ([]string, error)        { return nil, nil }
func (f *fakeSession) HasFault() bool                 { return f.faulted }
func (f *fakeSession) Reset()                         { f.faulted = false }
func (f *fakeSession) Config() depot.Config           { return f.cfg }
func (f *fakeSession) Close()                         { f.closed = true }

func TestPoolFreeThenAllocateReturnsSameSession(t *testing.T) {
	p := New("", time.Hour)
	cfg := depot.Config{Port: "ssl:server:1666", User: "alice", Client: "alice_ws"}
	s := &fakeSession{}

	p.Free(cfg.PoolKey(), s)
	require.Equal(t, 1, p.Size())

	got := p.Allocate(cfg)
	require.Same(t, s, got)
	require.Equal(t, 0, p.Size())
}

func TestPoolAllocateDropsFaultedSession(t *testing.T) {
	p := New("", time.Hour)
	cfg := depot.Config{Port: "ssl:server:1666", User: "alice", Client: "alice_ws"}
	faulted := &fakeSession{faulted: true}

	p.Free(cfg.PoolKey(), faulted)
	require.Equal(t, 1, p.Size())

	// Allocate drops the faulted candidate and falls through to constructing
	// a fresh session via depot.NewSession, which will fail to connect in
	// this sandboxed test environment (no p4 binary) and return nil — the
	// assertion of interest is that the faulted entry never comes back and
	// the bucket is left empty either way.
	_ = p.Allocate(cfg)
	require.Equal(t, 0, p.Size())
}

func TestPoolAllocateDropsIdleExpiredSession(t *testing.T) {
	p := New("", time.Millisecond)
	cfg := depot.Config{Port: "ssl:server:1666", User: "alice", Client: "alice_ws"}
	s := &fakeSession{}

	p.Free(cfg.PoolKey(), s)
	time.Sleep(5 * time.Millisecond)

	_ = p.Allocate(cfg)
	require.True(t, s.closed)
	require.Equal(t, 0, p.Size())
}

func TestPoolFreeIgnoresNilSession(t *testing.T) {
	p := New("", time.Hour)
	p.Free(depot.PoolKey{Port: "x"}, nil)
	require.Equal(t, 0, p.Size())
}

func TestPoolClearClosesAllSessions(t *testing.T) {
	p := New("", time.Hour)
	cfg1 := depot.Config{Port: "a", User: "u", Client: "c"}
	cfg2 := depot.Config{Port: "b", User: "u", Client: "c"}
	s1, s2 := &fakeSession{}, &fakeSession{}
	p.Free(cfg1.PoolKey(), s1)
	p.Free(cfg2.PoolKey(), s2)

	p.Clear()
	require.Equal(t, 0, p.Size())
	require.True(t, s1.closed)
	require.True(t, s2.closed)
}

func TestPoolGarbageCollectOnlyDropsExpired(t *testing.T) {
	p := New("", time.Hour)
	cfg := depot.Config{Port: "a", User: "u", Client: "c"}
	fresh := &fakeSession{}
	p.Free(cfg.PoolKey(), fresh)

	p.GarbageCollect(time.Hour)
	require.Equal(t, 1, p.Size())
	require.False(t, fresh.closed)

	p.GarbageCollect(0)
	require.Equal(t, 0, p.Size())
	require.True(t, fresh.closed)
}

func TestPoolRekeyOnFree(t *testing.T) {
	p := New("", time.Hour)
	original := depot.Config{Port: "a", User: "u", Client: "c"}
	other := depot.Config{Port: "b", User: "v", Client: "d"}
	s := &fakeSession{}

	// Freeing under a different key than the session was allocated with is
	// legal; the bucket the session lands in is whatever key Free is given.
	p.Free(other.PoolKey(), s)
	require.Equal(t, 0, p.BucketSize(original.PoolKey()))
	require.Equal(t, 1, p.BucketSize(other.PoolKey()))
}
