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

package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/p4vfs/core/libs/go/driverproto"
	"github.com/p4vfs/core/libs/go/log"
	"github.com/p4vfs/core/libs/go/residency"
)

// fakePort is an in-memory driverproto.MessagePort for exercising Service
// without a real driver.
type fakePort struct {
	mu      sync.Mutex
	reqs    chan driverproto.Request
	replies []driverproto.Reply
	closed  bool
}

func newFakePort() *fakePort {
	return &fakePort{reqs: make(chan driverproto.Request, 64)}
}

func (p *fakePort) Connect() error { return nil }

func (p *fakePort) Receive(cancel <-chan struct{}) (driverproto.Request, error) {
	select {
	case r, ok := <-p.reqs:
		if !ok {
			return driverproto.Request{}, errClosed
		}
		return r, nil
	case <-cancel:
		return driverproto.Request{}, errClosed
	}
}

func (p *fakePort) Reply(r driverproto.Reply) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, r)
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.reqs)
	}
	return nil
}

func (p *fakePort) repliesSnapshot() []driverproto.Reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]driverproto.Reply, len(p.replies))
	copy(out, p.replies)
	return out
}

type stubErr string

func (e stubErr) Error() string { return string(e) }

const errClosed = stubErr("port closed")

// fakeResolver counts concurrent calls per normalized path to verify the
// service's per-path serialization.
type fakeResolver struct {
	mu       sync.Mutex
	active   map[string]int
	maxSeen  int32
	delay    time.Duration
	fail     bool
	applied  residency.Applied
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{active: make(map[string]int), applied: residency.AppliedResident}
}

func (f *fakeResolver) Resolve(path, directory, user, client string, poolSize int) (residency.Applied, error) {
	key := path
	f.mu.Lock()
	f.active[key]++
	if int32(f.active[key]) > atomic.LoadInt32(&f.maxSeen) {
		atomic.StoreInt32(&f.maxSeen, int32(f.active[key]))
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active[key]--
	f.mu.Unlock()

	if f.fail {
		return residency.Applied(0), errClosed
	}
	return f.applied, nil
}

func TestServiceResolveFileRepliesSuccess(t *testing.T) {
	port := newFakePort()
	resolver := newFakeResolver()
	svc := New(Config{WorkerPoolSize: 4, PoolSize: 2}, port, resolver, log.New(), nil)

	go svc.Run()
	port.reqs <- driverproto.Request{
		RequestID: 1,
		Operation: driverproto.OpResolveFile,
		ResolveFile: driverproto.ResolveFilePayload{
			DataName: `c:\ws\a.cpp`,
		},
	}

	require.Eventually(t, func() bool { return len(port.repliesSnapshot()) == 1 }, time.Second, time.Millisecond)
	reply := port.repliesSnapshot()[0]
	require.Equal(t, uint64(1), reply.RequestID)
	require.Equal(t, driverproto.StatusSuccess, reply.RequestResult)
	svc.Stop()
}

func TestServiceExcludedProcessRejected(t *testing.T) {
	port := newFakePort()
	resolver := newFakeResolver()
	svc := New(Config{ExcludedProcesses: map[uint32]bool{42: true}}, port, resolver, log.New(), nil)

	go svc.Run()
	port.reqs <- driverproto.Request{
		RequestID: 7,
		Operation: driverproto.OpResolveFile,
		ResolveFile: driverproto.ResolveFilePayload{
			DataName:  `c:\ws\a.cpp`,
			ProcessID: 42,
		},
	}

	require.Eventually(t, func() bool { return len(port.repliesSnapshot()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, driverproto.StatusUnsuccessful, port.repliesSnapshot()[0].RequestResult)
	svc.Stop()
}

func TestServiceSymlinkMapsToRetry(t *testing.T) {
	port := newFakePort()
	resolver := newFakeResolver()
	resolver.applied = residency.AppliedRetryAsSymlink
	svc := New(Config{}, port, resolver, log.New(), nil)

	go svc.Run()
	port.reqs <- driverproto.Request{
		RequestID:   2,
		Operation:   driverproto.OpResolveFile,
		ResolveFile: driverproto.ResolveFilePayload{DataName: `c:\ws\link.cpp`},
	}

	require.Eventually(t, func() bool { return len(port.repliesSnapshot()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, driverproto.StatusRetry, port.repliesSnapshot()[0].RequestResult)
	svc.Stop()
}

func TestServiceSamePathSerializedDistinctPathsConcurrent(t *testing.T) {
	port := newFakePort()
	resolver := newFakeResolver()
	resolver.delay = 30 * time.Millisecond
	svc := New(Config{WorkerPoolSize: 8}, port, resolver, log.New(), nil)

	go svc.Run()
	for i := 0; i < 3; i++ {
		port.reqs <- driverproto.Request{
			RequestID:   uint64(i + 1),
			Operation:   driverproto.OpResolveFile,
			ResolveFile: driverproto.ResolveFilePayload{DataName: `c:\ws\same.cpp`},
		}
	}
	for i := 0; i < 3; i++ {
		port.reqs <- driverproto.Request{
			RequestID:   uint64(100 + i),
			Operation:   driverproto.OpResolveFile,
			ResolveFile: driverproto.ResolveFilePayload{DataName: `c:\ws\distinct` + string(rune('a'+i)) + `.cpp`},
		}
	}

	require.Eventually(t, func() bool { return len(port.repliesSnapshot()) == 6 }, 2*time.Second, time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&resolver.maxSeen))
	svc.Stop()
}

func TestServiceLogWriteAlwaysSucceeds(t *testing.T) {
	port := newFakePort()
	resolver := newFakeResolver()
	svc := New(Config{}, port, resolver, log.New(), nil)

	go svc.Run()
	port.reqs <- driverproto.Request{
		RequestID:   3,
		Operation:   driverproto.OpLogWrite,
		LogWrite:    driverproto.LogWritePayload{Text: "driver message"},
	}

	require.Eventually(t, func() bool { return len(port.repliesSnapshot()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, driverproto.StatusSuccess, port.repliesSnapshot()[0].RequestResult)
	svc.Stop()
}

func TestServiceLastRequestTimeUpdatesOnResolveFile(t *testing.T) {
	port := newFakePort()
	resolver := newFakeResolver()
	svc := New(Config{}, port, resolver, log.New(), nil)
	require.True(t, svc.LastRequestTime().IsZero())

	go svc.Run()
	port.reqs <- driverproto.Request{
		RequestID:   4,
		Operation:   driverproto.OpResolveFile,
		ResolveFile: driverproto.ResolveFilePayload{DataName: `c:\ws\a.cpp`},
	}

	require.Eventually(t, func() bool { return !svc.LastRequestTime().IsZero() }, time.Second, time.Millisecond)
	svc.Stop()
}
