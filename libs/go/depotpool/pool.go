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

// Package depotpool keys idle depot sessions by (port, user, client) and
// hands them out one at a time, per spec.md §4.C. A single mutex serializes
// every bucket mutation; sessions themselves are never safe for concurrent
// use, so the pool's check-out/check-in contract is the only thing standing
// between two callers racing on the same connection.
package depotpool

import (
	"sync"
	"time"

	"github.com/p4vfs/core/libs/go/depot"
	"github.com/p4vfs/core/libs/go/log"
)

// entry is one idle session plus the clock reading it was freed at, used to
// evict sessions whose idle age exceeds the pool's timeout.
type entry struct {
	session  depot.Session
	freedAt  time.Time
}

// Pool stores idle sessions bucketed by depot.PoolKey. All mutating
// operations hold mu only long enough to touch the map; connecting a new
// session, which can block on network I/O, always happens outside the lock.
type Pool struct {
	mu          sync.Mutex
	buckets     map[depot.PoolKey][]entry
	idleTimeout time.Duration
	exePath     string
	logger      *log.Logger
}

// New returns a Pool whose sessions are dropped once idle longer than
// idleTimeout. exePath is forwarded to depot.NewSession for every freshly
// constructed session.
func New(exePath string, idleTimeout time.Duration) *Pool {
	return &Pool{
		buckets:     make(map[depot.PoolKey][]entry),
		idleTimeout: idleTimeout,
		exePath:     exePath,
		logger:      log.Get(),
	}
}

// Allocate scans the bucket for key, dropping any candidate that is faulted,
// disconnected (HasFault reports a faulted state; a freed session is never
// stored disconnected) or aged out, and returns the first survivor. If the
// bucket is empty after pruning, it constructs, connects, and returns a
// fresh session — nil if the connect attempt itself fails.
func (p *Pool) Allocate(cfg depot.Config) depot.Session {
	key := cfg.PoolKey()

	p.mu.Lock()
	bucket := p.buckets[key]
	var survivor depot.Session
	now := time.Now()
	for len(bucket) > 0 {
		candidate := bucket[len(bucket)-1]
		bucket = bucket[:len(bucket)-1]
		if candidate.session.HasFault() {
			p.logger.Infof("depotpool: dropping faulted session for %+v", key)
			continue
		}
		if p.idleTimeout > 0 && now.Sub(candidate.freedAt) > p.idleTimeout {
			p.logger.Infof("depotpool: dropping idle-expired session for %+v", key)
			candidate.session.Close()
			continue
		}
		survivor = candidate.session
		break
	}
	p.buckets[key] = bucket
	p.mu.Unlock()

	if survivor != nil {
		return survivor
	}

	fresh := depot.NewSession(p.exePath)
	if err := fresh.Connect(cfg); err != nil {
		p.logger.Errorf("depotpool: connect failed for %+v: %v", key, err)
		return nil
	}
	p.logger.Infof("depotpool: allocated fresh session for %+v", key)
	return fresh
}

// Free pushes s back onto key's bucket, stamped with the current time for
// idle-age eviction; the session itself is not modified. Freeing under a different key than the one it was
// allocated with is legal; the pool only cares about the key given here.
func (p *Pool) Free(key depot.PoolKey, s depot.Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	p.buckets[key] = append(p.buckets[key], entry{session: s, freedAt: time.Now()})
	p.mu.Unlock()
}

// Clear drops and closes every session in every bucket.
func (p *Pool) Clear() {
	p.mu.Lock()
	all := p.buckets
	p.buckets = make(map[depot.PoolKey][]entry)
	p.mu.Unlock()

	for _, bucket := range all {
		for _, e := range bucket {
			e.session.Close()
		}
	}
}

// GarbageCollect drops and closes sessions that have sat idle longer than
// timeout, across every bucket, without disturbing sessions still within
// the window.
func (p *Pool) GarbageCollect(timeout time.Duration) {
	now := time.Now()
	var expired []depot.Session

	p.mu.Lock()
	for key, bucket := range p.buckets {
		kept := bucket[:0:0]
		for _, e := range bucket {
			if now.Sub(e.freedAt) > timeout {
				expired = append(expired, e.session)
				continue
			}
			kept = append(kept, e)
		}
		p.buckets[key] = kept
	}
	p.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
}

// Size reports the total number of idle sessions currently pooled, across
// every bucket. Exposed for tests and diagnostics (property P5/P6).
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, bucket := range p.buckets {
		n += len(bucket)
	}
	return n
}

// BucketSize reports the number of idle sessions pooled under key alone.
func (p *Pool) BucketSize(key depot.PoolKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets[key])
}
