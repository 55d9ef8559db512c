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

// Package residency resolves a placeholder to its final on-disk state —
// hydrated, deleted, or "retry as a symlink" — per spec.md §4.E. It is the
// glue between a placeholder's recorded metadata, a pooled depot session,
// and the placeholder file manager.
package residency

import (
	"errors"
	"fmt"

	"github.com/p4vfs/core/libs/go/depot"
	"github.com/p4vfs/core/libs/go/depotpool"
	"github.com/p4vfs/core/libs/go/log"
	"github.com/p4vfs/core/libs/go/placeholder"
	"github.com/p4vfs/core/libs/go/reparse"
)

// Method selects how Resident hydration moves depot bytes into a
// placeholder's data stream, per spec.md §4.E.
type Method int

const (
	// MethodCopy prints the revision into memory, then writes it into the
	// placeholder through its open handle.
	MethodCopy Method = iota
	// MethodMove prints to a temp file adjacent to the target and
	// atomically renames over it, preserving the target's file times.
	MethodMove
	// MethodStream streams `print -a <spec>` directly into the
	// placeholder's open handle.
	MethodStream
)

// Applied is the outcome Resolve returns on success, mirroring the
// ResolveFile status the service loop (§4.F) maps to an NT status code.
type Applied int

const (
	AppliedResident Applied = iota
	AppliedRemoved
	AppliedRetryAsSymlink
)

// errUndefinedPolicy is never returned to a caller as a failure: spec.md
// §4.E treats absent metadata or an undefined policy as "already resident,"
// so Resolve succeeds with AppliedResident instead of surfacing this.
var errUndefinedPolicy = errors.New("residency: undefined policy")

// Resolver ties a session pool and a placeholder manager together to act on
// one placeholder at a time.
type Resolver struct {
	Pool      *depotpool.Pool
	Manager   placeholder.Manager
	Method    Method
	Redirects []depot.ServerRedirect
	logger    *log.Logger
}

// NewResolver constructs a Resolver that logs through the process-wide
// logger (log.Get()).
func NewResolver(pool *depotpool.Pool, manager placeholder.Manager, method Method, redirects []depot.ServerRedirect) *Resolver {
	return &Resolver{Pool: pool, Manager: manager, Method: method, Redirects: redirects, logger: log.Get()}
}

// Resolve hydrates, deletes, or defers path according to its recorded
// placeholder metadata, per spec.md §4.E's four-step contract. poolSize
// bounds the retry count: retries up to max(1, poolSize+1) times, discarding
// (never freeing) any session that faults during the attempt.
func (r *Resolver) Resolve(path, directory, user, client string, poolSize int) (Applied, error) {
	handle, err := r.Manager.OpenByFileID(path, true)
	if err != nil {
		return AppliedResident, fmt.Errorf("residency: open %s: %w", path, err)
	}
	defer handle.Close()

	md, isPlaceholder, err := r.Manager.DetectPlaceholder(handle)
	if err != nil || !isPlaceholder {
		// Absent metadata: the file is not ours, treat it as already
		// resident and succeed.
		return AppliedResident, nil
	}

	server := depot.ResolveDepotServerName(md.DepotServer, r.Redirects)
	cfg := depot.Config{Port: server, User: user, Client: client, Directory: directory}

	switch md.ResidencyPolicy {
	case reparse.ResidencySymlink:
		return AppliedRetryAsSymlink, nil
	case reparse.ResidencyRemoveFile:
		return r.resolveRemove(path, cfg, poolSize)
	case reparse.ResidencyResident:
		return r.resolveResident(path, md, cfg, poolSize)
	default:
		r.logger.Warningf("residency: %s: %v, treating as already resident", path, errUndefinedPolicy)
		return AppliedResident, nil
	}
}

func (r *Resolver) retryBound(poolSize int) int {
	if poolSize < 0 {
		poolSize = 0
	}
	bound := poolSize + 1
	if bound < 1 {
		bound = 1
	}
	return bound
}

func (r *Resolver) resolveResident(path string, md reparse.Metadata, cfg depot.Config, poolSize int) (Applied, error) {
	var lastErr error
	for attempt := 0; attempt < r.retryBound(poolSize); attempt++ {
		session := r.Pool.Allocate(cfg)
		if session == nil {
			lastErr = fmt.Errorf("residency: no session available for %+v", cfg.PoolKey())
			continue
		}

		err := r.hydrate(session, path, md)
		if err != nil || session.HasFault() {
			// A discarded session is never freed back to the pool.
			session.Close()
			lastErr = err
			if err == nil {
				lastErr = fmt.Errorf("residency: session faulted hydrating %s", path)
			}
			r.logger.Warningf("residency: attempt %d for %s failed: %v", attempt+1, path, lastErr)
			continue
		}

		r.Pool.Free(cfg.PoolKey(), session)
		return AppliedResident, nil
	}
	return AppliedResident, fmt.Errorf("residency: hydrate %s: %w", path, lastErr)
}

func (r *Resolver) resolveRemove(path string, cfg depot.Config, poolSize int) (Applied, error) {
	if err := r.Manager.Uninstall(path, cfg.Directory); err != nil {
		return AppliedRemoved, fmt.Errorf("residency: remove %s: %w", path, err)
	}
	return AppliedRemoved, nil
}

func (r *Resolver) hydrate(session depot.Session, path string, md reparse.Metadata) error {
	switch r.Method {
	case MethodCopy:
		return hydrateCopy(session, r.Manager, path, md)
	case MethodMove:
		return hydrateMove(session, r.Manager, path, md)
	case MethodStream:
		return hydrateStream(session, r.Manager, path, md)
	default:
		return fmt.Errorf("residency: unknown hydration method %d", r.Method)
	}
}
