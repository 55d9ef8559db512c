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

// Package syncengine implements the batch placeholder-install operation
// spec.md §4.H describes: plan a sync against the depot's preview output,
// partition it into always-resident and placeholder-bound actions,
// parallelize installs across a bounded set of depot sessions, and
// aggregate a structured summary.
package syncengine

import (
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p4vfs/core/libs/go/depot"
	"github.com/p4vfs/core/libs/go/log"
	"github.com/p4vfs/core/libs/go/metrics"
	"github.com/p4vfs/core/libs/go/placeholder"
)

// Request describes one virtual sync call.
type Request struct {
	Path                 string
	Revision             depot.Revision // Empty/Head resolves to the current top changelist
	FlushMode            depot.FlushMode
	ResidentPattern      string // regex over depot paths; matches are always fully materialized
	MaxConnections       int
	AllowWritableClobber bool
}

// Summary is the structured result spec.md §4.H's final step calls for.
type Summary struct {
	// BatchID correlates this run's log lines across its concurrent apply
	// workers; it has no meaning to the depot or the driver protocol.
	BatchID             string
	Outcome             depot.Outcome
	FileCount           int
	PlaceholderCount    int
	AlwaysResidentCount int
	SkippedCount        int
	ErrorCount          int
	WarningCount        int
	VirtualBytes        int64
	DiskBytes           int64
	TotalDuration       time.Duration
	PlanDuration        time.Duration
	ApplyDuration       time.Duration
	Actions             []depot.SyncActionInfo
}

// sessionSource hands out and reclaims depot sessions, narrowed from
// depotpool.Pool so tests can substitute a fake.
type sessionSource interface {
	Allocate(cfg depot.Config) depot.Session
	Free(key depot.PoolKey, s depot.Session)
}

// Engine runs virtual syncs against one depot configuration.
type Engine struct {
	Pool    sessionSource
	Manager placeholder.Manager
	Config  depot.Config
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// New constructs an Engine.
func New(pool sessionSource, mgr placeholder.Manager, cfg depot.Config, logger *log.Logger, m *metrics.Metrics) *Engine {
	return &Engine{Pool: pool, Manager: mgr, Config: cfg, Logger: logger, Metrics: m}
}

// Run executes req end to end: resolve revision, plan, partition,
// parallelize, apply, and summarize.
func (e *Engine) Run(req Request) (Summary, error) {
	start := time.Now()
	batchID := uuid.NewString()

	session := e.Pool.Allocate(e.Config)
	if session == nil {
		return Summary{}, errNoSession
	}
	defer e.Pool.Free(e.Config.PoolKey(), session)

	rev, err := e.resolveRevision(session, req)
	if err != nil {
		return Summary{}, err
	}

	planStart := time.Now()
	actions, err := e.plan(session, req, rev)
	planDuration := time.Since(planStart)
	if err != nil {
		return Summary{}, err
	}

	residentRE, err := compileResidentPattern(req.ResidentPattern)
	if err != nil {
		return Summary{}, err
	}
	placeholderActions, alwaysResidentActions := partition(actions, req.FlushMode, residentRE)

	tracker := newOutcomeTracker()
	applyStart := time.Now()
	e.applyAll(req, placeholderActions, tracker, batchID)
	e.applyAll(req, alwaysResidentActions, tracker, batchID)
	applyDuration := time.Since(applyStart)

	placeholderCount, alwaysResidentCount := 0, 0
	for _, a := range append(append([]depot.SyncActionInfo{}, placeholderActions...), alwaysResidentActions...) {
		switch a.ActionKind {
		case depot.ActionAdded, depot.ActionUpdated, depot.ActionRefreshed, depot.ActionReplaced:
			if a.IsAlwaysResident {
				alwaysResidentCount++
			} else {
				placeholderCount++
			}
		}
	}

	summary := Summary{
		BatchID:             batchID,
		Outcome:             tracker.outcome(),
		FileCount:           len(actions),
		PlaceholderCount:    placeholderCount,
		AlwaysResidentCount: alwaysResidentCount,
		SkippedCount:        tracker.skipped,
		ErrorCount:          tracker.errors,
		WarningCount:        tracker.warnings,
		VirtualBytes:        tracker.virtualBytes,
		DiskBytes:           tracker.diskBytes,
		TotalDuration:       time.Since(start),
		PlanDuration:        planDuration,
		ApplyDuration:       applyDuration,
		Actions:             actions,
	}
	if e.Metrics != nil {
		e.Metrics.ObserveSyncDuration(summary.TotalDuration)
	}
	return summary, nil
}

func compileResidentPattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile(pattern)
}

func partition(actions []depot.SyncActionInfo, mode depot.FlushMode, residentRE *regexp.Regexp) (placeholderActions, alwaysResidentActions []depot.SyncActionInfo) {
	for i := range actions {
		a := actions[i]
		a.IsAlwaysResident = mode != depot.FlushAtomic && residentRE != nil && residentRE.MatchString(a.DepotFile)
		a.FlushMode = mode

		if mode == depot.FlushAtomic || !a.IsAlwaysResident {
			placeholderActions = append(placeholderActions, a)
		} else {
			alwaysResidentActions = append(alwaysResidentActions, a)
		}
	}
	return placeholderActions, alwaysResidentActions
}

// outcomeTracker accumulates the per-action log classification spec.md
// §4.H step 8 folds into Success/Warning/Error, plus byte/skip counters.
type outcomeTracker struct {
	mu           sync.Mutex
	errors       int
	warnings     int
	skipped      int
	virtualBytes int64
	diskBytes    int64
}

func newOutcomeTracker() *outcomeTracker { return &outcomeTracker{} }

func (t *outcomeTracker) recordError()            { t.mu.Lock(); t.errors++; t.mu.Unlock() }
func (t *outcomeTracker) recordWarning()          { t.mu.Lock(); t.warnings++; t.mu.Unlock() }
func (t *outcomeTracker) recordSkip()             { t.mu.Lock(); t.skipped++; t.mu.Unlock() }
func (t *outcomeTracker) addVirtualBytes(n int64) { t.mu.Lock(); t.virtualBytes += n; t.mu.Unlock() }
func (t *outcomeTracker) addDiskBytes(n int64)    { t.mu.Lock(); t.diskBytes += n; t.mu.Unlock() }

func (t *outcomeTracker) outcome() depot.Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.errors > 0 {
		return depot.OutcomeError
	}
	if t.warnings > 0 {
		return depot.OutcomeWarning
	}
	return depot.OutcomeSuccess
}
