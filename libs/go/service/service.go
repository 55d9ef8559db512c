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

// Package service owns the message-port receive loop and the fixed-size
// worker pool that dispatches driver requests to the residency resolver
// (spec.md §4.F, §4.G). It never talks to NTFS or the depot directly; it
// only sequences work and enforces per-path mutual exclusion.
package service

import (
	"strings"
	"sync"
	"time"

	"github.com/p4vfs/core/libs/go/driverproto"
	"github.com/p4vfs/core/libs/go/log"
	"github.com/p4vfs/core/libs/go/metrics"
	"github.com/p4vfs/core/libs/go/residency"
)

// Resolver is the subset of residency.Resolver the service depends on,
// narrowed to an interface so tests can substitute a fake.
type Resolver interface {
	Resolve(path, directory, user, client string, poolSize int) (residency.Applied, error)
}

// Config bundles the service loop's tunables, normally populated from
// settings.Settings.
type Config struct {
	WorkerPoolSize    int
	ExcludedProcesses map[uint32]bool
	PoolSize          int
	ReconnectBackoff  time.Duration
}

// Service owns a MessagePort, a bounded worker pool, and the per-path
// mutual exclusion the spec requires: hydrations of distinct files run
// concurrently up to WorkerPoolSize, hydrations of the same (normalized)
// file are strictly serialized.
type Service struct {
	cfg      Config
	port     driverproto.MessagePort
	resolver Resolver
	logger   *log.Logger
	metrics  *metrics.Metrics

	sem chan struct{}

	mu       sync.Mutex
	inFlight map[string]bool
	waiters  map[string][]chan struct{}

	lastRequestMu   sync.Mutex
	lastRequestTime time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Service bound to port, dispatching ResolveFile requests
// through resolver.
func New(cfg Config, port driverproto.MessagePort, resolver Resolver, logger *log.Logger, m *metrics.Metrics) *Service {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 8
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 8
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	return &Service{
		cfg:      cfg,
		port:     port,
		resolver: resolver,
		logger:   logger,
		metrics:  m,
		sem:      make(chan struct{}, cfg.WorkerPoolSize),
		inFlight: make(map[string]bool),
		waiters:  make(map[string][]chan struct{}),
		stop:     make(chan struct{}),
	}
}

// LastRequestTime reports the start time of the most recently begun
// ResolveFile task, for a watchdog to report "last activity".
func (s *Service) LastRequestTime() time.Time {
	s.lastRequestMu.Lock()
	defer s.lastRequestMu.Unlock()
	return s.lastRequestTime
}

func (s *Service) touchLastRequestTime() {
	s.lastRequestMu.Lock()
	s.lastRequestTime = time.Now()
	s.lastRequestMu.Unlock()
}

// Stop signals the run loop and any blocked workers to unwind. Pending I/O
// is cancelled by closing the port.
func (s *Service) Stop() {
	close(s.stop)
	s.port.Close()
	s.wg.Wait()
}

// Run is the service loop of spec.md §4.F: connect, post a receive,
// dispatch to the worker pool, repeat. It returns when Stop is called or
// the port reports a permanent error.
func (s *Service) Run() error {
	for {
		select {
		case <-s.stop:
			return nil
		default:
		}

		if err := s.port.Connect(); err != nil {
			s.logger.Warningf("service: connect: %v; retrying in %s", err, s.cfg.ReconnectBackoff)
			select {
			case <-time.After(s.cfg.ReconnectBackoff):
				continue
			case <-s.stop:
				return nil
			}
		}

		if err := s.serveUntilDisconnect(); err != nil {
			s.logger.Warningf("service: disconnected: %v", err)
		}
		s.port.Close()

		select {
		case <-s.stop:
			return nil
		default:
		}
	}
}

func (s *Service) serveUntilDisconnect() error {
	for {
		req, err := s.port.Receive(s.stop)
		if err != nil {
			return err
		}
		s.dispatch(req)
	}
}

// dispatch enqueues req's task onto the worker pool. The semaphore paces
// concurrency; per-path mutual exclusion is enforced inside runTask.
func (s *Service) dispatch(req driverproto.Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case s.sem <- struct{}{}:
		case <-s.stop:
			return
		}
		if s.metrics != nil {
			s.metrics.SetWorkerQueueDepth(len(s.sem))
		}
		defer func() { <-s.sem }()
		s.runTask(req)
	}()
}

func (s *Service) runTask(req driverproto.Request) {
	switch req.Operation {
	case driverproto.OpResolveFile:
		s.handleResolveFile(req)
	case driverproto.OpLogWrite:
		s.handleLogWrite(req)
	}
}

func normalizeKey(dataName string) string {
	return strings.ToLower(dataName)
}

// acquirePath blocks until no other task targets the same normalized path,
// then marks it in-flight. Readiness is checked under s.mu, matching
// spec.md §4.F's "single mutex + readiness predicate" model.
func (s *Service) acquirePath(key string) {
	for {
		s.mu.Lock()
		if !s.inFlight[key] {
			s.inFlight[key] = true
			s.mu.Unlock()
			return
		}
		ch := make(chan struct{})
		s.waiters[key] = append(s.waiters[key], ch)
		s.mu.Unlock()

		select {
		case <-ch:
		case <-s.stop:
			return
		}
	}
}

func (s *Service) releasePath(key string) {
	s.mu.Lock()
	delete(s.inFlight, key)
	waiters := s.waiters[key]
	delete(s.waiters, key)
	s.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}

func (s *Service) handleResolveFile(req driverproto.Request) {
	p := req.ResolveFile
	if s.cfg.ExcludedProcesses[p.ProcessID] {
		s.port.Reply(driverproto.Reply{RequestID: req.RequestID, RequestResult: driverproto.StatusUnsuccessful})
		return
	}

	key := normalizeKey(p.DataName)
	s.acquirePath(key)
	defer s.releasePath(key)

	s.touchLastRequestTime()

	applied, err := s.resolver.Resolve(p.DataName, p.VolumeName, "", "", s.cfg.PoolSize)
	status := driverproto.StatusSuccess
	switch {
	case err != nil:
		status = driverproto.StatusUnsuccessful
		s.logger.Errorf("service: resolve %s: %v", p.DataName, err)
	case applied == residency.AppliedRetryAsSymlink:
		status = driverproto.StatusRetry
	}

	if s.metrics != nil {
		s.metrics.ObserveSyncFile(appliedOutcome(applied, err))
	}

	s.port.Reply(driverproto.Reply{RequestID: req.RequestID, RequestResult: status})
}

func appliedOutcome(applied residency.Applied, err error) string {
	if err != nil {
		return "error"
	}
	switch applied {
	case residency.AppliedResident:
		return "resident"
	case residency.AppliedRemoved:
		return "removed"
	case residency.AppliedRetryAsSymlink:
		return "retry_symlink"
	default:
		return "unknown"
	}
}

func (s *Service) handleLogWrite(req driverproto.Request) {
	s.logger.Infof("[Driver] %s", req.LogWrite.Text)
	s.port.Reply(driverproto.Reply{RequestID: req.RequestID, RequestResult: driverproto.StatusSuccess})
}
