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

// Package daemonrun wires settings, logging, metrics, the depot session
// pool, the placeholder manager, the residency resolver, and the service
// loop into one runnable process. Both cmd/p4vfsd's own entrypoint and
// cmd/p4vfsctl's "serve" convenience command share this wiring, rather than
// each re-deriving it, so the two binaries can never drift on how a service
// is actually assembled.
package daemonrun

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/p4vfs/core/libs/go/depotpool"
	"github.com/p4vfs/core/libs/go/driverproto"
	"github.com/p4vfs/core/libs/go/driversim"
	"github.com/p4vfs/core/libs/go/log"
	"github.com/p4vfs/core/libs/go/metrics"
	"github.com/p4vfs/core/libs/go/placeholder"
	"github.com/p4vfs/core/libs/go/residency"
	"github.com/p4vfs/core/libs/go/service"
	"github.com/p4vfs/core/libs/go/settings"
)

// Options configures one Run call.
type Options struct {
	ConfigFile     string
	SimulateDriver bool
	WatchDir       string
	LogFile        string
}

// Run blocks until SIGINT/SIGTERM or the message port gives up permanently.
func Run(opts Options) error {
	cfg, err := settings.Load(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("daemonrun: load settings: %w", err)
	}

	logger := log.Get()
	logger.AddSink(log.NewConsole())
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("daemonrun: open log file: %w", err)
		}
		logger.AddSink(log.NewFile(f))
	}
	defer log.Shutdown()

	m := metrics.New(cfg.MetricsEnabled)
	if m != nil && cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, m.Handler()); err != nil {
				logger.Warningf("daemonrun: metrics listener: %v", err)
			}
		}()
	}

	pool := depotpool.New(cfg.P4Executable, cfg.SessionIdleTimeout)
	manager := placeholder.NewManager()
	resolver := residency.NewResolver(pool, manager, ParseHydrationMethod(cfg.HydrationMethod), cfg.ServerRedirects)

	port, err := openMessagePort(opts, logger)
	if err != nil {
		return err
	}
	defer port.Close()

	excluded := make(map[uint32]bool, len(cfg.ExcludedProcesses))
	for _, p := range cfg.ExcludedProcesses {
		if pid, err := parsePID(p); err == nil {
			excluded[pid] = true
		}
	}

	svc := service.New(service.Config{
		WorkerPoolSize:    cfg.WorkerPoolSize,
		PoolSize:          cfg.SessionPoolSize,
		ExcludedProcesses: excluded,
	}, port, resolver, logger, m)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run() }()

	select {
	case sig := <-sigCh:
		logger.Infof("daemonrun: received %s, shutting down", sig)
		svc.Stop()
		<-runErr
	case err := <-runErr:
		if err != nil {
			return fmt.Errorf("daemonrun: service loop: %w", err)
		}
	}
	return nil
}

func openMessagePort(opts Options, logger *log.Logger) (driverproto.MessagePort, error) {
	if !opts.SimulateDriver {
		return nil, fmt.Errorf("daemonrun: no kernel minifilter binding is built into this binary; run with --simulate-driver on a dev machine")
	}
	if opts.WatchDir == "" {
		return nil, fmt.Errorf("daemonrun: --watch-dir is required with --simulate-driver")
	}
	return driversim.New(logger, opts.WatchDir)
}

// ParseHydrationMethod maps settings.Settings.HydrationMethod onto a
// residency.Method, defaulting to MethodCopy for an empty or unrecognized
// value the way InstallDefaults' own "copy" default implies.
func ParseHydrationMethod(s string) residency.Method {
	switch s {
	case "move":
		return residency.MethodMove
	case "stream":
		return residency.MethodStream
	default:
		return residency.MethodCopy
	}
}

func parsePID(s string) (uint32, error) {
	var pid uint32
	_, err := fmt.Sscanf(s, "%d", &pid)
	return pid, err
}
