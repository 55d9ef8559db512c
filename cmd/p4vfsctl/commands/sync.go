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

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p4vfs/core/libs/go/depot"
	"github.com/p4vfs/core/libs/go/depotpool"
	"github.com/p4vfs/core/libs/go/placeholder"
	"github.com/p4vfs/core/libs/go/settings"
	"github.com/p4vfs/core/libs/go/syncengine"
)

var (
	syncRevision       string
	syncAtomic         bool
	syncResidentRegex  string
	syncMaxConnections int
	syncAllowClobber   bool
	syncPort           string
	syncUser           string
	syncClient         string
)

var syncCmd = &cobra.Command{
	Use:   "sync <depot-path>",
	Short: "Run a virtual sync against a depot path, installing placeholders",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncRevision, "revision", "", "revision specifier (#head, #42, @label, ...); default resolves to #head")
	syncCmd.Flags().BoolVar(&syncAtomic, "atomic", false, "install every file as a placeholder, ignoring --resident-pattern")
	syncCmd.Flags().StringVar(&syncResidentRegex, "resident-pattern", "", "regex over depot paths to always fully materialize")
	syncCmd.Flags().IntVar(&syncMaxConnections, "max-connections", 0, "bound on concurrent depot sessions used to apply the sync; 0 uses the configured default")
	syncCmd.Flags().BoolVar(&syncAllowClobber, "allow-writable-clobber", false, "overwrite writable on-disk files instead of refusing to clobber them")
	syncCmd.Flags().StringVar(&syncPort, "port", "", "P4PORT; defaults to the configured server")
	syncCmd.Flags().StringVar(&syncUser, "user", "", "P4USER")
	syncCmd.Flags().StringVar(&syncClient, "client", "", "P4CLIENT")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := settings.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("p4vfsctl: load settings: %w", err)
	}

	rev := depot.RevisionHead
	if syncRevision != "" {
		rev = depot.ParseRevision(syncRevision)
	}

	maxConnections := syncMaxConnections
	if maxConnections <= 0 {
		maxConnections = cfg.MaxSyncConnections
	}
	residentPattern := syncResidentRegex
	if residentPattern == "" {
		residentPattern = cfg.ResidentPattern
	}
	flushMode := depot.FlushSingle
	if syncAtomic {
		flushMode = depot.FlushAtomic
	}

	pool := depotpool.New(cfg.P4Executable, cfg.SessionIdleTimeout)
	engine := syncengine.New(pool, placeholder.NewManager(), depot.Config{
		Port:   syncPort,
		User:   syncUser,
		Client: syncClient,
	}, nil, nil)

	summary, err := engine.Run(syncengine.Request{
		Path:                 args[0],
		Revision:             rev,
		FlushMode:            flushMode,
		ResidentPattern:      residentPattern,
		MaxConnections:       maxConnections,
		AllowWritableClobber: syncAllowClobber,
	})
	if err != nil {
		return fmt.Errorf("p4vfsctl: sync: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "outcome: %s\n", summary.Outcome)
	fmt.Fprintf(out, "files: %d placeholders: %d always-resident: %d skipped: %d errors: %d warnings: %d\n",
		summary.FileCount, summary.PlaceholderCount, summary.AlwaysResidentCount, summary.SkippedCount, summary.ErrorCount, summary.WarningCount)
	fmt.Fprintf(out, "virtual bytes: %d disk bytes: %d duration: %s\n", summary.VirtualBytes, summary.DiskBytes, summary.TotalDuration)
	if summary.Outcome == depot.OutcomeError {
		return fmt.Errorf("p4vfsctl: sync completed with errors")
	}
	return nil
}
