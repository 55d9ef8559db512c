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
	"github.com/spf13/cobra"

	"github.com/p4vfs/core/libs/go/daemonrun"
)

var (
	simulateDriver bool
	watchDir       string
	logFile        string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the hydration service loop until signalled to stop",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&simulateDriver, "simulate-driver", false, "use the in-process driver simulation instead of a real minifilter binding")
	startCmd.Flags().StringVar(&watchDir, "watch-dir", "", "directory the driver simulation watches for placeholder opens (required with --simulate-driver)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "also write logs to this file in addition to the console")
}

func runStart(cmd *cobra.Command, args []string) error {
	return daemonrun.Run(daemonrun.Options{
		ConfigFile:     GetConfigFile(),
		SimulateDriver: simulateDriver,
		WatchDir:       watchDir,
		LogFile:        logFile,
	})
}
