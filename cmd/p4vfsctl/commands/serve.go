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
	serveConfigFile     string
	serveSimulateDriver bool
	serveWatchDir       string
	serveLogFile        string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hydration service in this process (dev convenience for p4vfsd start)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonrun.Run(daemonrun.Options{
			ConfigFile:     serveConfigFile,
			SimulateDriver: serveSimulateDriver,
			WatchDir:       serveWatchDir,
			LogFile:        serveLogFile,
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigFile, "config", "", "path to a p4vfsd config file")
	serveCmd.Flags().BoolVar(&serveSimulateDriver, "simulate-driver", false, "use the in-process driver simulation instead of a real minifilter binding")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch-dir", "", "directory the driver simulation watches for placeholder opens (required with --simulate-driver)")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "also write logs to this file in addition to the console")
}
