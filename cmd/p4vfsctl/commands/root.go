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

// Package commands implements p4vfsctl's subcommands: driver control-channel
// queries and manual virtual-sync invocation, grounded on the same cobra
// root-command idiom as cmd/p4vfsd/commands.
package commands

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "p4vfsctl",
	Short:         "Operator CLI for a p4vfsd deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var cfgFile string

// Execute runs the selected subcommand.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return cfgFile
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a p4vfsd config file (defaults to built-in settings)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(isConnectedCmd)
	rootCmd.AddCommand(getFlagCmd)
	rootCmd.AddCommand(setFlagCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
