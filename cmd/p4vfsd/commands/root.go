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

// Package commands implements the p4vfsd CLI: a thin cobra wrapper around
// the service wiring in start.go.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version is stamped at build time by the release tooling.
	Version = "dev"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:           "p4vfsd",
	Short:         "Hydration service for a virtualized Perforce workspace",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the selected subcommand. It is the only entry point main
// calls.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a p4vfsd config file (defaults to built-in settings)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return cfgFile
}
