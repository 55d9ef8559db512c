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

	"github.com/p4vfs/core/libs/go/driverproto"
	"github.com/p4vfs/core/libs/go/driversim"
)

// newLocalControlHarness builds the driver control channel these commands
// query. A real deployment would dial the kernel minifilter's control port;
// since that binding is out of scope here (§1), these commands exercise a
// freshly seeded driversim.ControlHarness instead, which is enough to
// demonstrate the control protocol's shape end to end on a dev machine.
func newLocalControlHarness() driverproto.ControlPort {
	return driversim.NewControlHarness(driverproto.DriverVersion{Major: 1})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Query the driver's reported version",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := newLocalControlHarness().GetVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d.%d.%d.%d\n", v.Major, v.Minor, v.Build, v.Revision)
		return nil
	},
}

var isConnectedCmd = &cobra.Command{
	Use:   "is-connected",
	Short: "Query whether the driver reports an active connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		connected, err := newLocalControlHarness().GetIsConnected()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), connected)
		return nil
	},
}

var getFlagCmd = &cobra.Command{
	Use:   "get-flag <name>",
	Short: "Read a driver control flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		harness, ok := newLocalControlHarness().(interface {
			Flag(driverproto.ControlFlag) bool
		})
		if !ok {
			return fmt.Errorf("p4vfsctl: control port does not support reading flags back")
		}
		fmt.Fprintln(cmd.OutOrStdout(), harness.Flag(driverproto.ControlFlag(args[0])))
		return nil
	},
}

var setFlagValue bool

var setFlagCmd = &cobra.Command{
	Use:   "set-flag <name>",
	Short: "Set a driver control flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newLocalControlHarness().SetFlag(driverproto.ControlFlag(args[0]), setFlagValue)
	},
}

func init() {
	setFlagCmd.Flags().BoolVar(&setFlagValue, "value", true, "value to set the flag to")
}
