// Copyright 2024 The LizardFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd wires each daemon role onto its own cobra subcommand, the
// same split gcsfuse's cmd/root.go makes between the persistent root flags
// and a single mount invocation, generalized here to one subcommand per
// role (master, chunkserver, metalogger).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lizardfs-sub001",
	Short: "LizardFS-Go distributed chunk storage daemons",
	Long: `lizardfs-sub001 runs the master, chunkserver, and metalogger roles of a
MooseFS/LizardFS-style distributed chunk store.`,
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(chunkServerCmd)
	rootCmd.AddCommand(metaloggerCmd)
	rootCmd.AddCommand(probeCmd)
}
