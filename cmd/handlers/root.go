/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flaneur",
		Short: "Flâneur runs the hyper-local content pipelines.",
		Long: `Flâneur enriches daily neighborhood briefs and articles and turns
auction, outdoor dining, brand residency and reader sighting events into
localized stories, all under a fixed wall-clock budget per run.

Pipelines are triggered over HTTP by an external scheduler ('flaneur serve'),
by the built-in scheduler ('flaneur schedule'), or by hand ('flaneur run').`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.flaneur.yaml or $HOME/.flaneur.yaml)")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewScheduleCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewSightingsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
