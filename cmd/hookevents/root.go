// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/hookevents/internal/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

// NewRootCmd creates the root command for the hookevents CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hookevents",
		Short: "Fire named events through prioritized hook listeners",
		Long: `hookevents dispatches named events and filters values through a
prioritized hook registry. Listeners come from Lua subscriber plugins
discovered in the plugins directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newFireCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newHooksCmd(opts))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newSchemaCmd())

	return cmd
}
