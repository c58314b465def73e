// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/holomush/hookevents/internal/plugin"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the plugin manifest JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := plugin.GenerateSchema()
			if err != nil {
				return err //nolint:wrapcheck // already wrapped
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return err //nolint:wrapcheck // write errors surface as-is
		},
	}
}
