// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/hookevents/internal/plugin"
	pluginlua "github.com/holomush/hookevents/internal/plugin/lua"
)

// validateConfig holds flags for the validate command.
type validateConfig struct {
	skipScript bool
}

func newValidateCmd() *cobra.Command {
	cfg := &validateConfig{}

	cmd := &cobra.Command{
		Use:   "validate <plugin.yaml>...",
		Short: "Check plugin manifests and scripts",
		Long: `Validate each manifest against the plugin JSON Schema and the manifest
rules, then compile the plugin's Lua entry to check that every subscribed
event has a handler function.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, cfg, args)
		},
	}

	cmd.Flags().BoolVar(&cfg.skipScript, "skip-script", false, "only validate the manifest")

	return cmd
}

func runValidate(cmd *cobra.Command, cfg *validateConfig, paths []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	invalid := 0
	for _, path := range paths {
		m, err := validateManifest(ctx, path, !cfg.skipScript)
		if err != nil {
			invalid++
			cmd.PrintErrf("%s: %s\n", path, plugin.FormatSchemaError(err))
			continue
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s %s, %d events)\n", path, m.Name, m.Version, len(m.Events))
	}

	if invalid > 0 {
		return oops.Code(plugin.CodeInvalidManifest).
			With("invalid", invalid).
			Errorf("%d of %d manifests invalid", invalid, len(paths))
	}
	return nil
}

// validateManifest checks the manifest at path and, when compile is set,
// loads its script into a scratch Lua host.
func validateManifest(ctx context.Context, path string, compile bool) (*plugin.Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.With("path", path).Wrapf(err, "read manifest")
	}
	if err := plugin.ValidateSchema(data); err != nil {
		return nil, err //nolint:wrapcheck // schema errors carry their own code
	}
	m, err := plugin.ParseManifest(data)
	if err != nil {
		return nil, err //nolint:wrapcheck // manifest errors carry their own code
	}
	if !compile {
		return m, nil
	}

	host := pluginlua.NewHost()
	defer func() { _ = host.Close(ctx) }()
	if _, err := host.Load(ctx, m, filepath.Dir(path)); err != nil {
		return nil, err //nolint:wrapcheck // host errors carry plugin context
	}
	return m, nil
}
