// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// hookInfo describes one registered hook.
type hookInfo struct {
	Hook      string `json:"hook"`
	Listeners int    `json:"listeners"`
}

// hooksConfig holds flags for the hooks command.
type hooksConfig struct {
	jsonOutput bool
}

func newHooksCmd(opts *rootOptions) *cobra.Command {
	cfg := &hooksConfig{}

	cmd := &cobra.Command{
		Use:   "hooks [pattern]",
		Short: "List hooks that plugins registered listeners on",
		Long: `List every hook with listeners after loading plugins, with the number
of listeners on each. The optional pattern is a glob over dot-separated
hook names: * matches one segment and ** any number of segments.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}
			return runHooks(cmd, opts, cfg, pattern)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output hooks as JSON")

	return cmd
}

func runHooks(cmd *cobra.Command, opts *rootOptions, cfg *hooksConfig, pattern string) error {
	conf, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, conf, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			logger.Warn("error unloading plugins", "error", closeErr)
		}
	}()

	names, err := a.registry.HookNames(pattern)
	if err != nil {
		return err //nolint:wrapcheck // pattern errors carry their own code
	}
	hooks := make([]hookInfo, 0, len(names))
	for _, name := range names {
		hooks = append(hooks, hookInfo{Hook: name, Listeners: a.registry.Count(name)})
	}

	if cfg.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), hooks, true)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "HOOK\tLISTENERS")
	for _, h := range hooks {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", h.Hook, h.Listeners)
	}
	return w.Flush() //nolint:wrapcheck // write errors surface as-is
}
