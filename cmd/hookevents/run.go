// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/hookevents/internal/observability"
	"github.com/holomush/hookevents/internal/plugin"
	"github.com/holomush/hookevents/pkg/errutil"
)

// runResult is the JSON line printed for a script line that failed.
type runResult struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fire events read line by line from stdin",
		Long: `Read commands from stdin, one per line, and print one JSON result per
line. Plugins are loaded once and stay loaded for the whole run.

  fire <event> [key=value...]
  filter <event> <value> [key=value...]

Blank lines and lines starting with # are skipped. When metrics_addr is
set, /metrics and health probes are served until the input ends.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScript(cmd, opts)
		},
	}
}

func runScript(cmd *cobra.Command, opts *rootOptions) error {
	conf, logger, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obsServer *observability.Server
	var metrics *observability.HookMetrics
	var manager atomic.Pointer[plugin.Manager]
	if conf.MetricsAddr != "" {
		obsServer = observability.NewServer(conf.MetricsAddr, func() bool {
			m := manager.Load()
			return m != nil && m.Ready()
		})
		metrics = obsServer.Metrics()
		errCh, err := obsServer.Start()
		if err != nil {
			return err //nolint:wrapcheck // server errors carry their own code
		}
		go func() {
			for serveErr := range errCh {
				logger.Error("observability server failed", "error", serveErr)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if stopErr := obsServer.Stop(shutdownCtx); stopErr != nil {
				logger.Warn("error stopping observability server", "error", stopErr)
			}
		}()
	}

	a, err := newApp(ctx, conf, logger, metrics)
	if err != nil {
		return err
	}
	manager.Store(a.manager)
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil {
			logger.Warn("error unloading plugins", "error", closeErr)
		}
	}()

	failed, total, err := a.runLines(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	logger.Info("run complete", "lines", total, "failed", failed)
	if failed > 0 {
		return oops.Code("RUN_FAILED").
			With("failed", failed).
			With("lines", total).
			Errorf("%d of %d lines failed", failed, total)
	}
	return nil
}

// runLines executes each command line from r and writes a JSON result per
// line to w. It returns how many lines failed and how many ran.
func (a *app) runLines(ctx context.Context, r io.Reader, w io.Writer) (failed, total int, err error) {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return failed, total, oops.With("line", lineNo).Wrapf(ctx.Err(), "run interrupted")
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		total++

		result, fireErr := a.runLine(ctx, line)
		if fireErr != nil {
			failed++
			errutil.LogError(a.logger, "line failed", oops.With("line", lineNo).Wrap(fireErr))
			if err := writeJSON(w, runResult{Line: lineNo, Error: fireErr.Error(), Code: errutil.Code(fireErr)}, false); err != nil {
				return failed, total, err
			}
			continue
		}
		if err := writeJSON(w, result, false); err != nil {
			return failed, total, err
		}
	}
	if err := scanner.Err(); err != nil {
		return failed, total, oops.Wrapf(err, "read input")
	}
	return failed, total, nil
}

// runLine parses and fires one command line.
func (a *app) runLine(ctx context.Context, line string) (*fireResult, error) {
	req, err := parseScriptLine(line)
	if err != nil {
		return nil, err
	}
	return a.fire(ctx, req)
}
