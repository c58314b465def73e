// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/holomush/hookevents/internal/logging"
	"github.com/holomush/hookevents/pkg/events"
	"github.com/holomush/hookevents/pkg/hook"
)

// CodeInvalidInput is the error code for malformed command arguments.
const CodeInvalidInput = "INVALID_INPUT"

var tracer = otel.Tracer("github.com/holomush/hookevents/cmd/hookevents")

// fireRequest is one event to dispatch, or one value to filter when
// filter is set.
type fireRequest struct {
	name   string
	args   map[string]any
	filter bool
	value  any
}

// fireResult is the JSON document printed for each fired event.
type fireResult struct {
	Event   string               `json:"event"`
	Hook    string               `json:"hook"`
	Kind    hook.Kind            `json:"kind"`
	Stopped bool                 `json:"stopped"`
	Value   any                  `json:"value,omitempty"`
	Payload *events.GenericEvent `json:"payload"`
}

// fireConfig holds flags for the fire command.
type fireConfig struct {
	filter string
	pretty bool
}

func newFireCmd(opts *rootOptions) *cobra.Command {
	cfg := &fireConfig{}

	cmd := &cobra.Command{
		Use:   "fire <event> [key=value...]",
		Short: "Dispatch an event, or filter a value, through loaded plugins",
		Long: `Dispatch a generic event carrying the given arguments and print the
event as every listener left it. With --filter, pass the value through the
event's listeners instead and print the result.

Argument values are YAML scalars: 3 is a number, true a boolean, and
anything else a string.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFire(cmd, opts, cfg, args)
		},
	}

	cmd.Flags().StringVar(&cfg.filter, "filter", "", "filter this value instead of dispatching")
	cmd.Flags().BoolVar(&cfg.pretty, "pretty", false, "indent JSON output")

	return cmd
}

func runFire(cmd *cobra.Command, opts *rootOptions, cfg *fireConfig, args []string) error {
	req, err := newFireRequest(args[0], args[1:])
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("filter") {
		req.filter = true
		req.value = parseValue(cfg.filter)
	}

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

	result, err := a.fire(ctx, req)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result, cfg.pretty)
}

// newFireRequest parses key=value arguments for event name.
func newFireRequest(name string, assignments []string) (fireRequest, error) {
	if name == "" {
		return fireRequest{}, oops.Code(CodeInvalidInput).Errorf("event name is required")
	}
	args, err := parseAssignments(assignments)
	if err != nil {
		return fireRequest{}, err
	}
	return fireRequest{name: name, args: args}, nil
}

// parseAssignments turns key=value pairs into event arguments.
func parseAssignments(assignments []string) (map[string]any, error) {
	args := make(map[string]any, len(assignments))
	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, oops.Code(CodeInvalidInput).
				With("argument", a).
				Hint("arguments take the form key=value").
				Errorf("invalid argument %q", a)
		}
		args[key] = parseValue(raw)
	}
	return args, nil
}

// parseValue decodes raw as a YAML scalar so numbers and booleans keep
// their type. Anything that is not a plain scalar stays a string.
func parseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case int, float64, bool, string:
		return v
	default:
		return raw
	}
}

// fire dispatches or filters req inside a span. The event subject is a
// fresh request id.
func (a *app) fire(ctx context.Context, req fireRequest) (*fireResult, error) {
	hookName := a.dispatcher.EventName(req.name)
	kind := hook.KindAction
	if req.filter {
		kind = hook.KindFilter
	}

	ctx, span := tracer.Start(ctx, "hookevents.fire",
		trace.WithAttributes(
			attribute.String("hookevents.event", req.name),
			attribute.String("hookevents.hook", hookName),
			attribute.String("hookevents.kind", string(kind)),
		))
	defer span.End()
	ctx = logging.ContextWithEvent(ctx, hookName)

	payload := events.NewGenericEvent(ulid.Make().String(), req.args)
	result := &fireResult{
		Event:   req.name,
		Hook:    hookName,
		Kind:    kind,
		Payload: payload,
	}

	var err error
	if req.filter {
		result.Value, err = a.dispatcher.Filter(req.name, req.value, payload)
	} else {
		_, err = a.dispatcher.Dispatch(req.name, payload)
	}
	result.Stopped = payload.IsPropagationStopped()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, oops.With("event", req.name).With("hook", hookName).Wrap(err)
	}

	a.logger.DebugContext(ctx, "event fired",
		"kind", kind,
		"subject", payload.Subject(),
		"stopped", result.Stopped)
	return result, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return oops.Wrapf(err, "encode output")
	}
	return nil
}
