// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package plugin_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/hookevents/internal/plugin"
	"github.com/holomush/hookevents/internal/plugin/capability"
	"github.com/holomush/hookevents/internal/plugin/hostfunc"
	pluginlua "github.com/holomush/hookevents/internal/plugin/lua"
	"github.com/holomush/hookevents/pkg/errutil"
	"github.com/holomush/hookevents/pkg/events"
	"github.com/holomush/hookevents/pkg/hook"
)

// findPluginsDir locates the repository plugins directory relative to the
// test's working directory.
func findPluginsDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for _, candidate := range []string{"../../plugins", "../../../plugins", "./plugins"} {
		path, err := filepath.Abs(filepath.Join(cwd, candidate))
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", os.ErrNotExist
}

var _ = Describe("Bundled plugins", func() {
	var (
		ctx        context.Context
		registry   *hook.Registry
		enforcer   *capability.Enforcer
		manager    *plugin.Manager
		dispatcher *events.Dispatcher
		logs       *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		pluginsDir, err := findPluginsDir()
		Expect(err).NotTo(HaveOccurred())

		logs = &bytes.Buffer{}
		registry = hook.NewRegistry()
		enforcer = capability.NewEnforcer()
		luaHost := pluginlua.NewHost(
			pluginlua.WithEnforcer(enforcer),
			pluginlua.WithHostFunctions(hostfunc.New(slog.New(slog.NewJSONHandler(logs, nil)))),
		)

		manager, err = plugin.NewManager(pluginsDir, registry,
			plugin.WithLuaHost(luaHost),
			plugin.WithPrefix("shop."))
		Expect(err).NotTo(HaveOccurred())
		Expect(manager.LoadAll(ctx)).To(Succeed())

		dispatcher, err = events.NewDispatcher(registry, events.WithPrefix("shop."))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(manager.Close(ctx)).To(Succeed())
	})

	Describe("loading", func() {
		It("loads every bundled plugin", func() {
			Expect(manager.ListPlugins()).To(Equal([]string{"loyalty-points", "order-audit"}))
			Expect(manager.Ready()).To(BeTrue())
		})

		It("grants order-audit its emits patterns", func() {
			Expect(enforcer.Grants("order-audit")).To(Equal([]string{"audit.*"}))
			Expect(enforcer.Grants("loyalty-points")).To(BeEmpty())
		})

		It("registers listeners under the manager prefix", func() {
			names, err := registry.HookNames("shop.**")
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(ConsistOf("shop.order.placed", "shop.order.refunded", "shop.order.points"))
		})
	})

	Describe("order-audit", func() {
		It("stamps the order and announces an audit record", func() {
			var recorded *events.GenericEvent
			Expect(dispatcher.AddListener("audit.recorded", func(ev *events.GenericEvent) {
				recorded = ev
			}, 10, 1)).To(Succeed())

			ev, err := dispatcher.Dispatch("order.placed", events.NewGenericEvent(nil, map[string]any{"order_id": "o-42"}))
			Expect(err).NotTo(HaveOccurred())

			auditID, err := ev.(*events.GenericEvent).Argument("audit_id")
			Expect(err).NotTo(HaveOccurred())
			_, err = ulid.Parse(auditID.(string))
			Expect(err).NotTo(HaveOccurred())

			Expect(recorded).NotTo(BeNil())
			Expect(recorded.Subject()).To(Equal("order-audit"))
			Expect(recorded.Arguments()).To(Equal(map[string]any{
				"audit_id": auditID,
				"order_id": "o-42",
				"action":   "order.placed",
			}))
			Expect(logs.String()).To(ContainSubstring("order o-42 placed"))
		})

		It("runs before default-priority listeners", func() {
			var sawAudit bool
			Expect(dispatcher.AddListener("order.placed", func(ev *events.GenericEvent) {
				sawAudit = ev.HasArgument("audit_id")
			}, 10, 1)).To(Succeed())

			_, err := dispatcher.Dispatch("order.placed", events.NewGenericEvent(nil, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(sawAudit).To(BeTrue())
		})

		It("marks refunds", func() {
			ev, err := dispatcher.Dispatch("order.refunded", events.NewGenericEvent(nil, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.(*events.GenericEvent).Arguments()).To(HaveKeyWithValue("refund_audited", true))
			Expect(logs.String()).To(ContainSubstring("order unknown refunded"))
		})

		It("loses its dispatch grant when unloaded", func() {
			Expect(manager.Unload(ctx, "order-audit")).To(Succeed())
			Expect(enforcer.Check("order-audit", "audit.recorded")).To(BeFalse())
			Expect(dispatcher.HasListeners("order.placed")).To(BeFalse())
		})
	})

	Describe("loyalty-points", func() {
		It("adds points for the order total", func() {
			order := events.NewGenericEvent(nil, map[string]any{"total": 125})
			points, err := dispatcher.Filter("order.points", 3, order)
			Expect(err).NotTo(HaveOccurred())
			Expect(points).To(Equal(15))
		})

		It("keeps the running total for orders without a total", func() {
			points, err := dispatcher.Filter("order.points", 7, events.NewGenericEvent(nil, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(points).To(Equal(7))
		})

		It("surfaces script errors with their code", func() {
			_, err := dispatcher.Filter("order.points", "three", events.NewGenericEvent(nil, nil))
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal(pluginlua.CodeScriptError))
		})
	})
})
