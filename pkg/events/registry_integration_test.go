// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package events_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/hookevents/pkg/errutil"
	"github.com/holomush/hookevents/pkg/events"
	"github.com/holomush/hookevents/pkg/hook"
)

// auditSubscriber records the events it sees.
type auditSubscriber struct {
	seen []string
}

func (a *auditSubscriber) SubscribedEvents() map[string]events.Subscription {
	return map[string]events.Subscription{
		"order.placed":   events.Method("OnPlaced"),
		"order.shipped":  events.MethodPriority("OnShipped", 5),
		"order.title":    events.MethodPriorityArgs("Title", 20, 3),
		"order.refunded": events.MethodPriorityArgs("OnRefunded", 10, 2),
	}
}

func (a *auditSubscriber) OnPlaced(events.Event)  { a.seen = append(a.seen, "placed") }
func (a *auditSubscriber) OnShipped(events.Event) { a.seen = append(a.seen, "shipped") }

func (a *auditSubscriber) OnRefunded(_ events.Event, name string) {
	a.seen = append(a.seen, "refunded:"+name)
}

func (a *auditSubscriber) Title(value any, _ events.Event, name string) string {
	return value.(string) + " [" + name + "]"
}

// halfSubscriber declares one listener it has and one it lacks.
type halfSubscriber struct {
	auditSubscriber
}

func (h *halfSubscriber) SubscribedEvents() map[string]events.Subscription {
	return map[string]events.Subscription{
		"order.placed":  events.Method("OnPlaced"),
		"order.shipped": events.Method("Missing"),
	}
}

var _ = Describe("Dispatcher over hook.Registry", func() {
	var (
		registry   *hook.Registry
		dispatcher *events.Dispatcher
	)

	BeforeEach(func() {
		registry = hook.NewRegistry()
		var err error
		dispatcher, err = events.NewDispatcher(registry, events.WithPrefix("shop."))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("dispatching", func() {
		It("runs listeners in priority order with the unprefixed name and dispatcher", func() {
			var calls []string
			Expect(dispatcher.AddListener("order.placed", func(_ events.Event, name string, d *events.Dispatcher) {
				Expect(d).To(BeIdenticalTo(dispatcher))
				calls = append(calls, "late:"+name)
			}, 20, 3)).To(Succeed())
			Expect(dispatcher.AddListener("order.placed", func(_ events.Event, name string) {
				calls = append(calls, "early:"+name)
			}, 5, 2)).To(Succeed())

			event, err := dispatcher.Dispatch("order.placed", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(event).NotTo(BeNil())
			Expect(calls).To(Equal([]string{"early:order.placed", "late:order.placed"}))
		})

		It("registers listeners under the prefixed hook name", func() {
			Expect(dispatcher.AddListener("order.placed", func(events.Event) {}, 10, 1)).To(Succeed())
			Expect(registry.HasFilter("shop.order.placed")).To(BeTrue())
			Expect(registry.HasFilter("order.placed")).To(BeFalse())
			Expect(dispatcher.HasListeners("shop.order.placed")).To(BeTrue())
		})

		It("treats stop propagation as advisory", func() {
			var ran []string
			Expect(dispatcher.AddListener("order.placed", func(e events.Event) {
				ran = append(ran, "stopper")
				e.StopPropagation()
			}, 1, 1)).To(Succeed())
			Expect(dispatcher.AddListener("order.placed", func(e events.Event) {
				if e.IsPropagationStopped() {
					ran = append(ran, "skipped")
					return
				}
				ran = append(ran, "worked")
			}, 2, 1)).To(Succeed())

			event, err := dispatcher.Dispatch("order.placed", events.NewEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(event.IsPropagationStopped()).To(BeTrue())
			Expect(ran).To(Equal([]string{"stopper", "skipped"}))
		})

		It("reports the running event through nested dispatches", func() {
			var innerCurrent string
			var outerDoing, innerDoing, afterInner bool

			Expect(dispatcher.AddListener("inner", func(events.Event) {
				innerCurrent, _ = dispatcher.CurrentEvent()
				outerDoing = dispatcher.DoingEvent("outer")
				innerDoing = dispatcher.DoingEvent("inner")
			}, 10, 1)).To(Succeed())
			Expect(dispatcher.AddListener("outer", func(_ events.Event, _ string, d *events.Dispatcher) error {
				if _, err := d.Dispatch("inner", nil); err != nil {
					return err
				}
				afterInner = d.DoingEvent("inner")
				return nil
			}, 10, 3)).To(Succeed())

			_, err := dispatcher.Dispatch("outer", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(innerCurrent).To(Equal("shop.inner"))
			Expect(outerDoing).To(BeTrue())
			Expect(innerDoing).To(BeTrue())
			Expect(afterInner).To(BeFalse())

			_, running := dispatcher.CurrentEvent()
			Expect(running).To(BeFalse())
		})

		It("propagates listener errors", func() {
			boom := errors.New("boom")
			Expect(dispatcher.AddListener("order.placed", func(events.Event) error { return boom }, 10, 1)).To(Succeed())

			_, err := dispatcher.Dispatch("order.placed", nil)
			Expect(err).To(MatchError(boom))
			Expect(errutil.Code(err)).To(Equal(hook.CodeCallbackFailed))
		})
	})

	Describe("filtering", func() {
		It("pipes a plain value through every listener", func() {
			Expect(dispatcher.AddListener("order.total", func(v int) int { return v * 2 }, 10, 1)).To(Succeed())
			Expect(dispatcher.AddListener("order.total", func(v int) int { return v + 1 }, 20, 1)).To(Succeed())

			out, err := dispatcher.Filter("order.total", 5, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(11))
		})

		It("passes a generic event as both value and event", func() {
			ge := events.NewGenericEvent("order-1", map[string]any{"total": 5})
			Expect(dispatcher.AddListener("order.total", func(v *events.GenericEvent, e events.Event) *events.GenericEvent {
				Expect(e).To(BeIdenticalTo(v))
				total, err := v.Argument("total")
				Expect(err).NotTo(HaveOccurred())
				return v.SetArgument("total", total.(int)*10)
			}, 10, 2)).To(Succeed())

			out, err := dispatcher.Filter("order.total", ge, events.NewEvent())
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(BeIdenticalTo(ge))
			Expect(ge.Arguments()).To(HaveKeyWithValue("total", 50))
		})
	})

	Describe("method value listeners", func() {
		It("keeps method values of different receivers apart", func() {
			first, second := &auditSubscriber{}, &auditSubscriber{}
			onFirst, onSecond := first.OnPlaced, second.OnPlaced
			Expect(dispatcher.AddListener("order.placed", onFirst, 10, 1)).To(Succeed())
			Expect(dispatcher.AddListener("order.placed", onSecond, 10, 1)).To(Succeed())

			_, err := dispatcher.Dispatch("order.placed", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.seen).To(Equal([]string{"placed"}))
			Expect(second.seen).To(Equal([]string{"placed"}))

			removed, err := dispatcher.RemoveListener("order.placed", onFirst, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())
			_, ok := dispatcher.ListenerPriority("order.placed", onFirst)
			Expect(ok).To(BeFalse())
			priority, ok := dispatcher.ListenerPriority("order.placed", onSecond)
			Expect(ok).To(BeTrue())
			Expect(priority).To(Equal(10))

			_, err = dispatcher.Dispatch("order.placed", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.seen).To(HaveLen(1))
			Expect(second.seen).To(HaveLen(2))
		})
	})

	Describe("subscribers", func() {
		It("wires every declared subscription and removes them again", func() {
			sub := &auditSubscriber{}
			Expect(dispatcher.AddSubscriber(sub)).To(Succeed())

			priority, ok := dispatcher.ListenerPriority("order.shipped", hook.Method{Receiver: sub, Name: "OnShipped"})
			Expect(ok).To(BeTrue())
			Expect(priority).To(Equal(5))

			_, err := dispatcher.Dispatch("order.placed", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = dispatcher.Dispatch("order.shipped", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = dispatcher.Dispatch("order.refunded", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(sub.seen).To(Equal([]string{"placed", "shipped", "refunded:order.refunded"}))

			title, err := dispatcher.Filter("order.title", "Order 1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(title).To(Equal("Order 1 [order.title]"))

			Expect(dispatcher.RemoveSubscriber(sub)).To(Succeed())
			names, err := registry.HookNames("shop.**")
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(BeEmpty())
		})

		It("leaves nothing registered when one entry fails", func() {
			err := dispatcher.AddSubscriber(&halfSubscriber{})
			Expect(errutil.Code(err)).To(Equal(events.CodeInvalidListener))

			names, err := registry.HookNames("shop.**")
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(BeEmpty())
		})

		It("keeps two subscribers of the same type apart", func() {
			first, second := &auditSubscriber{}, &auditSubscriber{}
			Expect(dispatcher.AddSubscriber(first)).To(Succeed())
			Expect(dispatcher.AddSubscriber(second)).To(Succeed())
			Expect(dispatcher.RemoveSubscriber(first)).To(Succeed())

			_, err := dispatcher.Dispatch("order.placed", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.seen).To(BeEmpty())
			Expect(second.seen).To(Equal([]string{"placed"}))
		})
	})
})
