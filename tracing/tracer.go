// Package tracing collects what happens on the bus by attaching hooks to
// coordinators.
package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/hooking"
)

// NamedHookable is a hookable domain with a name.
type NamedHookable interface {
	hooking.Hookable
	Name() string
}

// A Tracer can collect transaction traces
type Tracer interface {
	StartTransaction(req coordinator.Request)
	EndTransaction(rsp coordinator.Response)
	BusFault(err error)
}

// CollectTrace lets the tracer collect traces from a domain
func CollectTrace(domain NamedHookable, tracer Tracer) {
	for _, hook := range domain.Hooks() {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf(
				"domain %s already has tracer %s",
				domain.Name(), reflect.TypeOf(tracer)))
		}
	}

	h := traceHook{t: tracer}
	domain.AcceptHook(&h)
}

// A traceHook is a hook that forwards coordinator events to a tracer
type traceHook struct {
	t Tracer
}

// Func calls the tracer interfaces when the hook is triggered
func (h *traceHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case coordinator.HookPosRequestSent:
		h.t.StartTransaction(ctx.Item.(coordinator.Request))
	case coordinator.HookPosReplyReceived, coordinator.HookPosRequestExpired:
		h.t.EndTransaction(ctx.Item.(coordinator.Response))
	case coordinator.HookPosBusFault:
		h.t.BusFault(ctx.Item.(error))
	}
}
