// Package hooking lets observers attach to the positions where a component
// changes state, without the component knowing who is listening.
package hooking

import "fmt"

// HookPos names a place in a component where hooks are invoked.
type HookPos struct {
	Name string
}

// HookCtx describes one hook invocation.
type HookCtx struct {
	// Domain is the component that invoked the hook.
	Domain Hookable

	// Pos is where in the component the hook was invoked.
	Pos *HookPos

	// Item is the subject of the event, such as a request, a response or
	// an error.
	Item interface{}

	// State is the state of the domain once the event has taken effect. It
	// is nil for domains without a state machine.
	State fmt.Stringer
}

// Hookable is a component that observers can attach to.
type Hookable interface {
	// AcceptHook registers a hook.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// Hooks returns all the hooks registered.
	Hooks() []Hook
}

// Hook is an observer that a Hookable calls at its hook positions.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts an ordinary function into a Hook.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// HookableBase implements Hookable. Components embed it and call InvokeHook.
type HookableBase struct {
	hooks []Hook
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	return h.hooks
}

// AcceptHook registers a hook. Registering the same hook twice panics;
// function hooks cannot be compared and are always accepted.
func (h *HookableBase) AcceptHook(hook Hook) {
	if _, isFunc := hook.(HookFunc); !isFunc {
		for _, registered := range h.hooks {
			if registered == hook {
				panic("duplicated hook")
			}
		}
	}

	h.hooks = append(h.hooks, hook)
}

// InvokeHook calls every registered hook, in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}
