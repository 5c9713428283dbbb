package hooking

import (
	"github.com/go-logr/logr"
)

// Named is implemented by hookable domains that carry a name.
type Named interface {
	Name() string
}

// LogHook writes every hook invocation to a logr.Logger. Error items are
// logged as errors; everything else is logged at the configured verbosity.
type LogHook struct {
	logger    logr.Logger
	verbosity int
}

// NewLogHook creates a LogHook that logs at the given verbosity level.
func NewLogHook(logger logr.Logger, verbosity int) *LogHook {
	return &LogHook{logger: logger, verbosity: verbosity}
}

// Func logs the hook context.
func (h *LogHook) Func(ctx HookCtx) {
	if ctx.Pos == nil {
		return
	}

	kv := []interface{}{"pos", ctx.Pos.Name}

	if named, ok := ctx.Domain.(Named); ok {
		kv = append(kv, "domain", named.Name())
	}

	if ctx.State != nil {
		kv = append(kv, "state", ctx.State.String())
	}

	if err, isErr := ctx.Item.(error); isErr {
		h.logger.Error(err, ctx.Pos.Name, kv...)
		return
	}

	if ctx.Item != nil {
		kv = append(kv, "item", ctx.Item)
	}

	h.logger.V(h.verbosity).Info(ctx.Pos.Name, kv...)
}
