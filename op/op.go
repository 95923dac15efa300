package op

import (
	"context"
	"fmt"

	"github.com/loomworks/loom/opctx"
)

// Op is the execution unit of the engine. Leaves wrap a user step in the
// uniform lifecycle; Sequential and Parallel are Ops whose children are Ops.
//
// Call serves ModeSync operations, AsyncCall serves ModeAsync ones; invoking
// the wrong one fails with ErrWrongMode. Both accept an existing context to
// extend (nil creates a fresh one) and overrides merged into the context
// before execution. Each invocation is independent: retry counters and hook
// calls start fresh while the operation's configuration persists.
type Op interface {
	Name() string
	Mode() Mode
	Call(cc *opctx.Context, overrides map[string]any) (any, error)
	AsyncCall(ctx context.Context, cc *opctx.Context, overrides map[string]any) (any, error)

	// Copy reconstructs an equivalent operation from the original
	// construction arguments, deep-copying children, so concurrent
	// invocations of one template never alias per-call state.
	Copy() (Op, error)
}

// Step is the execute phase of a synchronous operation.
type Step interface {
	Execute(cc *opctx.Context) (any, error)
}

// AsyncStep is the execute phase of an asynchronous operation.
type AsyncStep interface {
	ExecuteAsync(ctx context.Context, cc *opctx.Context) (any, error)
}

// BeforeHook runs before each execute attempt.
type BeforeHook interface {
	BeforeExecute(cc *opctx.Context) error
}

// AfterHook runs after a successful execute and may replace the result.
type AfterHook interface {
	AfterExecute(cc *opctx.Context, result any) (any, error)
}

// FallbackStep produces a last-resort result once retries are exhausted and
// the operation is not configured to raise. It is invoked at most once per
// invocation, only on the final attempt, and its result is never retried.
type FallbackStep interface {
	DefaultExecute(cc *opctx.Context, cause error) (any, error)
}

// Async variants of the lifecycle hooks. An asynchronous step may implement
// these instead of (or in addition to) the blocking forms; the engine
// prefers them on the async path.
type (
	AsyncBeforeHook interface {
		BeforeExecuteAsync(ctx context.Context, cc *opctx.Context) error
	}
	AsyncAfterHook interface {
		AfterExecuteAsync(ctx context.Context, cc *opctx.Context, result any) (any, error)
	}
	AsyncFallbackStep interface {
		DefaultExecuteAsync(ctx context.Context, cc *opctx.Context, cause error) (any, error)
	}
)

// StepCopier lets a step with per-call state participate in Copy. Steps that
// do not implement it are assumed stateless and shared between copies.
type StepCopier interface {
	CopyStep() any
}

// Binder lets a step keep a handle to the operation wrapping it, typically
// to reach SaveLoadCache, the llm or the vector store from inside Execute.
type Binder interface {
	BindOp(b *Base)
}

func checkMode(a, b Op) error {
	if a.Mode() != b.Mode() {
		return fmt.Errorf("%w: %q is %s but %q is %s",
			ErrModeMismatch, a.Name(), a.Mode(), b.Name(), b.Mode())
	}
	return nil
}

func ensureContext(cc *opctx.Context) *opctx.Context {
	if cc == nil {
		return opctx.New()
	}
	return cc
}
