package op

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fogfish/opts"

	"github.com/loomworks/loom/cache"
	"github.com/loomworks/loom/opctx"
	"github.com/loomworks/loom/pkg/slogx"
	"github.com/loomworks/loom/provider"
	"github.com/loomworks/loom/vector"
)

// Base wraps a user step in the uniform operation lifecycle: before-hook,
// execute, after-hook, wrapped in a bounded retry loop with a terminal
// fallback and optional keyed caching. The execution mode is derived from
// the step's shape (Step is sync, AsyncStep is async) and fixed for the
// operation's lifetime.
type Base struct {
	name         string
	mode         Mode
	maxRetries   int
	raiseOnError bool

	cacheEnabled bool
	cachePrefix  string
	cacheTTL     time.Duration
	cache        cache.Handler

	params      map[string]any
	llm         provider.Provider
	vectorStore vector.Store

	step    any
	options []Option

	children []Op
	named    map[string]Op

	mu      sync.Mutex
	futures []*Future
	tasks   TaskGroup
}

var _ Op = &Base{}

// Option configures a Base operation.
type Option = opts.Option[Base]

var (
	// WithName overrides the operation name, which otherwise defaults to the
	// step's type name.
	WithName = opts.ForName[Base, string]("name")

	// WithMaxRetries bounds how many times the lifecycle is attempted per
	// invocation. The default is 1.
	WithMaxRetries = opts.ForName[Base, int]("maxRetries")

	// WithRaiseOnError controls whether an exhausted retry loop propagates
	// the failure (true, the default) or substitutes the fallback result.
	WithRaiseOnError = opts.ForName[Base, bool]("raiseOnError")

	// WithParams attaches free-form operation parameters.
	WithParams = opts.ForName[Base, map[string]any]("params")
)

// WithLLM injects the chat backend exposed to the step as LLM().
func WithLLM(p provider.Provider) Option {
	return opts.Type[Base](func(b *Base) error {
		b.llm = p
		return nil
	})
}

// WithVectorStore injects the vector backend exposed to the step as
// VectorStore().
func WithVectorStore(s vector.Store) Option {
	return opts.Type[Base](func(b *Base) error {
		b.vectorStore = s
		return nil
	})
}

// WithCache enables SaveLoadCache on this operation. Keys are stored under
// prefix with the given ttl; a ttl of zero or less never expires.
func WithCache(h cache.Handler, prefix string, ttl time.Duration) Option {
	return opts.Type[Base](func(b *Base) error {
		b.cacheEnabled = true
		b.cache = h
		b.cachePrefix = prefix
		b.cacheTTL = ttl
		return nil
	})
}

// New builds an operation around step. The step must implement exactly one
// of Step (sync) or AsyncStep (async); implementing both or neither is a
// construction error, surfaced here rather than at run time.
func New(step any, options ...Option) (*Base, error) {
	if step == nil {
		return nil, errors.New("operation step cannot be nil")
	}

	_, isSync := step.(Step)
	_, isAsync := step.(AsyncStep)
	switch {
	case isSync && isAsync:
		return nil, fmt.Errorf("%w: step %T implements both Execute and ExecuteAsync", ErrBadComposition, step)
	case !isSync && !isAsync:
		return nil, fmt.Errorf("%w: step %T implements neither Execute nor ExecuteAsync", ErrBadComposition, step)
	}

	b := &Base{
		maxRetries:   1,
		raiseOnError: true,
		step:         step,
		options:      slices.Clone(options),
	}
	if isAsync {
		b.mode = ModeAsync
	}

	if err := opts.Apply(b, options); err != nil {
		return nil, err
	}
	if b.name == "" {
		b.name = stepName(step)
	}
	if b.maxRetries < 1 {
		b.maxRetries = 1
	}

	if binder, ok := step.(Binder); ok {
		binder.BindOp(b)
	}
	return b, nil
}

// Must builds an operation around step and panics on a construction error.
func Must(step any, options ...Option) *Base {
	b, err := New(step, options...)
	if err != nil {
		panic(err)
	}
	return b
}

func stepName(step any) string {
	t := reflect.TypeOf(step)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// Name returns the operation name.
func (b *Base) Name() string { return b.name }

// Mode returns the fixed execution mode.
func (b *Base) Mode() Mode { return b.mode }

// Params returns the free-form operation parameters.
func (b *Base) Params() map[string]any { return b.params }

// LLM returns the injected chat backend, or nil.
func (b *Base) LLM() provider.Provider { return b.llm }

// VectorStore returns the injected vector backend, or nil.
func (b *Base) VectorStore() vector.Store { return b.vectorStore }

// MaxRetries returns the configured retry bound.
func (b *Base) MaxRetries() int { return b.maxRetries }

// RaisesOnError reports whether exhausted retries propagate the failure.
func (b *Base) RaisesOnError() bool { return b.raiseOnError }

// Step returns the wrapped user step.
func (b *Base) Step() any { return b.step }

// Call runs the lifecycle on the calling goroutine. It requires ModeSync.
func (b *Base) Call(cc *opctx.Context, overrides map[string]any) (any, error) {
	if b.mode != ModeSync {
		return nil, fmt.Errorf("operation %q: %w: use AsyncCall for %s operations", b.name, ErrWrongMode, b.mode)
	}
	cc = ensureContext(cc)
	cc.Merge(overrides)

	start := time.Now()
	result, err := b.withRetry(cc,
		func() (any, error) { return b.runOnce(cc) },
		func(cause error) (any, error) { return b.runFallback(cc, cause) },
	)
	slog.Debug("operation finished",
		slogx.Op(b.name), slogx.ExecID(cc.ID()), slogx.Elapsed(start))
	return result, err
}

// AsyncCall runs the lifecycle as a cancellable task on the calling
// goroutine. It requires ModeAsync.
func (b *Base) AsyncCall(ctx context.Context, cc *opctx.Context, overrides map[string]any) (any, error) {
	if b.mode != ModeAsync {
		return nil, fmt.Errorf("operation %q: %w: use Call for %s operations", b.name, ErrWrongMode, b.mode)
	}
	cc = ensureContext(cc)
	cc.Merge(overrides)

	start := time.Now()
	result, err := b.withRetry(cc,
		func() (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return b.runOnceAsync(ctx, cc)
		},
		func(cause error) (any, error) { return b.runFallbackAsync(ctx, cc, cause) },
	)
	slog.Debug("operation finished",
		slogx.Op(b.name), slogx.ExecID(cc.ID()), slogx.Elapsed(start))
	return result, err
}

// withRetry attempts the lifecycle up to maxRetries times. Failures before
// the final attempt are logged and retried. A final-attempt failure either
// propagates (raise on error) or is replaced by the fallback result exactly
// once; the fallback itself is never retried. A single guarded attempt with
// raise-on-error set skips the loop entirely.
func (b *Base) withRetry(cc *opctx.Context, attempt func() (any, error), fallback func(error) (any, error)) (any, error) {
	if b.maxRetries == 1 && b.raiseOnError {
		return attempt()
	}

	for i := 1; ; i++ {
		result, err := attempt()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrInvalidInput) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		slog.Warn("operation attempt failed",
			slogx.Op(b.name), slogx.ExecID(cc.ID()),
			slog.Int("attempt", i), slog.Int("max_retries", b.maxRetries),
			slogx.Error(err))

		if i < b.maxRetries {
			continue
		}
		if b.raiseOnError {
			return nil, err
		}
		return fallback(err)
	}
}

func (b *Base) runOnce(cc *opctx.Context) (any, error) {
	if hook, ok := b.step.(BeforeHook); ok {
		if err := hook.BeforeExecute(cc); err != nil {
			return nil, err
		}
	}

	result, err := b.step.(Step).Execute(cc)
	if err != nil {
		return nil, err
	}

	if hook, ok := b.step.(AfterHook); ok {
		result, err = hook.AfterExecute(cc, result)
		if err != nil {
			return nil, err
		}
	}

	return b.orResponse(cc, result), nil
}

func (b *Base) runOnceAsync(ctx context.Context, cc *opctx.Context) (any, error) {
	switch hook := b.step.(type) {
	case AsyncBeforeHook:
		if err := hook.BeforeExecuteAsync(ctx, cc); err != nil {
			return nil, err
		}
	case BeforeHook:
		if err := hook.BeforeExecute(cc); err != nil {
			return nil, err
		}
	}

	result, err := b.step.(AsyncStep).ExecuteAsync(ctx, cc)
	if err != nil {
		return nil, err
	}

	switch hook := b.step.(type) {
	case AsyncAfterHook:
		result, err = hook.AfterExecuteAsync(ctx, cc, result)
	case AfterHook:
		result, err = hook.AfterExecute(cc, result)
	}
	if err != nil {
		return nil, err
	}

	return b.orResponse(cc, result), nil
}

// orResponse substitutes the context's response record when the step
// produced nothing, so callers always see whatever the tree accumulated.
func (b *Base) orResponse(cc *opctx.Context, result any) any {
	if result != nil {
		return result
	}
	if resp := cc.Response(); resp != nil {
		return resp
	}
	return nil
}

func (b *Base) runFallback(cc *opctx.Context, cause error) (any, error) {
	if fb, ok := b.step.(FallbackStep); ok {
		return fb.DefaultExecute(cc, cause)
	}
	return nil, nil
}

func (b *Base) runFallbackAsync(ctx context.Context, cc *opctx.Context, cause error) (any, error) {
	switch fb := b.step.(type) {
	case AsyncFallbackStep:
		return fb.DefaultExecuteAsync(ctx, cc, cause)
	case FallbackStep:
		return fb.DefaultExecute(cc, cause)
	}
	return nil, nil
}

// SaveLoadCache memoizes fn under key. On a hit the cached value is returned
// without invoking fn; on a miss fn runs and its result is stored with the
// configured ttl. With caching disabled it degrades to calling fn. Cache
// I/O failures are logged and never fail the computation. This is the
// per-operation primitive, independent of the flow-level response cache.
func (b *Base) SaveLoadCache(ctx context.Context, key string, fn func() (cache.Value, error)) (cache.Value, error) {
	if !b.cacheEnabled || b.cache == nil {
		return fn()
	}

	full := key
	if b.cachePrefix != "" {
		full = b.cachePrefix + ":" + key
	}

	cached, ok, err := b.cache.Load(ctx, full)
	if err != nil {
		slog.Warn("cache load failed, recomputing",
			slogx.Op(b.name), slog.String("key", full), slogx.Error(err))
	} else if ok {
		return cached, nil
	}

	value, err := fn()
	if err != nil {
		return cache.Value{}, err
	}
	if err := b.cache.Save(ctx, full, value, b.cacheTTL); err != nil {
		slog.Warn("cache save failed, proceeding uncached",
			slogx.Op(b.name), slog.String("key", full), slogx.Error(err))
	}
	return value, nil
}

// AddChild appends child to the ordered child list. It fails when the
// operation already holds named children, or on a mode mismatch.
func (b *Base) AddChild(child Op) error {
	if err := checkMode(b, child); err != nil {
		return err
	}
	if len(b.named) > 0 {
		return fmt.Errorf("%w: operation %q already has named children", ErrBadComposition, b.name)
	}
	b.children = append(b.children, child)
	return nil
}

// AddNamed stores child under name in the child mapping. It fails when the
// operation already holds list-shaped children, or on a mode mismatch.
func (b *Base) AddNamed(name string, child Op) error {
	if err := checkMode(b, child); err != nil {
		return err
	}
	if len(b.children) > 0 {
		return fmt.Errorf("%w: operation %q already has list children", ErrBadComposition, b.name)
	}
	if b.named == nil {
		b.named = make(map[string]Op)
	}
	b.named[name] = child
	return nil
}

// Children returns the ordered child list.
func (b *Base) Children() []Op { return b.children }

// Child returns the named child, when the operation holds a child mapping.
func (b *Base) Child(name string) (Op, bool) {
	child, ok := b.named[name]
	return child, ok
}

// Copy reconstructs an equivalent operation from the original construction
// arguments and deep-copies children. The step is copied through StepCopier
// when it carries per-call state and shared otherwise.
func (b *Base) Copy() (Op, error) {
	return b.CopyWith()
}

// CopyWith is Copy plus configuration overrides applied on top of the
// original construction arguments.
func (b *Base) CopyWith(overrides ...Option) (*Base, error) {
	step := b.step
	if copier, ok := step.(StepCopier); ok {
		step = copier.CopyStep()
	}

	options := slices.Clone(b.options)
	options = append(options, overrides...)
	fresh, err := New(step, options...)
	if err != nil {
		return nil, err
	}

	for _, child := range b.children {
		dup, err := child.Copy()
		if err != nil {
			return nil, err
		}
		if err := fresh.AddChild(dup); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(b.named))
	for name := range b.named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dup, err := b.named[name].Copy()
		if err != nil {
			return nil, err
		}
		if err := fresh.AddNamed(name, dup); err != nil {
			return nil, err
		}
	}

	return fresh, nil
}
