package loom

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"

	"github.com/loomworks/loom/cache"
	"github.com/loomworks/loom/op"
	"github.com/loomworks/loom/opctx"
	"github.com/loomworks/loom/pkg/slogx"
	"github.com/loomworks/loom/stream"
)

// Builder produces the operation tree for one invocation. The Flow calls it
// on every Call, AsyncCall and Stream so configuration changes and registry
// updates take effect without explicit invalidation, and no per-call state
// leaks between invocations.
type Builder func(params map[string]any) (op.Op, error)

// Flow is the top-level invocation wrapper around an operation tree. A
// non-streaming flow caches its responses content-addressed by invocation
// parameters; a streaming flow never consults or writes that cache and
// instead terminates its chunk channel with a done sentinel.
type Flow struct {
	name         string
	streaming    bool
	raiseOnError bool
	streamBuffer int

	cacheEnabled bool
	cachePrefix  string
	cacheTTL     time.Duration
	cache        cache.Handler

	params  map[string]any
	builder Builder
}

// Option configures a Flow.
type Option = opts.Option[Flow]

var (
	// WithName names the flow; the name participates in cache keys.
	WithName = opts.ForName[Flow, string]("name")

	// Streaming marks the flow as streaming: execution emits chunks on the
	// context's output channel and response caching is bypassed entirely.
	Streaming = opts.ForName[Flow, bool]("streaming")

	// RaiseOnError controls whether execution failures propagate to the
	// caller (true, the default) or are converted into an error response or
	// an error-tagged stream chunk.
	RaiseOnError = opts.ForName[Flow, bool]("raiseOnError")

	// WithParams attaches flow-level parameters merged under each
	// invocation's own.
	WithParams = opts.ForName[Flow, map[string]any]("params")

	// StreamBuffer sizes the chunk channel of streaming invocations.
	StreamBuffer = opts.ForName[Flow, int]("streamBuffer")
)

// WithResponseCache enables request-level response caching. Keys are stored
// under prefix with the given ttl. This cache is distinct from any
// per-operation caching inside the tree.
func WithResponseCache(h cache.Handler, prefix string, ttl time.Duration) Option {
	return opts.Type[Flow](func(f *Flow) error {
		f.cacheEnabled = true
		f.cache = h
		f.cachePrefix = prefix
		f.cacheTTL = ttl
		return nil
	})
}

// New builds a flow around builder.
func New(builder Builder, options ...Option) (*Flow, error) {
	if builder == nil {
		return nil, errors.New("flow needs a builder")
	}
	f := &Flow{
		name:         "Flow",
		raiseOnError: true,
		streamBuffer: 64,
		builder:      builder,
	}
	if err := opts.Apply(f, options); err != nil {
		return nil, err
	}
	return f, nil
}

// Must is New panicking on a construction error.
func Must(builder Builder, options ...Option) *Flow {
	f, err := New(builder, options...)
	if err != nil {
		panic(err)
	}
	return f
}

// Name returns the flow name.
func (f *Flow) Name() string { return f.name }

// Call executes the flow synchronously and returns the finished response.
// On a non-streaming flow with caching enabled, a cache hit returns the
// stored response without building or executing the operation tree.
func (f *Flow) Call(params map[string]any) (*opctx.Response, error) {
	return f.invoke(context.Background(), params, false)
}

// AsyncCall executes the flow as a cancellable task. Streaming flows do not
// serve AsyncCall; use Stream, which returns the chunk channel.
func (f *Flow) AsyncCall(ctx context.Context, params map[string]any) (*opctx.Response, error) {
	if f.streaming {
		return nil, fmt.Errorf("flow %q streams: use Stream to obtain the chunk channel", f.name)
	}
	return f.invoke(ctx, params, true)
}

func (f *Flow) invoke(ctx context.Context, params map[string]any, async bool) (*opctx.Response, error) {
	merged := f.mergedParams(params)

	var cacheKey string
	if f.cacheEnabled && f.cache != nil && !f.streaming {
		key, err := f.responseKey(merged)
		if err != nil {
			// cache-serialization failures are never fatal: proceed uncached
			slog.Warn("response cache disabled for this call",
				slog.String("flow", f.name), slogx.Error(err))
		} else {
			cacheKey = key
			if resp, ok := f.loadResponse(ctx, key); ok {
				return resp, nil
			}
		}
	}

	root, err := f.builder(merged)
	if err != nil {
		return f.contain(nil, fmt.Errorf("failed to build operation tree: %w", err))
	}

	cc := opctx.New()
	cc.Merge(merged)

	result, err := f.run(ctx, root, cc, async)
	if err != nil {
		return f.contain(cc, err)
	}

	resp := f.response(cc, result)
	if cacheKey != "" {
		f.storeResponse(ctx, cacheKey, resp)
	}
	return resp, nil
}

// run executes the root operation in whichever mode it carries. A blocking
// tree driven from a context-aware caller borrows a pool worker so the
// caller keeps its cancellation point.
func (f *Flow) run(ctx context.Context, root op.Op, cc *opctx.Context, async bool) (any, error) {
	if root.Mode() == op.ModeAsync {
		return root.AsyncCall(ctx, cc, nil)
	}
	if !async {
		return root.Call(cc, nil)
	}

	fut := op.Go(func() (any, error) { return root.Call(cc, nil) })
	select {
	case <-fut.Done():
		return fut.Wait()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// contain applies the flow's propagation policy to err.
func (f *Flow) contain(cc *opctx.Context, err error) (*opctx.Response, error) {
	if f.raiseOnError {
		return nil, err
	}
	attrs := []any{slog.String("flow", f.name), slogx.Error(err)}
	if cc != nil {
		attrs = append(attrs, slogx.ExecID(cc.ID()))
	}
	slog.Error("flow execution failed", attrs...)
	return &opctx.Response{Success: false, Answer: err.Error()}, nil
}

func (f *Flow) response(cc *opctx.Context, result any) *opctx.Response {
	if resp := cc.Response(); resp != nil {
		return resp
	}
	if resp, ok := result.(*opctx.Response); ok {
		return resp
	}
	return &opctx.Response{Success: true, Answer: result}
}

// Stream executes a streaming flow and returns its chunk channel. Consumers
// read until they observe the done sentinel; a failure surfaces as one
// error-tagged chunk followed by that sentinel, so consumers never hang.
// Response caching is unconditionally bypassed.
func (f *Flow) Stream(ctx context.Context, params map[string]any) (<-chan stream.Chunk, error) {
	if !f.streaming {
		return nil, fmt.Errorf("flow %q does not stream: use Call or AsyncCall", f.name)
	}

	merged := f.mergedParams(params)
	root, err := f.builder(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to build operation tree: %w", err)
	}

	cc := opctx.NewStreaming(f.streamBuffer)
	cc.Merge(merged)

	go func() {
		defer cc.CloseOutput()

		var err error
		if root.Mode() == op.ModeAsync {
			_, err = root.AsyncCall(ctx, cc, nil)
		} else {
			// a blocking tree runs on a borrowed pool worker so it cannot
			// stall context-aware callers sharing this goroutine's scheduler
			_, err = op.Go(func() (any, error) { return root.Call(cc, nil) }).Wait()
		}
		if err != nil {
			slog.Error("flow execution failed",
				slog.String("flow", f.name), slogx.ExecID(cc.ID()), slogx.Error(err))
			cc.Emit(stream.Failure(cc.ID(), err))
		}
		cc.Emit(stream.Done(cc.ID()))
	}()

	return cc.Out(), nil
}

func (f *Flow) mergedParams(params map[string]any) map[string]any {
	merged := make(map[string]any, len(f.params)+len(params))
	maps.Copy(merged, f.params)
	maps.Copy(merged, params)
	return merged
}

// responseKey derives the content address of one invocation: a stable hash
// over the canonical JSON of the merged parameters, so key equality is
// independent of parameter order.
func (f *Flow) responseKey(params map[string]any) (string, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to serialize invocation parameters: %w", err)
	}
	sum := sha256.Sum256(payload)
	key := f.name + ":" + hex.EncodeToString(sum[:])
	if f.cachePrefix != "" {
		key = f.cachePrefix + ":" + key
	}
	return key, nil
}

func (f *Flow) loadResponse(ctx context.Context, key string) (*opctx.Response, bool) {
	value, ok, err := f.cache.Load(ctx, key)
	if err != nil {
		slog.Warn("response cache load failed",
			slog.String("flow", f.name), slog.String("key", key), slogx.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp opctx.Response
	if err := value.Decode(&resp); err != nil {
		slog.Warn("response cache entry malformed",
			slog.String("flow", f.name), slog.String("key", key), slogx.Error(err))
		return nil, false
	}
	return &resp, true
}

func (f *Flow) storeResponse(ctx context.Context, key string, resp *opctx.Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("response not cached",
			slog.String("flow", f.name), slog.String("key", key), slogx.Error(err))
		return
	}
	value := cache.Value{Kind: cache.KindMapping, Raw: raw}
	if err := f.cache.Save(ctx, key, value, f.cacheTTL); err != nil {
		slog.Warn("response not cached",
			slog.String("flow", f.name), slog.String("key", key), slogx.Error(err))
	}
}
