package op

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/opctx"
)

// recordingStep appends its label to a shared trace when executed.
type recordingStep struct {
	label string
	mu    *sync.Mutex
	trace *[]string
}

func (s *recordingStep) Execute(*opctx.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.trace = append(*s.trace, s.label)
	return s.label, nil
}

type recordingAsyncStep struct {
	label string
	mu    *sync.Mutex
	trace *[]string
}

func (s *recordingAsyncStep) ExecuteAsync(context.Context, *opctx.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.trace = append(*s.trace, s.label)
	return s.label, nil
}

type tracer struct {
	mu    sync.Mutex
	trace []string
}

func (tr *tracer) syncOp(label string) *Base {
	return Must(&recordingStep{label: label, mu: &tr.mu, trace: &tr.trace}, WithName(label))
}

func (tr *tracer) asyncOp(label string) *Base {
	return Must(&recordingAsyncStep{label: label, mu: &tr.mu, trace: &tr.trace}, WithName(label))
}

type failingStep struct{ err error }

func (s *failingStep) Execute(*opctx.Context) (any, error) { return nil, s.err }

func TestSequential(t *testing.T) {
	t.Run("children run in declaration order", func(t *testing.T) {
		var tr tracer
		chain, err := NewSequential(tr.syncOp("first"), tr.syncOp("second"), tr.syncOp("third"))
		require.NoError(t, err)

		result, err := chain.Call(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "third", result, "result is the last child's")
		assert.Equal(t, []string{"first", "second", "third"}, tr.trace)
	})

	t.Run("one shared context threads through the chain", func(t *testing.T) {
		writer := Must(&contextWriter{key: "handoff", value: "payload"}, WithName("writer"))
		reader := Must(&contextReader{key: "handoff"}, WithName("reader"))
		chain, err := NewSequential(writer, reader)
		require.NoError(t, err)

		result, err := chain.Call(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "payload", result)
	})

	t.Run("a failing child stops the chain and names itself", func(t *testing.T) {
		var tr tracer
		boom := errors.New("boom")
		chain, err := NewSequential(
			tr.syncOp("first"),
			Must(&failingStep{err: boom}, WithName("broken")),
			tr.syncOp("never"),
		)
		require.NoError(t, err)

		_, err = chain.Call(nil, nil)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), `"broken"`)
		assert.Equal(t, []string{"first"}, tr.trace)
	})

	t.Run("needs at least one child", func(t *testing.T) {
		_, err := NewSequential()
		require.Error(t, err)
	})

	t.Run("rejects mixed modes", func(t *testing.T) {
		var tr tracer
		_, err := NewSequential(tr.syncOp("sync"), tr.asyncOp("async"))
		require.ErrorIs(t, err, ErrModeMismatch)
	})

	t.Run("direct children are disallowed", func(t *testing.T) {
		var tr tracer
		chain, err := NewSequential(tr.syncOp("only"))
		require.NoError(t, err)
		require.ErrorIs(t, chain.AddChild(tr.syncOp("extra")), ErrBadComposition)
	})

	t.Run("async chains check cancellation between children", func(t *testing.T) {
		var tr tracer
		chain, err := NewSequential(tr.asyncOp("first"), tr.asyncOp("second"))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = chain.AsyncCall(ctx, nil, nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, tr.trace)
	})
}

type contextWriter struct{ key, value string }

func (s *contextWriter) Execute(cc *opctx.Context) (any, error) {
	cc.Set(s.key, s.value)
	return s.value, nil
}

type contextReader struct{ key string }

func (s *contextReader) Execute(cc *opctx.Context) (any, error) {
	return cc.Value(s.key)
}

func TestParallel(t *testing.T) {
	t.Run("all children run and results are collected", func(t *testing.T) {
		var tr tracer
		fan, err := NewParallel(tr.syncOp("left"), tr.syncOp("right"))
		require.NoError(t, err)

		result, err := fan.Call(nil, nil)
		require.NoError(t, err)

		results, ok := result.([]any)
		require.True(t, ok)
		labels := make([]string, 0, len(results))
		for _, r := range results {
			labels = append(labels, r.(string))
		}
		sort.Strings(labels)
		assert.Equal(t, []string{"left", "right"}, labels)

		sort.Strings(tr.trace)
		assert.Equal(t, []string{"left", "right"}, tr.trace)
	})

	t.Run("list results are flattened into one list", func(t *testing.T) {
		listing := Must(&listStep{items: []any{"a", "b"}}, WithName("lister"))
		scalar := Must(&listStep{items: nil, scalar: "c"}, WithName("scalar"))
		fan, err := NewParallel(listing, scalar)
		require.NoError(t, err)

		result, err := fan.Call(nil, nil)
		require.NoError(t, err)
		results := result.([]any)
		sort.Slice(results, func(i, j int) bool { return results[i].(string) < results[j].(string) })
		assert.Equal(t, []any{"a", "b", "c"}, results)
	})

	t.Run("first failure wins after all children finish", func(t *testing.T) {
		var tr tracer
		boom := errors.New("boom")
		fan, err := NewParallel(
			Must(&failingStep{err: boom}, WithName("broken")),
			tr.syncOp("survivor"),
		)
		require.NoError(t, err)

		_, err = fan.Call(nil, nil)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), `"broken"`)
		assert.Equal(t, []string{"survivor"}, tr.trace, "siblings still run to completion")
	})

	t.Run("rejects mixed modes", func(t *testing.T) {
		var tr tracer
		_, err := NewParallel(tr.syncOp("sync"), tr.asyncOp("async"))
		require.ErrorIs(t, err, ErrModeMismatch)
	})

	t.Run("direct children are disallowed", func(t *testing.T) {
		var tr tracer
		fan, err := NewParallel(tr.syncOp("only"))
		require.NoError(t, err)
		require.ErrorIs(t, fan.AddChild(tr.syncOp("extra")), ErrBadComposition)
	})

	t.Run("async fan-out joins every child", func(t *testing.T) {
		var tr tracer
		fan, err := NewParallel(tr.asyncOp("left"), tr.asyncOp("right"))
		require.NoError(t, err)

		result, err := fan.AsyncCall(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Len(t, result, 2)
	})

	t.Run("copy preserves join configuration", func(t *testing.T) {
		var tr tracer
		fan, err := NewParallel(tr.asyncOp("a"))
		require.NoError(t, err)
		fan.WithJoinTimeout(42).WithReturnExceptions(true)

		dup, err := fan.Copy()
		require.NoError(t, err)
		dupFan := dup.(*Parallel)
		assert.Equal(t, fan.joinTimeout, dupFan.joinTimeout)
		assert.True(t, dupFan.returnExceptions)
	})
}

type listStep struct {
	items  []any
	scalar any
}

func (s *listStep) Execute(*opctx.Context) (any, error) {
	if s.items != nil {
		return s.items, nil
	}
	return s.scalar, nil
}

func TestThenAlso(t *testing.T) {
	t.Run("then chains two leaves", func(t *testing.T) {
		var tr tracer
		chain, err := Then(tr.syncOp("first"), tr.syncOp("second"))
		require.NoError(t, err)
		require.IsType(t, &Sequential{}, chain)

		_, err = chain.Call(nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, tr.trace)
	})

	t.Run("then extends an existing chain in place", func(t *testing.T) {
		var tr tracer
		chain, err := Then(tr.syncOp("a"), tr.syncOp("b"))
		require.NoError(t, err)

		extended, err := Then(chain, tr.syncOp("c"))
		require.NoError(t, err)
		assert.Same(t, chain, extended)
		assert.Len(t, extended.(*Sequential).Children(), 3)
	})

	t.Run("also groups two leaves", func(t *testing.T) {
		var tr tracer
		fan, err := Also(tr.syncOp("left"), tr.syncOp("right"))
		require.NoError(t, err)
		require.IsType(t, &Parallel{}, fan)
		assert.Len(t, fan.(*Parallel).Children(), 2)
	})

	t.Run("also extends an existing fan-out in place", func(t *testing.T) {
		var tr tracer
		fan, err := Also(tr.syncOp("a"), tr.syncOp("b"))
		require.NoError(t, err)

		extended, err := Also(fan, tr.syncOp("c"))
		require.NoError(t, err)
		assert.Same(t, fan, extended)
		assert.Len(t, extended.(*Parallel).Children(), 3)
	})

	t.Run("mode mismatch fails before any mutation", func(t *testing.T) {
		var tr tracer
		chain, err := Then(tr.syncOp("a"), tr.syncOp("b"))
		require.NoError(t, err)

		_, err = Then(chain, tr.asyncOp("c"))
		require.ErrorIs(t, err, ErrModeMismatch)
		assert.Len(t, chain.(*Sequential).Children(), 2, "failed composition must not extend the chain")

		_, err = Also(tr.syncOp("d"), tr.asyncOp("e"))
		require.ErrorIs(t, err, ErrModeMismatch)
	})

	t.Run("composites compose with each other", func(t *testing.T) {
		var tr tracer
		fan, err := Also(tr.syncOp("left"), tr.syncOp("right"))
		require.NoError(t, err)

		chain, err := Then(tr.syncOp("head"), fan)
		require.NoError(t, err)

		_, err = chain.Call(nil, nil)
		require.NoError(t, err)
		require.Len(t, tr.trace, 3)
		assert.Equal(t, "head", tr.trace[0], "head runs before the fan-out")
	})
}
