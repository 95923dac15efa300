package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/loomworks/loom/op"
	"github.com/loomworks/loom/opctx"
)

func searchDescriptor() *Descriptor {
	return Must("search",
		Description("find documents matching a query"),
		Input("query", Attr{Type: "string", Required: true}),
		Input("limit", Attr{Type: "integer"}),
		Output("result", Attr{Type: "string"}),
	)
}

func TestStep(t *testing.T) {
	t.Run("inputs are bound from the context", func(t *testing.T) {
		var seen map[string]any
		step := NewStep(searchDescriptor(), func(inputs map[string]any) (map[string]any, error) {
			seen = inputs
			return map[string]any{"result": "found"}, nil
		})

		cc := opctx.New()
		cc.Set("query", "golang")
		cc.Set("limit", 5)
		cc.Set("unrelated", "ignored")

		_, err := op.Must(step).Call(cc, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"query": "golang", "limit": 5}, seen)
	})

	t.Run("outputs are written back to the context", func(t *testing.T) {
		step := NewStep(searchDescriptor(), func(map[string]any) (map[string]any, error) {
			return map[string]any{"result": "found"}, nil
		})

		cc := opctx.New()
		cc.Set("query", "golang")

		_, err := op.Must(step).Call(cc, nil)
		require.NoError(t, err)
		assert.Equal(t, "found", cc.Get("result", nil))
	})

	t.Run("a missing required input fails validation without retries", func(t *testing.T) {
		calls := 0
		step := NewStep(searchDescriptor(), func(map[string]any) (map[string]any, error) {
			calls++
			return nil, nil
		})

		b := op.Must(step, op.WithMaxRetries(3), op.WithRaiseOnError(false))
		_, err := b.Call(opctx.New(), nil)
		require.ErrorIs(t, err, op.ErrInvalidInput)
		assert.Contains(t, err.Error(), `"query"`)
		assert.Zero(t, calls)
	})

	t.Run("optional inputs may be absent", func(t *testing.T) {
		var seen map[string]any
		step := NewStep(searchDescriptor(), func(inputs map[string]any) (map[string]any, error) {
			seen = inputs
			return map[string]any{"result": "ok"}, nil
		})

		cc := opctx.New()
		cc.Set("query", "golang")

		_, err := op.Must(step).Call(cc, nil)
		require.NoError(t, err)
		_, hasLimit := seen["limit"]
		assert.False(t, hasLimit)
	})

	t.Run("each invocation binds a fresh call id", func(t *testing.T) {
		step := NewStep(searchDescriptor(), func(map[string]any) (map[string]any, error) {
			return map[string]any{"result": "ok"}, nil
		})
		b := op.Must(step)

		cc := opctx.New()
		cc.Set("query", "golang")

		_, err := b.Call(cc, nil)
		require.NoError(t, err)
		first := step.CallID()
		require.NotEmpty(t, first)

		_, err = b.Call(cc, nil)
		require.NoError(t, err)
		assert.NotEqual(t, first, step.CallID())
	})
}

func TestRemapAndInstances(t *testing.T) {
	t.Run("remapped attributes read and write different keys", func(t *testing.T) {
		step := NewStep(searchDescriptor(), func(inputs map[string]any) (map[string]any, error) {
			return map[string]any{"result": inputs["query"]}, nil
		}, Remap(map[string]string{"query": "user_question", "result": "search_hits"}))

		cc := opctx.New()
		cc.Set("user_question", "what is go")

		_, err := op.Must(step).Call(cc, nil)
		require.NoError(t, err)
		assert.Equal(t, "what is go", cc.Get("search_hits", nil))
		assert.False(t, cc.Has("result"))
	})

	t.Run("parallel instances stay apart through suffixed keys", func(t *testing.T) {
		makeOp := func(index int) *op.Base {
			step := NewStep(searchDescriptor(), func(inputs map[string]any) (map[string]any, error) {
				return map[string]any{"result": inputs["query"]}, nil
			}, Instance(index))
			return op.Must(step, op.WithName(step.Descriptor().Name))
		}

		fan, err := op.NewParallel(makeOp(1), makeOp(2))
		require.NoError(t, err)

		cc := opctx.New()
		cc.Set("query.1", "first question")
		cc.Set("query.2", "second question")

		_, err = fan.Call(cc, nil)
		require.NoError(t, err)
		assert.Equal(t, "first question", cc.Get("result.1", nil))
		assert.Equal(t, "second question", cc.Get("result.2", nil))
		assert.False(t, cc.Has("result"))
	})
}

func TestFallbackPlaceholders(t *testing.T) {
	t.Run("exhausted retries fill every output with the placeholder", func(t *testing.T) {
		desc := Must("enrich",
			Input("query", Attr{Type: "string", Required: true}),
			Output("summary", Attr{Type: "string"}),
			Output("keywords", Attr{Type: "string"}),
		)
		step := NewStep(desc, func(map[string]any) (map[string]any, error) {
			return nil, errors.New("backend down")
		})

		b := op.Must(step, op.WithMaxRetries(2), op.WithRaiseOnError(false))
		cc := opctx.New()
		cc.Set("query", "golang")

		result, err := b.Call(cc, nil)
		require.NoError(t, err)
		assert.Equal(t, FailedOutput, cc.Get("summary", nil))
		assert.Equal(t, FailedOutput, cc.Get("keywords", nil))

		outputs, ok := result.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, FailedOutput, outputs["summary"])
	})

	t.Run("placeholders land on resolved keys", func(t *testing.T) {
		step := NewStep(searchDescriptor(), func(map[string]any) (map[string]any, error) {
			return nil, errors.New("backend down")
		}, Instance(3))

		b := op.Must(step, op.WithRaiseOnError(false))
		cc := opctx.New()
		cc.Set("query.3", "golang")

		_, err := b.Call(cc, nil)
		require.NoError(t, err)
		assert.Equal(t, FailedOutput, cc.Get("result.3", nil))
	})
}

func TestCopyAnswer(t *testing.T) {
	t.Run("single output becomes the answer directly", func(t *testing.T) {
		step := NewStep(searchDescriptor(), func(map[string]any) (map[string]any, error) {
			return map[string]any{"result": "the answer"}, nil
		}, CopyAnswer())

		cc := opctx.New()
		cc.Set("query", "golang")

		_, err := op.Must(step).Call(cc, nil)
		require.NoError(t, err)

		resp := cc.Response()
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Equal(t, "the answer", resp.Answer)
	})

	t.Run("multiple outputs become a JSON object in declaration order", func(t *testing.T) {
		desc := Must("enrich",
			Input("query", Attr{Type: "string", Required: true}),
			Output("summary", Attr{Type: "string"}),
			Output("keywords", Attr{Type: "string"}),
		)
		step := NewStep(desc, func(map[string]any) (map[string]any, error) {
			return map[string]any{"summary": "short", "keywords": "go,testing"}, nil
		}, CopyAnswer())

		cc := opctx.New()
		cc.Set("query", "golang")

		_, err := op.Must(step).Call(cc, nil)
		require.NoError(t, err)

		resp := cc.Response()
		require.NotNil(t, resp)
		answer, ok := resp.Answer.(string)
		require.True(t, ok)
		assert.Equal(t, "short", gjson.Get(answer, "summary").String())
		assert.Equal(t, "go,testing", gjson.Get(answer, "keywords").String())
	})
}

func TestAsyncStep(t *testing.T) {
	t.Run("async tools follow the same binding convention", func(t *testing.T) {
		step := NewAsyncStep(searchDescriptor(), func(_ context.Context, inputs map[string]any) (map[string]any, error) {
			return map[string]any{"result": inputs["query"]}, nil
		})

		b := op.Must(step)
		require.Equal(t, op.ModeAsync, b.Mode())

		cc := opctx.New()
		cc.Set("query", "golang")

		_, err := b.AsyncCall(context.Background(), cc, nil)
		require.NoError(t, err)
		assert.Equal(t, "golang", cc.Get("result", nil))
	})

	t.Run("copies share no per-call state", func(t *testing.T) {
		step := NewStep(searchDescriptor(), func(map[string]any) (map[string]any, error) {
			return map[string]any{"result": "ok"}, nil
		})
		b := op.Must(step)

		dup, err := b.Copy()
		require.NoError(t, err)

		cc := opctx.New()
		cc.Set("query", "golang")
		_, err = dup.Call(cc, nil)
		require.NoError(t, err)

		dupStep := dup.(*op.Base).Step().(*Step)
		assert.NotSame(t, step, dupStep)
		assert.Empty(t, step.CallID(), "original template must stay untouched")
	})
}
