package tool

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"

	"github.com/loomworks/loom/op"
	"github.com/loomworks/loom/opctx"
	"github.com/loomworks/loom/pkg/uuidx"
)

// FailedOutput is written into every declared output key when a tool
// exhausts its retries, so downstream operations never see an incomplete
// context.
const FailedOutput = "operation failed"

// RunFunc is the work of a synchronous tool: declared inputs in, declared
// outputs out.
type RunFunc func(inputs map[string]any) (map[string]any, error)

// AsyncRunFunc is the work of an asynchronous tool.
type AsyncRunFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// BindOption configures how a tool step binds to the context.
type BindOption func(*binder)

// Remap renames declared attributes to different context keys.
func Remap(remap map[string]string) BindOption {
	return func(b *binder) { b.bind.Remap = remap }
}

// Instance assigns the instance index used to suffix context keys when
// several instances of one tool type run in parallel.
func Instance(index int) BindOption {
	return func(b *binder) { b.bind.Instance = index }
}

// CopyAnswer copies the tool's primary output (or a JSON object of all
// outputs) into the context response's answer field after execution.
func CopyAnswer() BindOption {
	return func(b *binder) { b.copyAnswer = true }
}

// binder carries the context-binding convention shared by the sync and
// async tool steps: inputs are resolved and validated before execution,
// outputs written back after, and placeholders filled on terminal failure.
type binder struct {
	desc       *Descriptor
	bind       Binding
	copyAnswer bool

	// per-call state; templates must be copied before concurrent use
	callID  string
	inputs  map[string]any
	outputs map[string]any
}

// Descriptor returns the tool's declared signature.
func (b *binder) Descriptor() *Descriptor { return b.desc }

// CallID returns the identity bound to the current invocation.
func (b *binder) CallID() string { return b.callID }

// BeforeExecute binds a fresh call id, then resolves every declared input
// from the context into the private input map, failing with an
// input-validation error when a required attribute is absent.
func (b *binder) BeforeExecute(cc *opctx.Context) error {
	b.callID = uuidx.NewString()
	b.inputs = make(map[string]any, b.desc.Inputs.Len())
	b.outputs = nil

	for pair := b.desc.Inputs.Oldest(); pair != nil; pair = pair.Next() {
		key := b.bind.ResolveKey(pair.Key)
		value, ok := cc.Lookup(key)
		if !ok {
			if pair.Value.Required {
				return fmt.Errorf("%w: tool %q requires input %q (context key %q)",
					op.ErrInvalidInput, b.desc.Name, pair.Key, key)
			}
			continue
		}
		b.inputs[pair.Key] = value
	}
	return nil
}

// AfterExecute writes every produced output back into the context under its
// resolved key and optionally copies the answer into the response record.
func (b *binder) AfterExecute(cc *opctx.Context, result any) (any, error) {
	for pair := b.desc.Outputs.Oldest(); pair != nil; pair = pair.Next() {
		value, ok := b.outputs[pair.Key]
		if !ok {
			continue
		}
		cc.Set(b.bind.ResolveKey(pair.Key), value)
	}

	if b.copyAnswer && len(b.outputs) > 0 {
		answer, err := b.answer()
		if err != nil {
			return nil, err
		}
		resp := cc.EnsureResponse()
		resp.Success = true
		resp.Answer = answer
	}
	return result, nil
}

// answer is the single primary output, or a JSON object of all outputs in
// declaration order when the tool declares more than one.
func (b *binder) answer() (any, error) {
	if b.desc.Outputs.Len() == 1 {
		pair := b.desc.Outputs.Oldest()
		return b.outputs[pair.Key], nil
	}

	result := []byte(`{}`)
	for pair := b.desc.Outputs.Oldest(); pair != nil; pair = pair.Next() {
		value, ok := b.outputs[pair.Key]
		if !ok {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal output %q: %w", pair.Key, err)
		}
		result, err = sjson.SetRawBytes(result, pair.Key, raw)
		if err != nil {
			return nil, err
		}
	}
	return string(result), nil
}

// DefaultExecute fills every declared output key with the failure
// placeholder so the context stays complete after exhausted retries.
func (b *binder) DefaultExecute(cc *opctx.Context, cause error) (any, error) {
	b.outputs = make(map[string]any, b.desc.Outputs.Len())
	for pair := b.desc.Outputs.Oldest(); pair != nil; pair = pair.Next() {
		b.outputs[pair.Key] = FailedOutput
		cc.Set(b.bind.ResolveKey(pair.Key), FailedOutput)
	}
	return b.outputs, nil
}

func (b *binder) fresh() binder {
	return binder{desc: b.desc, bind: b.bind, copyAnswer: b.copyAnswer}
}

// Step is a synchronous tool-bound operation step. Wrap it with op.New to
// obtain the full lifecycle.
type Step struct {
	binder
	run RunFunc
}

// NewStep builds a synchronous tool step around run.
func NewStep(desc *Descriptor, run RunFunc, options ...BindOption) *Step {
	s := &Step{binder: binder{desc: desc}, run: run}
	for _, option := range options {
		option(&s.binder)
	}
	return s
}

// Execute runs the tool work against the bound inputs.
func (s *Step) Execute(_ *opctx.Context) (any, error) {
	outputs, err := s.run(s.inputs)
	if err != nil {
		return nil, err
	}
	s.outputs = outputs
	return outputs, nil
}

// CopyStep reconstructs the step without per-call state.
func (s *Step) CopyStep() any {
	return &Step{binder: s.fresh(), run: s.run}
}

// AsyncStep is the cooperative variant of Step.
type AsyncStep struct {
	binder
	run AsyncRunFunc
}

// NewAsyncStep builds an asynchronous tool step around run.
func NewAsyncStep(desc *Descriptor, run AsyncRunFunc, options ...BindOption) *AsyncStep {
	s := &AsyncStep{binder: binder{desc: desc}, run: run}
	for _, option := range options {
		option(&s.binder)
	}
	return s
}

// ExecuteAsync runs the tool work against the bound inputs.
func (s *AsyncStep) ExecuteAsync(ctx context.Context, _ *opctx.Context) (any, error) {
	outputs, err := s.run(ctx, s.inputs)
	if err != nil {
		return nil, err
	}
	s.outputs = outputs
	return outputs, nil
}

// CopyStep reconstructs the step without per-call state.
func (s *AsyncStep) CopyStep() any {
	return &AsyncStep{binder: s.fresh(), run: s.run}
}
