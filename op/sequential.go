package op

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomworks/loom/opctx"
)

// Sequential threads one shared context through its children in declaration
// order. The result of the composite is the last child's result.
type Sequential struct {
	name     string
	mode     Mode
	children []Op
}

var _ Op = &Sequential{}

// NewSequential builds a chain from children, which must all share one
// execution mode.
func NewSequential(children ...Op) (*Sequential, error) {
	if len(children) == 0 {
		return nil, errors.New("sequential composite needs at least one child")
	}
	for _, child := range children[1:] {
		if err := checkMode(children[0], child); err != nil {
			return nil, err
		}
	}
	return &Sequential{
		name:     "Sequential",
		mode:     children[0].Mode(),
		children: children,
	}, nil
}

// Name returns the composite name.
func (s *Sequential) Name() string { return s.name }

// Mode returns the children's shared execution mode.
func (s *Sequential) Mode() Mode { return s.mode }

// Children returns the chain in declaration order.
func (s *Sequential) Children() []Op { return s.children }

// Call runs each child one after another on the calling goroutine.
func (s *Sequential) Call(cc *opctx.Context, overrides map[string]any) (any, error) {
	if s.mode != ModeSync {
		return nil, fmt.Errorf("composite %q: %w: use AsyncCall for %s operations", s.name, ErrWrongMode, s.mode)
	}
	cc = ensureContext(cc)
	cc.Merge(overrides)

	var result any
	for _, child := range s.children {
		var err error
		result, err = child.Call(cc, nil)
		if err != nil {
			return nil, fmt.Errorf("sequential child %q: %w", child.Name(), err)
		}
	}
	return result, nil
}

// AsyncCall awaits each child one after another on the calling task.
func (s *Sequential) AsyncCall(ctx context.Context, cc *opctx.Context, overrides map[string]any) (any, error) {
	if s.mode != ModeAsync {
		return nil, fmt.Errorf("composite %q: %w: use Call for %s operations", s.name, ErrWrongMode, s.mode)
	}
	cc = ensureContext(cc)
	cc.Merge(overrides)

	var result any
	for _, child := range s.children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		result, err = child.AsyncCall(ctx, cc, nil)
		if err != nil {
			return nil, fmt.Errorf("sequential child %q: %w", child.Name(), err)
		}
	}
	return result, nil
}

// AddChild is disallowed on Sequential: it would be ambiguous with chain
// extension, which Then performs.
func (s *Sequential) AddChild(Op) error {
	return fmt.Errorf("%w: cannot add a direct child to a sequential composite, extend it with Then", ErrBadComposition)
}

// Copy deep-copies the chain.
func (s *Sequential) Copy() (Op, error) {
	children := make([]Op, 0, len(s.children))
	for _, child := range s.children {
		dup, err := child.Copy()
		if err != nil {
			return nil, err
		}
		children = append(children, dup)
	}
	dup, err := NewSequential(children...)
	if err != nil {
		return nil, err
	}
	dup.name = s.name
	return dup, nil
}
