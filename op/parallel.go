package op

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loomworks/loom/opctx"
)

// Parallel fans the same shared context out to every child concurrently and
// joins their results into one flattened list. Children must not assume
// exclusive ownership of context keys they do not own; concurrent writers
// stay apart by convention (instance-index suffixing), not locking.
type Parallel struct {
	name     string
	mode     Mode
	children []Op

	joinTimeout      time.Duration
	returnExceptions bool
}

var _ Op = &Parallel{}

// NewParallel builds a fan-out set from children, which must all share one
// execution mode.
func NewParallel(children ...Op) (*Parallel, error) {
	if len(children) == 0 {
		return nil, errors.New("parallel composite needs at least one child")
	}
	for _, child := range children[1:] {
		if err := checkMode(children[0], child); err != nil {
			return nil, err
		}
	}
	return &Parallel{
		name:     "Parallel",
		mode:     children[0].Mode(),
		children: children,
	}, nil
}

// WithJoinTimeout bounds the async join; zero means no deadline.
func (p *Parallel) WithJoinTimeout(d time.Duration) *Parallel {
	p.joinTimeout = d
	return p
}

// WithReturnExceptions makes the async join swallow per-child failures
// instead of cancelling siblings and propagating the first one.
func (p *Parallel) WithReturnExceptions(swallow bool) *Parallel {
	p.returnExceptions = swallow
	return p
}

// Name returns the composite name.
func (p *Parallel) Name() string { return p.name }

// Mode returns the children's shared execution mode.
func (p *Parallel) Mode() Mode { return p.mode }

// Children returns the fan-out set in declaration order.
func (p *Parallel) Children() []Op { return p.children }

// Call submits every child to the shared worker pool and joins their
// results. The join is a barrier: either all children's flattened results
// come back, or the first failure does, never a partial list.
func (p *Parallel) Call(cc *opctx.Context, overrides map[string]any) (any, error) {
	if p.mode != ModeSync {
		return nil, fmt.Errorf("composite %q: %w: use AsyncCall for %s operations", p.name, ErrWrongMode, p.mode)
	}
	cc = ensureContext(cc)
	cc.Merge(overrides)

	futures := make([]*Future, len(p.children))
	for i, child := range p.children {
		futures[i] = submit(func() (any, error) {
			return child.Call(cc, nil)
		})
	}

	results := make([]any, 0, len(p.children))
	var firstErr error
	for i, f := range futures {
		result, err := f.Wait()
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("parallel child %q: %w", p.children[i].Name(), err)
			}
			continue
		}
		results = flattenInto(results, result)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// AsyncCall schedules every child as a cancellable task and joins through
// the fan-out/fan-in utility: failures cancel siblings unless the composite
// is configured to swallow them.
func (p *Parallel) AsyncCall(ctx context.Context, cc *opctx.Context, overrides map[string]any) (any, error) {
	if p.mode != ModeAsync {
		return nil, fmt.Errorf("composite %q: %w: use Call for %s operations", p.name, ErrWrongMode, p.mode)
	}
	cc = ensureContext(cc)
	cc.Merge(overrides)

	var group TaskGroup
	for _, child := range p.children {
		group.Submit(ctx, func(tctx context.Context) (any, error) {
			return child.AsyncCall(tctx, cc, nil)
		})
	}
	results, err := group.Join(p.joinTimeout, p.returnExceptions)
	if err != nil {
		return nil, fmt.Errorf("parallel composite: %w", err)
	}
	return results, nil
}

// AddChild is disallowed on Parallel: it would be ambiguous with fan-out
// extension, which Also performs.
func (p *Parallel) AddChild(Op) error {
	return fmt.Errorf("%w: cannot add a direct child to a parallel composite, extend it with Also", ErrBadComposition)
}

// Copy deep-copies the fan-out set, preserving join configuration.
func (p *Parallel) Copy() (Op, error) {
	children := make([]Op, 0, len(p.children))
	for _, child := range p.children {
		dup, err := child.Copy()
		if err != nil {
			return nil, err
		}
		children = append(children, dup)
	}
	dup, err := NewParallel(children...)
	if err != nil {
		return nil, err
	}
	dup.name = p.name
	dup.joinTimeout = p.joinTimeout
	dup.returnExceptions = p.returnExceptions
	return dup, nil
}
