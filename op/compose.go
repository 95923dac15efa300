package op

// Then chains first and second sequentially. When first is already a
// Sequential it is extended in place; otherwise a new chain of the two is
// built. Both operands must share one execution mode, verified before any
// mutation.
func Then(first, second Op) (Op, error) {
	if err := checkMode(first, second); err != nil {
		return nil, err
	}
	if chain, ok := first.(*Sequential); ok {
		chain.children = append(chain.children, second)
		return chain, nil
	}
	return NewSequential(first, second)
}

// Also groups first and second for parallel execution. When first is already
// a Parallel it is extended in place; otherwise a new fan-out set of the two
// is built. Both operands must share one execution mode, verified before any
// mutation.
func Also(first, second Op) (Op, error) {
	if err := checkMode(first, second); err != nil {
		return nil, err
	}
	if fan, ok := first.(*Parallel); ok {
		fan.children = append(fan.children, second)
		return fan, nil
	}
	return NewParallel(first, second)
}
