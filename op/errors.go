package op

import "errors"

var (
	// ErrInvalidInput marks input-validation failures. They surface
	// immediately and are never retried.
	ErrInvalidInput = errors.New("invalid operation input")

	// ErrModeMismatch is raised at composition time when two operations with
	// different execution modes are combined.
	ErrModeMismatch = errors.New("execution mode mismatch")

	// ErrBadComposition is raised at composition time for structurally
	// unsupported combinations, such as adding a direct child to a composite
	// or mixing list-shaped and map-shaped children.
	ErrBadComposition = errors.New("unsupported composition")

	// ErrWrongMode is returned when a synchronous operation is invoked
	// through AsyncCall or an asynchronous one through Call.
	ErrWrongMode = errors.New("wrong invocation mode")

	// ErrJoinTimeout is returned by a task join whose deadline expired. All
	// outstanding tasks have been cancelled and awaited by then.
	ErrJoinTimeout = errors.New("task join timed out")
)
