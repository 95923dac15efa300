// Package stdx carries small generic helpers that have no better home.
package stdx

// Must0 panics when err is non-nil. It is meant for initialization code
// where an error indicates a programming mistake rather than a runtime
// condition worth handling.
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 returns v or panics when err is non-nil.
//
// Typical use:
//
//	chain := stdx.Must1(op.Then(first, second))
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// Must2 returns both values or panics when err is non-nil.
func Must2[T, V any](t T, v V, err error) (T, V) {
	if err != nil {
		panic(err)
	}
	return t, v
}
