// Package stream defines the typed chunks an execution emits while it is
// still running, and the SSE-style wire framing used to serve them.
//
// A streaming execution writes chunks onto its context's output channel and
// finishes with exactly one done sentinel, so consumers never hang waiting
// for completion: they read until Done is observed. Each chunk carries the
// correlation id of the execution it belongs to.
package stream
