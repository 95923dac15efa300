// Package opctx defines the execution context: the ordered, schema-less
// key/value scope one operation tree shares for the duration of a single
// invocation, together with the response record and the optional stream
// output channel.
//
// A context is created once per Flow invocation (or lazily when an operation
// is called without one), lives until the invocation returns, and is then
// discarded. Nothing persists across invocations except what the cache
// handler stores explicitly.
package opctx
