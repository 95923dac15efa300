// Package loom is an operation composition and execution engine for
// pipelines that call language models, tools and data stores. Callers
// declare a tree of operations, then execute it synchronously or
// asynchronously with bounded retries, response caching and live streaming
// of partial output.
//
// The layers, leaf first:
//   - opctx: the per-invocation context every operation in one execution
//     shares, carrying the correlation id, the response record and an
//     optional stream channel.
//   - op: the execution unit with its before/execute/after lifecycle, retry
//     and fallback policy, and the Sequential and Parallel composites built
//     through Then, Also and AddChild.
//   - tool: the declared signature and context-binding convention of
//     operations usable as LLM tools.
//   - cache, provider, vector: the persistence, chat-backend and
//     vector-store boundaries the engine consumes.
//   - loom (this package): the Flow, the top-level entry point that rebuilds
//     its operation tree per invocation, manages request-level response
//     caching and manages the stream-termination protocol.
package loom
