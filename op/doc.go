// Package op implements the operation execution engine: the atomic unit of
// work with its before/execute/after lifecycle, bounded retries, terminal
// fallback and per-call caching, plus the Sequential and Parallel composites
// and the builders that compose trees out of them.
//
// An operation runs in one of two fixed execution modes. Synchronous
// operations block the calling goroutine and fan out on a shared bounded
// worker pool; asynchronous operations are context-aware and fan out as
// cancellable tasks. The two modes share one lifecycle but must never be
// mixed inside a composite, which every composition builder verifies before
// mutating anything.
package op
