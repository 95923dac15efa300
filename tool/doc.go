// Package tool declares the externally visible signature of operations
// usable as LLM tools, and the context-binding convention every tool-bound
// operation follows: inputs resolved (remapped, instance-suffixed) and
// validated before execution, outputs written back after, and failure
// placeholders filled when retries are exhausted.
package tool
