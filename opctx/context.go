package opctx

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/loomworks/loom/pkg/uuidx"
	"github.com/loomworks/loom/stream"
)

// ErrMissingKey is returned by Value when a key is absent from the context.
var ErrMissingKey = errors.New("missing context key")

// Response is the mutable result record carried by a Context. Operations
// write into it as they execute; the Flow returns it to the caller.
type Response struct {
	Success bool           `json:"success"`
	Answer  any            `json:"answer"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Context is the per-invocation key/value scope shared by every operation in
// one execution. Keys preserve insertion order and later writes overwrite
// earlier ones. Access is synchronized so parallel siblings can read and
// write concurrently; they stay semantically apart by writing disjoint keys,
// which the tool binding convention guarantees through instance-index
// suffixing.
type Context struct {
	id string

	mu   sync.RWMutex
	kv   *orderedmap.OrderedMap[string, any]
	resp *Response

	out chan stream.Chunk
}

// New creates an empty context with a fresh correlation id.
func New() *Context {
	return &Context{
		id: uuidx.NewString(),
		kv: orderedmap.New[string, any](),
	}
}

// NewStreaming creates a context carrying a buffered output channel for
// streamed chunks.
func NewStreaming(buffer int) *Context {
	cc := New()
	cc.out = make(chan stream.Chunk, buffer)
	return cc
}

// ID returns the correlation id of this execution.
func (c *Context) ID() string { return c.id }

// Set writes a value under key, overwriting any earlier value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv.Set(key, value)
}

// Lookup returns the value stored under key and whether it was present.
func (c *Context) Lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kv.Get(key)
}

// Value returns the value stored under key, or an error wrapping
// ErrMissingKey when the key is absent.
func (c *Context) Value(key string) (any, error) {
	v, ok := c.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
	}
	return v, nil
}

// Get returns the value stored under key, or def when the key is absent.
func (c *Context) Get(key string, def any) any {
	if v, ok := c.Lookup(key); ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Delete removes key from the context.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv.Delete(key)
}

// Keys returns all keys in insertion order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, c.kv.Len())
	for pair := c.kv.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of keys in the context.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kv.Len()
}

// Merge writes every entry of values into the context. Entries are applied
// in sorted key order so that insertion order stays deterministic.
func (c *Context) Merge(values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.kv.Set(k, values[k])
	}
}

// Response returns the response record, or nil when none has been set.
func (c *Context) Response() *Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resp
}

// SetResponse replaces the response record.
func (c *Context) SetResponse(r *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resp = r
}

// EnsureResponse returns the response record, creating an empty one first
// when none exists yet.
func (c *Context) EnsureResponse() *Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resp == nil {
		c.resp = &Response{}
	}
	return c.resp
}

// Streaming reports whether this context carries an output channel.
func (c *Context) Streaming() bool { return c.out != nil }

// Emit writes a chunk onto the output channel. It reports false when the
// context has no channel attached, making it safe to call from operations
// that run in both streaming and non-streaming invocations.
func (c *Context) Emit(chunk stream.Chunk) bool {
	if c.out == nil {
		return false
	}
	c.out <- chunk
	return true
}

// Out exposes the output channel for consumers. It is nil on non-streaming
// contexts.
func (c *Context) Out() <-chan stream.Chunk { return c.out }

// CloseOutput closes the output channel after the done sentinel has been
// emitted. Only the Flow that created the context does this.
func (c *Context) CloseOutput() {
	if c.out != nil {
		close(c.out)
	}
}
