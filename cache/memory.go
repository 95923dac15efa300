package cache

import (
	"context"
	"time"

	"github.com/alphadose/haxmap"
)

// Memory is an in-process Handler backed by a concurrent map. Expired
// entries are removed lazily on Load and Exists.
type Memory struct {
	entries *haxmap.Map[string, *memEntry]
}

type memEntry struct {
	value Value
	meta  Metadata
}

// NewMemory creates an empty in-memory handler.
func NewMemory() *Memory {
	return &Memory{entries: haxmap.New[string, *memEntry]()}
}

var _ Handler = &Memory{}

// Save stores value under key with the given ttl, preserving the original
// creation timestamp on overwrite.
func (m *Memory) Save(_ context.Context, key string, value Value, ttl time.Duration) error {
	now := time.Now()
	var prev *Metadata
	if existing, ok := m.entries.Get(key); ok {
		prev = &existing.meta
	}
	m.entries.Set(key, &memEntry{value: value, meta: newMetadata(prev, now, ttl)})
	return nil
}

// Load returns the value under key, cleaning it up when expired.
func (m *Memory) Load(_ context.Context, key string) (Value, bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return Value{}, false, nil
	}
	if entry.meta.Expired(time.Now()) {
		m.entries.Del(key)
		return Value{}, false, nil
	}
	return entry.value, true, nil
}

// Delete removes key and reports whether an entry was present.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	_, ok := m.entries.Get(key)
	m.entries.Del(key)
	return ok, nil
}

// Exists reports whether a live entry is stored under key.
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return false, nil
	}
	if entry.meta.Expired(time.Now()) {
		m.entries.Del(key)
		return false, nil
	}
	return true, nil
}

// Metadata returns the sidecar record for key, when present.
func (m *Memory) Metadata(key string) (Metadata, bool) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return Metadata{}, false
	}
	return entry.meta, true
}
