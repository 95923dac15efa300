// Package cache defines the typed key/value persistence boundary the engine
// caches through, together with an in-memory handler and a Redis handler.
//
// Values are limited to a closed set of kinds (text, mapping, sequence,
// table), each carried in its canonical JSON encoding alongside a sidecar
// metadata record that tracks creation, update and expiry timestamps.
package cache
