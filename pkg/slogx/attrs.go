// Package slogx provides slog attribute constructors shared across the
// engine packages so that log fields stay uniformly named.
package slogx

import (
	"fmt"
	"log/slog"
	"time"
)

// Error returns an attribute with the key "error" and the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Op returns an attribute identifying the operation a log line belongs to.
func Op(name string) slog.Attr {
	return slog.String("op", name)
}

// ExecID returns an attribute carrying the correlation id of one execution.
func ExecID(id string) slog.Attr {
	return slog.String("exec_id", id)
}

// Stringer returns an attribute with the string form of the given value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// Elapsed returns an attribute with the duration since start.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
