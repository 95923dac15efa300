package cache

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
)

// Kind identifies which member of the closed value set an entry holds.
type Kind string

const (
	// KindText holds a plain string.
	KindText Kind = "text"
	// KindMapping holds a string-keyed object.
	KindMapping Kind = "mapping"
	// KindSequence holds an ordered list.
	KindSequence Kind = "sequence"
	// KindTable holds a list of uniform string-keyed rows.
	KindTable Kind = "table"
)

// Value is a typed cache payload. The payload is kept in its canonical JSON
// encoding so handlers can persist it without knowing the concrete type.
type Value struct {
	Kind Kind            `json:"kind"`
	Raw  json.RawMessage `json:"data"`
}

// Text builds a text value.
func Text(s string) Value {
	raw, _ := json.Marshal(s)
	return Value{Kind: KindText, Raw: raw}
}

// Mapping builds a mapping value.
func Mapping(m map[string]any) (Value, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Value{}, fmt.Errorf("failed to encode mapping value: %w", err)
	}
	return Value{Kind: KindMapping, Raw: raw}, nil
}

// Sequence builds a sequence value.
func Sequence(items []any) (Value, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return Value{}, fmt.Errorf("failed to encode sequence value: %w", err)
	}
	return Value{Kind: KindSequence, Raw: raw}, nil
}

// Table builds a table value from uniform rows.
func Table(rows []map[string]any) (Value, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return Value{}, fmt.Errorf("failed to encode table value: %w", err)
	}
	return Value{Kind: KindTable, Raw: raw}, nil
}

// AsText decodes a text value.
func (v Value) AsText() (string, error) {
	if v.Kind != KindText {
		return "", fmt.Errorf("cache value is %q, not %q", v.Kind, KindText)
	}
	var s string
	if err := json.Unmarshal(v.Raw, &s); err != nil {
		return "", fmt.Errorf("failed to decode text value: %w", err)
	}
	return s, nil
}

// AsMapping decodes a mapping value.
func (v Value) AsMapping() (map[string]any, error) {
	if v.Kind != KindMapping {
		return nil, fmt.Errorf("cache value is %q, not %q", v.Kind, KindMapping)
	}
	var m map[string]any
	if err := json.Unmarshal(v.Raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode mapping value: %w", err)
	}
	return m, nil
}

// AsSequence decodes a sequence value.
func (v Value) AsSequence() ([]any, error) {
	if v.Kind != KindSequence {
		return nil, fmt.Errorf("cache value is %q, not %q", v.Kind, KindSequence)
	}
	var items []any
	if err := json.Unmarshal(v.Raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode sequence value: %w", err)
	}
	return items, nil
}

// AsTable decodes a table value.
func (v Value) AsTable() ([]map[string]any, error) {
	if v.Kind != KindTable {
		return nil, fmt.Errorf("cache value is %q, not %q", v.Kind, KindTable)
	}
	var rows []map[string]any
	if err := json.Unmarshal(v.Raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode table value: %w", err)
	}
	return rows, nil
}

// Decode unmarshals the payload into out regardless of kind.
func (v Value) Decode(out any) error {
	return json.Unmarshal(v.Raw, out)
}

// Metadata is the sidecar record every handler keeps per entry.
type Metadata struct {
	CreatedAt strfmt.DateTime `json:"created_at"`
	UpdatedAt strfmt.DateTime `json:"updated_at"`
	ExpiresAt strfmt.DateTime `json:"expires_at,omitempty"`
}

// Expired reports whether the entry is past its expiry at the given instant.
// Entries without an expiry never expire.
func (m Metadata) Expired(now time.Time) bool {
	expiry := time.Time(m.ExpiresAt)
	return !expiry.IsZero() && now.After(expiry)
}

// envelope is the persisted form of an entry: the typed payload plus its
// sidecar metadata.
type envelope struct {
	Kind     Kind            `json:"kind"`
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
}

func newMetadata(prev *Metadata, now time.Time, ttl time.Duration) Metadata {
	meta := Metadata{
		CreatedAt: strfmt.DateTime(now),
		UpdatedAt: strfmt.DateTime(now),
	}
	if prev != nil {
		meta.CreatedAt = prev.CreatedAt
	}
	if ttl > 0 {
		meta.ExpiresAt = strfmt.DateTime(now.Add(ttl))
	}
	return meta
}
