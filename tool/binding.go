package tool

import "fmt"

// Binding resolves declared attribute names to context keys. A name is first
// passed through the optional remap, then suffixed with the instance index
// when the index is non-zero, so multiple instances of the same tool type
// running in parallel never collide on a context key.
type Binding struct {
	Remap    map[string]string
	Instance int
}

// ResolveKey maps a declared attribute name to its context key.
func (b Binding) ResolveKey(name string) string {
	if mapped, ok := b.Remap[name]; ok {
		name = mapped
	}
	if b.Instance > 0 {
		name = fmt.Sprintf("%s.%d", name, b.Instance)
	}
	return name
}
