package op

// Mode is an operation's scheduling model. It is fixed at construction, and
// every operation composed under one composite must share it.
type Mode int

const (
	// ModeSync marks thread-blocking operations joined on the shared worker
	// pool.
	ModeSync Mode = iota
	// ModeAsync marks context-aware operations joined as cancellable tasks.
	ModeAsync
)

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	default:
		return "unknown"
	}
}
