package parley

// History is an ordered, append-only log of conversation messages. The
// orchestration loop writes to it; persistence belongs to the implementation.
type History interface {
	Add(msg Message)
	Messages() []Message
}
