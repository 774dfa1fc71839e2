package mock

import "github.com/fwojciec/parley"

// Interface compliance check.
var _ parley.History = (*History)(nil)

// History is an in-memory parley.History fake.
type History struct {
	msgs []parley.Message
}

// Add appends msg.
func (h *History) Add(msg parley.Message) {
	h.msgs = append(h.msgs, msg)
}

// Messages returns the recorded messages.
func (h *History) Messages() []parley.Message {
	return h.msgs
}
