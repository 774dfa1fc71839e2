// Package mock provides test doubles for parley interfaces using function
// fields. Unset function fields return zero values.
package mock

import (
	"context"

	"github.com/fwojciec/parley"
)

// Interface compliance check.
var _ parley.Backend = (*Backend)(nil)

// Backend is a test double for parley.Backend.
type Backend struct {
	ConverseFn func(ctx context.Context, history []parley.Message) (parley.Message, error)

	// Calls records the history passed to each Converse call.
	Calls [][]parley.Message
}

// Converse records the call and delegates to ConverseFn.
func (b *Backend) Converse(ctx context.Context, history []parley.Message) (parley.Message, error) {
	snapshot := make([]parley.Message, len(history))
	copy(snapshot, history)
	b.Calls = append(b.Calls, snapshot)
	if b.ConverseFn == nil {
		return parley.Message{}, nil
	}
	return b.ConverseFn(ctx, history)
}
