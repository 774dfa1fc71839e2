package parley

import "context"

// Backend is a strategy interface over one LLM provider's conversation API.
// A backend is constructed with the system prompt and the final tool set;
// Converse sends the full history and returns the assistant's next message.
type Backend interface {
	Converse(ctx context.Context, history []Message) (Message, error)
}

// BackendFactory builds a Backend once tool discovery has finished. The tool
// set must be final: backends precompute provider-shaped tool specs.
type BackendFactory func(tools []Tool) (Backend, error)
