package parley

import (
	"context"
	"encoding/json"
)

// Tool is the schema describing one callable tool to the model.
// Enabled is decided at discovery time from connector configuration;
// disabled tools are discovered but never registered.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Enabled     bool
}

// CallResult is the raw outcome of one tool invocation as the server
// reported it. IsError marks tool-level failures that still produced output.
type CallResult struct {
	Content []ToolOutput
	IsError bool
}

// Runner invokes tools by name. Invoke returns an error for transport and
// protocol failures; tool-level failures come back as CallResult.IsError.
type Runner interface {
	Invoke(ctx context.Context, name string, input json.RawMessage) (*CallResult, error)
}

// Connector manages the lifecycle of one tool server: launch and handshake
// on Connect, invocation while connected, teardown on Close. Close must be
// safe on every exit path, including before Connect and more than once.
type Connector interface {
	Name() string
	Connect(ctx context.Context) error
	Tools() []Tool
	Runner
	Close() error
}
