package mock

import (
	"context"
	"encoding/json"

	"github.com/fwojciec/parley"
)

// Interface compliance check.
var _ parley.Connector = (*Connector)(nil)

// Connector is a test double for parley.Connector.
type Connector struct {
	NameValue  string
	ToolsValue []parley.Tool

	ConnectFn func(ctx context.Context) error
	InvokeFn  func(ctx context.Context, name string, input json.RawMessage) (*parley.CallResult, error)
	CloseFn   func() error

	// ConnectCalls and CloseCalls count invocations of the lifecycle
	// methods so tests can assert teardown happened exactly once.
	ConnectCalls int
	CloseCalls   int

	// Invocations records the tool name of each Invoke call in order.
	Invocations []string
}

// Name returns NameValue.
func (c *Connector) Name() string { return c.NameValue }

// Connect counts the call and delegates to ConnectFn.
func (c *Connector) Connect(ctx context.Context) error {
	c.ConnectCalls++
	if c.ConnectFn == nil {
		return nil
	}
	return c.ConnectFn(ctx)
}

// Tools returns ToolsValue.
func (c *Connector) Tools() []parley.Tool { return c.ToolsValue }

// Invoke records the call and delegates to InvokeFn.
func (c *Connector) Invoke(ctx context.Context, name string, input json.RawMessage) (*parley.CallResult, error) {
	c.Invocations = append(c.Invocations, name)
	if c.InvokeFn == nil {
		return &parley.CallResult{}, nil
	}
	return c.InvokeFn(ctx, name, input)
}

// Close counts the call and delegates to CloseFn.
func (c *Connector) Close() error {
	c.CloseCalls++
	if c.CloseFn == nil {
		return nil
	}
	return c.CloseFn()
}
