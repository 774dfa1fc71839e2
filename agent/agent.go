// Package agent orchestrates the conversation loop between a Backend and a
// set of tool server Connectors.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fwojciec/parley"
)

// Agent owns the tool server connectors, the registry built from their
// tools, and the backend constructed once the tool set is known.
type Agent struct {
	connectors []parley.Connector
	factory    parley.BackendFactory
	history    parley.History
	logger     *zap.Logger
	maxTurns   int
	onMessage  func(parley.Message)

	registry *parley.Registry
	backend  parley.Backend
	closed   sync.Once
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithMaxTurns caps the number of model turns per Run call. Zero means
// unbounded. Exceeding the cap fails the run rather than looping forever on
// a model that keeps requesting tools.
func WithMaxTurns(n int) Option {
	return func(a *Agent) {
		a.maxTurns = n
	}
}

// WithMessageHandler sets a callback invoked for every message appended to
// the conversation: the user query, assistant replies, and tool results.
func WithMessageHandler(fn func(parley.Message)) Option {
	return func(a *Agent) {
		a.onMessage = fn
	}
}

// New creates an Agent. The backend is not constructed until Connect, when
// the discovered tool set is final.
func New(factory parley.BackendFactory, history parley.History, connectors []parley.Connector, opts ...Option) *Agent {
	a := &Agent{
		connectors: connectors,
		factory:    factory,
		history:    history,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect launches every connector concurrently and waits for all attempts
// to settle, so one slow server does not delay the others and one failing
// server does not leave the rest unlaunched. It then builds the tool
// registry in connector order and constructs the backend. Any connector
// failure fails Connect as a whole; the caller should still Close.
func (a *Agent) Connect(ctx context.Context) error {
	errs := make([]error, len(a.connectors))
	var wg sync.WaitGroup
	for i, c := range a.connectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Connect(ctx)
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return err
	}

	a.registry = parley.NewRegistry()
	for _, c := range a.connectors {
		for _, tool := range c.Tools() {
			if !tool.Enabled {
				continue
			}
			reg := parley.RegisteredTool{Tool: tool, Origin: c.Name(), Runner: c}
			if col := a.registry.Register(reg); col != nil {
				a.logger.Warn("duplicate tool name, keeping first registration",
					zap.String("tool", col.Name),
					zap.String("kept", col.Kept),
					zap.String("ignored", col.Origin))
			}
		}
	}

	backend, err := a.factory(a.registry.Specs())
	if err != nil {
		return err
	}
	a.backend = backend
	return nil
}

// Run appends the query to the conversation and loops: converse with the
// backend, execute any requested tools in order, feed the results back as a
// single user message, and repeat until the assistant replies without
// requesting tools. Tool failures are converted to error results and fed
// back so the model can react; only backend and context errors abort the
// run.
func (a *Agent) Run(ctx context.Context, query string) error {
	if a.backend == nil {
		return parley.Errorf(parley.FaultInternal, "agent is not connected")
	}
	a.append(parley.NewUserText(query))

	for turn := 1; ; turn++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.maxTurns > 0 && turn > a.maxTurns {
			return parley.Errorf(parley.FaultInternal, "conversation exceeded %d model turns", a.maxTurns)
		}

		a.logger.Debug("model turn", zap.Int("turn", turn))
		reply, err := a.backend.Converse(ctx, a.history.Messages())
		if err != nil {
			return err
		}
		a.append(reply)

		uses := reply.ToolUses()
		if len(uses) == 0 {
			return nil
		}

		results := make([]parley.ContentBlock, 0, len(uses))
		for _, use := range uses {
			results = append(results, a.invoke(ctx, use))
		}
		a.append(parley.Message{Role: parley.RoleUser, Content: results})
	}
}

// invoke resolves and executes a single tool use. Failures are recovered
// locally: an unknown tool name or a failed invocation produces an error
// result addressed to the requesting tool use, never an aborted run.
func (a *Agent) invoke(ctx context.Context, use parley.ToolUseBlock) parley.ToolResultBlock {
	reg, ok := a.registry.Resolve(use.Name)
	if !ok {
		a.logger.Warn("model requested unknown tool", zap.String("tool", use.Name))
		return parley.ToolResultBlock{
			ToolUseID: use.ID,
			Status:    parley.StatusError,
			Content:   []parley.ToolOutput{{Text: fmt.Sprintf("No tool named %q.", use.Name)}},
		}
	}

	result, err := reg.Runner.Invoke(ctx, use.Name, use.Input)
	if err != nil {
		a.logger.Warn("tool invocation failed",
			zap.String("tool", use.Name),
			zap.String("server", reg.Origin),
			zap.Error(err))
		return parley.ToolResultBlock{
			ToolUseID: use.ID,
			Status:    parley.StatusError,
			Content:   []parley.ToolOutput{{Text: "Error: " + err.Error()}},
		}
	}

	status := parley.StatusSuccess
	if result.IsError {
		status = parley.StatusError
	}
	return parley.ToolResultBlock{ToolUseID: use.ID, Status: status, Content: result.Content}
}

func (a *Agent) append(msg parley.Message) {
	a.history.Add(msg)
	if a.onMessage != nil {
		a.onMessage(msg)
	}
}

// Close closes every connector. It runs at most once; later calls return
// nil. Safe to call whether or not Connect succeeded.
func (a *Agent) Close() error {
	var err error
	a.closed.Do(func() {
		errs := make([]error, len(a.connectors))
		for i, c := range a.connectors {
			errs[i] = c.Close()
		}
		err = errors.Join(errs...)
	})
	return err
}
