package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fwojciec/parley"
	"github.com/fwojciec/parley/agent"
	"github.com/fwojciec/parley/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textReply(text string) parley.Message {
	return parley.NewAssistantText(text)
}

func toolUseReply(uses ...parley.ToolUseBlock) parley.Message {
	blocks := make([]parley.ContentBlock, len(uses))
	for i, u := range uses {
		blocks[i] = u
	}
	return parley.Message{Role: parley.RoleAssistant, Content: blocks}
}

// factoryFor returns a BackendFactory producing the given backend and
// capturing the tool specs it was handed.
func factoryFor(b parley.Backend, specs *[]parley.Tool) parley.BackendFactory {
	return func(tools []parley.Tool) (parley.Backend, error) {
		if specs != nil {
			*specs = tools
		}
		return b, nil
	}
}

// connected builds an agent over the given connectors and backend and runs
// Connect, failing the test on error.
func connected(t *testing.T, b parley.Backend, history parley.History, connectors []parley.Connector, opts ...agent.Option) *agent.Agent {
	t.Helper()
	a := agent.New(factoryFor(b, nil), history, connectors, opts...)
	require.NoError(t, a.Connect(context.Background()))
	return a
}

func TestAgent_Run(t *testing.T) {
	t.Parallel()

	t.Run("text response ends run", func(t *testing.T) {
		t.Parallel()

		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				return textReply("hello"), nil
			},
		}
		history := &mock.History{}
		a := connected(t, backend, history, nil)

		err := a.Run(context.Background(), "hi")
		require.NoError(t, err)

		msgs := history.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, parley.RoleUser, msgs[0].Role)
		assert.Equal(t, "hi", msgs[0].Text())
		assert.Equal(t, parley.RoleAssistant, msgs[1].Role)
		assert.Equal(t, "hello", msgs[1].Text())

		// The backend saw the user message on its single call.
		require.Len(t, backend.Calls, 1)
		require.Len(t, backend.Calls[0], 1)
	})

	t.Run("single tool call round trip", func(t *testing.T) {
		t.Parallel()

		turn := 0
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				turn++
				if turn == 1 {
					return toolUseReply(parley.ToolUseBlock{
						ID:    "tu_1",
						Name:  "add",
						Input: json.RawMessage(`{"a":1,"b":2}`),
					}), nil
				}
				return textReply("the answer is 3"), nil
			},
		}

		var gotInput json.RawMessage
		calc := &mock.Connector{
			NameValue:  "calc",
			ToolsValue: []parley.Tool{{Name: "add", Enabled: true}},
			InvokeFn: func(_ context.Context, _ string, input json.RawMessage) (*parley.CallResult, error) {
				gotInput = input
				return &parley.CallResult{Content: []parley.ToolOutput{{Text: "3"}}}, nil
			},
		}

		history := &mock.History{}
		a := connected(t, backend, history, []parley.Connector{calc})

		err := a.Run(context.Background(), "what is 1+2?")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1,"b":2}`, string(gotInput))

		// user, assistant tool use, user tool result, assistant text.
		msgs := history.Messages()
		require.Len(t, msgs, 4)
		require.Len(t, msgs[2].Content, 1)
		result, ok := msgs[2].Content[0].(parley.ToolResultBlock)
		require.True(t, ok)
		assert.Equal(t, "tu_1", result.ToolUseID)
		assert.Equal(t, parley.StatusSuccess, result.Status)
		require.Len(t, result.Content, 1)
		assert.Equal(t, "3", result.Content[0].Text)

		// The second backend call saw the full exchange so far.
		require.Len(t, backend.Calls, 2)
		assert.Len(t, backend.Calls[1], 3)
	})

	t.Run("multiple tool calls produce one result message", func(t *testing.T) {
		t.Parallel()

		turn := 0
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				turn++
				if turn == 1 {
					return parley.Message{Role: parley.RoleAssistant, Content: []parley.ContentBlock{
						parley.ToolUseBlock{ID: "tu_1", Name: "add", Input: json.RawMessage(`{"a":1,"b":2}`)},
						parley.TextBlock{Text: "and also"},
						parley.ToolUseBlock{ID: "tu_2", Name: "sub", Input: json.RawMessage(`{"a":5,"b":3}`)},
					}}, nil
				}
				return textReply("done"), nil
			},
		}

		calc := &mock.Connector{
			NameValue: "calc",
			ToolsValue: []parley.Tool{
				{Name: "add", Enabled: true},
				{Name: "sub", Enabled: true},
			},
			InvokeFn: func(_ context.Context, name string, _ json.RawMessage) (*parley.CallResult, error) {
				return &parley.CallResult{Content: []parley.ToolOutput{{Text: name + " result"}}}, nil
			},
		}

		history := &mock.History{}
		a := connected(t, backend, history, []parley.Connector{calc})

		err := a.Run(context.Background(), "compute both")
		require.NoError(t, err)

		// Tools ran sequentially in request order.
		assert.Equal(t, []string{"add", "sub"}, calc.Invocations)

		// Both results landed in a single user message, in request order.
		msgs := history.Messages()
		require.Len(t, msgs, 4)
		assert.Equal(t, parley.RoleUser, msgs[2].Role)
		require.Len(t, msgs[2].Content, 2)
		r1, ok := msgs[2].Content[0].(parley.ToolResultBlock)
		require.True(t, ok)
		r2, ok := msgs[2].Content[1].(parley.ToolResultBlock)
		require.True(t, ok)
		assert.Equal(t, "tu_1", r1.ToolUseID)
		assert.Equal(t, "tu_2", r2.ToolUseID)
	})

	t.Run("unknown tool becomes error result", func(t *testing.T) {
		t.Parallel()

		turn := 0
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				turn++
				if turn == 1 {
					return toolUseReply(parley.ToolUseBlock{ID: "tu_1", Name: "ghost", Input: json.RawMessage(`{}`)}), nil
				}
				return textReply("I'll manage without it"), nil
			},
		}

		history := &mock.History{}
		a := connected(t, backend, history, nil)

		err := a.Run(context.Background(), "use the ghost tool")
		require.NoError(t, err)

		msgs := history.Messages()
		require.Len(t, msgs, 4)
		result, ok := msgs[2].Content[0].(parley.ToolResultBlock)
		require.True(t, ok)
		assert.Equal(t, parley.StatusError, result.Status)
		require.Len(t, result.Content, 1)
		assert.Equal(t, `No tool named "ghost".`, result.Content[0].Text)
	})

	t.Run("invocation failure becomes error result", func(t *testing.T) {
		t.Parallel()

		turn := 0
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				turn++
				if turn == 1 {
					return toolUseReply(parley.ToolUseBlock{ID: "tu_1", Name: "add", Input: json.RawMessage(`{}`)}), nil
				}
				return textReply("that failed"), nil
			},
		}

		calc := &mock.Connector{
			NameValue:  "calc",
			ToolsValue: []parley.Tool{{Name: "add", Enabled: true}},
			InvokeFn: func(_ context.Context, _ string, _ json.RawMessage) (*parley.CallResult, error) {
				return nil, errors.New("server crashed")
			},
		}

		history := &mock.History{}
		a := connected(t, backend, history, []parley.Connector{calc})

		err := a.Run(context.Background(), "add")
		require.NoError(t, err)

		msgs := history.Messages()
		require.Len(t, msgs, 4)
		result, ok := msgs[2].Content[0].(parley.ToolResultBlock)
		require.True(t, ok)
		assert.Equal(t, parley.StatusError, result.Status)
		assert.Equal(t, "Error: server crashed", result.Content[0].Text)
	})

	t.Run("tool domain error fed back verbatim", func(t *testing.T) {
		t.Parallel()

		turn := 0
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				turn++
				if turn == 1 {
					return toolUseReply(parley.ToolUseBlock{ID: "tu_1", Name: "div", Input: json.RawMessage(`{"a":1,"b":0}`)}), nil
				}
				return textReply("can't divide by zero"), nil
			},
		}

		calc := &mock.Connector{
			NameValue:  "calc",
			ToolsValue: []parley.Tool{{Name: "div", Enabled: true}},
			InvokeFn: func(_ context.Context, _ string, _ json.RawMessage) (*parley.CallResult, error) {
				return &parley.CallResult{
					Content: []parley.ToolOutput{{Text: "division by zero"}},
					IsError: true,
				}, nil
			},
		}

		history := &mock.History{}
		a := connected(t, backend, history, []parley.Connector{calc})

		err := a.Run(context.Background(), "divide")
		require.NoError(t, err)

		result, ok := history.Messages()[2].Content[0].(parley.ToolResultBlock)
		require.True(t, ok)
		assert.Equal(t, parley.StatusError, result.Status)
		assert.Equal(t, "division by zero", result.Content[0].Text)
	})

	t.Run("backend error aborts run", func(t *testing.T) {
		t.Parallel()

		wantErr := parley.Errorf(parley.FaultLLM, "rate limited")
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				return parley.Message{}, wantErr
			},
		}

		history := &mock.History{}
		a := connected(t, backend, history, nil)

		err := a.Run(context.Background(), "hi")
		assert.ErrorIs(t, err, wantErr)

		// The user message was already recorded; no assistant reply.
		require.Len(t, history.Messages(), 1)
	})

	t.Run("context cancellation aborts run", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		backend := &mock.Backend{}
		a := connected(t, backend, &mock.History{}, nil)

		err := a.Run(ctx, "hi")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, backend.Calls)
	})

	t.Run("max turns caps a tool loop", func(t *testing.T) {
		t.Parallel()

		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				return toolUseReply(parley.ToolUseBlock{ID: "tu_n", Name: "add", Input: json.RawMessage(`{}`)}), nil
			},
		}
		calc := &mock.Connector{
			NameValue:  "calc",
			ToolsValue: []parley.Tool{{Name: "add", Enabled: true}},
		}

		a := connected(t, backend, &mock.History{}, []parley.Connector{calc}, agent.WithMaxTurns(2))

		err := a.Run(context.Background(), "loop forever")
		require.Error(t, err)
		assert.Equal(t, parley.FaultInternal, parley.OwnerOf(err))
		assert.Contains(t, err.Error(), "exceeded 2 model turns")
		assert.Len(t, backend.Calls, 2)
	})

	t.Run("run before connect fails", func(t *testing.T) {
		t.Parallel()

		a := agent.New(factoryFor(&mock.Backend{}, nil), &mock.History{}, nil)
		err := a.Run(context.Background(), "hi")
		require.Error(t, err)
		assert.Equal(t, parley.FaultInternal, parley.OwnerOf(err))
	})

	t.Run("second run reuses conversation history", func(t *testing.T) {
		t.Parallel()

		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				return textReply("reply"), nil
			},
		}
		history := &mock.History{}
		a := connected(t, backend, history, nil)

		require.NoError(t, a.Run(context.Background(), "first"))
		require.NoError(t, a.Run(context.Background(), "second"))

		require.Len(t, backend.Calls, 2)
		// Second call saw first exchange plus the new user message.
		assert.Len(t, backend.Calls[1], 3)
		require.Len(t, history.Messages(), 4)
	})

	t.Run("message handler sees every appended message", func(t *testing.T) {
		t.Parallel()

		turn := 0
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				turn++
				if turn == 1 {
					return toolUseReply(parley.ToolUseBlock{ID: "tu_1", Name: "add", Input: json.RawMessage(`{}`)}), nil
				}
				return textReply("done"), nil
			},
		}
		calc := &mock.Connector{
			NameValue:  "calc",
			ToolsValue: []parley.Tool{{Name: "add", Enabled: true}},
		}

		var seen []parley.Role
		handler := func(msg parley.Message) {
			seen = append(seen, msg.Role)
		}

		a := connected(t, backend, &mock.History{}, []parley.Connector{calc}, agent.WithMessageHandler(handler))

		require.NoError(t, a.Run(context.Background(), "go"))
		assert.Equal(t, []parley.Role{
			parley.RoleUser,
			parley.RoleAssistant,
			parley.RoleUser,
			parley.RoleAssistant,
		}, seen)
	})
}

func TestAgent_Connect(t *testing.T) {
	t.Parallel()

	t.Run("registry collects enabled tools in connector order", func(t *testing.T) {
		t.Parallel()

		first := &mock.Connector{
			NameValue: "calc",
			ToolsValue: []parley.Tool{
				{Name: "add", Enabled: true},
				{Name: "secret", Enabled: false},
			},
		}
		second := &mock.Connector{
			NameValue:  "files",
			ToolsValue: []parley.Tool{{Name: "read", Enabled: true}},
		}

		var specs []parley.Tool
		a := agent.New(factoryFor(&mock.Backend{}, &specs), &mock.History{}, []parley.Connector{first, second})
		require.NoError(t, a.Connect(context.Background()))

		require.Len(t, specs, 2)
		assert.Equal(t, "add", specs[0].Name)
		assert.Equal(t, "read", specs[1].Name)
	})

	t.Run("duplicate tool routed to first connector", func(t *testing.T) {
		t.Parallel()

		turn := 0
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				turn++
				if turn == 1 {
					return toolUseReply(parley.ToolUseBlock{ID: "tu_1", Name: "search", Input: json.RawMessage(`{}`)}), nil
				}
				return textReply("found it"), nil
			},
		}

		first := &mock.Connector{
			NameValue:  "web",
			ToolsValue: []parley.Tool{{Name: "search", Enabled: true}},
		}
		second := &mock.Connector{
			NameValue:  "docs",
			ToolsValue: []parley.Tool{{Name: "search", Enabled: true}},
		}

		a := connected(t, backend, &mock.History{}, []parley.Connector{first, second})
		require.NoError(t, a.Run(context.Background(), "search"))

		assert.Equal(t, []string{"search"}, first.Invocations)
		assert.Empty(t, second.Invocations)
	})

	t.Run("disabled tool is not resolvable", func(t *testing.T) {
		t.Parallel()

		turn := 0
		backend := &mock.Backend{
			ConverseFn: func(_ context.Context, _ []parley.Message) (parley.Message, error) {
				turn++
				if turn == 1 {
					return toolUseReply(parley.ToolUseBlock{ID: "tu_1", Name: "secret", Input: json.RawMessage(`{}`)}), nil
				}
				return textReply("ok"), nil
			},
		}

		calc := &mock.Connector{
			NameValue:  "calc",
			ToolsValue: []parley.Tool{{Name: "secret", Enabled: false}},
		}

		history := &mock.History{}
		a := connected(t, backend, history, []parley.Connector{calc})
		require.NoError(t, a.Run(context.Background(), "use secret"))

		assert.Empty(t, calc.Invocations)
		result, ok := history.Messages()[2].Content[0].(parley.ToolResultBlock)
		require.True(t, ok)
		assert.Equal(t, `No tool named "secret".`, result.Content[0].Text)
	})

	t.Run("one failing connector does not stop the others", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("spawn failed")
		broken := &mock.Connector{
			NameValue: "broken",
			ConnectFn: func(_ context.Context) error { return wantErr },
		}
		healthy := &mock.Connector{NameValue: "healthy"}

		a := agent.New(factoryFor(&mock.Backend{}, nil), &mock.History{}, []parley.Connector{broken, healthy})
		err := a.Connect(context.Background())
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 1, healthy.ConnectCalls)
	})

	t.Run("factory error propagates", func(t *testing.T) {
		t.Parallel()

		wantErr := parley.Errorf(parley.FaultUser, "unknown provider")
		factory := func(_ []parley.Tool) (parley.Backend, error) {
			return nil, wantErr
		}

		a := agent.New(factory, &mock.History{}, nil)
		err := a.Connect(context.Background())
		assert.ErrorIs(t, err, wantErr)
	})
}

func TestAgent_Close(t *testing.T) {
	t.Parallel()

	t.Run("closes every connector once", func(t *testing.T) {
		t.Parallel()

		first := &mock.Connector{NameValue: "a"}
		second := &mock.Connector{NameValue: "b"}

		a := agent.New(factoryFor(&mock.Backend{}, nil), &mock.History{}, []parley.Connector{first, second})
		require.NoError(t, a.Close())
		require.NoError(t, a.Close())
		assert.Equal(t, 1, first.CloseCalls)
		assert.Equal(t, 1, second.CloseCalls)
	})

	t.Run("joins close errors from all connectors", func(t *testing.T) {
		t.Parallel()

		errA := errors.New("close a")
		errB := errors.New("close b")
		first := &mock.Connector{NameValue: "a", CloseFn: func() error { return errA }}
		second := &mock.Connector{NameValue: "b", CloseFn: func() error { return errB }}

		a := agent.New(factoryFor(&mock.Backend{}, nil), &mock.History{}, []parley.Connector{first, second})
		err := a.Close()
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
		assert.Equal(t, 1, second.CloseCalls)
	})
}
