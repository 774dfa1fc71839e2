package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fwojciec/parley"
)

// Interface compliance check.
var _ parley.Backend = (*Client)(nil)

// Client implements [parley.Backend] for OpenAI-compatible chat completion
// APIs. System prompt and tool specs are bound at construction.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	model       string
	maxTokens   int
	temperature *float64
	system      string
	tools       []apiTool
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model used for all requests.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithMaxTokens caps completion length. Zero means the API default.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(c *Client) { c.temperature = &temp }
}

// New creates a [Client] bound to a system prompt and a final tool set.
// Tool specs are converted to the function-calling shape once, here.
func New(apiKey, system string, tools []parley.Tool, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		model:      defaultModel,
		system:     system,
		tools:      convertTools(tools),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewOllama creates a [Client] for a local Ollama server's OpenAI-compatible
// endpoint. The API key is a placeholder; Ollama ignores it.
func NewOllama(system string, tools []parley.Tool, opts ...Option) *Client {
	c := New(ollamaAPIKey, system, tools)
	c.baseURL = ollamaBaseURL
	c.model = ollamaModel
	for _, o := range opts {
		o(c)
	}
	return c
}

// Converse sends the full history and returns the assistant's next message.
func (c *Client) Converse(ctx context.Context, history []parley.Message) (parley.Message, error) {
	body, err := json.Marshal(apiRequest{
		Model:       c.model,
		Messages:    convertMessages(c.system, history),
		Tools:       c.tools,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return parley.Message{}, fmt.Errorf("openai: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return parley.Message{}, fmt.Errorf("openai: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return parley.Message{}, &parley.Error{
			Owner:     parley.FaultLLM,
			Retriable: true,
			Message:   "chat completion request",
			Err:       err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parley.Message{}, parseHTTPError(resp)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return parley.Message{}, &parley.Error{
			Owner:     parley.FaultLLM,
			Retriable: true,
			Message:   "decode chat completion response",
			Err:       err,
		}
	}
	return parseResponse(apiResp)
}

// convertMessages flattens typed history into the function-calling wire
// shape. The conversion is lossy for tool results: only the first output
// block's text is sent, matching the single-string content the API accepts.
func convertMessages(system string, msgs []parley.Message) []apiMessage {
	var result []apiMessage
	if system != "" {
		result = append(result, apiMessage{Role: "system", Content: ptr(system)})
	}
	for _, msg := range msgs {
		for _, b := range msg.Content {
			switch bl := b.(type) {
			case parley.TextBlock:
				result = append(result, apiMessage{Role: string(msg.Role), Content: ptr(bl.Text)})
			case parley.ToolUseBlock:
				args := string(bl.Input)
				if args == "" {
					args = "{}"
				}
				call := apiToolCall{ID: bl.ID, Type: "function", Function: apiFunction{Name: bl.Name, Arguments: args}}
				// Coalesce consecutive tool uses into the previous
				// assistant tool-call message.
				if n := len(result); n > 0 && result[n-1].Role == "assistant" && len(result[n-1].ToolCalls) > 0 {
					result[n-1].ToolCalls = append(result[n-1].ToolCalls, call)
				} else {
					result = append(result, apiMessage{Role: "assistant", ToolCalls: []apiToolCall{call}})
				}
			case parley.ToolResultBlock:
				content := ""
				if len(bl.Content) > 0 {
					content = bl.Content[0].Text
				}
				result = append(result, apiMessage{Role: "tool", ToolCallID: bl.ToolUseID, Content: ptr(content)})
			}
		}
	}
	return result
}

// convertTools precomputes the function-calling tool specs.
func convertTools(tools []parley.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		result[i] = apiTool{
			Type: "function",
			Function: apiToolSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return result
}

// parseResponse collects every choice's content and tool calls into a single
// assistant message, preserving API order.
func parseResponse(resp apiResponse) (parley.Message, error) {
	if len(resp.Choices) == 0 {
		return parley.Message{}, parley.Errorf(parley.FaultLLM, "chat completion response has no choices")
	}
	var blocks []parley.ContentBlock
	for _, choice := range resp.Choices {
		msg := choice.Message
		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			return parley.Message{}, parley.Errorf(parley.FaultInternal, "chat completion choice %d has neither content nor tool calls", choice.Index)
		}
		if msg.Content != "" {
			blocks = append(blocks, parley.TextBlock{Text: msg.Content})
		}
		for _, call := range msg.ToolCalls {
			args := call.Function.Arguments
			if args == "" {
				args = "{}"
			}
			blocks = append(blocks, parley.ToolUseBlock{ID: call.ID, Name: call.Function.Name, Input: json.RawMessage(args)})
		}
	}
	return parley.Message{Role: parley.RoleAssistant, Content: blocks}, nil
}

func parseHTTPError(resp *http.Response) error {
	retriable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &parley.Error{
			Owner:     parley.FaultLLM,
			Retriable: retriable,
			Message:   fmt.Sprintf("HTTP %d (failed to read body)", resp.StatusCode),
			Err:       err,
		}
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
		return &parley.Error{
			Owner:     parley.FaultLLM,
			Retriable: retriable,
			Message:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, body),
		}
	}
	return &parley.Error{Owner: parley.FaultLLM, Retriable: retriable, Message: apiErr.Error.Message}
}

func ptr(s string) *string { return &s }
