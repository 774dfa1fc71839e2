// Package openai implements [parley.Backend] for OpenAI-compatible chat
// completion APIs using the function-calling protocol.
//
// The same client serves Ollama's OpenAI-compatible endpoint as the
// local-model variant; see [NewOllama].
package openai

import "encoding/json"

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultModel    = "gpt-4o"
	ollamaBaseURL   = "http://localhost:11434/v1"
	ollamaModel     = "llama3.2"
	ollamaAPIKey    = "ollama"
	completionsPath = "/chat/completions"
)

// apiRequest is the JSON body sent to the chat completions endpoint.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Tools       []apiTool    `json:"tools,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

// apiMessage is one entry in the flattened messages array. Content is a
// pointer so tool messages can send an explicit empty string while pure
// tool-call messages omit the field entirely.
type apiMessage struct {
	Role       string        `json:"role"`
	Content    *string       `json:"content,omitempty"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"` // always "function"
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object, string-encoded per the API
}

type apiTool struct {
	Type     string      `json:"type"` // always "function"
	Function apiToolSpec `json:"function"`
}

type apiToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// apiResponse is the non-streaming chat completion response.
type apiResponse struct {
	ID      string      `json:"id"`
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Index        int                `json:"index"`
	Message      apiResponseMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type apiResponseMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	ToolCalls []apiToolCall `json:"tool_calls"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
