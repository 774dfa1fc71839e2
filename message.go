package parley

import (
	"encoding/json"
	"strings"
)

// Message is one conversation turn: a role and an ordered sequence of
// content blocks. Block order is meaningful and must survive every
// conversion to and from provider wire formats.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// NewUserText returns a user message holding a single text block.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewAssistantText returns an assistant message holding a single text block.
func NewAssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock{Text: text}}}
}

// Text concatenates the message's text blocks, newline-separated.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the message's tool-use blocks in content order.
func (m Message) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range m.Content {
		if u, ok := b.(ToolUseBlock); ok {
			uses = append(uses, u)
		}
	}
	return uses
}

// ContentBlock is a sealed interface representing a block of message content.
// The unexported marker method prevents external implementations.
type ContentBlock interface {
	contentBlock()
}

// TextBlock contains text content.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ToolUseBlock is an assistant's request to invoke a tool.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolUseBlock) contentBlock() {}

// ToolResultBlock carries the outcome of one tool use back to the model.
// Content preserves the tool's output order.
type ToolResultBlock struct {
	ToolUseID string
	Content   []ToolOutput
	Status    ResultStatus
}

func (ToolResultBlock) contentBlock() {}

// ToolOutput is a single text payload within a tool result.
type ToolOutput struct {
	Text string
}

// ResultStatus reports whether a tool use succeeded.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// Interface compliance checks.
var (
	_ ContentBlock = TextBlock{}
	_ ContentBlock = ToolUseBlock{}
	_ ContentBlock = ToolResultBlock{}
)
