package history

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/parley"
)

// messageDTO is the JSON representation of a Message with a role
// discriminator.
type messageDTO struct {
	Role    string     `json:"role"`
	Content []blockDTO `json:"content"`
}

// blockDTO is the JSON representation of a ContentBlock with a type
// discriminator.
type blockDTO struct {
	Type      string           `json:"type"`
	Text      *string          `json:"text,omitempty"`
	ID        *string          `json:"id,omitempty"`
	Name      *string          `json:"name,omitempty"`
	Input     *json.RawMessage `json:"input,omitempty"`
	ToolUseID *string          `json:"tool_use_id,omitempty"`
	Status    *string          `json:"status,omitempty"`
	Content   []outputDTO      `json:"content,omitempty"`
}

type outputDTO struct {
	Text string `json:"text"`
}

// MarshalMessages serializes messages as a JSON array.
func MarshalMessages(msgs []parley.Message) ([]byte, error) {
	dtos := make([]messageDTO, len(msgs))
	for i, msg := range msgs {
		dto, err := marshalMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		dtos[i] = dto
	}
	return json.MarshalIndent(dtos, "", "  ")
}

// UnmarshalMessages deserializes a JSON array of messages.
func UnmarshalMessages(data []byte) ([]parley.Message, error) {
	var dtos []messageDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	msgs := make([]parley.Message, len(dtos))
	for i, dto := range dtos {
		msg, err := unmarshalMessage(dto)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		msgs[i] = msg
	}
	return msgs, nil
}

func marshalMessage(msg parley.Message) (messageDTO, error) {
	switch msg.Role {
	case parley.RoleUser, parley.RoleAssistant:
	default:
		return messageDTO{}, fmt.Errorf("unknown message role: %q", msg.Role)
	}
	blocks := make([]blockDTO, len(msg.Content))
	for i, b := range msg.Content {
		dto, err := marshalBlock(b)
		if err != nil {
			return messageDTO{}, fmt.Errorf("content block %d: %w", i, err)
		}
		blocks[i] = dto
	}
	return messageDTO{Role: string(msg.Role), Content: blocks}, nil
}

func unmarshalMessage(dto messageDTO) (parley.Message, error) {
	role := parley.Role(dto.Role)
	switch role {
	case parley.RoleUser, parley.RoleAssistant:
	default:
		return parley.Message{}, fmt.Errorf("unknown message role: %q", dto.Role)
	}
	blocks := make([]parley.ContentBlock, len(dto.Content))
	for i, b := range dto.Content {
		block, err := unmarshalBlock(b)
		if err != nil {
			return parley.Message{}, fmt.Errorf("content block %d: %w", i, err)
		}
		blocks[i] = block
	}
	return parley.Message{Role: role, Content: blocks}, nil
}

func marshalBlock(b parley.ContentBlock) (blockDTO, error) {
	switch v := b.(type) {
	case parley.TextBlock:
		return blockDTO{Type: "text", Text: &v.Text}, nil
	case parley.ToolUseBlock:
		input := v.Input
		return blockDTO{Type: "tool_use", ID: &v.ID, Name: &v.Name, Input: &input}, nil
	case parley.ToolResultBlock:
		status := string(v.Status)
		outputs := make([]outputDTO, len(v.Content))
		for i, out := range v.Content {
			outputs[i] = outputDTO{Text: out.Text}
		}
		return blockDTO{
			Type:      "tool_result",
			ToolUseID: &v.ToolUseID,
			Status:    &status,
			Content:   outputs,
		}, nil
	default:
		return blockDTO{}, fmt.Errorf("unknown content block type: %T", b)
	}
}

func unmarshalBlock(dto blockDTO) (parley.ContentBlock, error) {
	switch dto.Type {
	case "text":
		var text string
		if dto.Text != nil {
			text = *dto.Text
		}
		return parley.TextBlock{Text: text}, nil
	case "tool_use":
		var id, name string
		if dto.ID != nil {
			id = *dto.ID
		}
		if dto.Name != nil {
			name = *dto.Name
		}
		var input json.RawMessage
		if dto.Input != nil {
			input = *dto.Input
		}
		return parley.ToolUseBlock{ID: id, Name: name, Input: input}, nil
	case "tool_result":
		var toolUseID string
		if dto.ToolUseID != nil {
			toolUseID = *dto.ToolUseID
		}
		status := parley.StatusSuccess
		if dto.Status != nil {
			status = parley.ResultStatus(*dto.Status)
		}
		var outputs []parley.ToolOutput
		if len(dto.Content) > 0 {
			outputs = make([]parley.ToolOutput, len(dto.Content))
			for i, out := range dto.Content {
				outputs[i] = parley.ToolOutput{Text: out.Text}
			}
		}
		return parley.ToolResultBlock{ToolUseID: toolUseID, Status: status, Content: outputs}, nil
	default:
		return nil, fmt.Errorf("unknown content block type: %q", dto.Type)
	}
}
