// Package bedrock implements [parley.Backend] for the AWS Bedrock Converse
// API, the native multi-turn protocol.
//
// It wraps the aws-sdk-go-v2 bedrockruntime client, translating between
// parley's domain types and the Converse API type unions. Tool inputs and
// schemas cross the boundary as smithy documents.
package bedrock

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/fwojciec/parley"
)

const defaultModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"

// ConvertMessages translates typed history into Converse API messages.
// Exported for testing.
func ConvertMessages(msgs []parley.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(msgs))
	for _, msg := range msgs {
		role := types.ConversationRoleUser
		if msg.Role == parley.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		content, err := convertBlocks(msg.Content)
		if err != nil {
			return nil, err
		}
		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

func convertBlocks(blocks []parley.ContentBlock) ([]types.ContentBlock, error) {
	result := make([]types.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case parley.TextBlock:
			result = append(result, &types.ContentBlockMemberText{Value: bl.Text})
		case parley.ToolUseBlock:
			input, err := documentFromJSON(bl.Input)
			if err != nil {
				return nil, fmt.Errorf("bedrock: tool use %s input: %w", bl.ID, err)
			}
			result = append(result, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String(bl.ID),
				Name:      aws.String(bl.Name),
				Input:     input,
			}})
		case parley.ToolResultBlock:
			content := make([]types.ToolResultContentBlock, 0, len(bl.Content))
			for _, out := range bl.Content {
				content = append(content, &types.ToolResultContentBlockMemberText{Value: out.Text})
			}
			status := types.ToolResultStatusSuccess
			if bl.Status == parley.StatusError {
				status = types.ToolResultStatusError
			}
			result = append(result, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
				ToolUseId: aws.String(bl.ToolUseID),
				Content:   content,
				Status:    status,
			}})
		}
	}
	return result, nil
}

// ConvertTools precomputes the Converse tool configuration with the nested
// toolSpec shape. Exported for testing.
func ConvertTools(tools []parley.Tool) (*types.ToolConfiguration, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		schema, err := documentFromJSON(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("bedrock: tool %s schema: %w", t.Name, err)
		}
		spec := types.ToolSpecification{
			Name:        aws.String(t.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: schema},
		}
		if t.Description != "" {
			spec.Description = aws.String(t.Description)
		}
		result = append(result, &types.ToolMemberToolSpec{Value: spec})
	}
	return &types.ToolConfiguration{Tools: result}, nil
}

// ParseMessage translates a Converse API response into a typed assistant
// message. Block kinds with no typed equivalent are dropped. Exported for
// testing.
func ParseMessage(out types.ConverseOutput) (parley.Message, error) {
	m, ok := out.(*types.ConverseOutputMemberMessage)
	if !ok {
		return parley.Message{}, parley.Errorf(parley.FaultLLM, "converse response has no message output")
	}
	var blocks []parley.ContentBlock
	for _, c := range m.Value.Content {
		switch block := c.(type) {
		case *types.ContentBlockMemberText:
			blocks = append(blocks, parley.TextBlock{Text: block.Value})
		case *types.ContentBlockMemberToolUse:
			input, err := jsonFromDocument(block.Value.Input)
			if err != nil {
				return parley.Message{}, parley.WrapError(parley.FaultInternal, "decode tool use input", err)
			}
			blocks = append(blocks, parley.ToolUseBlock{
				ID:    aws.ToString(block.Value.ToolUseId),
				Name:  aws.ToString(block.Value.Name),
				Input: input,
			})
		}
	}
	return parley.Message{Role: parley.RoleAssistant, Content: blocks}, nil
}

// documentFromJSON decodes raw JSON into a smithy document. Empty input
// becomes an empty object: the API rejects missing documents.
func documentFromJSON(raw json.RawMessage) (document.Interface, error) {
	var v any
	if len(raw) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return document.NewLazyDocument(v), nil
}

func jsonFromDocument(doc document.Interface) (json.RawMessage, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
