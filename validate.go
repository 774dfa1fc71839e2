package parley

import "fmt"

// ValidateMessage checks that a message's content blocks are legal for its
// role: tool uses appear only in assistant messages, tool results only in
// user messages.
func ValidateMessage(msg Message) error {
	switch msg.Role {
	case RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("unknown role %q: %w", msg.Role, ErrValidation)
	}
	for _, b := range msg.Content {
		switch b.(type) {
		case TextBlock:
		case ToolUseBlock:
			if msg.Role != RoleAssistant {
				return fmt.Errorf("tool use in %s message: %w", msg.Role, ErrValidation)
			}
		case ToolResultBlock:
			if msg.Role != RoleUser {
				return fmt.Errorf("tool result in %s message: %w", msg.Role, ErrValidation)
			}
		default:
			return fmt.Errorf("unknown content block type %T in %s message: %w", b, msg.Role, ErrValidation)
		}
	}
	return nil
}

// ValidateHistory checks cross-message constraints: the history opens with a
// user message, and every assistant tool use is answered by a matching tool
// result in the immediately following user message, in the same order.
func ValidateHistory(history []Message) error {
	if len(history) == 0 {
		return nil
	}
	if history[0].Role != RoleUser {
		return fmt.Errorf("history starts with %s message: %w", history[0].Role, ErrValidation)
	}
	for i, msg := range history {
		if err := ValidateMessage(msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		uses := msg.ToolUses()
		if len(uses) == 0 {
			continue
		}
		if i+1 >= len(history) {
			return fmt.Errorf("message %d: %d unanswered tool uses: %w", i, len(uses), ErrValidation)
		}
		var results []ToolResultBlock
		for _, b := range history[i+1].Content {
			if r, ok := b.(ToolResultBlock); ok {
				results = append(results, r)
			}
		}
		if len(results) != len(uses) {
			return fmt.Errorf("message %d: %d tool uses answered by %d results: %w", i, len(uses), len(results), ErrValidation)
		}
		for j, use := range uses {
			if results[j].ToolUseID != use.ID {
				return fmt.Errorf("message %d: result %d answers %q, want %q: %w", i, j, results[j].ToolUseID, use.ID, ErrValidation)
			}
		}
	}
	return nil
}
