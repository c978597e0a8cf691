package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Roles understood by chat endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoMessages is returned when a chat request carries no messages.
var ErrNoMessages = errors.New("messages array required")

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidateMessages checks that a chat history is usable upstream. Only the
// last message must carry text; blank earlier turns, such as the reply to
// a stopped generation, are removed by WithoutBlank.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return ErrNoMessages
	}
	for i, m := range messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	if last := len(messages) - 1; isBlank(messages[last]) {
		return fmt.Errorf("message %d: empty content", last)
	}
	return nil
}

// WithoutBlank returns messages minus those with no text.
func WithoutBlank(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if !isBlank(m) {
			out = append(out, m)
		}
	}
	return out
}

func isBlank(m Message) bool {
	return strings.TrimSpace(m.Content) == ""
}
