// Package message defines a single conversation turn.
package message

import "github.com/germanamz/mender/pkg/chats/role"

// Message is one turn of a conversation.
type Message struct {
	Role role.Role
	Text string
}

// New creates a message.
func New(r role.Role, text string) Message {
	return Message{Role: r, Text: text}
}

// IsEmpty reports whether the message carries no text.
func (m Message) IsEmpty() bool {
	return m.Text == ""
}
