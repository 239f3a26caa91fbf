// Package chat provides a mutable conversation container.
package chat

import (
	"github.com/germanamz/mender/pkg/chats/message"
	"github.com/germanamz/mender/pkg/chats/role"
)

// Chat is a mutable conversation container. The zero value is ready to use.
// Chat is not safe for concurrent use; callers must synchronize externally.
type Chat struct {
	messages []message.Message
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Append adds one or more messages to the conversation.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of messages in the conversation.
func (c *Chat) Len() int {
	return len(c.messages)
}

// At returns the message at the given index.
// It panics if the index is out of range.
func (c *Chat) At(index int) message.Message {
	return c.messages[index]
}

// Last returns the most recent message and true, or a zero Message and false
// if the conversation is empty.
func (c *Chat) Last() (message.Message, bool) {
	if len(c.messages) == 0 {
		return message.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// LastBy returns the most recent message with the given role.
func (c *Chat) LastBy(r role.Role) (message.Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == r {
			return c.messages[i], true
		}
	}
	return message.Message{}, false
}

// Messages returns a copy of all messages in the conversation.
func (c *Chat) Messages() []message.Message {
	cp := make([]message.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Truncate drops every message from index n onwards. It is used to roll back
// a user turn whose reply never arrived.
func (c *Chat) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(c.messages) {
		c.messages = c.messages[:n]
	}
}

// Reset clears the conversation.
func (c *Chat) Reset() {
	c.messages = nil
}
