package message

import (
	"testing"

	"github.com/germanamz/mender/pkg/chats/role"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	msg := New(role.User, "hello")

	assert.Equal(t, role.User, msg.Role)
	assert.Equal(t, "hello", msg.Text)
	assert.False(t, msg.IsEmpty())
}

func TestMessage_ZeroValue(t *testing.T) {
	var msg Message

	assert.True(t, msg.IsEmpty())
	assert.Empty(t, msg.Role)
}
