package chat

import (
	"testing"

	"github.com/germanamz/mender/pkg/chats/message"
	"github.com/germanamz/mender/pkg/chats/role"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New(message.New(role.User, "hello"), message.New(role.Assistant, "hi"))

	assert.Equal(t, 2, c.Len())
}

func TestChat_ZeroValue(t *testing.T) {
	var c Chat

	assert.Equal(t, 0, c.Len())

	_, ok := c.Last()
	assert.False(t, ok)
	assert.Empty(t, c.Messages())
}

func TestChat_AppendAndAt(t *testing.T) {
	c := New()
	c.Append(message.New(role.User, "one"))
	c.Append(message.New(role.Assistant, "two"), message.New(role.User, "three"))

	require.Equal(t, 3, c.Len())
	assert.Equal(t, "two", c.At(1).Text)

	last, ok := c.Last()
	assert.True(t, ok)
	assert.Equal(t, "three", last.Text)
}

func TestChat_LastBy(t *testing.T) {
	c := New(
		message.New(role.User, "q1"),
		message.New(role.Assistant, "a1"),
		message.New(role.User, "q2"),
	)

	m, ok := c.LastBy(role.Assistant)
	assert.True(t, ok)
	assert.Equal(t, "a1", m.Text)

	_, ok = c.LastBy(role.System)
	assert.False(t, ok)
}

func TestChat_MessagesIsCopy(t *testing.T) {
	c := New(message.New(role.User, "original"))

	msgs := c.Messages()
	msgs[0].Text = "changed"

	assert.Equal(t, "original", c.At(0).Text)
}

func TestChat_TruncateAndReset(t *testing.T) {
	c := New(message.New(role.User, "a"), message.New(role.Assistant, "b"), message.New(role.User, "c"))

	c.Truncate(2)
	assert.Equal(t, 2, c.Len())

	c.Truncate(10)
	assert.Equal(t, 2, c.Len())

	c.Truncate(-1)
	assert.Equal(t, 0, c.Len())

	c.Append(message.New(role.User, "x"))
	c.Reset()
	assert.Equal(t, 0, c.Len())
}
