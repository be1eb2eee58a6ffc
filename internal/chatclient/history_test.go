package chatclient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/fsy-chat/internal/model/chat"
)

func TestLoadMessageHistoryMapsRecords(t *testing.T) {
	c, dialer, be := newTestClient(t)
	connect(t, c, dialer, "s1")
	be.history = []chat.HistoryRecord{
		{Role: "user", Content: []chat.ContentBlock{{Type: "text", Text: "What is a slice?"}}},
		{Role: "assistant", Content: []chat.ContentBlock{{Text: "A view over an array."}}},
		{Role: "system"},
		{Role: "tool", Content: []chat.ContentBlock{{Type: "image", Text: "ignored"}, {Type: "text", Text: "shown"}}},
	}

	require.NoError(t, c.LoadMessageHistory(context.Background(), "s1"))

	msgs := c.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, "What is a slice?", msgs[0].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "A view over an array.", msgs[1].Content)
	assert.Equal(t, chat.RoleSystem, msgs[2].Role)
	assert.Empty(t, msgs[2].Content)
	assert.Equal(t, chat.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "shown", msgs[3].Content)
	for _, m := range msgs {
		assert.Equal(t, fixedTime, m.Timestamp)
		assert.NotEmpty(t, m.ID)
	}
}

func TestLoadMessageHistoryTwiceDuplicates(t *testing.T) {
	c, dialer, be := newTestClient(t)
	connect(t, c, dialer, "s1")
	be.history = []chat.HistoryRecord{
		{Role: "user", Content: []chat.ContentBlock{{Type: "text", Text: "hi"}}},
		{Role: "assistant", Content: []chat.ContentBlock{{Type: "text", Text: "hello"}}},
	}

	require.NoError(t, c.LoadMessageHistory(context.Background(), "s1"))
	require.NoError(t, c.LoadMessageHistory(context.Background(), "s1"))

	msgs := c.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, msgs[0].Content, msgs[2].Content)
	assert.Equal(t, msgs[1].Content, msgs[3].Content)
}

func TestLoadMessageHistoryThenStream(t *testing.T) {
	c, dialer, be := newTestClient(t)
	s := connect(t, c, dialer, "s1")
	be.history = []chat.HistoryRecord{{Role: "assistant", Content: []chat.ContentBlock{{Type: "text", Text: "earlier"}}}}

	require.NoError(t, c.LoadMessageHistory(context.Background(), "s1"))
	s.chunk(t, "m1", "now")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "earlier", msgs[0].Content)
	assert.Equal(t, "now", msgs[1].Content)
}

func TestLoadMessageHistoryErrors(t *testing.T) {
	c, dialer, be := newTestClient(t)
	connect(t, c, dialer, "s1")

	err := c.LoadMessageHistory(context.Background(), "s2")
	assert.ErrorIs(t, err, ErrSessionNotActive)

	boom := errors.New("boom")
	be.historyErr = boom
	err = c.LoadMessageHistory(context.Background(), "s1")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, c.Messages())
}

func TestLoadMessageHistoryDiscardedAfterReconnect(t *testing.T) {
	c, dialer, be := newTestClient(t)
	first := connect(t, c, dialer, "s1")
	be.history = []chat.HistoryRecord{
		{Role: "user", Content: []chat.ContentBlock{{Text: "from the old connection"}}},
	}
	be.beforeHistory = func() { connect(t, c, dialer, "s1") }

	err := c.LoadMessageHistory(context.Background(), "s1")

	assert.ErrorIs(t, err, ErrSessionNotActive)
	assert.Empty(t, c.Messages())
	assert.True(t, first.isClosed())
	assert.True(t, c.Connected())
	assert.Equal(t, "s1", c.SessionID())
}
