package npc

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedResponder struct {
	reply   string
	persona string
	history []ChatMessage
	prompt  ChatMessage
}

func (s *scriptedResponder) Respond(_ context.Context, persona string, history []ChatMessage, prompt ChatMessage) (string, error) {
	s.persona = persona
	s.history = history
	s.prompt = prompt
	return s.reply, nil
}

func TestInhabitRelease(t *testing.T) {
	c := NewController(nil, zap.NewNop())

	assert.False(t, c.IsInhabited("comp-1"))
	c.Inhabit("comp-1", "sock-9")
	assert.True(t, c.IsInhabited("comp-1"))

	sock, ok := c.SocketID("comp-1")
	require.True(t, ok)
	assert.Equal(t, "sock-9", sock)

	c.Release("comp-1")
	assert.False(t, c.IsInhabited("comp-1"))
	c.Release("comp-1") // idempotent
}

func TestContextWindowPurge(t *testing.T) {
	c := NewController(nil, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Track("comp-1", "Aria", "hello")
	now = now.Add(4 * time.Minute)
	c.Track("comp-1", "Bren", "still here")
	now = now.Add(2 * time.Minute)

	// The first line is now older than the five minute window.
	msgs := c.Context("comp-1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "still here", msgs[0].Text)
}

func TestContextLengthCap(t *testing.T) {
	c := NewController(nil, zap.NewNop())
	for i := 0; i < MaxContextMessages+7; i++ {
		c.Track("comp-1", "Aria", fmt.Sprintf("line %d", i))
	}
	msgs := c.Context("comp-1")
	require.Len(t, msgs, MaxContextMessages)
	assert.Equal(t, "line 7", msgs[0].Text)
}

func TestShouldRespond(t *testing.T) {
	r := &scriptedResponder{reply: "well met"}
	c := NewController(r, zap.NewNop())

	assert.True(t, c.ShouldRespond("comp-1", "Thistle", "hey THISTLE, over here"))
	assert.False(t, c.ShouldRespond("comp-1", "Thistle", "nothing relevant"))

	// Inhabited companions are driven by their controller, never the model.
	c.Inhabit("comp-1", "sock-1")
	assert.False(t, c.ShouldRespond("comp-1", "Thistle", "Thistle?"))

	// No responder configured means never respond.
	silent := NewController(nil, zap.NewNop())
	assert.False(t, silent.ShouldRespond("comp-1", "Thistle", "Thistle?"))
}

func TestRespondReplaysHistoryWithoutPrompt(t *testing.T) {
	r := &scriptedResponder{reply: "well met"}
	c := NewController(r, zap.NewNop())
	c.SetPersona("comp-1", "a wary herbalist")

	c.Track("comp-1", "Aria", "anyone home?")
	c.Track("comp-1", "Aria", "Thistle, are you there?")

	prompt := ChatMessage{Sender: "Aria", Text: "Thistle, are you there?"}
	reply, err := c.Respond(context.Background(), "comp-1", prompt)
	require.NoError(t, err)
	assert.Equal(t, "well met", reply)
	assert.Equal(t, "a wary herbalist", r.persona)
	require.Len(t, r.history, 1)
	assert.Equal(t, "anyone home?", r.history[0].Text)
	assert.Equal(t, prompt.Text, r.prompt.Text)
}
