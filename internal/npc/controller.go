package npc

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// ContextWindow bounds how long a remembered chat line stays relevant.
	ContextWindow = 5 * time.Minute
	// MaxContextMessages bounds the remembered conversation length.
	MaxContextMessages = 20
)

// Inhabitation binds an external controller's socket to a companion.
type Inhabitation struct {
	CompanionID string
	SocketID    string
	Since       time.Time
}

// Controller tracks which companions are inhabited and keeps a rolling chat
// context per companion for response generation.
type Controller struct {
	mu        sync.Mutex
	responder Responder
	logger    *zap.Logger
	inhabited map[string]Inhabitation
	contexts  map[string][]ChatMessage
	personas  map[string]string
	now       func() time.Time
}

// NewController creates a Controller. responder may be nil, in which case
// companions never speak on their own.
func NewController(responder Responder, logger *zap.Logger) *Controller {
	return &Controller{
		responder: responder,
		logger:    logger,
		inhabited: make(map[string]Inhabitation),
		contexts:  make(map[string][]ChatMessage),
		personas:  make(map[string]string),
		now:       time.Now,
	}
}

// SetPersona records the persona text used when generating replies.
func (c *Controller) SetPersona(companionID, persona string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.personas[companionID] = persona
}

// Inhabit binds a socket to a companion. Re-inhabiting replaces the binding.
func (c *Controller) Inhabit(companionID, socketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inhabited[companionID] = Inhabitation{
		CompanionID: companionID,
		SocketID:    socketID,
		Since:       c.now(),
	}
}

// Release unbinds a companion. Releasing an uninhabited companion is a no-op.
func (c *Controller) Release(companionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inhabited, companionID)
}

// IsInhabited reports whether a companion currently has a controller.
func (c *Controller) IsInhabited(companionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inhabited[companionID]
	return ok
}

// SocketID returns the controlling socket for a companion, if any.
func (c *Controller) SocketID(companionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := c.inhabited[companionID]
	return in.SocketID, ok
}

// Track appends a heard chat line to the companion's rolling context.
func (c *Controller) Track(companionID, sender, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.purgeLocked(companionID)
	msgs = append(msgs, ChatMessage{Sender: sender, Text: text, At: c.now()})
	if len(msgs) > MaxContextMessages {
		msgs = msgs[len(msgs)-MaxContextMessages:]
	}
	c.contexts[companionID] = msgs
}

// Context returns the companion's remembered conversation, oldest first.
func (c *Controller) Context(companionID string) []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.purgeLocked(companionID)
	c.contexts[companionID] = msgs
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func (c *Controller) purgeLocked(companionID string) []ChatMessage {
	msgs := c.contexts[companionID]
	cutoff := c.now().Add(-ContextWindow)
	for len(msgs) > 0 && msgs[0].At.Before(cutoff) {
		msgs = msgs[1:]
	}
	return msgs
}

// ShouldRespond reports whether a heard line warrants a generated reply.
// Inhabited companions never auto-respond; their controller speaks for them.
// Otherwise a companion answers when addressed by name.
func (c *Controller) ShouldRespond(companionID, companionName, text string) bool {
	if c.responder == nil || c.IsInhabited(companionID) {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(companionName))
}

// Respond generates a reply from the companion's context. The triggering
// line must already have been Tracked; it is replayed as the prompt.
func (c *Controller) Respond(ctx context.Context, companionID string, prompt ChatMessage) (string, error) {
	c.mu.Lock()
	persona := c.personas[companionID]
	history := c.purgeLocked(companionID)
	// Drop the prompt itself from the replayed history.
	if n := len(history); n > 0 && history[n-1].Sender == prompt.Sender && history[n-1].Text == prompt.Text {
		history = history[:n-1]
	}
	replay := make([]ChatMessage, len(history))
	copy(replay, history)
	c.mu.Unlock()

	reply, err := c.responder.Respond(ctx, persona, replay, prompt)
	if err != nil {
		c.logger.Error("npc response generation failed",
			zap.String("companion_id", companionID), zap.Error(err))
		return "", err
	}
	return reply, nil
}
