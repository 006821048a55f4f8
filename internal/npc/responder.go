// Package npc manages companion inhabitation and LLM-backed chat responses.
package npc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ChatMessage is one remembered line of nearby conversation.
type ChatMessage struct {
	Sender string
	Text   string
	At     time.Time
}

// Responder generates an in-character reply for a companion. Implementations
// must be safe for concurrent use.
type Responder interface {
	Respond(ctx context.Context, persona string, history []ChatMessage, prompt ChatMessage) (string, error)
}

// AnthropicResponder generates replies with the Anthropic Messages API.
type AnthropicResponder struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicResponder creates a responder for the given API key and model.
func NewAnthropicResponder(apiKey string, model string) *AnthropicResponder {
	return &AnthropicResponder{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: 256,
	}
}

// Respond builds a short system prompt from the persona and replays the
// remembered conversation before the triggering line.
func (r *AnthropicResponder) Respond(ctx context.Context, persona string, history []ChatMessage, prompt ChatMessage) (string, error) {
	system := "You are a companion character in a fantasy world. Stay in character and answer in one or two short sentences."
	if persona != "" {
		system += " Your persona: " + persona
	}

	var transcript strings.Builder
	for _, m := range history {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Sender, m.Text)
	}
	fmt.Fprintf(&transcript, "%s: %s", prompt.Sender, prompt.Text)

	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: r.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript.String())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("generating npc reply: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("npc reply had no text content")
}
