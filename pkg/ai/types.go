package ai

import "context"

// FallbackReply is posted when generation fails or no generator is configured.
const FallbackReply = "I'm having trouble thinking right now. Try again in a moment, or type /help for commands."

// Turn is one prior room message given to the model as context.
type Turn struct {
	Author  string
	Content string
	// FromBot marks turns the assistant itself wrote.
	FromBot bool
}

// GenerationInput carries the question and the recent room history.
type GenerationInput struct {
	BotName  string
	RoomName string
	Prompt   string
	History  []Turn
}

// Generator produces a free-text reply for the chat bot.
type Generator interface {
	Generate(ctx context.Context, input GenerationInput) (string, error)
}
