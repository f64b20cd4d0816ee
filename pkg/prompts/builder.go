package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

// DefaultCompanionHistory is how many chat messages the companion remembers.
const DefaultCompanionHistory = 10

// CompanionPrompt is a system/user prompt pair ready for a text generator.
type CompanionPrompt struct {
	System string
	User   string
}

// Builder constructs the companion dialogue prompt using a fluent interface.
type Builder struct {
	companion    *state.Companion
	genre        genre.Genre
	scene        string
	history      []chat.Message
	userMessage  string
	historyLimit int
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		historyLimit: DefaultCompanionHistory,
	}
}

// WithCompanion sets the persona the model speaks as.
func (b *Builder) WithCompanion(c *state.Companion) *Builder {
	b.companion = c
	return b
}

// WithGenre sets the adventure genre.
func (b *Builder) WithGenre(g genre.Genre) *Builder {
	b.genre = g
	return b
}

// WithScene sets the current scene description.
func (b *Builder) WithScene(scene string) *Builder {
	b.scene = scene
	return b
}

// WithHistory sets the chat log the rolling context is drawn from.
func (b *Builder) WithHistory(messages []chat.Message) *Builder {
	b.history = messages
	return b
}

// WithUserMessage sets the player's utterance.
func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// WithHistoryLimit sets the chat history window size.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.historyLimit = limit
	return b
}

// Build returns the prompt pair.
func (b *Builder) Build() (CompanionPrompt, error) {
	if b.companion == nil {
		return CompanionPrompt{}, fmt.Errorf("companion is required")
	}
	if strings.TrimSpace(b.userMessage) == "" {
		return CompanionPrompt{}, fmt.Errorf("user message is required")
	}

	who := b.companion.ShortDescription
	if b.companion.Personality != "" {
		who += ". " + b.companion.Personality
	}
	style := b.companion.SpeakingStyle
	if style == "" {
		style = "Natural and conversational."
	}
	system := fmt.Sprintf(CompanionChatSystemPrompt, b.companion.Name, b.genre, who, style)

	var sb strings.Builder
	if b.scene != "" {
		sb.WriteString("Current scene: " + b.scene + "\n\n")
	}

	// The player's utterance has usually been appended already; do not repeat it.
	history := chat.Tail(b.history, b.historyLimit)
	if n := len(history); n > 0 && history[n-1].Sender == chat.SenderUser && history[n-1].Text == b.userMessage {
		history = history[:n-1]
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(chat.Transcript(history, b.companion.Name))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Player says: " + b.userMessage)

	return CompanionPrompt{System: system, User: sb.String()}, nil
}
