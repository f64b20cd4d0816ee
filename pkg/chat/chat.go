package chat

import (
	"fmt"
	"strings"
)

// Sender identifies who a chat message came from.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderNarrator  Sender = "narrator"
	SenderCompanion Sender = "companion"
)

// Message is a single entry in an adventure's chat log.
// IDs are assigned by the session and strictly increase in append order.
type Message struct {
	ID          int    `json:"id"`
	Sender      Sender `json:"sender"`
	Text        string `json:"text"`
	ImageURL    string `json:"image_url,omitempty"`
	IsNarrating bool   `json:"is_narrating,omitempty"`
}

// TurnRequest is a typed player utterance sent to the story-weaver api.
type TurnRequest struct {
	Message string `json:"message"`
}

// Validate rejects blank utterances before they reach the turn executor.
func (tr *TurnRequest) Validate() error {
	if strings.TrimSpace(tr.Message) == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return nil
}

// Tail returns the last n messages (or all of them when there are fewer).
func Tail(messages []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// Transcript renders messages as "Speaker: text" lines for prompts.
// companionName labels companion lines; an empty name falls back to "Companion".
func Transcript(messages []Message, companionName string) string {
	if companionName == "" {
		companionName = "Companion"
	}
	var sb strings.Builder
	for _, m := range messages {
		switch m.Sender {
		case SenderUser:
			sb.WriteString("Player: ")
		case SenderCompanion:
			sb.WriteString(companionName + ": ")
		default:
			sb.WriteString("Narrator: ")
		}
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
