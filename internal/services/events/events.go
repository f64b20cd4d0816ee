package events

import (
	"github.com/jwebster45206/story-weaver/pkg/chat"
)

// MessageAppended announces a new chat log entry.
func MessageAppended(turnID string, msg chat.Message) Event {
	return Event{
		Type:   EventTypeMessageAppended,
		TurnID: turnID,
		Data: map[string]interface{}{
			"message": msg,
		},
	}
}

// MessageNarration announces a change of a message's narrating flag.
func MessageNarration(messageID int, narrating bool) Event {
	return Event{
		Type: EventTypeMessageNarration,
		Data: map[string]interface{}{
			"message_id":   messageID,
			"is_narrating": narrating,
		},
	}
}

// SpeechStarted announces playback of synthesized audio for a message.
func SpeechStarted(messageID int, voiceID, audioURL string) Event {
	return Event{
		Type: EventTypeSpeechStarted,
		Data: map[string]interface{}{
			"message_id": messageID,
			"voice_id":   voiceID,
			"audio_url":  audioURL,
		},
	}
}

// SpeechEnded announces the end of playback. reason is "finished",
// "stopped" or "error".
func SpeechEnded(messageID int, reason string) Event {
	return Event{
		Type: EventTypeSpeechEnded,
		Data: map[string]interface{}{
			"message_id": messageID,
			"reason":     reason,
		},
	}
}

// MicMuted tells clients to stop capturing the microphone.
func MicMuted() Event {
	return Event{Type: EventTypeMicMuted}
}

// MicUnmuted tells clients they may capture the microphone again.
func MicUnmuted() Event {
	return Event{Type: EventTypeMicUnmuted}
}

// TurnStarted announces that a turn is being processed.
func TurnStarted(turnID, userMessage string) Event {
	return Event{
		Type:   EventTypeTurnStarted,
		TurnID: turnID,
		Data: map[string]interface{}{
			"status":       "processing",
			"user_message": userMessage,
		},
	}
}

// TurnCompleted announces the outcome of a turn.
func TurnCompleted(turnID string, result map[string]interface{}) Event {
	return Event{
		Type:   EventTypeTurnCompleted,
		TurnID: turnID,
		Data: map[string]interface{}{
			"status": "completed",
			"result": result,
		},
	}
}

// TurnFailed announces a turn that could not be processed.
func TurnFailed(turnID, errorMsg string) Event {
	return Event{
		Type:   EventTypeTurnFailed,
		TurnID: turnID,
		Data: map[string]interface{}{
			"status": "failed",
			"error":  errorMsg,
		},
	}
}

// SessionTerminated announces that the session cannot continue.
func SessionTerminated(reason string) Event {
	return Event{
		Type: EventTypeSessionTerminated,
		Data: map[string]interface{}{
			"reason": reason,
		},
	}
}
