// Package speech voices chat messages. While a message is spoken the
// session's microphone is muted; it is unmuted again however playback ends.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/textfilter"
)

// ErrStopped is returned by Speak when playback was stopped by the player.
var ErrStopped = errors.New("speech stopped")

// Player plays synthesized audio for a message and returns when playback has
// finished or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, sessionID uuid.UUID, messageID int, voiceID string, audio *llm.Audio) error
}

// Speaker synthesizes and plays messages and arbitrates each session's
// microphone. A session has at most one message playing.
type Speaker struct {
	synth     llm.SpeechSynthesizer
	player    Player
	publisher events.Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]*playback
	muted  map[uuid.UUID]bool
}

type playback struct {
	cancel context.CancelFunc
}

// NewSpeaker creates a Speaker. A nil synth disables speech: Speak becomes
// a no-op that never touches the microphone.
func NewSpeaker(synth llm.SpeechSynthesizer, player Player, publisher events.Publisher, logger *slog.Logger) *Speaker {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		synth:     synth,
		player:    player,
		publisher: publisher,
		logger:    logger,
		active:    make(map[uuid.UUID]*playback),
		muted:     make(map[uuid.UUID]bool),
	}
}

// Enabled reports whether a synthesizer is configured.
func (s *Speaker) Enabled() bool {
	return s.synth != nil && s.player != nil
}

// Speak voices message msgID of sess. It blocks until playback finishes,
// fails or is stopped. The session's speaking and narrating flags are set for
// the duration and always cleared on return.
func (s *Speaker) Speak(ctx context.Context, sess *state.Session, msgID int, text, voiceID string) error {
	if !s.Enabled() {
		return nil
	}
	text = textfilter.ForSpeech(text)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	pb := &playback{cancel: cancel}
	s.mu.Lock()
	if prev, ok := s.active[sess.ID]; ok {
		prev.cancel()
	}
	s.active[sess.ID] = pb
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		if s.active[sess.ID] == pb {
			delete(s.active, sess.ID)
		}
		s.mu.Unlock()
	}()

	release := s.acquireMic(ctx, sess.ID)
	defer release()

	sess.Speaking = true
	sess.SetNarrating(msgID, true)
	s.publish(ctx, sess.ID, events.MessageNarration(msgID, true))

	reason := "finished"
	defer func() {
		sess.Speaking = false
		sess.SetNarrating(msgID, false)
		pctx := context.WithoutCancel(ctx)
		s.publish(pctx, sess.ID, events.MessageNarration(msgID, false))
		s.publish(pctx, sess.ID, events.SpeechEnded(msgID, reason))
	}()

	err := s.play(ctx, sess.ID, msgID, text, voiceID)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		reason = "stopped"
		return ErrStopped
	default:
		reason = "error"
		return err
	}
}

func (s *Speaker) play(ctx context.Context, sessionID uuid.UUID, msgID int, text, voiceID string) error {
	audio, err := s.synth.Synthesize(ctx, text, voiceID)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	if err := s.player.Play(ctx, sessionID, msgID, voiceID, audio); err != nil {
		return fmt.Errorf("speech playback failed: %w", err)
	}
	return nil
}

// Stop halts synthesis or playback in progress for sessionID. It reports
// whether anything was playing.
func (s *Speaker) Stop(sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pb, ok := s.active[sessionID]
	if ok {
		pb.cancel()
		s.logger.Info("Speech stopped", "session_id", sessionID.String())
	}
	return ok
}

// Speaking reports whether sessionID has speech in progress.
func (s *Speaker) Speaking(sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[sessionID]
	return ok
}

// MicMuted reports whether the microphone of sessionID is muted.
func (s *Speaker) MicMuted(sessionID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted[sessionID]
}

// acquireMic mutes the session's microphone. The returned release unmutes
// it and is safe to call more than once.
func (s *Speaker) acquireMic(ctx context.Context, sessionID uuid.UUID) func() {
	s.mu.Lock()
	s.muted[sessionID] = true
	s.mu.Unlock()
	s.publish(ctx, sessionID, events.MicMuted())

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.muted, sessionID)
			s.mu.Unlock()
			s.publish(context.WithoutCancel(ctx), sessionID, events.MicUnmuted())
		})
	}
}

func (s *Speaker) publish(ctx context.Context, sessionID uuid.UUID, ev events.Event) {
	if err := s.publisher.Publish(ctx, sessionID, ev); err != nil {
		s.logger.Warn("Failed to publish speech event", "error", err, "event_type", ev.Type)
	}
}
