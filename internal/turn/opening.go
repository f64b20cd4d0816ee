package turn

import (
	"context"
	"fmt"
	"strings"

	"github.com/jwebster45206/story-weaver/internal/metrics"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/generate"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

// NewAdventure creates a session for g: narrator voice, opening scene with
// its illustration, and the companion persona that will appear later. The
// opening narration is appended to the chat log but not spoken; see
// NarrateOpening.
func (e *Executor) NewAdventure(ctx context.Context, g genre.Genre) (*state.Session, error) {
	if !g.IsValid() {
		return nil, fmt.Errorf("unknown genre %q", g)
	}

	e.rngMu.Lock()
	sess := state.New(g, e.rng, e.maxThresh)
	e.rngMu.Unlock()
	sess.NarratorVoice = e.randomNarrator()

	scene, err := e.generator.GenerateOpeningScene(ctx, g)
	if err != nil {
		e.logger.Warn("Opening scene generation failed, using default", "genre", g, "error", err)
		scene = generate.DefaultScene(g)
	}
	narration := e.soften(strings.TrimSpace(scene.Narration))
	sess.Title = strings.TrimSpace(scene.Title)
	sess.SetWorldSetting(narration)
	sess.SetScene(narration)
	sess.RememberLocations(state.ExtractLocationKeywords(narration))

	character, err := e.generator.GenerateCharacter(ctx, g, narration, sess.NarratorVoice)
	if err != nil {
		e.logger.Warn("Character generation failed, using default companion", "genre", g, "error", err)
		character = e.generator.DefaultCharacter(g, sess.NarratorVoice)
	}
	companion := character.Companion()
	sess.PlannedCompanion = &companion

	r := &run{id: "opening", sess: sess, result: &Result{SessionID: sess.ID}}
	imageURL := e.illustrate(ctx, r, scene.ImagePrompt)
	sess.AppendMessage(chat.SenderNarrator, narration, imageURL, false)

	metrics.SessionsStartedTotal.WithLabelValues(g.String()).Inc()
	e.logger.Info("Adventure created",
		"session_id", sess.ID.String(),
		"genre", g,
		"title", sess.Title,
		"narrator_voice", sess.NarratorVoice,
		"companion", companion.Name,
		"threshold", sess.CompanionAppearanceThreshold)
	return sess, nil
}

// NarrateOpening speaks the latest narrator message of a new session in the
// narrator's voice.
func (e *Executor) NarrateOpening(ctx context.Context, sess *state.Session) error {
	if !e.begin(sess.ID) {
		return ErrTurnInProgress
	}
	defer e.end(sess.ID)

	for i := len(sess.ChatLog) - 1; i >= 0; i-- {
		msg := sess.ChatLog[i]
		if msg.Sender != chat.SenderNarrator {
			continue
		}
		r := &run{id: "opening", sess: sess, result: &Result{SessionID: sess.ID}}
		e.speak(ctx, r, msg, sess.NarratorVoice)
		return nil
	}
	return nil
}
