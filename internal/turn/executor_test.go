package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/internal/speech"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/storage"
	"github.com/jwebster45206/story-weaver/pkg/textfilter"
	"github.com/jwebster45206/story-weaver/pkg/voice"
	"github.com/jwebster45206/story-weaver/pkg/weaver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const narratorVoice = "JBFqnCBsd6RMkjVDRZzb"

// backend scripts the text generator by schema name. A missing reply makes
// that call fail.
type backend struct {
	decision    string
	progression string
	intro       string
	companion   string
	character   string
	scene       string
	err         error
}

func (b backend) generator() *services.MockTextGenerator {
	m := services.NewMockTextGenerator()
	m.GenerateFunc = func(ctx context.Context, system, user string, opts llm.GenerateOptions) (string, error) {
		var reply string
		switch opts.SchemaName {
		case "story_weaver_decision":
			reply = b.decision
		case progressionSchema:
			reply = b.progression
		case introductionSchema:
			reply = b.intro
		case "companion_character":
			reply = b.character
		case "opening_scene":
			reply = b.scene
		default:
			reply = b.companion
		}
		if reply == "" {
			if b.err != nil {
				return "", b.err
			}
			return "", errors.New("backend unavailable")
		}
		return reply, nil
	}
	return m
}

func decisionJSON(kind string, extra string) string {
	return fmt.Sprintf(`{"responseType":%q,"reasoning":"test","shouldGenerateImage":false,"narratorVoice":%q%s}`, kind, narratorVoice, extra)
}

type fixture struct {
	exec   *Executor
	text   *services.MockTextGenerator
	images *services.MockImageGenerator
	synth  *services.MockSpeechSynthesizer
	store  *storage.MockStorage
	rec    *events.Recorder
}

type instantPlayer struct{}

func (instantPlayer) Play(context.Context, uuid.UUID, int, string, *llm.Audio) error { return nil }

func newFixture(t *testing.T, b backend) *fixture {
	t.Helper()
	catalog, err := voice.Default()
	require.NoError(t, err)

	f := &fixture{
		text:   b.generator(),
		images: services.NewMockImageGenerator(),
		synth:  services.NewMockSpeechSynthesizer(),
		store:  storage.NewMockStorage(),
		rec:    events.NewRecorder(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.exec = NewExecutor(Config{
		Text:      f.text,
		Images:    f.images,
		Media:     f.store,
		Speaker:   speech.NewSpeaker(f.synth, instantPlayer{}, f.rec, logger),
		Publisher: f.rec,
		Catalog:   catalog,
		Rand:      rand.New(rand.NewSource(7)),
	}, logger)
	return f
}

func newSession(threshold int) *state.Session {
	s := state.New(genre.Fantasy, rand.New(rand.NewSource(1)), 5)
	s.CompanionAppearanceThreshold = threshold
	s.NarratorVoice = narratorVoice
	s.SetWorldSetting("A kingdom of crumbling towers and whispering forests.")
	s.SetScene("You stand before a moss-covered archway at the edge of the forest.")
	return s
}

func withCompanion(s *state.Session) *state.Session {
	s.IntroduceCompanion(state.Companion{
		Name:             "Wren",
		ShortDescription: "a wry ranger with a hooded cloak",
		Personality:      "Dry humour, fiercely loyal.",
		SpeakingStyle:    "Short, clipped sentences.",
		VoiceID:          "XB0fDUnXU5powFXDhCwa",
	})
	return s
}

func TestExecuteTurn_EndToEndIntroduction(t *testing.T) {
	f := newFixture(t, backend{
		decision: decisionJSON("exploration", `,"imagePrompt":"an archway"`),
		intro:    `{"narration":"A cloaked ranger drops from the branches above the archway.","firstWords":"\"Took you long enough.\"","imagePrompt":"a ranger beneath an archway"}`,
	})
	sess := newSession(1)
	sess.PlannedCompanion = &state.Companion{Name: "Wren", ShortDescription: "a wry ranger", VoiceID: "XB0fDUnXU5powFXDhCwa"}

	res, err := f.exec.ExecuteTurn(context.Background(), "turn-1", sess, "I step through the archway")
	require.NoError(t, err)

	assert.Equal(t, 1, sess.UserTurnCount)
	assert.Equal(t, weaver.KindCompanionIntroduction, res.Decision.Kind())
	assert.True(t, res.Forced)
	assert.True(t, sess.CompanionPresent)
	require.NotNil(t, sess.Companion)
	assert.Equal(t, "Wren", sess.Companion.Name)

	require.Len(t, sess.ChatLog, 3)
	user, narrator, companion := sess.ChatLog[0], sess.ChatLog[1], sess.ChatLog[2]
	assert.Equal(t, chat.SenderUser, user.Sender)
	assert.Equal(t, "I step through the archway", user.Text)
	assert.Equal(t, chat.SenderNarrator, narrator.Sender)
	assert.Equal(t, "A cloaked ranger drops from the branches above the archway.", narrator.Text)
	assert.NotEmpty(t, narrator.ImageURL)
	assert.Equal(t, chat.SenderCompanion, companion.Sender)
	assert.Equal(t, "Took you long enough.", companion.Text)
	assert.Less(t, user.ID, narrator.ID)
	assert.Less(t, narrator.ID, companion.ID)

	calls := f.synth.GetCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, narratorVoice, calls[0].VoiceID)
	assert.Equal(t, "XB0fDUnXU5powFXDhCwa", calls[1].VoiceID)
	assert.NotEqual(t, calls[0].VoiceID, calls[1].VoiceID)
}

func TestExecuteTurn_ThresholdOverridesAnyDecision(t *testing.T) {
	for _, kind := range []string{"exploration", "dialogue_attempt", "examination", "companion_dialogue", "nonsense"} {
		t.Run(kind, func(t *testing.T) {
			f := newFixture(t, backend{decision: decisionJSON(kind, `,"responseText":"Silence."`)})
			sess := newSession(3)

			for i := 1; i <= 2; i++ {
				res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "I wander onward")
				require.NoError(t, err)
				assert.NotEqual(t, weaver.KindCompanionIntroduction, res.Decision.Kind())
				assert.False(t, sess.CompanionPresent)
			}

			res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "I wander onward")
			require.NoError(t, err)
			assert.Equal(t, weaver.KindCompanionIntroduction, res.Decision.Kind())
			assert.True(t, sess.CompanionPresent, "companion present immediately after the k-th turn")
			assert.Equal(t, 3, sess.UserTurnCount)
		})
	}
}

func TestExecuteTurn_IntroductionFallbacks(t *testing.T) {
	// Every generation call fails: the persona comes from the defaults and
	// the narration is canned.
	f := newFixture(t, backend{})
	sess := newSession(1)

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "I step through the archway")
	require.NoError(t, err)
	assert.True(t, res.Decision.Fallback)
	assert.True(t, sess.CompanionPresent)
	require.NotNil(t, sess.Companion)
	assert.NotEqual(t, narratorVoice, sess.Companion.VoiceID)

	require.Len(t, res.Messages, 2)
	assert.Equal(t, IntroductionFallbackText, res.Messages[0].Text)
	assert.Equal(t, FirstWordsFallbackText, res.Messages[1].Text)
	assert.NotEmpty(t, res.Messages[0].ImageURL, "fallback image prompt still illustrates the arrival")
}

func TestExecuteTurn_Exploration(t *testing.T) {
	f := newFixture(t, backend{
		decision:    decisionJSON("exploration", ""),
		progression: `{"narration":"The path climbs to a ruined tower above a silver lake.","imagePrompt":"a ruined tower over a lake"}`,
	})
	sess := newSession(5)

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "I follow the path uphill")
	require.NoError(t, err)

	assert.Equal(t, weaver.KindExploration, res.Decision.Kind())
	assert.Equal(t, "The path climbs to a ruined tower above a silver lake.", sess.CurrentSceneDescription)
	assert.Equal(t, []string{"path", "tower", "lake"}, sess.RecentLocationKeywords)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, chat.SenderNarrator, res.Messages[0].Sender)
	assert.True(t, strings.HasPrefix(res.Messages[0].ImageURL, "/v1/adventures/"+sess.ID.String()+"/media/"))
	assert.Equal(t, []string{"a ruined tower over a lake"}, f.images.GetPrompts())
}

func TestExecuteTurn_ExplorationFallbackKeepsScene(t *testing.T) {
	f := newFixture(t, backend{decision: decisionJSON("exploration", "")})
	sess := newSession(5)
	scene := sess.CurrentSceneDescription

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "I run north")
	require.NoError(t, err)

	assert.Equal(t, ProgressionFallbackText, res.Messages[0].Text)
	assert.Equal(t, scene, sess.CurrentSceneDescription)
	require.Len(t, f.images.GetPrompts(), 1, "exploration is always illustrated")
}

func TestExecuteTurn_KeywordWindowBounded(t *testing.T) {
	narrations := []string{
		"You reach a village by a river.",
		"A bridge leads to a market square.",
		"Beyond the gate lies a tavern and a chapel.",
		"The road winds to a castle on a cliff.",
		"Caves open beneath the mountain.",
	}
	i := 0
	var mu sync.Mutex
	f := newFixture(t, backend{})
	f.text.GenerateFunc = func(ctx context.Context, system, user string, opts llm.GenerateOptions) (string, error) {
		switch opts.SchemaName {
		case "story_weaver_decision":
			return decisionJSON("exploration", ""), nil
		case progressionSchema:
			mu.Lock()
			defer mu.Unlock()
			n := narrations[i%len(narrations)]
			i++
			return fmt.Sprintf(`{"narration":%q,"imagePrompt":"x"}`, n), nil
		}
		return "", errors.New("unexpected call")
	}
	sess := newSession(5)
	withCompanion(sess) // keep the threshold from interfering

	for range narrations {
		_, err := f.exec.ExecuteTurn(context.Background(), "", sess, "onward")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(sess.RecentLocationKeywords), state.MaxRecentLocations)
	}
	assert.Equal(t, []string{"castle", "cliff", "cave", "mountain"}, sess.RecentLocationKeywords[1:])
}

func TestExecuteTurn_DialogueAttemptUsesResponseTextVerbatim(t *testing.T) {
	f := newFixture(t, backend{decision: decisionJSON("dialogue_attempt", `,"responseText":"Only the wind answers."`)})
	sess := newSession(5)

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "Hello? Is anyone there?")
	require.NoError(t, err)

	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Only the wind answers.", res.Messages[0].Text)
	assert.Empty(t, res.Messages[0].ImageURL)
	assert.Empty(t, f.images.GetPrompts())
	assert.Len(t, f.text.GetCalls(), 1, "only the classifier is called")
}

func TestExecuteTurn_ExaminationImageChoice(t *testing.T) {
	tests := []struct {
		name      string
		extra     string
		wantImage bool
	}{
		{"with image", `,"responseText":"Runes glow faintly.","shouldGenerateImage":true,"imagePrompt":"glowing runes"}`, true},
		{"without image", `,"responseText":"Runes glow faintly."`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"responseType":"examination","narratorVoice":"` + narratorVoice + `"` + tt.extra + `}`
			f := newFixture(t, backend{decision: raw})
			sess := newSession(5)

			res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "I study the runes")
			require.NoError(t, err)
			require.Len(t, res.Messages, 1)
			assert.Equal(t, "Runes glow faintly.", res.Messages[0].Text)
			assert.Equal(t, tt.wantImage, res.Messages[0].ImageURL != "")
		})
	}
}

func TestExecuteTurn_CompanionDialogue(t *testing.T) {
	f := newFixture(t, backend{
		decision:  decisionJSON("companion_dialogue", ""),
		companion: `Wren: "Keep your voice down. Something's listening."`,
	})
	sess := withCompanion(newSession(1))

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "Wren, what do you think?")
	require.NoError(t, err)

	require.Len(t, res.Messages, 1)
	assert.Equal(t, chat.SenderCompanion, res.Messages[0].Sender)
	assert.Equal(t, "Keep your voice down. Something's listening.", res.Messages[0].Text)

	calls := f.synth.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "XB0fDUnXU5powFXDhCwa", calls[0].VoiceID)

	textCalls := f.text.GetCalls()
	last := textCalls[len(textCalls)-1]
	assert.Contains(t, last.SystemPrompt, "Wren")
	assert.Contains(t, last.UserPrompt, "Wren, what do you think?")
}

func TestExecuteTurn_CompanionDialogueFallback(t *testing.T) {
	f := newFixture(t, backend{})
	sess := withCompanion(newSession(1))

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "What now?")
	require.NoError(t, err)
	assert.Equal(t, weaver.KindCompanionDialogue, res.Decision.Kind())
	assert.Equal(t, CompanionFallbackText, res.Messages[0].Text)
}

func TestExecuteTurn_HeuristicWhenBackendDown(t *testing.T) {
	tests := []struct {
		input string
		want  weaver.Kind
	}{
		{"hello", weaver.KindDialogueAttempt},
		{"look around", weaver.KindExamination},
		{"run north", weaver.KindExploration},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f := newFixture(t, backend{})
			sess := newSession(5)
			res, err := f.exec.ExecuteTurn(context.Background(), "", sess, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Decision.Kind())
			assert.NotEmpty(t, res.Messages)
		})
	}
}

func TestExecuteTurn_ChatLogOrderingAcrossTurns(t *testing.T) {
	f := newFixture(t, backend{})
	sess := newSession(2)
	prevLen := len(sess.ChatLog)

	for _, input := range []string{"hello", "run north", "look around", "what now?"} {
		res, err := f.exec.ExecuteTurn(context.Background(), "", sess, input)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(sess.ChatLog), prevLen+2)
		userMsg := sess.ChatLog[prevLen]
		assert.Equal(t, chat.SenderUser, userMsg.Sender)
		for _, m := range res.Messages {
			assert.Greater(t, m.ID, userMsg.ID)
		}
		prevLen = len(sess.ChatLog)
	}
	for i := 1; i < len(sess.ChatLog); i++ {
		assert.Greater(t, sess.ChatLog[i].ID, sess.ChatLog[i-1].ID)
	}
}

func TestExecuteTurn_EmptyInputRejected(t *testing.T) {
	f := newFixture(t, backend{})
	sess := newSession(1)

	_, err := f.exec.ExecuteTurn(context.Background(), "", sess, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, 0, sess.UserTurnCount)
	assert.Empty(t, sess.ChatLog)
	assert.Empty(t, f.text.GetCalls())
}

func TestExecuteTurn_RejectsConcurrentTurn(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, backend{})
	f.text.GenerateFunc = func(ctx context.Context, system, user string, opts llm.GenerateOptions) (string, error) {
		if opts.SchemaName == "story_weaver_decision" {
			close(entered)
			<-release
		}
		return "", errors.New("down")
	}
	sess := newSession(5)
	other := newSession(5)
	other.ID = sess.ID

	done := make(chan error, 1)
	go func() {
		_, err := f.exec.ExecuteTurn(context.Background(), "", sess, "run north")
		done <- err
	}()
	<-entered
	assert.True(t, f.exec.Busy(sess.ID))

	_, err := f.exec.ExecuteTurn(context.Background(), "", other, "look around")
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.Equal(t, 0, other.UserTurnCount)
	assert.Empty(t, other.ChatLog)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.exec.Busy(sess.ID))
}

func TestExecuteTurn_ImageAndSpeechFailuresAreNonFatal(t *testing.T) {
	f := newFixture(t, backend{
		decision:    decisionJSON("exploration", ""),
		progression: `{"narration":"A storm rolls across the plain.","imagePrompt":"storm"}`,
	})
	f.images.GenerateImageFunc = func(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Image, error) {
		return nil, errors.New("image backend down")
	}
	f.synth.SynthesizeFunc = func(ctx context.Context, text, voiceID string) (*llm.Audio, error) {
		return nil, errors.New("tts down")
	}
	sess := newSession(5)

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "I walk on")
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Empty(t, res.Messages[0].ImageURL)
	assert.False(t, sess.Speaking)
	for _, m := range sess.ChatLog {
		assert.False(t, m.IsNarrating)
	}
	types := f.rec.Types()
	assert.Equal(t, events.EventTypeMicUnmuted, types[len(types)-1])
}

func TestExecuteTurn_QuotaExhausted(t *testing.T) {
	f := newFixture(t, backend{
		decision: decisionJSON("exploration", ""),
		err:      fmt.Errorf("gemini: %w", llm.ErrQuotaExhausted),
	})
	sess := newSession(5)

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "onward")
	require.ErrorIs(t, err, llm.ErrQuotaExhausted)
	require.NotNil(t, res)
	assert.True(t, res.Terminated)
	assert.Equal(t, ProgressionFallbackText, res.Messages[0].Text, "the turn still completes")
}

func TestExecuteTurn_ClassifierQuotaTerminates(t *testing.T) {
	// Only the classifier calls the text backend on a dialogue attempt.
	f := newFixture(t, backend{err: fmt.Errorf("openai: %w", llm.ErrQuotaExhausted)})
	sess := newSession(5)

	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "hello?")
	require.ErrorIs(t, err, llm.ErrQuotaExhausted)
	require.NotNil(t, res)
	assert.True(t, res.Terminated)
	assert.Equal(t, weaver.KindDialogueAttempt, res.Decision.Kind())
	assert.Equal(t, weaver.NoAnswerText, res.Messages[0].Text)
}

func TestExecuteTurn_FamilyFriendly(t *testing.T) {
	f := newFixture(t, backend{
		decision:    decisionJSON("exploration", ""),
		progression: `{"narration":"The damn door slams behind you.","imagePrompt":"door"}`,
	})
	f.exec.filter = nil
	sess := newSession(5)
	res, err := f.exec.ExecuteTurn(context.Background(), "", sess, "go")
	require.NoError(t, err)
	assert.Contains(t, res.Messages[0].Text, "damn")

	f2 := newFixture(t, backend{
		decision:    decisionJSON("exploration", ""),
		progression: `{"narration":"The damn door slams behind you.","imagePrompt":"door"}`,
	})
	f2.exec.filter = textfilter.New()
	res, err = f2.exec.ExecuteTurn(context.Background(), "", newSession(5), "go")
	require.NoError(t, err)
	assert.NotContains(t, res.Messages[0].Text, "damn")
}

func TestExecuteTurn_EventsPerMessage(t *testing.T) {
	f := newFixture(t, backend{decision: decisionJSON("dialogue_attempt", `,"responseText":"Nobody."`)})
	sess := newSession(5)

	_, err := f.exec.ExecuteTurn(context.Background(), "turn-9", sess, "hi")
	require.NoError(t, err)

	var appended []events.Event
	for _, ev := range f.rec.Events() {
		if ev.Type == events.EventTypeMessageAppended {
			appended = append(appended, ev)
		}
	}
	require.Len(t, appended, 2)
	assert.Equal(t, "turn-9", appended[0].TurnID)
	assert.Equal(t, chat.SenderUser, appended[0].Data["message"].(chat.Message).Sender)
	assert.Equal(t, chat.SenderNarrator, appended[1].Data["message"].(chat.Message).Sender)
}

func TestNewAdventure(t *testing.T) {
	f := newFixture(t, backend{
		scene:     `{"title":"The Sunken Road","narration":"You wake on a sunken road beside an old mill, fog curling through the forest.","imagePrompt":"a foggy road"}`,
		character: `{"name":"Mira","shortDescription":"a sharp-eyed herbalist","personality":"Curious.","speakingStyle":"Quick.","gender":"female","age":"young","accent":"british","traits":["warm"]}`,
	})

	sess, err := f.exec.NewAdventure(context.Background(), genre.Mystery)
	require.NoError(t, err)

	assert.Equal(t, genre.Mystery, sess.Genre)
	assert.Equal(t, "The Sunken Road", sess.Title)
	assert.NotEmpty(t, sess.WorldSetting)
	assert.Equal(t, sess.WorldSetting, sess.CurrentSceneDescription)
	assert.Equal(t, []string{"road", "forest"}, sess.RecentLocationKeywords)
	assert.GreaterOrEqual(t, sess.CompanionAppearanceThreshold, 1)
	assert.LessOrEqual(t, sess.CompanionAppearanceThreshold, 5)
	assert.False(t, sess.CompanionPresent)

	require.NotNil(t, sess.PlannedCompanion)
	assert.Equal(t, "Mira", sess.PlannedCompanion.Name)
	assert.NotEqual(t, sess.NarratorVoice, sess.PlannedCompanion.VoiceID)
	assert.Contains(t, f.exec.catalog.NarratorVoices(), sess.NarratorVoice)

	require.Len(t, sess.ChatLog, 1)
	assert.Equal(t, chat.SenderNarrator, sess.ChatLog[0].Sender)
	assert.NotEmpty(t, sess.ChatLog[0].ImageURL)
	assert.Empty(t, f.synth.GetCalls(), "opening narration is spoken separately")

	require.NoError(t, f.exec.NarrateOpening(context.Background(), sess))
	calls := f.synth.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, sess.NarratorVoice, calls[0].VoiceID)
}

func TestNewAdventure_Defaults(t *testing.T) {
	f := newFixture(t, backend{})

	sess, err := f.exec.NewAdventure(context.Background(), genre.Western)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.CurrentSceneDescription)
	require.NotNil(t, sess.PlannedCompanion)
	assert.Equal(t, "Rowan", sess.PlannedCompanion.Name)
	require.Len(t, sess.ChatLog, 1)

	_, err = f.exec.NewAdventure(context.Background(), genre.Genre("Opera"))
	assert.Error(t, err)
}

func TestStop_CancelsNarration(t *testing.T) {
	f := newFixture(t, backend{decision: decisionJSON("dialogue_attempt", `,"responseText":"Silence."`)})
	started := make(chan struct{})
	f.exec.speaker = speech.NewSpeaker(f.synth, blockingPlayer{started: started}, f.rec, nil)
	sess := newSession(5)

	done := make(chan error, 1)
	go func() {
		_, err := f.exec.ExecuteTurn(context.Background(), "", sess, "hello")
		done <- err
	}()
	<-started
	assert.True(t, f.exec.Stop(sess.ID))
	require.NoError(t, <-done, "a stopped narration still completes the turn")

	assert.False(t, sess.Speaking)
	assert.Len(t, sess.ChatLog, 2, "stopping does not roll back the chat log")
}

func TestStop_SilencesRestOfTurn(t *testing.T) {
	f := newFixture(t, backend{
		decision: decisionJSON("exploration", ""),
		intro:    `{"narration":"A ranger steps out of the mist.","firstWords":"Hello there.","imagePrompt":"a ranger"}`,
	})
	started := make(chan struct{})
	player := &firstBlockingPlayer{started: started}
	f.exec.speaker = speech.NewSpeaker(f.synth, player, f.rec, nil)
	sess := newSession(1)
	sess.PlannedCompanion = &state.Companion{Name: "Wren", ShortDescription: "a wry ranger", VoiceID: "XB0fDUnXU5powFXDhCwa"}

	done := make(chan error, 1)
	go func() {
		_, err := f.exec.ExecuteTurn(context.Background(), "", sess, "I wait by the archway")
		done <- err
	}()
	<-started
	assert.True(t, f.exec.Stop(sess.ID))
	require.NoError(t, <-done)

	assert.Len(t, f.synth.GetCalls(), 1, "first words are not synthesized after stop")
	assert.Equal(t, 1, player.plays())
	require.Len(t, sess.ChatLog, 3, "companion line is still appended")
	assert.Equal(t, "Hello there.", sess.ChatLog[2].Text)
	for _, m := range sess.ChatLog {
		assert.False(t, m.IsNarrating)
	}
	assert.False(t, sess.Speaking)
	assert.False(t, f.exec.Busy(sess.ID))

	// The stop only covers the turn it interrupted.
	_, err := f.exec.ExecuteTurn(context.Background(), "", sess, "hello Wren")
	require.NoError(t, err)
	assert.Len(t, f.synth.GetCalls(), 2)
}

// firstBlockingPlayer blocks its first playback until cancelled and plays
// later ones instantly.
type firstBlockingPlayer struct {
	started chan struct{}
	mu      sync.Mutex
	count   int
}

func (p *firstBlockingPlayer) Play(ctx context.Context, _ uuid.UUID, _ int, _ string, _ *llm.Audio) error {
	p.mu.Lock()
	p.count++
	first := p.count == 1
	p.mu.Unlock()
	if !first {
		return nil
	}
	close(p.started)
	<-ctx.Done()
	return ctx.Err()
}

func (p *firstBlockingPlayer) plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

type blockingPlayer struct {
	started chan struct{}
}

func (p blockingPlayer) Play(ctx context.Context, _ uuid.UUID, _ int, _ string, _ *llm.Audio) error {
	close(p.started)
	<-ctx.Done()
	return ctx.Err()
}
