package weaver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/jwebster45206/story-weaver/internal/services"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const georgeVoice = "JBFqnCBsd6RMkjVDRZzb"

func testCatalog(t *testing.T) *voice.Catalog {
	t.Helper()
	c, err := voice.Default()
	require.NoError(t, err)
	return c
}

func newTestClassifier(t *testing.T, gen llm.TextGenerator) *Classifier {
	t.Helper()
	return NewClassifier(gen, testCatalog(t), rand.New(rand.NewSource(42)), nil)
}

func modelReply(t *testing.T, fields map[string]any) string {
	t.Helper()
	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(data)
}

func fantasyView() state.View {
	return state.View{
		Genre:                   genre.Fantasy,
		CurrentSceneDescription: "A moonlit courtyard.",
	}
}

func TestDecide_InvalidResponseTypeBecomesExploration(t *testing.T) {
	for _, rt := range []string{"", "combat", "EXPLORE", "companion-dialogue", "null"} {
		t.Run(fmt.Sprintf("type %q", rt), func(t *testing.T) {
			gen := services.NewMockTextGenerator()
			gen.SetGenerateResponse(modelReply(t, map[string]any{
				"responseType":        rt,
				"reasoning":           "unsure",
				"shouldGenerateImage": false,
				"narratorVoice":       georgeVoice,
			}))

			d := newTestClassifier(t, gen).Decide(context.Background(), "hmm", fantasyView())
			assert.Equal(t, KindExploration, d.Kind())
			assert.True(t, d.ShouldGenerateImage())
			assert.False(t, d.Fallback)
		})
	}
}

func TestDecide_ForcedImageFlags(t *testing.T) {
	tests := []struct {
		name      string
		kind      Kind
		present   bool
		modelFlag bool
		want      bool
	}{
		{"exploration forced on", KindExploration, false, false, true},
		{"introduction forced on", KindCompanionIntroduction, false, false, true},
		{"dialogue attempt forced off", KindDialogueAttempt, false, true, false},
		{"companion dialogue forced off", KindCompanionDialogue, true, true, false},
		{"examination keeps true", KindExamination, false, true, true},
		{"examination keeps false", KindExamination, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := services.NewMockTextGenerator()
			gen.SetGenerateResponse(modelReply(t, map[string]any{
				"responseType":        string(tt.kind),
				"reasoning":           "test",
				"shouldGenerateImage": tt.modelFlag,
				"narratorVoice":       georgeVoice,
				"imagePrompt":         "a lantern on a stone wall",
			}))
			v := fantasyView()
			v.CompanionPresent = tt.present
			v.CompanionName = "Mira"

			d := newTestClassifier(t, gen).Decide(context.Background(), "do something", v)
			require.Equal(t, tt.kind, d.Kind())
			assert.Equal(t, tt.want, d.ShouldGenerateImage())
			if tt.want {
				assert.NotEmpty(t, d.ImagePrompt())
			} else {
				assert.Empty(t, d.ImagePrompt())
			}
		})
	}
}

func TestDecide_InvalidVoiceReplaced(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateResponse(modelReply(t, map[string]any{
		"responseType":        "exploration",
		"reasoning":           "moving",
		"shouldGenerateImage": true,
		"narratorVoice":       "not-a-voice",
	}))
	catalog := testCatalog(t)

	d1 := NewClassifier(gen, catalog, rand.New(rand.NewSource(9)), nil).Decide(context.Background(), "go", fantasyView())
	d2 := NewClassifier(gen, catalog, rand.New(rand.NewSource(9)), nil).Decide(context.Background(), "go", fantasyView())

	assert.True(t, catalog.IsValid(d1.NarratorVoice))
	assert.Equal(t, d1.NarratorVoice, d2.NarratorVoice, "seeded rng should pick the same voice")
}

func TestDecide_ValidVoiceKept(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateResponse(modelReply(t, map[string]any{
		"responseType":        "examination",
		"reasoning":           "looking",
		"shouldGenerateImage": false,
		"narratorVoice":       georgeVoice,
		"responseText":        "Moss covers the old well.",
	}))

	d := newTestClassifier(t, gen).Decide(context.Background(), "look at the well", fantasyView())
	assert.Equal(t, georgeVoice, d.NarratorVoice)
	assert.Equal(t, "Moss covers the old well.", d.ResponseText())
}

func TestDecide_MissingImagePromptGetsFallback(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateResponse(modelReply(t, map[string]any{
		"responseType":        "companion_introduction",
		"reasoning":           "time",
		"shouldGenerateImage": true,
		"narratorVoice":       georgeVoice,
	}))
	v := fantasyView()

	d := newTestClassifier(t, gen).Decide(context.Background(), "wait", v)
	assert.Equal(t, FallbackImagePrompt(KindCompanionIntroduction, v), d.ImagePrompt())
	assert.Contains(t, d.ImagePrompt(), "A moonlit courtyard.")
}

func TestDecide_ContradictionsMapped(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateResponse(modelReply(t, map[string]any{
		"responseType":        "companion_introduction",
		"reasoning":           "x",
		"shouldGenerateImage": true,
		"narratorVoice":       georgeVoice,
	}))
	v := fantasyView()
	v.CompanionPresent = true
	v.CompanionName = "Mira"
	d := newTestClassifier(t, gen).Decide(context.Background(), "Mira, wait", v)
	assert.Equal(t, KindCompanionDialogue, d.Kind())

	gen.SetGenerateResponse(modelReply(t, map[string]any{
		"responseType":        "companion_dialogue",
		"reasoning":           "x",
		"shouldGenerateImage": false,
		"narratorVoice":       georgeVoice,
	}))
	d = newTestClassifier(t, gen).Decide(context.Background(), "anyone?", fantasyView())
	assert.Equal(t, KindDialogueAttempt, d.Kind())
	assert.Equal(t, NoAnswerText, d.ResponseText())
}

func TestDecide_SendsSchemaAndState(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateResponse(modelReply(t, map[string]any{
		"responseType":        "exploration",
		"reasoning":           "x",
		"shouldGenerateImage": true,
		"narratorVoice":       georgeVoice,
	}))
	v := fantasyView()
	v.RecentLocationKeywords = []string{"courtyard"}

	newTestClassifier(t, gen).Decide(context.Background(), "  run north  ", v)

	calls := gen.GetCalls()
	require.Len(t, calls, 1)
	assert.NotNil(t, calls[0].Options.Schema)
	assert.Contains(t, calls[0].UserPrompt, "Player says: run north")
	assert.Contains(t, calls[0].UserPrompt, "Recently visited: courtyard")
	assert.Contains(t, calls[0].UserPrompt, georgeVoice)
}

func TestDecide_CodeFencedReply(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateResponse("```json\n" + modelReply(t, map[string]any{
		"responseType":        "dialogue_attempt",
		"reasoning":           "x",
		"shouldGenerateImage": false,
		"narratorVoice":       georgeVoice,
		"responseText":        "The statue stays silent.",
	}) + "\n```")

	d := newTestClassifier(t, gen).Decide(context.Background(), "hello statue", fantasyView())
	assert.Equal(t, KindDialogueAttempt, d.Kind())
	assert.Equal(t, "The statue stays silent.", d.ResponseText())
	assert.False(t, d.Fallback)
}

func TestDecide_FallbackDeterminism(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
	}{
		{"hello", KindDialogueAttempt},
		{"Is anyone there?", KindDialogueAttempt},
		{"look around", KindExamination},
		{"I examine the door", KindExamination},
		{"run north", KindExploration},
		{"climb the ladder", KindExploration},
	}

	failures := map[string]func(*services.MockTextGenerator){
		"backend error": func(m *services.MockTextGenerator) { m.SetGenerateError(errors.New("503")) },
		"bad json":      func(m *services.MockTextGenerator) { m.SetGenerateResponse("I think exploration") },
	}

	for failName, fail := range failures {
		for _, tt := range tests {
			t.Run(failName+"/"+tt.input, func(t *testing.T) {
				gen := services.NewMockTextGenerator()
				fail(gen)
				c := newTestClassifier(t, gen)

				for i := 0; i < 3; i++ {
					d := c.Decide(context.Background(), tt.input, fantasyView())
					assert.Equal(t, tt.want, d.Kind())
					assert.True(t, d.Fallback)
					assert.True(t, c.catalog.IsValid(d.NarratorVoice))
				}
			})
		}
	}
}

func TestDecide_FallbackPayloads(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateError(errors.New("down"))
	c := newTestClassifier(t, gen)
	v := fantasyView()

	d := c.Decide(context.Background(), "hello", v)
	assert.Equal(t, NoAnswerText, d.ResponseText())
	assert.False(t, d.ShouldGenerateImage())

	d = c.Decide(context.Background(), "look around", v)
	assert.Equal(t, ExaminationText, d.ResponseText())
	assert.False(t, d.ShouldGenerateImage())

	d = c.Decide(context.Background(), "run north", v)
	assert.True(t, d.ShouldGenerateImage())
	assert.Equal(t, FallbackImagePrompt(KindExploration, v), d.ImagePrompt())
}

func TestDecide_FallbackCompanionPresent(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateError(errors.New("down"))
	v := fantasyView()
	v.CompanionPresent = true
	v.CompanionName = "Mira"

	for _, input := range []string{"hello", "look around", "run north"} {
		d := newTestClassifier(t, gen).Decide(context.Background(), input, v)
		assert.Equal(t, KindCompanionDialogue, d.Kind(), input)
	}
}

func TestDecide_QuotaErrorFlagged(t *testing.T) {
	gen := services.NewMockTextGenerator()
	gen.SetGenerateError(fmt.Errorf("gemini: %w", llm.ErrQuotaExhausted))

	d := newTestClassifier(t, gen).Decide(context.Background(), "hello", fantasyView())
	assert.True(t, d.Fallback)
	assert.True(t, d.QuotaExhausted)
	assert.Equal(t, KindDialogueAttempt, d.Kind())

	gen.SetGenerateError(errors.New("503"))
	d = newTestClassifier(t, gen).Decide(context.Background(), "hello", fantasyView())
	assert.True(t, d.Fallback)
	assert.False(t, d.QuotaExhausted)
}

func TestDecide_NilGenerator(t *testing.T) {
	d := newTestClassifier(t, nil).Decide(context.Background(), "run north", fantasyView())
	assert.Equal(t, KindExploration, d.Kind())
	assert.True(t, d.Fallback)
}
