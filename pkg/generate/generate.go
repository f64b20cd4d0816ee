// Package generate creates the companion persona and the opening scene of an
// adventure.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/prompts"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/voice"
)

var errNoGenerator = errors.New("no text generator configured")

// Character is a generated companion persona.
type Character struct {
	Name             string   `json:"name"`
	ShortDescription string   `json:"shortDescription"`
	Personality      string   `json:"personality"`
	SpeakingStyle    string   `json:"speakingStyle"`
	Gender           string   `json:"gender"`
	Age              string   `json:"age"`
	Accent           string   `json:"accent"`
	Traits           []string `json:"traits"`
	// VoiceID is picked from the catalog, not generated.
	VoiceID string `json:"-"`
}

// Companion converts the character into session state.
func (c Character) Companion() state.Companion {
	return state.Companion{
		Name:             c.Name,
		ShortDescription: c.ShortDescription,
		Personality:      c.Personality,
		SpeakingStyle:    c.SpeakingStyle,
		VoiceID:          c.VoiceID,
	}
}

// VoiceTraits maps the character onto voice catalog traits.
func (c Character) VoiceTraits() voice.Traits {
	return voice.Traits{
		Gender:  strings.ToLower(c.Gender),
		Age:     strings.ToLower(c.Age),
		Accent:  strings.ToLower(c.Accent),
		Tags:    c.Traits,
		UseCase: voice.UseCaseCharacters,
	}
}

// Scene is a generated opening scene.
type Scene struct {
	Title       string `json:"title"`
	Narration   string `json:"narration"`
	ImagePrompt string `json:"imagePrompt"`
}

// Generator wraps a text generator with the character and scene prompts.
type Generator struct {
	gen     llm.TextGenerator
	catalog *voice.Catalog
}

// New creates a Generator.
func New(gen llm.TextGenerator, catalog *voice.Catalog) *Generator {
	return &Generator{gen: gen, catalog: catalog}
}

// GenerateCharacter creates a companion for g. The companion's voice is the
// best catalog fit for its traits, never narratorVoice.
func (g *Generator) GenerateCharacter(ctx context.Context, gr genre.Genre, premise, narratorVoice string) (*Character, error) {
	if g.gen == nil {
		return nil, errNoGenerator
	}
	reply, err := g.gen.Generate(ctx,
		prompts.CharacterSystemPrompt,
		prompts.CharacterUserPrompt(gr, premise),
		llm.GenerateOptions{
			Schema:      prompts.CharacterSchema,
			SchemaName:  "companion_character",
			Temperature: llm.Float32(0.9),
			Creative:    true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate character: %w", err)
	}

	var c Character
	if err := llm.DecodeJSON(reply, &c); err != nil {
		return nil, fmt.Errorf("failed to parse character: %w", err)
	}
	c.Name = strings.TrimSpace(c.Name)
	c.ShortDescription = strings.TrimSpace(c.ShortDescription)
	if c.Name == "" || c.ShortDescription == "" {
		return nil, fmt.Errorf("character is missing name or description")
	}

	c.VoiceID = g.catalog.BestFit(c.VoiceTraits(), narratorVoice)
	return &c, nil
}

// GenerateOpeningScene creates the first scene of an adventure in g.
func (g *Generator) GenerateOpeningScene(ctx context.Context, gr genre.Genre) (*Scene, error) {
	if g.gen == nil {
		return nil, errNoGenerator
	}
	reply, err := g.gen.Generate(ctx,
		prompts.OpeningSceneSystemPrompt,
		prompts.OpeningSceneUserPrompt(gr),
		llm.GenerateOptions{
			Schema:      prompts.OpeningSceneSchema,
			SchemaName:  "opening_scene",
			Temperature: llm.Float32(1.0),
			Creative:    true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate opening scene: %w", err)
	}

	var s Scene
	if err := llm.DecodeJSON(reply, &s); err != nil {
		return nil, fmt.Errorf("failed to parse opening scene: %w", err)
	}
	s.Narration = strings.TrimSpace(s.Narration)
	if s.Narration == "" {
		return nil, fmt.Errorf("opening scene has no narration")
	}
	return &s, nil
}

// DefaultCharacter is used when character generation fails.
func (g *Generator) DefaultCharacter(gr genre.Genre, narratorVoice string) *Character {
	c := &Character{
		Name:             "Rowan",
		ShortDescription: gr.Preset().CompanionHint,
		Personality:      "Steady, curious and quick to help.",
		SpeakingStyle:    "Warm and plainspoken.",
		Gender:           "neutral",
		Age:              "middle_aged",
		Traits:           []string{"warm", "calm"},
	}
	c.VoiceID = g.catalog.BestFit(c.VoiceTraits(), narratorVoice)
	return c
}

// DefaultScene is used when opening scene generation fails.
func DefaultScene(gr genre.Genre) *Scene {
	p := gr.Preset()
	return &Scene{
		Title: fmt.Sprintf("A %s Tale", gr),
		Narration: fmt.Sprintf("You stand at the edge of the unknown, the air heavy with possibility. "+
			"The world around you feels %s. Somewhere ahead, your story is waiting to begin.", p.Tone),
		ImagePrompt: fmt.Sprintf("%s, a lone traveler at the threshold of an %s adventure", p.ArtStyle, strings.ToLower(gr.String())),
	}
}
