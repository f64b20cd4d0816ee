package weaver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/prompts"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/voice"
)

const classifierTemperature = 0.4

// rawDecision is the model's reply before validation.
type rawDecision struct {
	ResponseType        string `json:"responseType"`
	Reasoning           string `json:"reasoning"`
	ShouldGenerateImage bool   `json:"shouldGenerateImage"`
	NarratorVoice       string `json:"narratorVoice"`
	ResponseText        string `json:"responseText"`
	ImagePrompt         string `json:"imagePrompt"`
	CompanionFirstWords string `json:"companionFirstWords"`
}

// Classifier turns an utterance and the session view into a Decision.
type Classifier struct {
	gen     llm.TextGenerator
	catalog *voice.Catalog
	logger  *slog.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewClassifier creates a classifier. rng drives every random voice pick so
// tests can seed it.
func NewClassifier(gen llm.TextGenerator, catalog *voice.Catalog, rng *rand.Rand, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		gen:     gen,
		catalog: catalog,
		rng:     rng,
		logger:  logger,
	}
}

// Decide classifies input. It never fails: a backend error or an unparseable
// reply falls back to the keyword heuristic.
func (c *Classifier) Decide(ctx context.Context, input string, v state.View) Decision {
	input = strings.TrimSpace(input)

	raw, err := c.ask(ctx, input, v)
	if err != nil {
		c.logger.Warn("Classifier falling back to heuristic", "error", err)
		d := c.normalize(c.heuristic(input, v), v)
		d.QuotaExhausted = llm.IsQuotaError(err)
		return d
	}

	d := c.normalize(c.fromRaw(raw, v), v)
	c.logger.Debug("Turn classified",
		"response_type", d.Kind(),
		"image", d.ShouldGenerateImage(),
		"voice", d.NarratorVoice,
		"reasoning", d.Reasoning,
	)
	return d
}

func (c *Classifier) ask(ctx context.Context, input string, v state.View) (*rawDecision, error) {
	if c.gen == nil {
		return nil, fmt.Errorf("no text generator configured")
	}
	reply, err := c.gen.Generate(ctx,
		prompts.ClassifierSystemPrompt,
		prompts.ClassifierUserPrompt(input, v, c.narratorIDs()),
		llm.GenerateOptions{
			Schema:      prompts.ClassifierSchema,
			SchemaName:  "story_weaver_decision",
			Temperature: llm.Float32(classifierTemperature),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("classifier generation failed: %w", err)
	}
	var raw rawDecision
	if err := llm.DecodeJSON(reply, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse classifier reply: %w", err)
	}
	return &raw, nil
}

func (c *Classifier) narratorIDs() []string {
	if ids := c.catalog.NarratorVoices(); len(ids) > 0 {
		return ids
	}
	return c.catalog.IDs()
}

// fromRaw maps the model's reply onto a payload. Unknown response types
// become exploration. Types that contradict companion presence are mapped to
// the nearest valid one.
func (c *Classifier) fromRaw(raw *rawDecision, v state.View) Decision {
	d := Decision{
		NarratorVoice: strings.TrimSpace(raw.NarratorVoice),
		Reasoning:     strings.TrimSpace(raw.Reasoning),
	}

	kind, ok := ParseKind(raw.ResponseType)
	if !ok {
		c.logger.Debug("Coercing unknown response type", "response_type", raw.ResponseType)
		kind = KindExploration
	}
	switch {
	case kind == KindCompanionIntroduction && v.CompanionPresent:
		kind = KindCompanionDialogue
	case kind == KindCompanionDialogue && !v.CompanionPresent:
		kind = KindDialogueAttempt
	}

	text := strings.TrimSpace(raw.ResponseText)
	image := strings.TrimSpace(raw.ImagePrompt)
	switch kind {
	case KindExploration:
		d.Payload = Exploration{ImagePrompt: image}
	case KindDialogueAttempt:
		d.Payload = DialogueAttempt{ResponseText: text}
	case KindCompanionDialogue:
		d.Payload = CompanionDialogue{}
	case KindCompanionIntroduction:
		d.Payload = CompanionIntroduction{ImagePrompt: image, FirstWords: strings.TrimSpace(raw.CompanionFirstWords)}
	case KindExamination:
		d.Payload = Examination{ResponseText: text, ImagePrompt: image, GenerateImage: raw.ShouldGenerateImage}
	}
	return d
}

// normalize enforces the decision invariants shared by both paths: a known
// voice, canned text where ready-made text is required, and an image prompt
// exactly when an image is wanted.
func (c *Classifier) normalize(d Decision, v state.View) Decision {
	if !c.catalog.IsValid(d.NarratorVoice) {
		d.NarratorVoice = c.randomVoice()
	}

	switch p := d.Payload.(type) {
	case nil:
		d.Payload = Exploration{ImagePrompt: FallbackImagePrompt(KindExploration, v)}
	case Exploration:
		if p.ImagePrompt == "" {
			p.ImagePrompt = FallbackImagePrompt(KindExploration, v)
		}
		d.Payload = p
	case CompanionIntroduction:
		if p.ImagePrompt == "" {
			p.ImagePrompt = FallbackImagePrompt(KindCompanionIntroduction, v)
		}
		d.Payload = p
	case DialogueAttempt:
		if p.ResponseText == "" {
			p.ResponseText = NoAnswerText
		}
		d.Payload = p
	case Examination:
		if p.ResponseText == "" {
			p.ResponseText = ExaminationText
		}
		if !p.GenerateImage {
			p.ImagePrompt = ""
		} else if p.ImagePrompt == "" {
			p.ImagePrompt = FallbackImagePrompt(KindExamination, v)
		}
		d.Payload = p
	}
	return d
}

func (c *Classifier) randomVoice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.Random(c.rng)
}

// FallbackImagePrompt builds a generic illustration prompt for kind from the
// genre, the current scene and the companion.
func FallbackImagePrompt(kind Kind, v state.View) string {
	p := v.Genre.Preset()
	scene := v.CurrentSceneDescription
	if scene == "" {
		scene = v.WorldSetting
	}
	if scene == "" {
		scene = fmt.Sprintf("an atmospheric %s landscape", strings.ToLower(v.Genre.String()))
	}
	companion := v.CompanionDescription
	if companion == "" {
		companion = p.CompanionHint
	}

	switch kind {
	case KindCompanionIntroduction:
		return fmt.Sprintf("%s, %s. A new figure appears: %s. %s.", p.ArtStyle, scene, companion, p.Tone)
	case KindExamination:
		return fmt.Sprintf("%s, close-up detail within %s. %s.", p.ArtStyle, scene, p.Tone)
	default:
		return fmt.Sprintf("%s, wide view of %s, the path leading onward. %s.", p.ArtStyle, scene, p.Tone)
	}
}
