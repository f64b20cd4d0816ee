// Package turn runs player turns against an adventure session: classify the
// utterance, produce the narrator or companion reply, illustrate it and speak
// it.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/metrics"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/internal/speech"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/generate"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/prompts"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"github.com/jwebster45206/story-weaver/pkg/storage"
	"github.com/jwebster45206/story-weaver/pkg/textfilter"
	"github.com/jwebster45206/story-weaver/pkg/voice"
	"github.com/jwebster45206/story-weaver/pkg/weaver"
)

var (
	// ErrTurnInProgress is returned when a session already has a turn in flight.
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")
	// ErrEmptyInput is returned for blank utterances. No state is touched.
	ErrEmptyInput = errors.New("message cannot be empty")
)

// Canned replies used when generation fails.
const (
	ProgressionFallbackText  = "You press onward. The way ahead shifts and opens, and the story carries you somewhere new."
	IntroductionFallbackText = "Someone steps out to meet you. It seems you will not be travelling alone after all."
	FirstWordsFallbackText   = "I've been waiting for someone to come this way. Mind if I join you?"
	CompanionFallbackText    = "Hmm. Give me a moment to think about that."
)

const (
	generationTimeout  = 45 * time.Second
	companionTemp      = 0.8
	imageMIMEType      = "image/png"
	introductionSchema = "companion_introduction"
	progressionSchema  = "story_progression"
)

// Config wires an Executor to its backends. Images, Speaker and Media may be
// nil; the corresponding step is then skipped.
type Config struct {
	Text      llm.TextGenerator
	Images    llm.ImageGenerator
	Media     storage.Storage
	Speaker   *speech.Speaker
	Publisher events.Publisher
	Catalog   *voice.Catalog
	Rand      *rand.Rand

	FamilyFriendly        bool
	MaxCompanionThreshold int
}

// Result describes a completed turn.
type Result struct {
	TurnID    string          `json:"turn_id"`
	SessionID uuid.UUID       `json:"session_id"`
	TurnCount int             `json:"user_turn_count"`
	Decision  weaver.Decision `json:"decision"`
	// Forced is set when the appearance threshold overrode the classifier.
	Forced   bool           `json:"forced_introduction,omitempty"`
	Messages []chat.Message `json:"messages"`
	// Terminated is set when a backend quota ran out during the turn.
	Terminated bool `json:"terminated,omitempty"`
}

// Executor runs turns. It is safe for concurrent use across sessions; per
// session only one turn runs at a time.
type Executor struct {
	text       llm.TextGenerator
	images     llm.ImageGenerator
	media      storage.Storage
	speaker    *speech.Speaker
	publisher  events.Publisher
	catalog    *voice.Catalog
	classifier *weaver.Classifier
	generator  *generate.Generator
	filter     *textfilter.Filter
	maxThresh  int
	logger     *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu         sync.Mutex
	processing map[uuid.UUID]bool
	stopped    map[uuid.UUID]bool // stop requested during the running turn
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Discard{}
	}
	if cfg.Speaker == nil {
		cfg.Speaker = speech.NewSpeaker(nil, nil, cfg.Publisher, logger)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.MaxCompanionThreshold < 1 {
		cfg.MaxCompanionThreshold = state.DefaultMaxCompanionThreshold
	}
	e := &Executor{
		text:       cfg.Text,
		images:     cfg.Images,
		media:      cfg.Media,
		speaker:    cfg.Speaker,
		publisher:  cfg.Publisher,
		catalog:    cfg.Catalog,
		classifier: weaver.NewClassifier(cfg.Text, cfg.Catalog, rand.New(rand.NewSource(cfg.Rand.Int63())), logger),
		generator:  generate.New(cfg.Text, cfg.Catalog),
		maxThresh:  cfg.MaxCompanionThreshold,
		logger:     logger,
		rng:        cfg.Rand,
		processing: make(map[uuid.UUID]bool),
		stopped:    make(map[uuid.UUID]bool),
	}
	if cfg.FamilyFriendly {
		e.filter = textfilter.New()
	}
	return e
}

// run carries the state of one turn through its branch.
type run struct {
	id       string
	sess     *state.Session
	input    string
	view     state.View
	decision weaver.Decision
	result   *Result
	quota    bool
}

// ExecuteTurn resolves one user utterance against sess. Backend failures are
// absorbed with canned replies so the chat log always advances. The error is
// non-nil only for rejected input, a concurrent turn, or an exhausted backend
// quota (wrapping llm.ErrQuotaExhausted, with the completed Result).
func (e *Executor) ExecuteTurn(ctx context.Context, turnID string, sess *state.Session, input string) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	if !e.begin(sess.ID) {
		return nil, ErrTurnInProgress
	}
	defer e.end(sess.ID)

	start := time.Now()
	if turnID == "" {
		turnID = uuid.New().String()
	}

	count := sess.BeginTurn()
	decision := e.classifier.Decide(ctx, input, sess.View())
	if decision.Fallback {
		metrics.ClassifierFallbacksTotal.Inc()
	}
	decision, forced := weaver.ForceCompanionIntroduction(decision, sess)
	if forced {
		metrics.ForcedIntroductionsTotal.Inc()
		e.logger.Info("Companion appearance threshold reached",
			"session_id", sess.ID.String(),
			"turn", count,
			"threshold", sess.CompanionAppearanceThreshold)
	}

	r := &run{
		id:       turnID,
		sess:     sess,
		input:    input,
		decision: decision,
		result: &Result{
			TurnID:    turnID,
			SessionID: sess.ID,
			TurnCount: count,
			Decision:  decision,
			Forced:    forced,
		},
	}

	if decision.QuotaExhausted {
		r.quota = true
	}

	e.append(ctx, r, chat.SenderUser, input, "")
	// The branches see the state as of this turn, including the new user line.
	r.view = sess.View()

	switch decision.Kind() {
	case weaver.KindCompanionIntroduction:
		e.introduceCompanion(ctx, r)
	case weaver.KindDialogueAttempt:
		e.narrate(ctx, r, r.decision.ResponseText(), "")
	case weaver.KindExamination:
		e.narrate(ctx, r, r.decision.ResponseText(), e.illustrate(ctx, r, r.decision.ImagePrompt()))
	case weaver.KindCompanionDialogue:
		e.companionReply(ctx, r)
	default:
		e.explore(ctx, r)
	}

	metrics.TurnsTotal.WithLabelValues(string(decision.Kind())).Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("Turn completed",
		"session_id", sess.ID.String(),
		"turn_id", turnID,
		"response_type", decision.Kind(),
		"messages", len(r.result.Messages),
		"duration_ms", time.Since(start).Milliseconds())

	if r.quota {
		r.result.Terminated = true
		metrics.QuotaTerminationsTotal.Inc()
		return r.result, fmt.Errorf("turn %s: %w", turnID, llm.ErrQuotaExhausted)
	}
	return r.result, nil
}

// Stop halts narration in progress for sessionID. The rest of a running turn
// still appends its messages but speaks none of them.
func (e *Executor) Stop(sessionID uuid.UUID) bool {
	e.mu.Lock()
	running := e.processing[sessionID]
	if running {
		e.stopped[sessionID] = true
	}
	e.mu.Unlock()
	return e.speaker.Stop(sessionID) || running
}

func (e *Executor) stopRequested(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped[id]
}

// Busy reports whether sessionID has a turn running in this process.
func (e *Executor) Busy(sessionID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processing[sessionID]
}

func (e *Executor) begin(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.processing[id] {
		return false
	}
	e.processing[id] = true
	return true
}

func (e *Executor) end(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.processing, id)
	delete(e.stopped, id)
}

func (e *Executor) explore(ctx context.Context, r *run) {
	var reply struct {
		Narration   string `json:"narration"`
		ImagePrompt string `json:"imagePrompt"`
	}
	err := e.generateJSON(ctx, r, prompts.ProgressionSystemPrompt, prompts.ProgressionUserPrompt(r.view, r.input),
		prompts.ProgressionSchema, progressionSchema, &reply)

	narration := strings.TrimSpace(reply.Narration)
	if err != nil || narration == "" {
		e.logger.Warn("Progression fell back to canned text", "session_id", r.sess.ID.String(), "error", err)
		metrics.BranchFallbacksTotal.WithLabelValues(string(weaver.KindExploration)).Inc()
		narration = ProgressionFallbackText
	} else {
		narration = e.soften(narration)
		r.sess.SetScene(narration)
		r.sess.RememberLocations(state.ExtractLocationKeywords(narration))
	}

	prompt := strings.TrimSpace(reply.ImagePrompt)
	if prompt == "" {
		prompt = r.decision.ImagePrompt()
	}
	e.narrate(ctx, r, narration, e.illustrate(ctx, r, prompt))
}

func (e *Executor) introduceCompanion(ctx context.Context, r *run) {
	companion := e.companionFor(ctx, r.sess)
	r.sess.IntroduceCompanion(companion)

	var reply struct {
		Narration   string `json:"narration"`
		FirstWords  string `json:"firstWords"`
		ImagePrompt string `json:"imagePrompt"`
	}
	err := e.generateJSON(ctx, r, prompts.CompanionIntroSystemPrompt, prompts.CompanionIntroUserPrompt(r.view, companion, r.input),
		prompts.CompanionIntroSchema, introductionSchema, &reply)

	narration := strings.TrimSpace(reply.Narration)
	if err != nil || narration == "" {
		e.logger.Warn("Companion introduction fell back to canned text", "session_id", r.sess.ID.String(), "error", err)
		metrics.BranchFallbacksTotal.WithLabelValues(string(weaver.KindCompanionIntroduction)).Inc()
		narration = IntroductionFallbackText
	}
	firstWords := textfilter.Dequote(reply.FirstWords)
	if firstWords == "" {
		if p, ok := r.decision.Payload.(weaver.CompanionIntroduction); ok && p.FirstWords != "" {
			firstWords = textfilter.Dequote(p.FirstWords)
		}
	}
	if firstWords == "" {
		firstWords = FirstWordsFallbackText
	}

	prompt := strings.TrimSpace(reply.ImagePrompt)
	if prompt == "" {
		prompt = r.decision.ImagePrompt()
	}
	if prompt == "" {
		prompt = weaver.FallbackImagePrompt(weaver.KindCompanionIntroduction, r.sess.View())
	}

	e.narrate(ctx, r, e.soften(narration), e.illustrate(ctx, r, prompt))

	msg := e.append(ctx, r, chat.SenderCompanion, e.soften(firstWords), "")
	e.speak(ctx, r, msg, e.companionVoice(r))
}

func (e *Executor) companionReply(ctx context.Context, r *run) {
	reply := ""
	cp, err := prompts.New().
		WithCompanion(r.sess.Companion).
		WithGenre(r.sess.Genre).
		WithScene(r.sess.CurrentSceneDescription).
		WithHistory(r.sess.ChatLog).
		WithUserMessage(r.input).
		Build()
	if err == nil {
		reply, err = e.generate(ctx, r, cp.System, cp.User, llm.GenerateOptions{Temperature: llm.Float32(companionTemp)})
	}
	reply = textfilter.Dequote(reply)
	if err != nil || reply == "" {
		e.logger.Warn("Companion reply fell back to canned text", "session_id", r.sess.ID.String(), "error", err)
		metrics.BranchFallbacksTotal.WithLabelValues(string(weaver.KindCompanionDialogue)).Inc()
		reply = CompanionFallbackText
	}

	msg := e.append(ctx, r, chat.SenderCompanion, e.soften(reply), "")
	e.speak(ctx, r, msg, e.companionVoice(r))
}

// narrate appends a narrator message and speaks it in the decision's voice.
func (e *Executor) narrate(ctx context.Context, r *run, text, imageURL string) {
	msg := e.append(ctx, r, chat.SenderNarrator, text, imageURL)
	e.speak(ctx, r, msg, e.narratorVoice(r))
}

func (e *Executor) append(ctx context.Context, r *run, sender chat.Sender, text, imageURL string) chat.Message {
	msg := r.sess.AppendMessage(sender, text, imageURL, false)
	if sender != chat.SenderUser {
		r.result.Messages = append(r.result.Messages, msg)
	}
	e.publish(ctx, r.sess.ID, events.MessageAppended(r.id, msg))
	return msg
}

func (e *Executor) speak(ctx context.Context, r *run, msg chat.Message, voiceID string) {
	if e.stopRequested(r.sess.ID) {
		e.logger.Debug("Skipping speech after stop", "session_id", r.sess.ID.String(), "message_id", msg.ID)
		return
	}
	err := e.speaker.Speak(ctx, r.sess, msg.ID, msg.Text, voiceID)
	switch {
	case err == nil:
	case errors.Is(err, speech.ErrStopped):
		e.mu.Lock()
		e.stopped[r.sess.ID] = true
		e.mu.Unlock()
		r.sess.ClearNarrating()
		e.logger.Info("Narration stopped", "session_id", r.sess.ID.String(), "message_id", msg.ID)
	default:
		metrics.SpeechFailuresTotal.Inc()
		e.logger.Warn("Speech failed, continuing without audio", "session_id", r.sess.ID.String(), "message_id", msg.ID, "error", err)
		if llm.IsQuotaError(err) {
			r.quota = true
		}
	}
}

// illustrate generates and stores an image for prompt, returning its URL or
// "" when no image could be produced.
func (e *Executor) illustrate(ctx context.Context, r *run, prompt string) string {
	if e.images == nil || e.media == nil || strings.TrimSpace(prompt) == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	img, err := e.images.GenerateImage(ctx, prompt, llm.ImageOptions{Count: 1, MIMEType: imageMIMEType})
	if err != nil {
		metrics.ImageFailuresTotal.Inc()
		e.logger.Warn("Image generation failed, continuing without image", "session_id", r.sess.ID.String(), "error", err)
		if llm.IsQuotaError(err) {
			r.quota = true
		}
		return ""
	}
	id, err := e.media.SaveMedia(ctx, r.sess.ID, img.MIMEType, img.Data)
	if err != nil {
		metrics.ImageFailuresTotal.Inc()
		e.logger.Warn("Failed to store image", "session_id", r.sess.ID.String(), "error", err)
		return ""
	}
	return storage.MediaURL(r.sess.ID, id)
}

func (e *Executor) generate(ctx context.Context, r *run, system, user string, opts llm.GenerateOptions) (string, error) {
	if e.text == nil {
		return "", fmt.Errorf("no text generator configured")
	}
	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()
	reply, err := e.text.Generate(ctx, system, user, opts)
	if err != nil {
		if llm.IsQuotaError(err) {
			r.quota = true
		}
		return "", err
	}
	return reply, nil
}

func (e *Executor) generateJSON(ctx context.Context, r *run, system, user string, schema *llm.Schema, name string, v any) error {
	reply, err := e.generate(ctx, r, system, user, llm.GenerateOptions{
		Schema:     schema,
		SchemaName: name,
		Creative:   true,
	})
	if err != nil {
		return err
	}
	return llm.DecodeJSON(reply, v)
}

// companionFor returns the persona planned at adventure start, generating
// one when the session has none.
func (e *Executor) companionFor(ctx context.Context, sess *state.Session) state.Companion {
	if sess.PlannedCompanion != nil {
		return *sess.PlannedCompanion
	}
	c, err := e.generator.GenerateCharacter(ctx, sess.Genre, sess.WorldSetting, sess.NarratorVoice)
	if err != nil {
		e.logger.Warn("Character generation failed, using default companion", "session_id", sess.ID.String(), "error", err)
		c = e.generator.DefaultCharacter(sess.Genre, sess.NarratorVoice)
	}
	return c.Companion()
}

func (e *Executor) narratorVoice(r *run) string {
	v := r.decision.NarratorVoice
	if v == "" || (r.sess.Companion != nil && v == r.sess.Companion.VoiceID) {
		v = r.sess.NarratorVoice
	}
	return v
}

// companionVoice is the companion's assigned voice, never the narrator's.
func (e *Executor) companionVoice(r *run) string {
	narrator := e.narratorVoice(r)
	if c := r.sess.Companion; c != nil && c.VoiceID != "" && c.VoiceID != narrator {
		return c.VoiceID
	}
	if e.catalog == nil {
		return narrator
	}
	v := e.catalog.BestFit(voice.Traits{UseCase: voice.UseCaseCharacters}, narrator, r.sess.NarratorVoice)
	if r.sess.Companion != nil {
		r.sess.Companion.VoiceID = v
	}
	return v
}

func (e *Executor) soften(text string) string {
	if e.filter == nil {
		return text
	}
	return e.filter.Soften(text)
}

func (e *Executor) publish(ctx context.Context, sessionID uuid.UUID, ev events.Event) {
	if err := e.publisher.Publish(ctx, sessionID, ev); err != nil {
		e.logger.Warn("Failed to publish event", "error", err, "event_type", ev.Type, "session_id", sessionID.String())
	}
}

func (e *Executor) randomNarrator() string {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	ids := e.catalog.NarratorVoices()
	if len(ids) == 0 {
		return e.catalog.Random(e.rng)
	}
	return ids[e.rng.Intn(len(ids))]
}
