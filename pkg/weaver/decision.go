// Package weaver decides how each player utterance is resolved.
package weaver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwebster45206/story-weaver/pkg/state"
)

// Kind is one of the five ways a turn can be resolved.
type Kind string

const (
	KindExploration           Kind = "exploration"
	KindDialogueAttempt       Kind = "dialogue_attempt"
	KindCompanionDialogue     Kind = "companion_dialogue"
	KindCompanionIntroduction Kind = "companion_introduction"
	KindExamination           Kind = "examination"
)

// Kinds lists every valid kind.
var Kinds = []Kind{
	KindExploration,
	KindDialogueAttempt,
	KindCompanionDialogue,
	KindCompanionIntroduction,
	KindExamination,
}

// ParseKind returns the kind named by s, or false when s is not a known kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Payload is the kind-specific part of a Decision. Only the types in this
// package implement it.
type Payload interface {
	Kind() Kind
	isPayload()
}

// Exploration advances the story into a new scene.
type Exploration struct {
	ImagePrompt string
}

// DialogueAttempt answers an utterance aimed at someone who is not there.
type DialogueAttempt struct {
	ResponseText string
}

// CompanionDialogue hands the utterance to the companion.
type CompanionDialogue struct{}

// CompanionIntroduction brings the companion into the story.
type CompanionIntroduction struct {
	ImagePrompt string
	FirstWords  string
}

// Examination describes something the player looks at.
type Examination struct {
	ResponseText  string
	ImagePrompt   string
	GenerateImage bool
}

func (Exploration) Kind() Kind           { return KindExploration }
func (DialogueAttempt) Kind() Kind       { return KindDialogueAttempt }
func (CompanionDialogue) Kind() Kind     { return KindCompanionDialogue }
func (CompanionIntroduction) Kind() Kind { return KindCompanionIntroduction }
func (Examination) Kind() Kind           { return KindExamination }

func (Exploration) isPayload()           {}
func (DialogueAttempt) isPayload()       {}
func (CompanionDialogue) isPayload()     {}
func (CompanionIntroduction) isPayload() {}
func (Examination) isPayload()           {}

// Decision is the classifier's verdict for one turn.
type Decision struct {
	Payload       Payload
	NarratorVoice string
	Reasoning     string
	// Fallback is set when the heuristic classifier produced the decision.
	Fallback bool
	// QuotaExhausted is set when the fallback was caused by an exhausted
	// backend quota.
	QuotaExhausted bool
}

// Kind returns the decision's response type.
func (d Decision) Kind() Kind {
	if d.Payload == nil {
		return KindExploration
	}
	return d.Payload.Kind()
}

// ShouldGenerateImage is forced on for exploration and companion
// introduction, forced off for either dialogue, and the stored choice for
// examination.
func (d Decision) ShouldGenerateImage() bool {
	switch p := d.Payload.(type) {
	case Exploration, CompanionIntroduction:
		return true
	case Examination:
		return p.GenerateImage
	case DialogueAttempt, CompanionDialogue:
		return false
	default:
		return true
	}
}

// ImagePrompt returns the illustration prompt, or "" when no image is wanted.
func (d Decision) ImagePrompt() string {
	if !d.ShouldGenerateImage() {
		return ""
	}
	switch p := d.Payload.(type) {
	case Exploration:
		return p.ImagePrompt
	case CompanionIntroduction:
		return p.ImagePrompt
	case Examination:
		return p.ImagePrompt
	}
	return ""
}

// ResponseText returns the ready-made narration carried by dialogue attempts
// and examinations.
func (d Decision) ResponseText() string {
	switch p := d.Payload.(type) {
	case DialogueAttempt:
		return p.ResponseText
	case Examination:
		return p.ResponseText
	}
	return ""
}

// ForceCompanionIntroduction replaces the decision with a companion
// introduction when the companion is absent and the turn count has reached
// the appearance threshold. It reports whether the override applied.
func ForceCompanionIntroduction(d Decision, s *state.Session) (Decision, bool) {
	if !s.CompanionDue() || d.Kind() == KindCompanionIntroduction {
		return d, false
	}
	d.Payload = CompanionIntroduction{ImagePrompt: FallbackImagePrompt(KindCompanionIntroduction, s.View())}
	d.Reasoning = fmt.Sprintf("companion appearance threshold %d reached on turn %d", s.CompanionAppearanceThreshold, s.UserTurnCount)
	return d, true
}

type decisionJSON struct {
	ResponseType        Kind   `json:"response_type"`
	ShouldGenerateImage bool   `json:"should_generate_image"`
	NarratorVoice       string `json:"narrator_voice"`
	Reasoning           string `json:"reasoning,omitempty"`
	ResponseText        string `json:"response_text,omitempty"`
	ImagePrompt         string `json:"image_prompt,omitempty"`
	CompanionFirstWords string `json:"companion_first_words,omitempty"`
	Fallback            bool   `json:"fallback,omitempty"`
}

// MarshalJSON flattens the decision for API responses and events.
func (d Decision) MarshalJSON() ([]byte, error) {
	out := decisionJSON{
		ResponseType:        d.Kind(),
		ShouldGenerateImage: d.ShouldGenerateImage(),
		NarratorVoice:       d.NarratorVoice,
		Reasoning:           d.Reasoning,
		ResponseText:        d.ResponseText(),
		ImagePrompt:         d.ImagePrompt(),
		Fallback:            d.Fallback,
	}
	if p, ok := d.Payload.(CompanionIntroduction); ok {
		out.CompanionFirstWords = p.FirstWords
	}
	return json.Marshal(out)
}
