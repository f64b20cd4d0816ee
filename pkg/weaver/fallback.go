package weaver

import (
	"regexp"
	"strings"

	"github.com/jwebster45206/story-weaver/pkg/state"
)

// Canned texts used when no generated text is available.
const (
	NoAnswerText    = "You call out, but no one answers. Only the echo of your own voice comes back to you."
	ExaminationText = "You take a careful look around. Nothing stirs, but every detail of this place settles into your memory."
)

var (
	greetingWords = []string{
		"hello", "hi", "hey", "greetings", "howdy", "hail", "anyone", "anybody",
		"talk", "speak", "ask", "say", "shout", "call", "whisper", "yell",
	}
	lookWords = []string{
		"look", "examine", "inspect", "search", "study", "observe", "check",
		"read", "investigate", "peer", "glance", "scan", "survey",
	}

	greetingPattern = wordPattern(greetingWords)
	lookPattern     = wordPattern(lookWords)
)

func wordPattern(words []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
}

// heuristic is the backend-free classifier. Apart from the voice, which
// normalize picks, the result depends only on the input and companion
// presence.
func (c *Classifier) heuristic(input string, v state.View) Decision {
	d := Decision{Fallback: true}
	switch {
	case v.CompanionPresent:
		d.Payload = CompanionDialogue{}
		d.Reasoning = "fallback: companion present"
	case greetingPattern.MatchString(input):
		d.Payload = DialogueAttempt{ResponseText: NoAnswerText}
		d.Reasoning = "fallback: greeting or speech keyword"
	case lookPattern.MatchString(input):
		d.Payload = Examination{ResponseText: ExaminationText}
		d.Reasoning = "fallback: look keyword"
	default:
		d.Payload = Exploration{}
		d.Reasoning = "fallback: default exploration"
	}
	return d
}
