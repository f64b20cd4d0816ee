// Package llm holds the request/response contracts Story Weaver needs from
// generative backends. Provider clients live in internal/services.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrQuotaExhausted is returned (wrapped) by a backend that has run out of
// quota. It is the one failure that ends a session.
var ErrQuotaExhausted = errors.New("backend quota exhausted")

// GenerateOptions tunes a single text generation call.
type GenerateOptions struct {
	// Schema, when set, asks the backend for a strict JSON object.
	Schema *Schema
	// SchemaName labels the schema for providers that require one.
	SchemaName  string
	Temperature *float32
	// Creative selects the provider's creative model instead of the fast one.
	Creative bool
}

// TextGenerator produces text (or a JSON document when a schema is supplied).
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (string, error)
}

// Image is generated image data.
type Image struct {
	Data     []byte
	MIMEType string
}

// ImageOptions tunes an image generation call.
type ImageOptions struct {
	Count    int
	MIMEType string
}

// ImageGenerator produces images from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Image, error)
}

// Audio is synthesized speech.
type Audio struct {
	Data     []byte
	MIMEType string
	// SampleRate is set for raw PCM output and zero for encoded formats.
	SampleRate int
}

// SpeechSynthesizer turns text into audio for a catalog voice id.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*Audio, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Float32 is a convenience for GenerateOptions.Temperature.
func Float32(v float32) *float32 {
	return &v
}

// IsQuotaError reports whether err looks like a quota or rate exhaustion
// error from any provider.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "insufficient_quota")
}

// StripCodeFence removes a surrounding markdown code fence that some models
// wrap JSON output in.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// DecodeJSON parses a model's JSON reply into v, tolerating code fences and
// leading prose before the first brace.
func DecodeJSON(raw string, v any) error {
	s := StripCodeFence(raw)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndex(s, "}"); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}
	return json.Unmarshal([]byte(s), v)
}
