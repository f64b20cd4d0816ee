package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/story-weaver/pkg/llm"
)

var (
	_ llm.TextGenerator     = (*MockTextGenerator)(nil)
	_ llm.ImageGenerator    = (*MockImageGenerator)(nil)
	_ llm.SpeechSynthesizer = (*MockSpeechSynthesizer)(nil)
	_ llm.Transcriber       = (*MockTranscriber)(nil)
)

// GenerateCall records one MockTextGenerator.Generate call.
type GenerateCall struct {
	SystemPrompt string
	UserPrompt   string
	Options      llm.GenerateOptions
}

// MockTextGenerator is a mock implementation of llm.TextGenerator for testing
type MockTextGenerator struct {
	GenerateFunc func(ctx context.Context, systemPrompt, userPrompt string, opts llm.GenerateOptions) (string, error)

	// Track calls for testing
	GenerateCalls []GenerateCall

	mu sync.Mutex // protects all fields above
}

// NewMockTextGenerator creates a new mock text generator
func NewMockTextGenerator() *MockTextGenerator {
	return &MockTextGenerator{
		GenerateCalls: make([]GenerateCall, 0),
	}
}

// Generate mocks text generation. Without a GenerateFunc it replies with a
// fixed string.
func (m *MockTextGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, opts llm.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, GenerateCall{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Options:      opts,
	})
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, systemPrompt, userPrompt, opts)
	}
	return "Mock response", nil
}

// SetGenerateError sets up the mock to fail every call with err
func (m *MockTextGenerator) SetGenerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, systemPrompt, userPrompt string, opts llm.GenerateOptions) (string, error) {
		return "", err
	}
}

// SetGenerateResponse sets up the mock to reply with response
func (m *MockTextGenerator) SetGenerateResponse(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, systemPrompt, userPrompt string, opts llm.GenerateOptions) (string, error) {
		return response, nil
	}
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockTextGenerator) GetCalls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]GenerateCall, len(m.GenerateCalls))
	copy(calls, m.GenerateCalls)
	return calls
}

// Reset clears all call tracking
func (m *MockTextGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = make([]GenerateCall, 0)
}

// MockImageGenerator is a mock implementation of llm.ImageGenerator
type MockImageGenerator struct {
	GenerateImageFunc func(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Image, error)

	Prompts []string

	mu sync.Mutex
}

// NewMockImageGenerator creates a new mock image generator
func NewMockImageGenerator() *MockImageGenerator {
	return &MockImageGenerator{}
}

// GenerateImage mocks image generation with a tiny fixed payload by default
func (m *MockImageGenerator) GenerateImage(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Image, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	fn := m.GenerateImageFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, opts)
	}
	return &llm.Image{Data: []byte("png-bytes"), MIMEType: "image/png"}, nil
}

// GetPrompts returns a copy of the prompts received
func (m *MockImageGenerator) GetPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Prompts...)
}

// SynthesizeCall records one MockSpeechSynthesizer.Synthesize call.
type SynthesizeCall struct {
	Text    string
	VoiceID string
}

// MockSpeechSynthesizer is a mock implementation of llm.SpeechSynthesizer
type MockSpeechSynthesizer struct {
	SynthesizeFunc func(ctx context.Context, text, voiceID string) (*llm.Audio, error)

	Calls []SynthesizeCall

	mu sync.Mutex
}

// NewMockSpeechSynthesizer creates a new mock speech synthesizer
func NewMockSpeechSynthesizer() *MockSpeechSynthesizer {
	return &MockSpeechSynthesizer{}
}

// Synthesize mocks speech synthesis with a tiny fixed payload by default
func (m *MockSpeechSynthesizer) Synthesize(ctx context.Context, text, voiceID string) (*llm.Audio, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, SynthesizeCall{Text: text, VoiceID: voiceID})
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voiceID)
	}
	return &llm.Audio{Data: []byte("mp3-bytes"), MIMEType: "audio/mpeg"}, nil
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockSpeechSynthesizer) GetCalls() []SynthesizeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SynthesizeCall(nil), m.Calls...)
}

// MockTranscriber is a mock implementation of llm.Transcriber
type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, audio []byte, filename string) (string, error)

	mu    sync.Mutex
	calls int
}

// Transcribe mocks speech-to-text
func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	m.mu.Lock()
	m.calls++
	fn := m.TranscribeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio, filename)
	}
	return "mock transcript", nil
}

// CallCount returns how many times Transcribe was called
func (m *MockTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
