package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/story-weaver/internal/config"
	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/voice"
)

// Backends are the generative services a process needs. Images, Speech and
// Transcriber are nil when their provider is "none".
type Backends struct {
	Text        llm.TextGenerator
	Images      llm.ImageGenerator
	Speech      llm.SpeechSynthesizer
	Transcriber llm.Transcriber
}

// NewBackends builds the providers selected in cfg. Clients are shared when
// one provider serves several concerns.
func NewBackends(ctx context.Context, cfg *config.Config, catalog *voice.Catalog, logger *slog.Logger) (*Backends, error) {
	var (
		gemini *GeminiService
		openai *OpenAIService
	)
	getGemini := func() (*GeminiService, error) {
		if gemini != nil {
			return gemini, nil
		}
		svc, err := NewGeminiService(ctx, GeminiConfig{
			APIKey:        cfg.GeminiAPIKey,
			TextModel:     cfg.TextModel,
			CreativeModel: cfg.CreativeModel,
			ImageModel:    cfg.ImageModel,
			SpeechModel:   cfg.SpeechModel,
		}, catalog, logger)
		gemini = svc
		return svc, err
	}
	getOpenAI := func() (*OpenAIService, error) {
		if openai != nil {
			return openai, nil
		}
		svc, err := NewOpenAIService(OpenAIConfig{
			APIKey:        cfg.OpenAIAPIKey,
			Model:         cfg.TextModel,
			CreativeModel: cfg.CreativeModel,
			ImageModel:    cfg.ImageModel,
			SpeechModel:   cfg.SpeechModel,
		}, catalog, logger)
		openai = svc
		return svc, err
	}

	b := &Backends{}
	var err error

	switch cfg.TextProvider {
	case config.ProviderGemini:
		b.Text, err = getGemini()
	case config.ProviderAnthropic:
		b.Text, err = NewAnthropicService(AnthropicConfig{
			APIKey:        cfg.AnthropicAPIKey,
			Model:         cfg.TextModel,
			CreativeModel: cfg.CreativeModel,
		}, logger)
	case config.ProviderOpenAI:
		b.Text, err = getOpenAI()
	default:
		err = fmt.Errorf("unsupported text provider %q", cfg.TextProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("text backend: %w", err)
	}

	switch cfg.ImageProvider {
	case config.ProviderGemini:
		b.Images, err = getGemini()
	case config.ProviderOpenAI:
		b.Images, err = getOpenAI()
	}
	if err != nil {
		return nil, fmt.Errorf("image backend: %w", err)
	}

	switch cfg.SpeechProvider {
	case config.ProviderElevenLabs:
		b.Speech = NewElevenLabsService(cfg.ElevenLabsAPIKey, "", logger)
	case config.ProviderGemini:
		b.Speech, err = getGemini()
	case config.ProviderOpenAI:
		b.Speech, err = getOpenAI()
	}
	if err != nil {
		return nil, fmt.Errorf("speech backend: %w", err)
	}

	if cfg.TranscribeProvider == config.ProviderOpenAI {
		b.Transcriber, err = getOpenAI()
		if err != nil {
			return nil, fmt.Errorf("transcription backend: %w", err)
		}
	}

	logger.Info("Generative backends configured",
		"text", cfg.TextProvider,
		"image", cfg.ImageProvider,
		"speech", cfg.SpeechProvider,
		"transcribe", cfg.TranscribeProvider)
	return b, nil
}
