package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/voice"
	"google.golang.org/genai"
)

const (
	DefaultGeminiTextModel     = "gemini-2.5-flash"
	DefaultGeminiCreativeModel = "gemini-2.5-pro"
	DefaultGeminiImageModel    = "imagen-3.0-generate-002"
	DefaultGeminiSpeechModel   = "gemini-2.5-flash-preview-tts"

	// Gemini TTS returns 16-bit mono PCM at this rate.
	geminiSpeechSampleRate = 24000
	providerGemini         = "gemini"
)

var (
	_ llm.TextGenerator     = (*GeminiService)(nil)
	_ llm.ImageGenerator    = (*GeminiService)(nil)
	_ llm.SpeechSynthesizer = (*GeminiService)(nil)
)

// GeminiConfig selects models for a GeminiService. Empty fields use defaults.
type GeminiConfig struct {
	APIKey        string
	TextModel     string
	CreativeModel string
	ImageModel    string
	SpeechModel   string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// GeminiService implements text, image and speech generation on the Gemini API
type GeminiService struct {
	client        *genai.Client
	textModel     string
	creativeModel string
	imageModel    string
	speechModel   string
	catalog       *voice.Catalog
	logger        *slog.Logger
}

// NewGeminiService creates a Gemini client. catalog maps voice ids to Gemini
// prebuilt voice names and may be nil when speech is not used.
func NewGeminiService(ctx context.Context, cfg GeminiConfig, catalog *voice.Catalog, logger *slog.Logger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiService{
		client:        client,
		textModel:     orDefault(cfg.TextModel, DefaultGeminiTextModel),
		creativeModel: orDefault(cfg.CreativeModel, DefaultGeminiCreativeModel),
		imageModel:    orDefault(cfg.ImageModel, DefaultGeminiImageModel),
		speechModel:   orDefault(cfg.SpeechModel, DefaultGeminiSpeechModel),
		catalog:       catalog,
		logger:        logger,
	}, nil
}

// Generate produces text, or a JSON document when opts.Schema is set.
func (g *GeminiService) Generate(ctx context.Context, systemPrompt, userPrompt string, opts llm.GenerateOptions) (string, error) {
	model := g.textModel
	if opts.Creative {
		model = g.creativeModel
	}

	config := &genai.GenerateContentConfig{
		Temperature: opts.Temperature,
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if opts.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGeminiSchema(opts.Schema)
	}

	res, err := g.client.Models.GenerateContent(ctx, model, genai.Text(userPrompt), config)
	if err != nil {
		return "", wrapProviderError(providerGemini, "generate content", err)
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	g.logger.Debug("Gemini generation complete", "model", model, "schema", opts.SchemaName, "chars", len(text))
	return text, nil
}

// GenerateImage renders a single image with Imagen.
func (g *GeminiService) GenerateImage(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Image, error) {
	mimeType := orDefault(opts.MIMEType, "image/png")
	res, err := g.client.Models.GenerateImages(ctx, g.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: mimeType,
	})
	if err != nil {
		return nil, wrapProviderError(providerGemini, "generate image", err)
	}
	if len(res.GeneratedImages) == 0 || res.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("gemini returned no image")
	}

	img := res.GeneratedImages[0].Image
	if img.MIMEType != "" {
		mimeType = img.MIMEType
	}
	return &llm.Image{Data: img.ImageBytes, MIMEType: mimeType}, nil
}

// Synthesize speaks text with the Gemini prebuilt voice mapped to voiceID.
func (g *GeminiService) Synthesize(ctx context.Context, text, voiceID string) (*llm.Audio, error) {
	voiceName := voiceID
	if g.catalog != nil {
		voiceName = g.catalog.ProviderVoice(voiceID, providerGemini)
	}

	res, err := g.client.Models.GenerateContent(ctx, g.speechModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceName},
			},
		},
	})
	if err != nil {
		return nil, wrapProviderError(providerGemini, "synthesize speech", err)
	}

	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &llm.Audio{
					Data:       part.InlineData.Data,
					MIMEType:   "audio/L16",
					SampleRate: geminiSpeechSampleRate,
				}, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini returned no audio")
}

func toGeminiSchema(s *llm.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGeminiSchema(s.Items),
	}
	switch s.Type {
	case llm.TypeObject:
		out.Type = genai.TypeObject
	case llm.TypeBoolean:
		out.Type = genai.TypeBoolean
	case llm.TypeArray:
		out.Type = genai.TypeArray
	case llm.TypeInteger:
		out.Type = genai.TypeInteger
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
	}
	return out
}
