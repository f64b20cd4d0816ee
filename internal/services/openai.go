package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/jwebster45206/story-weaver/pkg/voice"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIModel         = "gpt-4o-mini"
	DefaultOpenAICreativeModel = "gpt-4o"
	DefaultOpenAIVoice         = "alloy"

	providerOpenAI = "openai"
)

var (
	_ llm.TextGenerator     = (*OpenAIService)(nil)
	_ llm.ImageGenerator    = (*OpenAIService)(nil)
	_ llm.SpeechSynthesizer = (*OpenAIService)(nil)
	_ llm.Transcriber       = (*OpenAIService)(nil)
)

// OpenAIConfig configures an OpenAIService. Empty models use defaults.
type OpenAIConfig struct {
	APIKey        string
	Model         string
	CreativeModel string
	ImageModel    string
	SpeechModel   string
	BaseURL       string
}

// OpenAIService implements chat, image, speech and transcription on the
// OpenAI API
type OpenAIService struct {
	client        *openai.Client
	modelName     string
	creativeModel string
	imageModel    string
	speechModel   string
	catalog       *voice.Catalog
	logger        *slog.Logger
}

// NewOpenAIService creates an OpenAI client. catalog maps voice ids to OpenAI
// voice names and may be nil when speech is not used.
func NewOpenAIService(cfg OpenAIConfig, catalog *voice.Catalog, logger *slog.Logger) (*OpenAIService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIService{
		client:        openai.NewClientWithConfig(config),
		modelName:     orDefault(cfg.Model, DefaultOpenAIModel),
		creativeModel: orDefault(cfg.CreativeModel, DefaultOpenAICreativeModel),
		imageModel:    orDefault(cfg.ImageModel, openai.CreateImageModelDallE3),
		speechModel:   orDefault(cfg.SpeechModel, string(openai.TTSModel1)),
		catalog:       catalog,
		logger:        logger,
	}, nil
}

// Generate runs a chat completion. A schema becomes a json_schema response
// format.
func (o *OpenAIService) Generate(ctx context.Context, systemPrompt, userPrompt string, opts llm.GenerateOptions) (string, error) {
	model := o.modelName
	if opts.Creative {
		model = o.creativeModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.Schema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   orDefault(opts.SchemaName, "response"),
				Schema: opts.Schema,
				// Optional properties are not allowed in strict mode.
				Strict: false,
			},
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", o.wrapError("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai returned an empty response")
	}

	o.logger.Debug("OpenAI generation complete", "model", model, "schema", opts.SchemaName, "total_tokens", resp.Usage.TotalTokens)
	return text, nil
}

// GenerateImage renders one image and returns its decoded bytes.
func (o *OpenAIService) GenerateImage(ctx context.Context, prompt string, opts llm.ImageOptions) (*llm.Image, error) {
	resp, err := o.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          o.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, o.wrapError("create image", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai returned no image")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &llm.Image{Data: data, MIMEType: "image/png"}, nil
}

// Synthesize speaks text as MP3 with the OpenAI voice mapped to voiceID.
func (o *OpenAIService) Synthesize(ctx context.Context, text, voiceID string) (*llm.Audio, error) {
	voiceName := DefaultOpenAIVoice
	if o.catalog != nil {
		if name := o.catalog.ProviderVoice(voiceID, providerOpenAI); name != voiceID {
			voiceName = name
		}
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.speechModel),
		Input:          text,
		Voice:          openai.SpeechVoice(voiceName),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, o.wrapError("create speech", err)
	}
	defer func() { _ = resp.Close() }()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech: %w", err)
	}
	return &llm.Audio{Data: data, MIMEType: "audio/mpeg"}, nil
}

// Transcribe converts recorded audio to text with Whisper.
func (o *OpenAIService) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "speech.webm"
	}
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", o.wrapError("transcription", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (o *OpenAIService) wrapError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type == "insufficient_quota" || apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("openai %s: %w: %v", op, llm.ErrQuotaExhausted, err)
		}
	}
	return wrapProviderError(providerOpenAI, op, err)
}
