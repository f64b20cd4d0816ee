package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jwebster45206/story-weaver/pkg/llm"
)

const (
	DefaultAnthropicModel         = "claude-3-5-haiku-latest"
	DefaultAnthropicCreativeModel = "claude-sonnet-4-0"

	DefaultAnthropicTemperature = 0.7
	DefaultAnthropicMaxTokens   = 2048

	providerAnthropic = "anthropic"
)

var _ llm.TextGenerator = (*AnthropicService)(nil)

// AnthropicConfig configures an AnthropicService. Empty models use defaults.
type AnthropicConfig struct {
	APIKey        string
	Model         string
	CreativeModel string
	BaseURL       string

	// DisableRetries turns off the SDK's retries on 429 and 5xx responses.
	DisableRetries bool
}

// AnthropicService implements llm.TextGenerator for Anthropic Claude
type AnthropicService struct {
	client        *anthropic.Client
	modelName     string
	creativeModel string
	logger        *slog.Logger
}

// NewAnthropicService creates a Claude client.
func NewAnthropicService(cfg AnthropicConfig, logger *slog.Logger) (*AnthropicService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.DisableRetries {
		opts = append(opts, option.WithMaxRetries(0))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicService{
		client:        &client,
		modelName:     orDefault(cfg.Model, DefaultAnthropicModel),
		creativeModel: orDefault(cfg.CreativeModel, DefaultAnthropicCreativeModel),
		logger:        logger,
	}, nil
}

// Generate sends a single-turn message. Claude has no schema-constrained
// output here, so the schema is appended to the system prompt and the reply
// is left for llm.DecodeJSON to clean up.
func (a *AnthropicService) Generate(ctx context.Context, systemPrompt, userPrompt string, opts llm.GenerateOptions) (string, error) {
	model := a.modelName
	if opts.Creative {
		model = a.creativeModel
	}

	system := systemPrompt
	if opts.Schema != nil {
		system = strings.TrimSpace(system + "\n\nRespond with only a JSON object matching this schema:\n" + opts.Schema.String())
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: DefaultAnthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Temperature: anthropic.Float(DefaultAnthropicTemperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*opts.Temperature))
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("anthropic messages: %w: %v", llm.ErrQuotaExhausted, err)
		}
		return "", wrapProviderError(providerAnthropic, "messages", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		sb.WriteString(block.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("anthropic returned an empty response")
	}

	a.logger.Debug("Anthropic generation complete", "model", model, "schema", opts.SchemaName,
		"input_tokens", message.Usage.InputTokens, "output_tokens", message.Usage.OutputTokens)
	return text, nil
}
