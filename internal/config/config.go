package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

// Provider names accepted by the *_PROVIDER settings.
const (
	ProviderGemini     = "gemini"
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderNone       = "none"
)

// Turn modes. In queue mode the API enqueues turns for cmd/worker; inline
// mode runs them inside the API process.
const (
	TurnModeInline = "inline"
	TurnModeQueue  = "queue"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL   string
	SessionTTL time.Duration
	TurnMode   string
	WorkerID   string

	TextProvider       string
	ImageProvider      string
	SpeechProvider     string
	TranscribeProvider string

	GeminiAPIKey     string
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	TextModel     string
	CreativeModel string
	ImageModel    string
	SpeechModel   string

	CompanionThresholdMax int
	FamilyFriendly        bool
}

// Load reads configuration from the environment after loading an optional
// .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ttl, err := time.ParseDuration(getEnv("SESSION_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	threshold, err := strconv.Atoi(getEnv("COMPANION_THRESHOLD_MAX", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid COMPANION_THRESHOLD_MAX: %w", err)
	}
	familyFriendly, err := strconv.ParseBool(getEnv("FAMILY_FRIENDLY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid FAMILY_FRIENDLY: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		RedisURL:   getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL: ttl,
		TurnMode:   strings.ToLower(getEnv("TURN_MODE", TurnModeInline)),
		WorkerID:   getEnv("WORKER_ID", ""),

		TextProvider:       strings.ToLower(getEnv("TEXT_PROVIDER", ProviderGemini)),
		ImageProvider:      strings.ToLower(getEnv("IMAGE_PROVIDER", ProviderGemini)),
		SpeechProvider:     strings.ToLower(getEnv("SPEECH_PROVIDER", ProviderElevenLabs)),
		TranscribeProvider: strings.ToLower(getEnv("TRANSCRIBE_PROVIDER", ProviderOpenAI)),

		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),

		TextModel:     getEnv("TEXT_MODEL", ""),
		CreativeModel: getEnv("CREATIVE_MODEL", ""),
		ImageModel:    getEnv("IMAGE_MODEL", ""),
		SpeechModel:   getEnv("SPEECH_MODEL", ""),

		CompanionThresholdMax: threshold,
		FamilyFriendly:        familyFriendly,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider names, turn mode and the keys each selected
// provider needs.
func (c *Config) Validate() error {
	if c.CompanionThresholdMax < 1 || c.CompanionThresholdMax > state.DefaultMaxCompanionThreshold {
		return fmt.Errorf("COMPANION_THRESHOLD_MAX must be between 1 and %d, got %d", state.DefaultMaxCompanionThreshold, c.CompanionThresholdMax)
	}
	if c.TurnMode != TurnModeInline && c.TurnMode != TurnModeQueue {
		return fmt.Errorf("invalid TURN_MODE %q (supported: %s, %s)", c.TurnMode, TurnModeInline, TurnModeQueue)
	}

	checks := []struct {
		setting   string
		provider  string
		supported []string
	}{
		{"TEXT_PROVIDER", c.TextProvider, []string{ProviderGemini, ProviderAnthropic, ProviderOpenAI}},
		{"IMAGE_PROVIDER", c.ImageProvider, []string{ProviderGemini, ProviderOpenAI, ProviderNone}},
		{"SPEECH_PROVIDER", c.SpeechProvider, []string{ProviderElevenLabs, ProviderOpenAI, ProviderGemini, ProviderNone}},
		{"TRANSCRIBE_PROVIDER", c.TranscribeProvider, []string{ProviderOpenAI, ProviderNone}},
	}
	for _, check := range checks {
		if !contains(check.supported, check.provider) {
			return fmt.Errorf("invalid %s %q (supported: %s)", check.setting, check.provider, strings.Join(check.supported, ", "))
		}
		if key := c.apiKeyFor(check.provider); check.provider != ProviderNone && key == "" {
			return fmt.Errorf("%s=%s requires %s", check.setting, check.provider, apiKeyEnv(check.provider))
		}
	}
	return nil
}

func (c *Config) apiKeyFor(provider string) string {
	switch provider {
	case ProviderGemini:
		return c.GeminiAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderElevenLabs:
		return c.ElevenLabsAPIKey
	}
	return ""
}

func apiKeyEnv(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
