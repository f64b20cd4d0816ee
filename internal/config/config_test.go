package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("ELEVENLABS_API_KEY", "e-key")
	t.Setenv("OPENAI_API_KEY", "o-key")
}

func TestLoad_Defaults(t *testing.T) {
	setProviderEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, TurnModeInline, cfg.TurnMode)
	assert.Equal(t, ProviderGemini, cfg.TextProvider)
	assert.Equal(t, ProviderElevenLabs, cfg.SpeechProvider)
	assert.Equal(t, 5, cfg.CompanionThresholdMax)
	assert.False(t, cfg.FamilyFriendly)
}

func TestLoad_Overrides(t *testing.T) {
	setProviderEnv(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("TEXT_PROVIDER", "OpenAI")
	t.Setenv("IMAGE_PROVIDER", "none")
	t.Setenv("TURN_MODE", "queue")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("COMPANION_THRESHOLD_MAX", "3")
	t.Setenv("FAMILY_FRIENDLY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, ProviderOpenAI, cfg.TextProvider)
	assert.Equal(t, ProviderNone, cfg.ImageProvider)
	assert.Equal(t, TurnModeQueue, cfg.TurnMode)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 3, cfg.CompanionThresholdMax)
	assert.True(t, cfg.FamilyFriendly)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad ttl", "SESSION_TTL", "forever"},
		{"bad threshold", "COMPANION_THRESHOLD_MAX", "many"},
		{"zero threshold", "COMPANION_THRESHOLD_MAX", "0"},
		{"threshold above five", "COMPANION_THRESHOLD_MAX", "20"},
		{"bad bool", "FAMILY_FRIENDLY", "sometimes"},
		{"bad turn mode", "TURN_MODE", "batch"},
		{"unknown text provider", "TEXT_PROVIDER", "ollama"},
		{"speech provider without key", "SPEECH_PROVIDER", "anthropic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setProviderEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate_MissingKey(t *testing.T) {
	cfg := &Config{
		TurnMode:              TurnModeInline,
		TextProvider:          ProviderAnthropic,
		ImageProvider:         ProviderNone,
		SpeechProvider:        ProviderNone,
		TranscribeProvider:    ProviderNone,
		CompanionThresholdMax: 5,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	cfg.AnthropicAPIKey = "a-key"
	assert.NoError(t, cfg.Validate())
}
