package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/story-weaver/pkg/llm"
)

const (
	elevenLabsBaseURL      = "https://api.elevenlabs.io/v1"
	elevenLabsOutputFormat = "mp3_44100_128"

	DefaultElevenLabsModel      = "eleven_multilingual_v2"
	DefaultElevenLabsStability  = 0.5
	DefaultElevenLabsSimilarity = 0.75
)

var _ llm.SpeechSynthesizer = (*ElevenLabsService)(nil)

// ElevenLabsService implements llm.SpeechSynthesizer for ElevenLabs. Catalog
// voice ids are ElevenLabs voice ids, so no mapping is needed.
type ElevenLabsService struct {
	apiKey     string
	modelName  string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// ElevenLabsSpeechRequest is the text-to-speech request body
type ElevenLabsSpeechRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings ElevenLabsVoiceSettings `json:"voice_settings"`
}

// ElevenLabsErrorResponse is the error body ElevenLabs returns
type ElevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// NewElevenLabsService creates an ElevenLabs client. An empty model uses the
// default.
func NewElevenLabsService(apiKey, modelName string, logger *slog.Logger) *ElevenLabsService {
	return &ElevenLabsService{
		apiKey:    apiKey,
		modelName: orDefault(modelName, DefaultElevenLabsModel),
		baseURL:   elevenLabsBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the client at another endpoint, mainly for tests.
func (e *ElevenLabsService) WithBaseURL(baseURL string) *ElevenLabsService {
	e.baseURL = strings.TrimSuffix(baseURL, "/")
	return e
}

// Synthesize converts text to MP3 speech in the given voice.
func (e *ElevenLabsService) Synthesize(ctx context.Context, text, voiceID string) (*llm.Audio, error) {
	if voiceID == "" {
		return nil, errors.New("voice id is required")
	}
	reqBody, err := json.Marshal(ElevenLabsSpeechRequest{
		Text:    text,
		ModelID: e.modelName,
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       DefaultElevenLabsStability,
			SimilarityBoost: DefaultElevenLabsSimilarity,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, voiceID, elevenLabsOutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, e.statusError(resp.StatusCode, body)
	}
	if len(body) == 0 {
		return nil, errors.New("elevenlabs returned no audio")
	}

	e.logger.Debug("ElevenLabs synthesis complete", "voice_id", voiceID, "bytes", len(body))
	return &llm.Audio{Data: body, MIMEType: "audio/mpeg"}, nil
}

func (e *ElevenLabsService) statusError(status int, body []byte) error {
	var errResp ElevenLabsErrorResponse
	_ = json.Unmarshal(body, &errResp)

	if status == http.StatusTooManyRequests || errResp.Detail.Status == "quota_exceeded" {
		return fmt.Errorf("elevenlabs request failed with status %d: %w", status, llm.ErrQuotaExhausted)
	}
	if errResp.Detail.Message != "" {
		return fmt.Errorf("elevenlabs request failed with status %d: %s", status, errResp.Detail.Message)
	}
	return fmt.Errorf("elevenlabs request failed with status %d: %s", status, string(body))
}
