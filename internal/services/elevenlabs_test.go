package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabsService_Synthesize(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantQuota  bool
		wantErrMsg string
	}{
		{name: "success", status: http.StatusOK, body: "mp3-bytes"},
		{name: "quota exceeded", status: http.StatusUnauthorized, body: `{"detail":{"status":"quota_exceeded","message":"This request exceeds your quota."}}`, wantErr: true, wantQuota: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, wantErr: true, wantQuota: true},
		{name: "bad voice", status: http.StatusBadRequest, body: `{"detail":{"status":"voice_not_found","message":"A voice with that id does not exist."}}`, wantErr: true, wantErrMsg: "does not exist"},
		{name: "empty audio", status: http.StatusOK, body: "", wantErr: true, wantErrMsg: "no audio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ElevenLabsSpeechRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/text-to-speech/JBFqnCBsd6RMkjVDRZzb", r.URL.Path)
				assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
				assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			svc := NewElevenLabsService("test-key", "", slog.New(slog.NewTextHandler(io.Discard, nil))).WithBaseURL(srv.URL + "/")
			audio, err := svc.Synthesize(context.Background(), "The fog lifts.", "JBFqnCBsd6RMkjVDRZzb")

			assert.Equal(t, "The fog lifts.", req.Text)
			assert.Equal(t, DefaultElevenLabsModel, req.ModelID)

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantQuota, llm.IsQuotaError(err))
				if tt.wantErrMsg != "" {
					assert.Contains(t, err.Error(), tt.wantErrMsg)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []byte(tt.body), audio.Data)
			assert.Equal(t, "audio/mpeg", audio.MIMEType)
		})
	}
}

func TestElevenLabsService_RequiresVoice(t *testing.T) {
	svc := NewElevenLabsService("test-key", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := svc.Synthesize(context.Background(), "text", "")
	assert.Error(t, err)
}
