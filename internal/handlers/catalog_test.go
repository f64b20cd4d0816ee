package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogHandler(t *testing.T) {
	catalog, err := voice.Default()
	require.NoError(t, err)
	handler := NewCatalogHandler(catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("genres", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/genres", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp GenresResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Genres, len(genre.All))
		assert.Equal(t, genre.Fantasy, resp.Genres[0].Name)
		assert.NotEmpty(t, resp.Genres[0].Tone)
	})

	t.Run("voices", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/voices", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp VoicesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Voices, len(catalog.IDs()))
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/voices", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}
