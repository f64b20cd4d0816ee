package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/voice"
)

// GenresResponse lists the selectable genres.
type GenresResponse struct {
	Genres []genre.Preset `json:"genres"`
}

// VoicesResponse lists the voice catalog.
type VoicesResponse struct {
	Voices []voice.Voice `json:"voices"`
}

// CatalogHandler serves the read-only genre and voice listings
// GET /v1/genres
// GET /v1/voices
type CatalogHandler struct {
	catalog *voice.Catalog
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog *voice.Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

func (h *CatalogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	switch r.URL.Path {
	case "/v1/genres":
		presets := make([]genre.Preset, 0, len(genre.All))
		for _, g := range genre.All {
			presets = append(presets, g.Preset())
		}
		writeJSON(w, h.logger, http.StatusOK, GenresResponse{Genres: presets})
	case "/v1/voices":
		writeJSON(w, h.logger, http.StatusOK, VoicesResponse{Voices: h.catalog.Voices()})
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}
