package genre

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Genre
		wantErr bool
	}{
		{name: "exact", input: "Fantasy", want: Fantasy},
		{name: "lowercase", input: "horror", want: Horror},
		{name: "without hyphen", input: "scifi", want: SciFi},
		{name: "spaced", input: " post apocalyptic ", want: PostApocalyptic},
		{name: "empty", input: "  ", wantErr: true},
		{name: "unknown", input: "romance", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPresetsCoverEveryGenre(t *testing.T) {
	for _, g := range All {
		assert.True(t, g.IsValid(), "genre %s should have a preset", g)
		p := g.Preset()
		assert.NotEmpty(t, p.Tone, g)
		assert.NotEmpty(t, p.ArtStyle, g)
		assert.NotEmpty(t, p.CompanionHint, g)
	}
}

func TestPreset_UnknownGenre(t *testing.T) {
	g := Genre("Opera")
	assert.False(t, g.IsValid())
	assert.Equal(t, g, g.Preset().Name)
	assert.NotEmpty(t, g.Preset().ArtStyle)
}
