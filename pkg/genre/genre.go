// Package genre defines the fixed set of narrative genres an adventure can be
// played in, along with the tone and art-direction presets used in prompts.
package genre

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Genre is one of the fixed narrative genres. It is immutable once an
// adventure has started.
type Genre string

const (
	Fantasy         Genre = "Fantasy"
	SciFi           Genre = "Sci-Fi"
	Horror          Genre = "Horror"
	Mystery         Genre = "Mystery"
	PostApocalyptic Genre = "Post-Apocalyptic"
	Cyberpunk       Genre = "Cyberpunk"
	Western         Genre = "Western"
	Steampunk       Genre = "Steampunk"
)

// All lists every genre in display order.
var All = []Genre{Fantasy, SciFi, Horror, Mystery, PostApocalyptic, Cyberpunk, Western, Steampunk}

//go:embed presets.yaml
var presetsYAML []byte

// Preset carries the prompt flavouring for a genre.
type Preset struct {
	Name          Genre  `yaml:"name" json:"name"`
	Tone          string `yaml:"tone" json:"tone"`
	ArtStyle      string `yaml:"art_style" json:"art_style"`
	CompanionHint string `yaml:"companion_hint" json:"companion_hint"`
}

type presetFile struct {
	Genres []Preset `yaml:"genres"`
}

var presets map[Genre]Preset

func init() {
	var pf presetFile
	if err := yaml.Unmarshal(presetsYAML, &pf); err != nil {
		panic(fmt.Errorf("genre: failed to unmarshal embedded presets: %w", err))
	}
	presets = make(map[Genre]Preset, len(pf.Genres))
	for _, p := range pf.Genres {
		presets[p.Name] = p
	}
}

// Parse matches s against the known genres, ignoring case, spaces and hyphens.
func Parse(s string) (Genre, error) {
	want := normalize(s)
	if want == "" {
		return "", fmt.Errorf("genre cannot be empty")
	}
	for _, g := range All {
		if normalize(string(g)) == want {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown genre: %q", s)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// IsValid reports whether g is one of the fixed genres.
func (g Genre) IsValid() bool {
	_, ok := presets[g]
	return ok
}

// Preset returns the prompt preset for g. Unknown genres get a neutral preset.
func (g Genre) Preset() Preset {
	if p, ok := presets[g]; ok {
		return p
	}
	return Preset{
		Name:          g,
		Tone:          "evocative and immersive",
		ArtStyle:      "detailed digital illustration",
		CompanionHint: "a capable traveling companion",
	}
}

func (g Genre) String() string {
	return string(g)
}
