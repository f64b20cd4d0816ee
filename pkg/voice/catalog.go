package voice

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

//go:embed voices.json
var defaultCatalogJSON []byte

// Use cases recognized by the catalog.
const (
	UseCaseNarration  = "narration"
	UseCaseCharacters = "characters"
)

// Scoring weights for Score.
const (
	genderWeight  = 5
	ageWeight     = 3
	accentWeight  = 2
	tagWeight     = 1
	useCaseWeight = 2
)

// Voice describes one speech-synthesis voice.
type Voice struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Gender    string            `json:"gender"`
	Age       string            `json:"age"`
	Accent    string            `json:"accent"`
	Tags      []string          `json:"tags"`
	UseCase   string            `json:"use_case"`
	Providers map[string]string `json:"providers,omitempty"` // provider name -> provider voice name
}

// Traits is what a character or narrator asks of a voice.
type Traits struct {
	Gender  string   `json:"gender,omitempty"`
	Age     string   `json:"age,omitempty"`
	Accent  string   `json:"accent,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	UseCase string   `json:"use_case,omitempty"`
}

// Catalog is a read-only collection of voices. It is safe for concurrent use.
type Catalog struct {
	voices []Voice
	byID   map[string]int
}

type catalogFile struct {
	Voices []Voice `json:"voices"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogJSON)
}

// Load reads a catalog from a JSON file on disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voice catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var cf catalogFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal voice catalog: %w", err)
	}
	return New(cf.Voices)
}

// New builds a catalog from voices, rejecting empty or duplicate ids.
func New(voices []Voice) (*Catalog, error) {
	if len(voices) == 0 {
		return nil, fmt.Errorf("voice catalog is empty")
	}
	c := &Catalog{
		voices: make([]Voice, len(voices)),
		byID:   make(map[string]int, len(voices)),
	}
	for i, v := range voices {
		if v.ID == "" {
			return nil, fmt.Errorf("voice at index %d has no id", i)
		}
		if _, dup := c.byID[v.ID]; dup {
			return nil, fmt.Errorf("duplicate voice id: %s", v.ID)
		}
		c.voices[i] = v
		c.byID[v.ID] = i
	}
	return c, nil
}

// Voices returns a copy of all voices in catalog order.
func (c *Catalog) Voices() []Voice {
	out := make([]Voice, len(c.voices))
	copy(out, c.voices)
	return out
}

// IDs returns every voice id in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.voices))
	for i, v := range c.voices {
		ids[i] = v.ID
	}
	return ids
}

// IsValid reports whether id names a voice in the catalog.
func (c *Catalog) IsValid(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Get returns the voice with the given id.
func (c *Catalog) Get(id string) (Voice, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Voice{}, false
	}
	return c.voices[i], true
}

// ProviderVoice maps a catalog id to the voice name a given speech provider
// understands. Providers without a mapping receive the catalog id itself.
func (c *Catalog) ProviderVoice(id, provider string) string {
	v, ok := c.Get(id)
	if !ok {
		return id
	}
	if name, ok := v.Providers[provider]; ok && name != "" {
		return name
	}
	return id
}

// Random picks a voice id uniformly at random using rng.
func (c *Catalog) Random(rng *rand.Rand) string {
	return c.voices[rng.Intn(len(c.voices))].ID
}

// NarratorVoices returns the ids of voices meant for narration.
func (c *Catalog) NarratorVoices() []string {
	var ids []string
	for _, v := range c.voices {
		if v.UseCase == UseCaseNarration {
			ids = append(ids, v.ID)
		}
	}
	return ids
}

// Score rates how well v fits t. Higher is better.
func Score(v Voice, t Traits) int {
	score := 0
	if t.Gender != "" && strings.EqualFold(v.Gender, t.Gender) {
		score += genderWeight
	}
	if t.Age != "" && strings.EqualFold(v.Age, normalizeAge(t.Age)) {
		score += ageWeight
	}
	if t.Accent != "" && strings.EqualFold(v.Accent, t.Accent) {
		score += accentWeight
	}
	for _, want := range t.Tags {
		for _, have := range v.Tags {
			if strings.EqualFold(want, have) {
				score += tagWeight
				break
			}
		}
	}
	if t.UseCase != "" && strings.EqualFold(v.UseCase, t.UseCase) {
		score += useCaseWeight
	}
	return score
}

// BestFit returns the id of the highest scoring voice for t, skipping any ids
// in exclude. Ties go to the voice listed first. If every voice is excluded
// the first catalog voice is returned.
func (c *Catalog) BestFit(t Traits, exclude ...string) string {
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	best, bestScore := "", -1
	for _, v := range c.voices {
		if skip[v.ID] {
			continue
		}
		if s := Score(v, t); s > bestScore {
			best, bestScore = v.ID, s
		}
	}
	if best == "" {
		return c.voices[0].ID
	}
	return best
}

// normalizeAge folds the free-form ages a model produces onto catalog ages.
func normalizeAge(age string) string {
	a := strings.ToLower(strings.TrimSpace(age))
	switch {
	case strings.Contains(a, "young"), strings.Contains(a, "teen"), strings.Contains(a, "child"):
		return "young"
	case strings.Contains(a, "middle"), strings.Contains(a, "adult"):
		return "middle_aged"
	case strings.Contains(a, "old"), strings.Contains(a, "elder"), strings.Contains(a, "senior"):
		return "old"
	}
	return a
}
