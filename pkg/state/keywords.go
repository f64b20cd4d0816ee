package state

import (
	"regexp"
	"strings"
)

// locationNouns is the fixed vocabulary of place nouns tracked in the recent
// location window. It is English only; nouns outside it are not tracked.
var locationNouns = []string{
	"alley", "archway", "arena", "attic", "barn", "bazaar", "beach", "bog",
	"bridge", "canyon", "castle", "catacomb", "cathedral", "cave", "cavern",
	"cellar", "chamber", "chapel", "city", "cliff", "corridor", "courtyard",
	"crypt", "desert", "dock", "dungeon", "factory", "farm", "field", "forest",
	"fortress", "garden", "gate", "glade", "graveyard", "hall", "hallway",
	"harbor", "hill", "hut", "inn", "island", "jungle", "lab", "laboratory",
	"lake", "library", "lighthouse", "manor", "market", "marsh", "meadow",
	"monastery", "mountain", "oasis", "office", "outpost", "palace",
	"path", "plain", "plaza", "port", "river", "road", "ruin",
	"saloon", "sewer", "shore", "shrine", "square", "stairwell", "station",
	"street", "swamp", "tavern", "temple", "throne", "tower", "town", "tunnel",
	"valley", "village", "vault", "warehouse", "wasteland", "woods",
}

var locationPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(locationNouns, "|") + `)(s|es)?\b`)

// ExtractLocationKeywords returns the distinct place nouns found in text,
// lowercased and singular, in order of first appearance.
func ExtractLocationKeywords(text string) []string {
	matches := locationPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		kw := strings.ToLower(m[1])
		if seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
