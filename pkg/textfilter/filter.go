package textfilter

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// softenings maps words a family-friendly narrator should not say to the
// words it says instead.
var softenings = map[string]string{
	"fuck":         "fudge",
	"fucking":      "flipping",
	"shit":         "shoot",
	"damn":         "dang",
	"damned":       "darned",
	"hell":         "heck",
	"ass":          "butt",
	"bitch":        "jerk",
	"bastard":      "scoundrel",
	"crap":         "crud",
	"piss":         "tick",
	"pissed":       "ticked",
	"dick":         "jerk",
	"prick":        "jerk",
	"motherfucker": "mother-trucker",
	"goddamn":      "gosh-dang",
	"asshole":      "jerk",
	"dumbass":      "dummy",
	"jackass":      "jerk",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"shithead":     "knucklehead",
	"douchebag":    "jerk",
}

// Filter softens profanity in generated narration.
type Filter struct {
	pattern *regexp.Regexp
}

// New creates a profanity filter.
func New() *Filter {
	words := make([]string, 0, len(softenings))
	for w := range softenings {
		words = append(words, regexp.QuoteMeta(w))
	}
	// Longest first so compound words win over their stems.
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	return &Filter{
		pattern: regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`),
	}
}

// Soften replaces profanity in text, keeping the case pattern of each match.
func (f *Filter) Soften(text string) string {
	return f.pattern.ReplaceAllStringFunc(text, func(match string) string {
		replacement, ok := softenings[strings.ToLower(match)]
		if !ok {
			return match
		}
		return matchCase(match, replacement)
	})
}

// Contains reports whether text has anything Soften would replace.
func (f *Filter) Contains(text string) bool {
	return f.pattern.MatchString(text)
}

func matchCase(original, replacement string) string {
	// Casers are stateful; one per call keeps Filter safe for concurrent use.
	title := cases.Title(language.English)
	switch {
	case strings.ToUpper(original) == original:
		return strings.ToUpper(replacement)
	case strings.ToLower(original) == original:
		return replacement
	case title.String(strings.ToLower(original)) == original:
		return title.String(replacement)
	}

	orig := []rune(original)
	out := []rune(replacement)
	for i := range out {
		if i < len(orig) && unicode.IsUpper(orig[i]) {
			out[i] = unicode.ToUpper(out[i])
		} else {
			out[i] = unicode.ToLower(out[i])
		}
	}
	return string(out)
}
