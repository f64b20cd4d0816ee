package textfilter

import (
	"regexp"
	"strings"
)

var (
	stageDirections = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	markdownLinks   = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	emphasis        = regexp.MustCompile(`[*_~` + "`" + `]+`)
	headings        = regexp.MustCompile(`(?m)^\s*#+\s*`)
	bullets         = regexp.MustCompile(`(?m)^\s*(?:[-•]|\d+\.)\s+`)
	speakerLabel    = regexp.MustCompile(`(?m)^\s*[A-Z][\w']*(?: [A-Z][\w']*){0,2}:\s+`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// ForSpeech prepares generated text for a speech synthesizer: markdown,
// bracketed or parenthesised stage directions and leading speaker labels are
// removed and whitespace is collapsed.
func ForSpeech(text string) string {
	text = markdownLinks.ReplaceAllString(text, "$1")
	text = stageDirections.ReplaceAllString(text, "")
	text = headings.ReplaceAllString(text, "")
	text = bullets.ReplaceAllString(text, "")
	text = speakerLabel.ReplaceAllString(text, "")
	text = emphasis.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, `"`, "")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Dequote strips a single pair of surrounding quotes and a leading speaker
// label from a line of dialogue.
func Dequote(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimSpace(speakerLabel.ReplaceAllString(line, ""))
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(line) >= 2 && strings.HasPrefix(line, q[0]) && strings.HasSuffix(line, q[1]) {
			return strings.TrimSpace(line[len(q[0]) : len(line)-len(q[1])])
		}
	}
	return line
}
