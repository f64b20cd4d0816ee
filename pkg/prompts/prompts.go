package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

// ClassifierSystemPrompt instructs the model to pick how a turn is resolved.
const ClassifierSystemPrompt = `You are the Story Weaver, the director of a voice-driven interactive fiction game. You do not narrate. You decide how the game should respond to the player's latest utterance and return ONLY a JSON object matching the provided schema.

### Response types
- "exploration": the player moves, acts or pushes the story forward. The game narrates a new scene.
- "dialogue_attempt": the player tries to talk to someone, but nobody (or nothing) is there to answer. Supply responseText describing the silence or a brief non-verbal reaction.
- "companion_dialogue": the companion is present and the player addresses or converses with them.
- "companion_introduction": the companion is not yet present and the moment is right for them to appear. Supply companionFirstWords.
- "examination": the player looks at, inspects or studies something in the current scene. Supply responseText with what they notice.

### Rules
- If the companion is present, prefer "companion_dialogue" for anything addressed to them.
- Never choose "companion_introduction" when the companion is already present.
- responseText must be 1 to 3 sentences, second person, present tense, with no markdown.
- narratorVoice must be one of the listed voice ids. Pick one whose character fits the genre and mood.
- shouldGenerateImage should be true for examinations that reveal something visually striking.
- imagePrompt, when supplied, describes a single illustration in one or two sentences with no text or lettering in the image.`

// CompanionIntroSystemPrompt drives the narrated arrival of the companion.
const CompanionIntroSystemPrompt = `You are the narrator of a voice-driven interactive fiction game. The player's companion is about to enter the story for the first time. Write their arrival as it happens in response to what the player just did, then give the companion's first spoken line.

### Writing rules
- narration: 2 to 4 sentences, second person, present tense, no markdown, no dialogue lines.
- firstWords: one or two sentences the companion says aloud, in their own voice, without quotation marks or a speaker label.
- imagePrompt: a single illustration of the companion in the current scene, one or two sentences, no text or lettering.
- Stay consistent with the current scene and world.`

// ProgressionSystemPrompt drives exploration turns.
const ProgressionSystemPrompt = `You are the narrator of a voice-driven interactive fiction game. The player has acted and the story must move forward.

### Writing rules
- narration: 2 to 4 sentences, second person, present tense, no markdown.
- Advance the story. Do not re-describe the current scene; show what changes or what the player reaches next.
- Do not reuse any of the recently visited locations listed below. Move somewhere new or reveal something new.
- Never speak or act for the player beyond what they said they did.
- imagePrompt: a single illustration of the new moment, one or two sentences, no text or lettering.`

// CompanionChatSystemPrompt is the persona frame for companion dialogue.
const CompanionChatSystemPrompt = `You are %s, the player's companion in a %s interactive fiction game. Stay in character at all times and never mention being an AI.

### Who you are
%s

### How you speak
%s

### Rules
- Reply with what you say aloud only: 1 to 3 sentences, no quotation marks, no speaker label, no stage directions, no markdown.
- React to the player's words and the current situation. You may suggest what to do next but never decide for the player.`

// CharacterSystemPrompt asks for a companion persona.
const CharacterSystemPrompt = `You create companion characters for a voice-driven interactive fiction game. Return ONLY a JSON object matching the provided schema.

- name: a memorable given name that fits the genre.
- shortDescription: under 15 words, starting with a lowercase article, e.g. "a wry smuggler with a mechanical arm".
- personality and speakingStyle: one sentence each.
- gender: "male", "female" or "neutral". age: "young", "middle_aged" or "old".
- accent: a single word such as "american", "british" or "irish".
- traits: 2 to 4 single-word voice qualities such as "warm", "gravelly", "calm", "energetic".`

// OpeningSceneSystemPrompt asks for the first narrated scene of an adventure.
const OpeningSceneSystemPrompt = `You open new adventures for a voice-driven interactive fiction game. Return ONLY a JSON object matching the provided schema.

- title: 2 to 5 words.
- narration: 3 to 5 sentences, second person, present tense, no markdown. Establish the world, where the player stands and a hook that invites action. The player is alone.
- imagePrompt: a single establishing illustration, one or two sentences, no text or lettering.`

// DescribeState renders the classifier's view of the session as plain text.
func DescribeState(v state.View) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Genre: %s\n", v.Genre))
	if v.WorldSetting != "" {
		sb.WriteString(fmt.Sprintf("World: %s\n", v.WorldSetting))
	}
	if v.CurrentSceneDescription != "" {
		sb.WriteString(fmt.Sprintf("Current scene: %s\n", v.CurrentSceneDescription))
	} else {
		sb.WriteString("Current scene: (the adventure is just beginning)\n")
	}
	if v.CompanionPresent {
		sb.WriteString(fmt.Sprintf("Companion: %s, %s, is present.\n", v.CompanionName, v.CompanionDescription))
	} else {
		sb.WriteString("Companion: not yet present.\n")
	}
	sb.WriteString(fmt.Sprintf("Turn: %d\n", v.UserTurnCount))
	if len(v.RecentLocationKeywords) > 0 {
		sb.WriteString(fmt.Sprintf("Recently visited: %s\n", strings.Join(v.RecentLocationKeywords, ", ")))
	}
	if len(v.RecentMessages) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		sb.WriteString(chat.Transcript(v.RecentMessages, v.CompanionName))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ClassifierUserPrompt combines the state, the voice ids and the utterance.
func ClassifierUserPrompt(input string, v state.View, voiceIDs []string) string {
	var sb strings.Builder
	sb.WriteString(DescribeState(v))
	sb.WriteString("\nAvailable narrator voices: ")
	sb.WriteString(strings.Join(voiceIDs, ", "))
	sb.WriteString("\n\nPlayer says: ")
	sb.WriteString(input)
	return sb.String()
}

// CompanionIntroUserPrompt scopes the introduction to the scene and companion.
func CompanionIntroUserPrompt(v state.View, c state.Companion, input string) string {
	p := v.Genre.Preset()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Genre: %s (%s)\n", v.Genre, p.Tone))
	if v.CurrentSceneDescription != "" {
		sb.WriteString(fmt.Sprintf("Current scene: %s\n", v.CurrentSceneDescription))
	}
	sb.WriteString(fmt.Sprintf("Companion: %s, %s.\n", c.Name, c.ShortDescription))
	if c.Personality != "" {
		sb.WriteString(fmt.Sprintf("Personality: %s\n", c.Personality))
	}
	if c.SpeakingStyle != "" {
		sb.WriteString(fmt.Sprintf("Speaking style: %s\n", c.SpeakingStyle))
	}
	sb.WriteString(fmt.Sprintf("Art style: %s\n", p.ArtStyle))
	sb.WriteString("\nPlayer says: ")
	sb.WriteString(input)
	return sb.String()
}

// ProgressionUserPrompt asks for the next scene, steering away from recent places.
func ProgressionUserPrompt(v state.View, input string) string {
	p := v.Genre.Preset()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Genre: %s (%s)\n", v.Genre, p.Tone))
	if v.WorldSetting != "" {
		sb.WriteString(fmt.Sprintf("World: %s\n", v.WorldSetting))
	}
	if v.CurrentSceneDescription != "" {
		sb.WriteString(fmt.Sprintf("Current scene (do not repeat): %s\n", v.CurrentSceneDescription))
	}
	if v.CompanionPresent {
		sb.WriteString(fmt.Sprintf("The companion %s, %s, travels with the player.\n", v.CompanionName, v.CompanionDescription))
	}
	if len(v.RecentLocationKeywords) > 0 {
		sb.WriteString(fmt.Sprintf("Recently visited locations (avoid): %s\n", strings.Join(v.RecentLocationKeywords, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Art style: %s\n", p.ArtStyle))
	sb.WriteString("\nPlayer says: ")
	sb.WriteString(input)
	return sb.String()
}

// CharacterUserPrompt asks for a companion fitting the genre and premise.
func CharacterUserPrompt(g genre.Genre, premise string) string {
	p := g.Preset()
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Genre: %s (%s)\n", g, p.Tone))
	sb.WriteString(fmt.Sprintf("Archetype hint: %s\n", p.CompanionHint))
	if premise != "" {
		sb.WriteString(fmt.Sprintf("Premise: %s\n", premise))
	}
	sb.WriteString("\nCreate the companion.")
	return sb.String()
}

// OpeningSceneUserPrompt asks for the first scene of a genre.
func OpeningSceneUserPrompt(g genre.Genre) string {
	p := g.Preset()
	return fmt.Sprintf("Genre: %s\nTone: %s\nArt style: %s\n\nOpen the adventure.", g, p.Tone, p.ArtStyle)
}
