package prompts

import "github.com/jwebster45206/story-weaver/pkg/llm"

// Response type values accepted by ClassifierSchema.
var ResponseTypes = []string{
	"exploration",
	"dialogue_attempt",
	"companion_dialogue",
	"companion_introduction",
	"examination",
}

// ClassifierSchema is the strict JSON contract for a turn decision.
var ClassifierSchema = llm.Object(
	[]string{"responseType", "reasoning", "shouldGenerateImage", "narratorVoice"},
	map[string]*llm.Schema{
		"responseType":        llm.Enum("How the game should respond", ResponseTypes...),
		"reasoning":           llm.String("One short sentence explaining the choice"),
		"shouldGenerateImage": llm.Boolean("Whether the response deserves an illustration"),
		"narratorVoice":       llm.String("A narrator voice id from the list"),
		"responseText":        llm.String("Narration for dialogue_attempt and examination"),
		"imagePrompt":         llm.String("Illustration prompt when an image is wanted"),
		"companionFirstWords": llm.String("The companion's first line for companion_introduction"),
	},
)

// CompanionIntroSchema is the contract for a companion's arrival.
var CompanionIntroSchema = llm.Object(
	[]string{"narration", "firstWords", "imagePrompt"},
	map[string]*llm.Schema{
		"narration":   llm.String("The narrated arrival"),
		"firstWords":  llm.String("The companion's first spoken line"),
		"imagePrompt": llm.String("Illustration of the companion arriving"),
	},
)

// ProgressionSchema is the contract for an exploration turn.
var ProgressionSchema = llm.Object(
	[]string{"narration", "imagePrompt"},
	map[string]*llm.Schema{
		"narration":   llm.String("What happens next"),
		"imagePrompt": llm.String("Illustration of the new moment"),
	},
)

// CharacterSchema is the contract for a generated companion persona.
var CharacterSchema = llm.Object(
	[]string{"name", "shortDescription", "personality", "speakingStyle", "gender", "age", "accent", "traits"},
	map[string]*llm.Schema{
		"name":             llm.String("Given name"),
		"shortDescription": llm.String("Short description starting with an article"),
		"personality":      llm.String("One sentence"),
		"speakingStyle":    llm.String("One sentence"),
		"gender":           llm.Enum("Voice gender", "male", "female", "neutral"),
		"age":              llm.Enum("Voice age", "young", "middle_aged", "old"),
		"accent":           llm.String("Single word accent"),
		"traits":           llm.Array("Single-word voice qualities", llm.String("")),
	},
)

// OpeningSceneSchema is the contract for a new adventure's first scene.
var OpeningSceneSchema = llm.Object(
	[]string{"title", "narration", "imagePrompt"},
	map[string]*llm.Schema{
		"title":       llm.String("Adventure title"),
		"narration":   llm.String("Opening narration"),
		"imagePrompt": llm.String("Establishing illustration"),
	},
)
