// Command validate checks a voice catalog file before it is shipped.
// Without an argument it validates the embedded catalog.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/story-weaver/pkg/voice"
)

func main() {
	validator := &CatalogValidator{}

	var err error
	if len(os.Args) < 2 {
		fmt.Println("Validating embedded voice catalog...")
		err = validator.validateDefault()
	} else {
		err = validator.validateFile(os.Args[1])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Voice catalog is valid!")
}

type CatalogValidator struct {
	errors []string
}

var (
	knownGenders   = []string{"male", "female", "neutral"}
	knownAges      = []string{"young", "middle_aged", "old"}
	knownUseCases  = []string{voice.UseCaseNarration, voice.UseCaseCharacters}
	knownProviders = []string{"gemini", "openai"}

	validTagRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*[a-z0-9]$|^[a-z]$`)
)

func (v *CatalogValidator) validateDefault() error {
	c, err := voice.Default()
	if err != nil {
		return err
	}
	return v.validateVoices(c.Voices(), "embedded catalog")
}

func (v *CatalogValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	if filepath.Ext(filename) != ".json" {
		return fmt.Errorf("voice catalog must have .json extension: %s", filepath.Base(filename))
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return v.validateData(data, filename)
}

func (v *CatalogValidator) validateData(data []byte, source string) error {
	if !json.Valid(data) {
		return fmt.Errorf("file %s contains invalid JSON", source)
	}

	var doc struct {
		Voices []voice.Voice `json:"voices"`
	}
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("file %s failed strict JSON unmarshaling: %w", source, err)
	}

	// Parse applies the same id rules the server does at startup.
	if _, err := voice.Parse(data); err != nil {
		return fmt.Errorf("file %s: %w", source, err)
	}

	return v.validateVoices(doc.Voices, source)
}

func (v *CatalogValidator) validateVoices(voices []voice.Voice, source string) error {
	v.errors = nil

	narrators := 0
	for i, vc := range voices {
		label := fmt.Sprintf("voice %d (%s)", i, vc.ID)
		if strings.TrimSpace(vc.Name) == "" {
			v.addError(fmt.Sprintf("%s has no name", label))
		}
		v.validateOneOf(label, "gender", vc.Gender, knownGenders)
		v.validateOneOf(label, "age", vc.Age, knownAges)
		v.validateOneOf(label, "use_case", vc.UseCase, knownUseCases)
		if vc.UseCase == voice.UseCaseNarration {
			narrators++
		}
		for _, tag := range vc.Tags {
			if !validTagRegex.MatchString(tag) {
				v.addError(fmt.Sprintf("%s tag '%s' should be lowercase with no spaces", label, tag))
			}
		}
		for provider, name := range vc.Providers {
			v.validateOneOf(label, "provider", provider, knownProviders)
			if strings.TrimSpace(name) == "" {
				v.addError(fmt.Sprintf("%s has an empty %s voice name", label, provider))
			}
		}
	}

	if narrators == 0 {
		v.addError("catalog has no narration voices")
	}
	// The companion voice must differ from the narrator's.
	if len(voices) < 2 {
		v.addError("catalog needs at least two voices")
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", source, strings.Join(v.errors, "\n"))
	}
	return nil
}

func (v *CatalogValidator) validateOneOf(label, field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.addError(fmt.Sprintf("%s has unknown %s '%s' (expected one of: %s)", label, field, value, strings.Join(allowed, ", ")))
}

func (v *CatalogValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}
