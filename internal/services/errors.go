package services

import (
	"fmt"

	"github.com/jwebster45206/story-weaver/pkg/llm"
)

// wrapProviderError annotates a provider failure. Quota exhaustion is wrapped
// with llm.ErrQuotaExhausted so callers can end the session.
func wrapProviderError(provider, op string, err error) error {
	if llm.IsQuotaError(err) {
		return fmt.Errorf("%s %s: %w: %v", provider, op, llm.ErrQuotaExhausted, err)
	}
	return fmt.Errorf("%s %s: %w", provider, op, err)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
