package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/jwebster45206/story-weaver/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTextGenerator(t *testing.T) {
	m := NewMockTextGenerator()

	reply, err := m.Generate(context.Background(), "system", "user", llm.GenerateOptions{Creative: true})
	require.NoError(t, err)
	assert.Equal(t, "Mock response", reply)

	calls := m.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "system", calls[0].SystemPrompt)
	assert.Equal(t, "user", calls[0].UserPrompt)
	assert.True(t, calls[0].Options.Creative)

	m.Reset()
	assert.Empty(t, m.GetCalls())
}

func TestMockTextGenerator_ErrorHandling(t *testing.T) {
	m := NewMockTextGenerator()
	expectedErr := fmt.Errorf("generation failed")
	m.SetGenerateError(expectedErr)

	_, err := m.Generate(context.Background(), "s", "u", llm.GenerateOptions{})
	assert.ErrorIs(t, err, expectedErr)

	m.SetGenerateResponse(`{"ok":true}`)
	reply, err := m.Generate(context.Background(), "s", "u", llm.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, reply)
	assert.Len(t, m.GetCalls(), 2)
}

func TestMockSpeechSynthesizer(t *testing.T) {
	m := NewMockSpeechSynthesizer()
	audio, err := m.Synthesize(context.Background(), "Hello there.", "george")
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", audio.MIMEType)

	calls := m.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "george", calls[0].VoiceID)
}

func TestMockImageGenerator(t *testing.T) {
	m := NewMockImageGenerator()
	img, err := m.GenerateImage(context.Background(), "a castle", llm.ImageOptions{Count: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, img.Data)
	assert.Equal(t, []string{"a castle"}, m.GetPrompts())
}
