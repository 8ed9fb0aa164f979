package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framebeat/api/internal/config"
)

func shellSelector(script string) *SelectorClient {
	return NewSelectorClient(&config.SelectorConfig{
		Command: "sh",
		Args:    []string{"-c", script, "selector"},
		WorkDir: ".",
	})
}

func TestSelectorClient_ReturnsTrimmedStdout(t *testing.T) {
	c := shellSelector(`test "$1" = "Golden - Huntrix" && printf '  golden.mp3 \n'`)

	name, err := c.Select(context.Background(), "Golden - Huntrix")
	require.NoError(t, err)
	assert.Equal(t, "golden.mp3", name)
}

func TestSelectorClient_NonZeroExitCarriesStderr(t *testing.T) {
	c := shellSelector(`echo "no library" >&2; exit 2`)

	_, err := c.Select(context.Background(), "Unknown - Unknown")
	var exitErr *SelectorExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.ExitCode)
	assert.Equal(t, "no library", exitErr.Stderr)
	assert.Contains(t, err.Error(), "no library")
}

func TestSelectorClient_EmptyOutput(t *testing.T) {
	c := shellSelector(`printf '   \n'`)

	_, err := c.Select(context.Background(), "X - Y")
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestSelectorClient_MissingBinary(t *testing.T) {
	c := NewSelectorClient(&config.SelectorConfig{Command: "/nonexistent/selector-bin"})

	_, err := c.Select(context.Background(), "X - Y")
	var exitErr *SelectorExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, -1, exitErr.ExitCode)
}

func TestValidateTrackName(t *testing.T) {
	assert.NoError(t, ValidateTrackName("golden.mp3"))
	assert.NoError(t, ValidateTrackName("Song Name (Live).m4a"))

	assert.ErrorIs(t, ValidateTrackName(""), ErrEmptySelection)
	for _, bad := range []string{"../etc/passwd", "sub/track.mp3", `..\x.mp3`, "..", "."} {
		assert.ErrorIs(t, ValidateTrackName(bad), ErrInvalidSelection, bad)
	}
}

func TestNewVisionClient_Providers(t *testing.T) {
	ctx := context.Background()

	vc, err := NewVisionClient(ctx, &config.RecognitionConfig{Provider: "gemini"})
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, vc)
	assert.False(t, vc.IsConfigured())

	vc, err = NewVisionClient(ctx, &config.RecognitionConfig{Provider: "openai", APIKey: "sk-test", BaseURL: "http://localhost:1"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, vc)
	assert.True(t, vc.IsConfigured())

	_, err = NewVisionClient(ctx, &config.RecognitionConfig{Provider: "clippy"})
	assert.Error(t, err)
}

func TestUnconfiguredVisionClientsRefuse(t *testing.T) {
	_, err := (&GeminiClient{}).DescribeImage(context.Background(), "p", []byte{1}, "image/png")
	assert.Error(t, err)
	_, err = NewOpenAIClient(&config.RecognitionConfig{}).DescribeImage(context.Background(), "p", []byte{1}, "image/png")
	assert.Error(t, err)
}

func TestImageFormat(t *testing.T) {
	assert.Equal(t, "png", imageFormat("image/png"))
	assert.Equal(t, "jpeg", imageFormat("jpeg"))
}
