package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/framebeat/api/internal/config"
)

// VisionClient sends one image plus an instruction to a multimodal model and
// returns the model's raw text answer.
type VisionClient interface {
	DescribeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
	IsConfigured() bool
	Close() error
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// NewVisionClient picks the provider named in the recognition config. An
// empty API key yields an unconfigured client rather than an error so the
// pipeline can still run with the unknown identity.
func NewVisionClient(ctx context.Context, cfg *config.RecognitionConfig) (VisionClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderGemini, "":
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown recognition provider %q", cfg.Provider)
	}
}
