package client

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/framebeat/api/internal/config"
)

// OpenAIClient implements VisionClient for any OpenAI-compatible chat API
// that accepts image_url parts.
type OpenAIClient struct {
	cli   *openai.Client
	model string
}

func NewOpenAIClient(cfg *config.RecognitionConfig) *OpenAIClient {
	c := &OpenAIClient{model: cfg.Model}
	if c.model == "" {
		c.model = openai.GPT4o
	}
	if cfg.APIKey == "" {
		return c
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	c.cli = openai.NewClientWithConfig(clientConfig)
	return c
}

// DescribeImage sends the image as a data URL alongside the prompt
func (c *OpenAIClient) DescribeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("openai client not configured")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailAuto}},
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
				},
			},
		},
		Temperature: 0.2,
	}

	resp, err := c.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *OpenAIClient) IsConfigured() bool {
	return c.cli != nil
}

func (c *OpenAIClient) Close() error { return nil }
