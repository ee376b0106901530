// Package gemini adapts the Google GenAI SDK to the synthesizer's
// Generator interface.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/personalens/persona-mvp/engine/synth"
)

// Client calls Gemini generative models over the GenAI API.
type Client struct {
	client *genai.Client
}

// New creates a Gemini client from an API key.
func New(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: c}, nil
}

// Generate performs one model round trip and returns the raw response text.
// The response is requested as JSON so the model does not wrap the object
// in prose or fences.
func (c *Client) Generate(ctx context.Context, req synth.Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(req.Temperature),
		MaxOutputTokens:  req.MaxTokens,
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return "", mapError(err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response from %s", req.Model)
	}
	return text, nil
}

// Close releases the underlying transport. The genai SDK client holds no
// closable resources, so this is a no-op kept for the wrapper's API shape.
func (c *Client) Close() error {
	return nil
}

// mapError translates quota rejections (HTTP 429 / RESOURCE_EXHAUSTED) into
// synth.ErrQuotaExhausted so the retry loop fails fast.
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return fmt.Errorf("gemini: %s: %w", apiErr.Message, synth.ErrQuotaExhausted)
		}
	}
	return fmt.Errorf("gemini: %w", err)
}
