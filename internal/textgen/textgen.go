// Package textgen wraps the Gemini API for structured JSON generation.
package textgen

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

// Generator produces a JSON object for a prompt. Implementations must return
// a decodable JSON document or an error.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, temperature float32) (map[string]interface{}, error)
}

// Client generates text using Google's Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed generator.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

// GenerateJSON prompts the model in JSON mode and decodes the response.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, temperature float32) (map[string]interface{}, error) {
	result, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr(temperature),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("empty model response")
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("model response is not valid JSON: %w", err)
	}
	return out, nil
}
