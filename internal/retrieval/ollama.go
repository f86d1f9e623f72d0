package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OllamaEmbedder calls the local Ollama embeddings API.
type OllamaEmbedder struct {
	client *resty.Client
	model  string
}

// NewOllamaEmbedder creates an embedder against the Ollama server at baseURL,
// e.g. "http://localhost:11434".
func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)
	return &OllamaEmbedder{client: c, model: model}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

// Embed generates a dense vector for the given text.
func (p *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return []float32{0}, nil
	}

	reqBody := embedRequest{Model: p.model, Prompt: text}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode(), resp.String())
	}

	var er embedResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if er.Error != "" {
		return nil, fmt.Errorf("ollama embeddings error: %s", er.Error)
	}

	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// HealthPing checks /api/tags for the configured model's presence.
func (p *OllamaEmbedder) HealthPing(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("ollama status %d", resp.StatusCode())
	}
	var data struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return err
	}
	want := baseModelName(p.model)
	for _, m := range data.Models {
		if baseModelName(m.Name) == want {
			return nil
		}
	}
	return fmt.Errorf("model %s not found", want)
}

func baseModelName(name string) string {
	return strings.Split(name, ":")[0]
}
