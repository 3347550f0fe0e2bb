package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FallbackGuess is the completion service's advisory answer. Intent must
// be one of the closed intent labels; anything else is discarded.
type FallbackGuess struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// FallbackClassifier is the narrow seam to the external completion
// service, so the deterministic rules stay testable without the network.
type FallbackClassifier interface {
	ClassifyFallback(ctx context.Context, message string, state ConvState) (FallbackGuess, error)
}

// NoopFallback never guesses; used when AI assist is disabled and in tests.
type NoopFallback struct{}

func (NoopFallback) ClassifyFallback(ctx context.Context, message string, state ConvState) (FallbackGuess, error) {
	return FallbackGuess{}, nil
}

// CompletionClient talks to an OpenAI-compatible chat-completions
// endpoint (a local llama.cpp server works). One attempt per message, no
// inline retries; the caller's context bounds the call.
type CompletionClient struct {
	BaseURL    string // e.g. http://127.0.0.1:8080/v1
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const fallbackSystemPrompt = "Sos el clasificador de intenciones de un bot de pedidos de comida. " +
	"Respondé SOLO un JSON {\"intent\":\"...\",\"confidence\":0..1}. " +
	"Intenciones válidas: greet, add_item, remove_item, confirm, cancel, modify, " +
	"choose_delivery, choose_payment, provide_address, unknown."

func (c *CompletionClient) ClassifyFallback(ctx context.Context, message string, state ConvState) (FallbackGuess, error) {
	reqBody := chatCompletionRequest{
		Model: c.Model,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: fallbackSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Estado de la conversación: %s\nMensaje: %s", state, message)},
		},
		Temperature: 0,
		MaxTokens:   60,
	}
	j, err := json.Marshal(reqBody)
	if err != nil {
		return FallbackGuess{}, fmt.Errorf("completion marshal error: %w", err)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(j))
	if err != nil {
		return FallbackGuess{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return FallbackGuess{}, err
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return FallbackGuess{}, fmt.Errorf("completion api error (%d): %s", resp.StatusCode, string(out))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(out, &parsed); err != nil {
		return FallbackGuess{}, fmt.Errorf("completion parse error: %w", err)
	}
	if parsed.Error != nil {
		return FallbackGuess{}, fmt.Errorf("completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return FallbackGuess{}, fmt.Errorf("completion: empty choices")
	}

	return parseGuess(parsed.Choices[0].Message.Content)
}

// parseGuess tolerates prose around the JSON blob small models tend to emit.
func parseGuess(content string) (FallbackGuess, error) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return FallbackGuess{}, fmt.Errorf("completion: no JSON in reply: %q", content)
	}
	var g FallbackGuess
	if err := json.Unmarshal([]byte(content[start:end+1]), &g); err != nil {
		return FallbackGuess{}, fmt.Errorf("completion guess parse error: %w", err)
	}
	g.Intent = strings.TrimSpace(strings.ToLower(g.Intent))
	return g, nil
}
