// Package generator produces and refines the narrative portfolio report.
//
// Client talks to an OpenAI-compatible chat-completions endpoint. Template
// writes a deterministic report offline and is used when no endpoint is
// configured.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/crmkeeper/internal/models"
)

const maxResponseBytes = 1 << 20

// ErrEmptyResponse is returned when the endpoint answers without content.
var ErrEmptyResponse = errors.New("generator returned no content")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client sends report prompts to an OpenAI-compatible endpoint. Requests are
// not retried.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

// NewClient constructs a Client for baseURL, e.g. "https://api.openai.com/v1".
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Generate asks for a strategic analysis of customers.
func (c *Client) Generate(ctx context.Context, customers []models.CustomerSummary) (string, error) {
	data, err := json.Marshal(customers)
	if err != nil {
		return "", fmt.Errorf("failed to encode customers: %w", err)
	}
	return c.complete(ctx, analysisPrompt, string(data))
}

// Refine asks for text to be rewritten following instruction.
func (c *Client) Refine(ctx context.Context, text, instruction string) (string, error) {
	return c.complete(ctx, refinePrompt, fmt.Sprintf("Instruction: %s\n\nReport:\n%s", instruction, text))
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call generation endpoint: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(body, 512))
		return "", fmt.Errorf("generation endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

const analysisPrompt = `You are a senior account strategist. You receive the customer portfolio of a small business as JSON.
Write a concise strategic report in markdown with the sections: Overview, Strategic Insights, Churn Risks, Recommendations.
Quote totals and counts from the data. Do not invent customers.`

const refinePrompt = `You edit business reports. Rewrite the report following the instruction.
Keep the markdown structure and every figure unless the instruction says otherwise. Answer with the full rewritten report only.`
