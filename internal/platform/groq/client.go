package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Client talks to the Groq OpenAI-compatible chat completions API. It is an
// alternative text-only provider for translation and ingredient matching.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	model      string
}

// NewClient creates a new Groq client.
func NewClient(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{},
		apiURL:     "https://api.groq.com/openai/v1/chat/completions",
		apiKey:     apiKey,
		model:      "llama-3.3-70b-versatile",
	}
}

// Request represents the chat completions request body.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Message represents a message in the request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response represents the chat completions response.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Choice represents a choice in the response.
type Choice struct {
	Message Message `json:"message"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := Request{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: 0,
		MaxTokens:   1024,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-OK status code: %d", resp.StatusCode)
	}

	var llmResp Response
	if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if len(llmResp.Choices) == 0 {
		return "", fmt.Errorf("no content found in response")
	}
	return llmResp.Choices[0].Message.Content, nil
}

// Translate translates cooking text between French and Japanese. targetLang
// is "fr" or "jp".
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	target := "French"
	if strings.EqualFold(targetLang, "jp") {
		target = "Japanese"
	}
	prompt := fmt.Sprintf("Translate the following cooking-related text to %s. Return only the translation, no explanation, no quotes: %s", target, text)
	out, err := c.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to translate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// MatchIngredient picks the candidate naming the same ingredient as name,
// or returns an empty string when none matches.
func (c *Client) MatchIngredient(ctx context.Context, name string, candidates []string) (string, error) {
	prompt := fmt.Sprintf(
		"Which of the following ingredient names refers to the same ingredient as %q? Candidates: %s. Respond with exactly one candidate verbatim, or 'NONE' if none matches.",
		name, strings.Join(candidates, ", "),
	)
	out, err := c.complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to match ingredient: %w", err)
	}
	answer := strings.TrimSpace(out)
	if strings.EqualFold(answer, "NONE") {
		return "", nil
	}
	for _, cand := range candidates {
		if strings.EqualFold(answer, cand) {
			return cand, nil
		}
	}
	return "", nil
}
