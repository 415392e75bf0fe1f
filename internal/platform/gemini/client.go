package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is a client for the Gemini API, used as opaque glue for
// translation, ingredient matching and receipt OCR.
type Client struct {
	model *genai.GenerativeModel
}

// NewClient creates a new Gemini client.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Client{model: client.GenerativeModel("gemini-1.5-flash")}, nil
}

// ReceiptLine is one item extracted from a receipt photo.
type ReceiptLine struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

func (c *Client) generateText(ctx context.Context, parts ...genai.Part) (string, error) {
	resp, err := c.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return string(text), nil
}

// Translate translates cooking text between French and Japanese. targetLang
// is "fr" or "jp".
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	target := "French"
	if strings.EqualFold(targetLang, "jp") {
		target = "Japanese"
	}
	prompt := fmt.Sprintf("Translate the following cooking-related text to %s. Return only the translation, no explanation, no quotes: %s", target, text)
	out, err := c.generateText(ctx, genai.Text(prompt))
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
	out, err := c.generateText(ctx, genai.Text(prompt))
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

// ExtractReceipt runs OCR over a receipt photo and returns the item lines.
func (c *Client) ExtractReceipt(ctx context.Context, imageData []byte) ([]ReceiptLine, error) {
	promptText := "Extract the purchased items from this receipt photo. Return a single, clean JSON array where each element has the keys 'name' (string), 'quantity' (number), 'unit' (string), 'price' (number) and 'currency' ('EUR' or 'JPY'). The JSON response should be clean and not contain any markdown formatting (e.g., ```json)."
	prompt := []genai.Part{
		genai.ImageData("jpeg", imageData),
		genai.Text(promptText),
	}

	out, err := c.generateText(ctx, prompt...)
	if err != nil {
		return nil, fmt.Errorf("failed to extract receipt: %w", err)
	}

	// Extract the JSON from the response, which might be wrapped in markdown
	startIndex := strings.Index(out, "[")
	endIndex := strings.LastIndex(out, "]")
	if startIndex == -1 || endIndex == -1 || startIndex > endIndex {
		return nil, fmt.Errorf("could not find JSON array in response: %s", out)
	}
	cleanJSON := out[startIndex : endIndex+1]

	var lines []ReceiptLine
	if err := json.Unmarshal([]byte(cleanJSON), &lines); err != nil {
		return nil, fmt.Errorf("failed to unmarshal receipt JSON: %w. Raw response: %s", err, cleanJSON)
	}
	return lines, nil
}
