// Package compose generates email drafts from a free-form description via an
// OpenAI-compatible chat completions API.
package compose

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

// Draft is a generated email ready for review.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Client talks to a chat completions endpoint. It works against any
// OpenAI-compatible API; the model name is configured per deployment.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

const systemPrompt = `You are an email copywriter for a company selling to schools. ` +
	`Given a description of the email to write, respond with a JSON object ` +
	`{"subject": "...", "body": "..."} and nothing else. Keep the tone professional and warm.`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ComposeDraft asks the model for a subject and body matching the description.
// recipient and category are optional hints woven into the prompt.
func (c *Client) ComposeDraft(ctx context.Context, description, recipient, category string) (string, string, error) {
	prompt := description
	if category != "" {
		prompt = fmt.Sprintf("Write a %s email. %s", category, prompt)
	}
	if recipient != "" {
		prompt = fmt.Sprintf("%s The recipient is %s.", prompt, recipient)
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal compose request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("new compose request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("compose request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read compose response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("compose api status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("decode compose response: %w", err)
	}
	if parsed.Error != nil {
		return "", "", fmt.Errorf("compose api: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", "", fmt.Errorf("compose api returned no choices")
	}

	draft, err := parseDraft(parsed.Choices[0].Message.Content)
	if err != nil {
		return "", "", err
	}
	return draft.Subject, draft.Body, nil
}

// parseDraft extracts the JSON draft from the model output, tolerating
// markdown code fences around it.
func parseDraft(content string) (Draft, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var draft Draft
	if err := json.Unmarshal([]byte(trimmed), &draft); err != nil {
		return Draft{}, fmt.Errorf("model output is not a draft: %w", err)
	}
	if strings.TrimSpace(draft.Subject) == "" || strings.TrimSpace(draft.Body) == "" {
		return Draft{}, fmt.Errorf("model output missing subject or body")
	}
	return draft, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
