package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"securethread/internal/model"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	defaultAPIKeyEnv = "OPENAI_API_KEY"
	requestTimeout   = 90 * time.Second
	maxResponseBytes = 10 * 1024 * 1024
)

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint and
// asks for per-finding enriched fields as strict JSON.
type OpenAIClient struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	Headers   map[string]string
	HTTP      *http.Client
}

func NewOpenAIClient(baseURL, model string) *OpenAIClient {
	return &OpenAIClient{BaseURL: baseURL, Model: model}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type enhancePayload struct {
	Enhancements []Fields `json:"enhancements"`
}

func (c *OpenAIClient) Enhance(ctx context.Context, filePath string, contentExcerpt string, findings []model.Finding) ([]Fields, error) {
	baseURL := strings.TrimSpace(c.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := strings.TrimSpace(c.Model)
	if modelName == "" {
		modelName = defaultModel
	}
	keyEnv := strings.TrimSpace(c.APIKeyEnv)
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey := strings.TrimSpace(os.Getenv(keyEnv))

	reqBody := chatRequest{
		Model: modelName,
		Messages: []chatMessage{
			{
				Role: "system",
				Content: "You are a security analyst enriching static-analysis findings. " +
					"Return only a JSON object {\"enhancements\": [...]} with exactly one entry per input finding, in order. " +
					"Each entry may set: description, recommendation, fix_suggestion, risk_score (0-10), " +
					"exploitability, impact, cwe_id, owasp_category. Do not wrap JSON in markdown fences.",
			},
			{
				Role:    "user",
				Content: buildPrompt(filePath, contentExcerpt, findings),
			},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal enhancement request: %w", err)
	}

	endpoint, err := joinURLPath(baseURL, "/chat/completions")
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build enhancement request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for k, v := range c.Headers {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		httpReq.Header.Set(k, v)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute enhancement request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read enhancement response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := strings.TrimSpace(string(respBody))
		if reason == "" {
			reason = "empty response body"
		}
		if len(reason) > 1000 {
			reason = reason[:1000] + "..."
		}
		return nil, fmt.Errorf("enhancement provider returned HTTP %d: %s", resp.StatusCode, reason)
	}

	parsed := chatResponse{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse enhancement response: %w", err)
	}
	if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return nil, fmt.Errorf("enhancement provider error: %s", strings.TrimSpace(parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("enhancement response has no choices")
	}

	jsonPayload, err := extractJSONObject(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("extract json from enhancement response: %w", err)
	}
	payload := enhancePayload{}
	if err := json.Unmarshal([]byte(jsonPayload), &payload); err != nil {
		return nil, fmt.Errorf("parse enhancement payload: %w", err)
	}
	return payload.Enhancements, nil
}

func buildPrompt(filePath string, contentExcerpt string, findings []model.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", filePath)
	fmt.Fprintf(&b, "Findings (%d):\n", len(findings))
	for i, f := range findings {
		fmt.Fprintf(&b, "%d. [%s] %s (rule %s, lines %d-%d)\n", i+1, f.Severity, f.Title, f.RuleID, f.LineStart, f.LineEnd)
		if f.CodeSnippet != "" {
			fmt.Fprintf(&b, "   snippet: %s\n", f.CodeSnippet)
		}
	}
	if contentExcerpt != "" {
		b.WriteString("\nFile excerpt:\n")
		b.WriteString(contentExcerpt)
		b.WriteString("\n")
	}
	return b.String()
}

// extractJSONObject tolerates fenced or chatty responses by slicing out the
// outermost JSON object.
func extractJSONObject(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty content")
	}
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
			raw = strings.TrimSpace(raw[idx+1:])
		}
		raw = strings.TrimSuffix(raw, "```")
		raw = strings.TrimSpace(raw)
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", errors.New("content does not contain a json object")
	}
	return strings.TrimSpace(raw[start : end+1]), nil
}

func joinURLPath(base string, suffix string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse base URL %q: %w", base, err)
	}
	suffix = "/" + strings.TrimLeft(strings.TrimSpace(suffix), "/")
	u.Path = strings.TrimRight(u.Path, "/") + suffix
	return u.String(), nil
}
