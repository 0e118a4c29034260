package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAI generates text with the chat completions API
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI generator
func NewOpenAI(cfg Config) (*OpenAI, error) {
	key := apiKey(cfg.APIKey, EnvOpenAIAPIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, EnvOpenAIAPIKey)
	}
	return &OpenAI{
		apiKey:     key,
		baseURL:    strings.TrimRight(pick(cfg.BaseURL, DefaultOpenAIBaseURL), "/"),
		model:      pick(cfg.Model, DefaultOpenAIModel),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (o *OpenAI) Model() string {
	return o.model
}

// Generate sends the prompt as a single user message
func (o *OpenAI) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":       pick(opts.Model, o.model),
		"temperature": opts.Temperature,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}
