package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	// ErrEmptyPrompt is returned for an empty prompt
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrUnknownProvider is returned for an unsupported provider name
	ErrUnknownProvider = errors.New("unknown generation provider")
	// ErrNoAPIKey is returned when a hosted provider has no credentials
	ErrNoAPIKey = errors.New("generation provider API key not set")
	// ErrEmptyResponse is returned when the model produced no text
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// Provider names
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DefaultOllamaModel   = "llama3.1:8b"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultTemperature   = 0.7

	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Options are per-call generation settings
type Options struct {
	Temperature float64
	Model       string // Empty = generator default
}

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Model() string
}

// Config selects and configures a provider
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration // Generation can be slow on local hardware (default: 5m)
}

// New creates the configured generator
func New(cfg Config) (Generator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		return NewOllama(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// checkResponse turns a non-200 response into an error
func checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func apiKey(key, env string) string {
	if key != "" {
		return key
	}
	return os.Getenv(env)
}
