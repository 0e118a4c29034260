package embedder

import (
	"errors"
	"testing"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		jinaKey  string
		openKey  string
		want     string
	}{
		{"explicit provider", "OLLAMA", "", "", ProviderOllama},
		{"jina key", "", "k", "", ProviderJina},
		{"openai key", "", "", "k", ProviderOpenAI},
		{"jina wins over openai", "", "k", "k", ProviderJina},
		{"fallback to local", "", "", "", ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jinaKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openKey)

			if got := DetectProvider(); got != tt.want {
				t.Errorf("DetectProvider() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvJinaAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")

	tests := []struct {
		name     string
		cfg      Config
		provider string
		wantErr  error
	}{
		{"local", Config{Provider: "local", CacheSize: 10}, ProviderLocal, nil},
		{"auto detect", Config{}, ProviderLocal, nil},
		{"ollama", Config{Provider: "ollama"}, ProviderOllama, nil},
		{"openai with key", Config{Provider: "openai", APIKey: "k"}, ProviderOpenAI, nil},
		{"jina without key", Config{Provider: "jina"}, "", ErrNoProviderEnabled},
		{"unknown", Config{Provider: "cohere"}, "", ErrUnsupportedModel},
		{"rate limited", Config{Provider: "local", RateLimit: 5}, ProviderLocal, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer e.Close()
			if e.Provider() != tt.provider {
				t.Errorf("Provider() = %s, want %s", e.Provider(), tt.provider)
			}
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(EnvProvider, "local")
	e, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv() error = %v", err)
	}
	if e.Provider() != ProviderLocal {
		t.Errorf("Provider() = %s", e.Provider())
	}
}
