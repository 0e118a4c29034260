package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req struct {
			Model   string             `json:"model"`
			Prompt  string             `json:"prompt"`
			Stream  bool               `json:"stream"`
			Options map[string]float64 `json:"options"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultOllamaModel, req.Model)
		assert.Equal(t, "hello?", req.Prompt)
		assert.False(t, req.Stream)
		assert.InDelta(t, 0.7, req.Options["temperature"], 1e-9)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": "hi there", "done": true})
	}))
	defer server.Close()

	g, err := New(Config{Provider: "ollama", BaseURL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, g.Model())

	out, err := g.Generate(context.Background(), "hello?", Options{Temperature: DefaultTemperature})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestOllama_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	g := NewOllama(Config{BaseURL: server.URL})

	_, err := g.Generate(context.Background(), "q", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not found")

	_, err = g.Generate(context.Background(), "", Options{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestOllama_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": "  "})
	}))
	defer server.Close()

	_, err := NewOllama(Config{BaseURL: server.URL}).Generate(context.Background(), "q", Options{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAI_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model       string              `json:"model"`
			Temperature float64             `json:"temperature"`
			Messages    []map[string]string `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "custom-model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0]["role"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "answer"}},
			},
		})
	}))
	defer server.Close()

	g, err := New(Config{Provider: "openai", BaseURL: server.URL, APIKey: "sk-test"})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "q", Options{Temperature: 0.2, Model: "custom-model"})
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
}

func TestNew_Errors(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := New(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = New(Config{Provider: "bard"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	g, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, g)
}
