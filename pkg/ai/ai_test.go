package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAICompleterRequiresKey(t *testing.T) {
	_, err := NewOpenAICompleter(OpenAIConfig{})
	require.Error(t, err)

	completer, err := NewOpenAICompleter(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	require.Equal(t, "openai", completer.Name())
	require.Equal(t, "gpt-4o-mini", completer.cfg.Model)
}

func TestNewGeminiCompleterRequiresKey(t *testing.T) {
	_, err := NewGeminiCompleter(context.Background(), GeminiConfig{})
	require.Error(t, err)
}

func TestFirstTextSkipsEmptyCandidates(t *testing.T) {
	require.Equal(t, "", firstText(nil))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"score":7}`)}}},
		},
	}
	require.Equal(t, `{"score":7}`, firstText(resp))
}

func TestOpenAICompleterReturnsFirstChoice(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  {\"score\": 8}  "}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer server.Close()

	completer, err := NewOpenAICompleter(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "gpt-test"})
	require.NoError(t, err)

	out, err := completer.Complete(context.Background(), "grade this")
	require.NoError(t, err)
	require.Equal(t, `{"score": 8}`, out)
	require.Equal(t, "gpt-test", received["model"])
	format, ok := received["response_format"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "json_object", format["type"])
}

func TestOpenAICompleterEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	completer, err := NewOpenAICompleter(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = completer.Complete(context.Background(), "grade this")
	require.ErrorIs(t, err, ErrEmptyCompletion)
}
