package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAILLMFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *LLMSettings
		ok   bool
	}{
		{"nil", nil, false},
		{"no key no gateway", &LLMSettings{Model: "gpt-4o-mini"}, false},
		{"no model", &LLMSettings{APIKey: "k"}, false},
		{"openai", &LLMSettings{APIKey: "k", Model: "gpt-4o-mini"}, true},
		{"keyless gateway", &LLMSettings{BaseURL: "https://gateway.example/v1", Model: "d1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm, err := NewOpenAILLMFromConfig(tt.cfg)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Model, llm.Model)
		})
	}
}

func TestOpenAILLMComplete(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"gpt-4o-mini",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"- iFlow name: X"}}]}`))
	}))
	defer srv.Close()

	llm, err := NewOpenAILLMFromConfig(&LLMSettings{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1/", Temperature: 0.3})
	require.NoError(t, err)

	out, err := llm.Complete(context.Background(), BuildUnderstandingPrompt("Sender: HTTP"))
	require.NoError(t, err)
	assert.Equal(t, "- iFlow name: X", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Contains(t, got.Messages[1].Content, "Sender: HTTP")
}

func TestOpenAILLMNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	llm, err := NewOpenAILLMFromConfig(&LLMSettings{APIKey: "k", Model: "m", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = llm.Complete(context.Background(), BuildFinalPrompt(Approve("d")))
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOllamaLLMComplete(t *testing.T) {
	var got struct {
		Model    string         `json:"model"`
		Stream   *bool          `json:"stream"`
		Options  map[string]any `json:"options"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3.1",
			"message": map[string]string{"role": "assistant", "content": "Create iFlow X."},
			"done":    true,
		})
	}))
	defer srv.Close()

	llm, err := NewOllamaLLMFromConfig(&LLMSettings{Model: "llama3.1", BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	out, err := llm.Complete(context.Background(), BuildFinalPrompt(Approve("# X")))
	require.NoError(t, err)
	assert.Equal(t, "Create iFlow X.", out)

	assert.Equal(t, "llama3.1", got.Model)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
	assert.Contains(t, got.Options, "temperature")
	require.Len(t, got.Messages, 2)
}

func TestNewOllamaLLMRequiresModel(t *testing.T) {
	_, err := NewOllamaLLMFromConfig(&LLMSettings{BaseURL: "http://localhost:11434"})
	assert.Error(t, err)
	_, err = NewOllamaLLMFromConfig(nil)
	assert.Error(t, err)
}

func TestNewAICoreLLMFromConfig(t *testing.T) {
	key := AICoreSettings{AuthURL: "https://auth.example", ClientID: "id", ClientSecret: "secret"}
	tests := []struct {
		name string
		cfg  *LLMSettings
		auth AICoreSettings
		ok   bool
	}{
		{"nil", nil, key, false},
		{"no base url", &LLMSettings{Model: "d1"}, key, false},
		{"no deployment", &LLMSettings{BaseURL: "https://api.example/v2"}, key, false},
		{"no secret", &LLMSettings{BaseURL: "https://api.example/v2", Model: "d1"}, AICoreSettings{AuthURL: "https://auth.example", ClientID: "id"}, false},
		{"service key", &LLMSettings{BaseURL: "https://api.example/v2", Model: "d1"}, key, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm, err := NewAICoreLLMFromConfig(tt.cfg, tt.auth)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "d1", llm.Model)
		})
	}
}

func TestAICoreURLs(t *testing.T) {
	assert.Equal(t, "https://auth.example/oauth/token", tokenURL("https://auth.example"))
	assert.Equal(t, "https://auth.example/oauth/token", tokenURL("https://auth.example/oauth/token/"))
	assert.Equal(t, "https://api.example/v2/inference/deployments/d1/", deploymentURL("https://api.example/v2/", "d1"))
}
