package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaLLM implements LLMClient against a local or remote Ollama server.
type OllamaLLM struct {
	Model       string
	Temperature float64
	Timeout     time.Duration
	client      *ollama.Client
}

// NewOllamaLLMFromConfig uses cfg.BaseURL when set, otherwise OLLAMA_HOST.
func NewOllamaLLMFromConfig(cfg *LLMSettings) (*OllamaLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}

	var client *ollama.Client
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse ollama base_url: %w", err)
		}
		client = ollama.NewClient(base, http.DefaultClient)
	} else {
		var err error
		client, err = ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("could not create ollama client: %w", err)
		}
	}

	return &OllamaLLM{Model: cfg.Model, Temperature: cfg.Temperature, Timeout: cfg.Timeout, client: client}, nil
}

func (o *OllamaLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	stream := false
	req := &ollama.ChatRequest{
		Model: o.Model,
		Messages: []ollama.Message{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: prompt.User},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": o.Temperature,
		},
	}

	var content string
	err := o.client.Chat(ctx, req, func(res ollama.ChatResponse) error {
		content += res.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return content, nil
}
