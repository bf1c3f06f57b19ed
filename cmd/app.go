package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"iflow_prompt_generator/config"
	"iflow_prompt_generator/extractor"
	"iflow_prompt_generator/generator"
	"iflow_prompt_generator/logging"
	"iflow_prompt_generator/review"
)

// app holds what every subcommand builds from the config file.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
}

func loadApp(opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(cfg.Log, logging.Options{Verbose: opts.verbose})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	logger.Debug("config loaded", "path", opts.configPath, "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) Close() error {
	return a.closer.Close()
}

func (a *app) agent() (*generator.Agent, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	llm, err := buildLLM(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	return generator.NewAgent(llm, a.logger)
}

func (a *app) extractor() *extractor.Extractor {
	return extractor.New(extractor.Config{MaxBytes: a.cfg.MaxUploadBytes(), Logger: a.logger})
}

// guard returns nil when the edit guard is disabled.
func (a *app) guard() *review.Guard {
	if !a.cfg.Guard.IsEnabled() {
		return nil
	}
	return review.NewGuard(review.GuardConfig{
		MinSimilarity: a.cfg.Guard.MinSimilarity,
		Strict:        a.cfg.Guard.Strict,
	})
}

func buildLLM(cfg config.LLMConfig) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		Timeout:     cfg.TimeoutDuration(),
	}
	switch cfg.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "aicore":
		if cfg.AICore.HasClientCredentials() {
			return generator.NewAICoreLLMFromConfig(settings, generator.AICoreSettings{
				AuthURL:       cfg.AICore.AuthURL,
				ClientID:      cfg.AICore.ClientID,
				ClientSecret:  cfg.AICore.ClientSecret,
				ResourceGroup: cfg.AICore.ResourceGroup,
				APIVersion:    cfg.AICore.APIVersion,
			})
		}
		// Without a service key base_url is an OpenAI-compatible proxy in front of AI Core.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider %s requires base_url (OpenAI-compatible endpoint)", cfg.Provider)
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek speaks the OpenAI chat completions protocol behind its own endpoint.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider %s requires base_url (OpenAI-compatible endpoint)", cfg.Provider)
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "ollama":
		return generator.NewOllamaLLMFromConfig(settings)
	case "mock":
		return generator.MockLLM{}, nil
	case "":
		return nil, fmt.Errorf("llm config missing; please set llm.provider/model/api_key in config")
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
