package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/model"
	"github.com/hupe1980/vizier/model/anthropic"
	"github.com/hupe1980/vizier/model/openai"
	"github.com/hupe1980/vizier/session"
)

// ErrUnknownProvider is returned for a provider name with no registered constructor.
var ErrUnknownProvider = errors.New("engine: unknown provider")

// ProviderConfig selects and configures a completion backend.
type ProviderConfig struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// ProviderFunc builds a model from cfg.
type ProviderFunc func(cfg ProviderConfig) (model.Model, error)

var (
	providersMu sync.RWMutex
	providers   = map[string]ProviderFunc{
		"openai":     openAICompatible("openai", "", ""),
		"openrouter": openAICompatible("openrouter", "https://openrouter.ai/api/v1/", ""),
		"deepseek":   openAICompatible("deepseek", "https://api.deepseek.com/v1/", "deepseek-chat"),
		"ollama":     openAICompatible("ollama", "http://localhost:11434/v1/", "llama3.1"),
		"anthropic":  newAnthropic,
	}
)

// RegisterProvider adds or replaces the constructor for name.
func RegisterProvider(name string, fn ProviderFunc) {
	providersMu.Lock()
	defer providersMu.Unlock()

	providers[strings.ToLower(name)] = fn
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// NewModel builds the model cfg names.
func NewModel(cfg ProviderConfig) (model.Model, error) {
	providersMu.RLock()
	fn, ok := providers[strings.ToLower(cfg.Provider)]
	providersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	return fn(cfg)
}

// Factory returns a session engine factory that builds a fresh ModelEngine
// for cfg each time a session is created. The provider is validated up front.
func Factory(cfg ProviderConfig, optFns ...func(o *Options)) (session.EngineFactory, error) {
	if _, err := NewModel(cfg); err != nil {
		return nil, err
	}

	return func(core.SessionID) (core.CompletionEngine, error) {
		m, err := NewModel(cfg)
		if err != nil {
			return nil, err
		}

		return New(m, optFns...), nil
	}, nil
}

func openAICompatible(provider, baseURL, defaultModel string) ProviderFunc {
	return func(cfg ProviderConfig) (model.Model, error) {
		return openai.NewModel(func(o *openai.Options) {
			o.Provider = provider

			if defaultModel != "" {
				o.Model = defaultModel
			}

			if cfg.Model != "" {
				o.Model = cfg.Model
			}

			o.BaseURL = baseURL
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}

			o.APIKey = cfg.APIKey
			if o.APIKey == "" && provider == "ollama" {
				o.APIKey = "ollama"
			}

			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}

			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
		}), nil
	}
}

func newAnthropic(cfg ProviderConfig) (model.Model, error) {
	return anthropic.NewModel(func(o *anthropic.Options) {
		if cfg.Model != "" {
			o.Model = anthropicsdk.Model(cfg.Model)
		}

		o.APIKey = cfg.APIKey
		o.BaseURL = cfg.BaseURL

		if cfg.Temperature > 0 {
			o.Temperature = cfg.Temperature
		}

		if cfg.MaxTokens > 0 {
			o.MaxTokens = cfg.MaxTokens
		}
	}), nil
}
