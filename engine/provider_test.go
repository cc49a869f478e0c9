package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/model"
)

func TestNewModel_BuiltinProviders(t *testing.T) {
	tests := []struct {
		cfg      ProviderConfig
		provider string
		name     string
	}{
		{cfg: ProviderConfig{Provider: "openai", Model: "gpt-4o", APIKey: "k"}, provider: "openai", name: "gpt-4o"},
		{cfg: ProviderConfig{Provider: "OpenRouter", Model: "meta/llama", APIKey: "k"}, provider: "openrouter", name: "meta/llama"},
		{cfg: ProviderConfig{Provider: "deepseek", APIKey: "k"}, provider: "deepseek", name: "deepseek-chat"},
		{cfg: ProviderConfig{Provider: "ollama"}, provider: "ollama", name: "llama3.1"},
		{cfg: ProviderConfig{Provider: "anthropic", Model: "claude-test", APIKey: "k"}, provider: "anthropic", name: "claude-test"},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.Provider, func(t *testing.T) {
			m, err := NewModel(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, m.Info().Provider)
			assert.Equal(t, tt.name, m.Info().Name)
		})
	}
}

func TestNewModel_UnknownProvider(t *testing.T) {
	_, err := NewModel(ProviderConfig{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = Factory(ProviderConfig{Provider: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegisterProvider_AndFactory(t *testing.T) {
	mock := model.NewMockModel("canned", "fake")
	mock.AddResponse("ada: hi", "hello from fake")

	RegisterProvider("Fake", func(ProviderConfig) (model.Model, error) { return mock, nil })

	assert.Contains(t, Providers(), "fake")

	factory, err := Factory(ProviderConfig{Provider: "fake"})
	require.NoError(t, err)

	eng, err := factory(core.HTTPSession("s"))
	require.NoError(t, err)

	reply, err := eng.Chat(context.Background(), core.SessionContext{}, core.NewRequest("ada", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello from fake", reply)

	_, ok := eng.(core.Summarizer)
	assert.True(t, ok)
}
