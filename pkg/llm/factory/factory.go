package factory

import (
	"fmt"

	"food-search-be/pkg/llm"
	"food-search-be/pkg/llm/ollama"
	"food-search-be/pkg/llm/openai"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// NewLLMProvider builds the backend named by providerType.
func NewLLMProvider(providerType, model, baseURL, apiKey string) (llm.LLMProvider, error) {
	switch providerType {
	case ProviderOllama:
		return ollama.NewProvider(baseURL, model), nil
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("%s provider requires LLM_API_KEY", providerType)
		}
		return openai.NewProvider(apiKey, baseURL, model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", providerType)
	}
}
