package main

import "github.com/sigmanight/basiliskllm/pkg/providers"

// staticCatalogue returns the built-in model list for a provider, used to
// construct its providers.Engine until a live catalogue refresh lands.
// Grounded in original_source/basilisk/providerengine/anthropicengine.py's
// own `models` cached_property (each provider engine ships a fixed,
// hand-maintained model list rather than querying a models endpoint at
// startup).
func staticCatalogue(providerID string) []providers.ModelDescriptor {
	switch providerID {
	case "anthropic":
		return []providers.ModelDescriptor{
			{ID: "claude-opus-4-1", Name: "Claude Opus 4.1", ContextWindow: 200000, MaxOutputTokens: 32000, DefaultTemperature: 1, MaxTemperature: 1, Vision: true, Reasoning: true},
			{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", ContextWindow: 200000, MaxOutputTokens: 64000, DefaultTemperature: 1, MaxTemperature: 1, Vision: true, Reasoning: true},
			{ID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", ContextWindow: 200000, MaxOutputTokens: 64000, DefaultTemperature: 1, MaxTemperature: 1, Vision: true},
		}
	case "openai":
		return []providers.ModelDescriptor{
			{ID: "gpt-5", Name: "GPT-5", ContextWindow: 400000, MaxOutputTokens: 128000, DefaultTemperature: 1, MaxTemperature: 2, Vision: true, Reasoning: true, PreferResponsesAPI: true},
			{ID: "gpt-5-mini", Name: "GPT-5 Mini", ContextWindow: 400000, MaxOutputTokens: 128000, DefaultTemperature: 1, MaxTemperature: 2, Vision: true, PreferResponsesAPI: true},
			{ID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, MaxOutputTokens: 16384, DefaultTemperature: 1, MaxTemperature: 2, Vision: true},
		}
	case "mistralai":
		return []providers.ModelDescriptor{
			{ID: "mistral-large-latest", Name: "Mistral Large", ContextWindow: 128000, MaxOutputTokens: 32000, DefaultTemperature: 0.7, MaxTemperature: 1.5},
			{ID: "pixtral-large-latest", Name: "Pixtral Large", ContextWindow: 128000, MaxOutputTokens: 32000, DefaultTemperature: 0.7, MaxTemperature: 1.5, Vision: true},
		}
	case "openrouter":
		return []providers.ModelDescriptor{
			{ID: "openrouter/auto", Name: "Auto (best available)", ContextWindow: 128000, MaxOutputTokens: 16384, DefaultTemperature: 1, MaxTemperature: 2, Vision: true},
		}
	default:
		return nil
	}
}

// baseURL returns the non-default API base URL an openaicompat engine
// needs for providers that are not OpenAI itself.
func baseURL(providerID string) string {
	switch providerID {
	case "mistralai":
		return "https://api.mistral.ai/v1"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	default:
		return ""
	}
}
