package main

import (
	"context"

	"github.com/sigmanight/basiliskllm/pkg/attachments"
	"github.com/sigmanight/basiliskllm/pkg/providers"
	"github.com/sigmanight/basiliskllm/pkg/providers/anthropic"
	"github.com/sigmanight/basiliskllm/pkg/providers/openaicompat"
	"github.com/sigmanight/basiliskllm/pkg/resolver"
)

// buildEngine constructs the providers.Engine backing a single account,
// picking the SDK-native adapter for anthropic and the OpenAI-compatible
// adapter for everything else (spec §4.3's "openai-compatible providers
// share one adapter").
func buildEngine(account resolver.Account, store *attachments.Store) providers.Engine {
	catalogue := staticCatalogue(account.ProviderID)
	if account.ProviderID == "anthropic" {
		return anthropic.New(account.APIKey, "", catalogue, store)
	}
	return openaicompat.New(account.ProviderID, account.APIKey, baseURL(account.ProviderID), catalogue, store)
}

// buildRegistry constructs one engine per configured account and
// registers it under its provider ID, wired through EngineCache so
// repeated calls for the same account reuse its engine. Each account gets
// its own engine; when two accounts share a provider, the later one's
// engine replaces the earlier one's registry entry.
func buildRegistry(accounts *resolver.AccountManager, cache *resolver.EngineCache, store *attachments.Store) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	for _, account := range accounts.All() {
		engine, err := cache.GetEngine(context.Background(), account.ID, func() (providers.Engine, error) {
			return buildEngine(account, store), nil
		})
		if err != nil {
			return nil, err
		}
		registry.Register(engine)
	}
	return registry, nil
}
