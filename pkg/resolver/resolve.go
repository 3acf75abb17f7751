package resolver

import (
	"github.com/sigmanight/basiliskllm/pkg/model"
)

// ModelOwner answers "which provider serves this model id", used by rule
// 2 below. In practice this is backed by walking every registered
// providers.Engine's Models() list for a match.
type ModelOwner func(modelID string) (providerID string, ok bool)

// ResolveAccountAndModel implements spec §4.8's four-rule resolution:
//  1. profile names both account and model: use them as given.
//  2. profile names only a model: pick the first account whose provider
//     matches the model's provider.
//  3. profile names neither and fallback is requested: use the default
//     account, with no model id (the caller falls back to the engine's
//     first model).
//  4. none of the above: both are unresolved.
//
// Grounded in original_source's AccountModelService.resolve_account_and_model.
func ResolveAccountAndModel(profile model.ConversationProfile, fallbackDefaultAccount bool, accounts *AccountManager, owner ModelOwner) (account *Account, modelID string) {
	hasAccount := profile.AccountRef != ""
	hasModel := profile.ModelRef != ""

	if !hasAccount && !hasModel && fallbackDefaultAccount {
		if def, ok := accounts.DefaultAccount(); ok {
			return &def, ""
		}
		return nil, ""
	}

	if hasAccount {
		if a, ok := accounts.ByID(profile.AccountRef); ok {
			return &a, profile.ModelRef
		}
		return nil, profile.ModelRef
	}

	if hasModel {
		if owner != nil {
			if providerID, ok := owner(profile.ModelRef); ok {
				if a, ok := accounts.FirstByProviderID(providerID); ok {
					return &a, profile.ModelRef
				}
			}
		}
		return nil, profile.ModelRef
	}

	return nil, ""
}
