package resolver

import (
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"

	"github.com/sigmanight/basiliskllm/pkg/logger"
)

// envAccounts binds the per-provider API/organization key environment
// variables spec §6 enumerates, the same set original_source's
// AccountManager.model_post_init reads via os.getenv, just gathered into
// one struct so a single env.Parse call does the bootstrap.
type envAccounts struct {
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	AnthropicOrgKey  string `env:"ANTHROPIC_ORG_KEY"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIOrgKey     string `env:"OPENAI_ORG_KEY"`
	MistralAPIKey    string `env:"MISTRAL_API_KEY"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
}

func (e envAccounts) apiKeyFor(providerID string) string {
	switch providerID {
	case "anthropic":
		return e.AnthropicAPIKey
	case "openai":
		return e.OpenAIAPIKey
	case "mistralai":
		return e.MistralAPIKey
	case "openrouter":
		return e.OpenRouterAPIKey
	default:
		return ""
	}
}

func (e envAccounts) orgKeyFor(providerID string) string {
	switch providerID {
	case "anthropic":
		return e.AnthropicOrgKey
	case "openai":
		return e.OpenAIOrgKey
	default:
		return ""
	}
}

// AccountManager holds every configured account, mirroring
// original_source's AccountManager (a list of Account plus env-var
// bootstrap and provider-scoped lookup).
type AccountManager struct {
	accounts []Account
}

// NewAccountManager returns an empty manager. Use LoadFromEnv to populate
// it from environment variables, then Add for config-file accounts.
func NewAccountManager() *AccountManager {
	return &AccountManager{}
}

// LoadFromEnv appends one Account per known provider whose API key
// environment variable is set (spec §6: "loaded once at startup unless
// --no-env-account"), matching original_source's
// AccountManager.model_post_init.
func (m *AccountManager) LoadFromEnv() error {
	var cfg envAccounts
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	for _, provider := range KnownProviders {
		apiKey := cfg.apiKeyFor(provider.ID)
		if apiKey == "" {
			continue
		}

		var orgs []AccountOrganization
		var activeOrgID string
		if provider.OrganizationModeAvailable {
			if orgKey := cfg.orgKeyFor(provider.ID); orgKey != "" {
				activeOrgID = uuid.NewString()
				orgs = append(orgs, AccountOrganization{
					ID:     activeOrgID,
					Name:   "From environment variable",
					Key:    orgKey,
					Source: AccountSourceEnvVar,
				})
			}
		}

		account, err := NewAccount(provider.Name+" account", provider.ID, apiKey, orgs, activeOrgID, AccountSourceEnvVar)
		if err != nil {
			logger.WarnCF("resolver", "skipping invalid env account", map[string]any{"provider": provider.ID, "error": err.Error()})
			continue
		}
		m.accounts = append(m.accounts, account)
	}
	return nil
}

// Add appends a config-sourced (or any other) account.
func (m *AccountManager) Add(a Account) {
	m.accounts = append(m.accounts, a)
}

// Remove deletes the first account with the same ID as a, if present.
func (m *AccountManager) Remove(a Account) {
	for i, existing := range m.accounts {
		if existing.ID == a.ID {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			return
		}
	}
}

// Clear removes every account.
func (m *AccountManager) Clear() { m.accounts = nil }

// Len returns the number of configured accounts.
func (m *AccountManager) Len() int { return len(m.accounts) }

// All returns every configured account, in insertion order.
func (m *AccountManager) All() []Account {
	out := make([]Account, len(m.accounts))
	copy(out, m.accounts)
	return out
}

// ByProviderID returns every account configured for the given provider.
func (m *AccountManager) ByProviderID(providerID string) []Account {
	var out []Account
	for _, a := range m.accounts {
		if a.ProviderID == providerID {
			out = append(out, a)
		}
	}
	return out
}

// FirstByProviderID returns the first account configured for the given
// provider, or false if there is none (spec §4.8 rule 2: "pick the first
// account whose provider matches the model's provider").
func (m *AccountManager) FirstByProviderID(providerID string) (Account, bool) {
	for _, a := range m.accounts {
		if a.ProviderID == providerID {
			return a, true
		}
	}
	return Account{}, false
}

// ByID returns the account with the given ID, or false if there is none.
func (m *AccountManager) ByID(id string) (Account, bool) {
	for _, a := range m.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

// DefaultAccount returns the first configured account (spec §4.8 rule 3),
// or false if none are configured.
func (m *AccountManager) DefaultAccount() (Account, bool) {
	if len(m.accounts) == 0 {
		return Account{}, false
	}
	return m.accounts[0], true
}
