package resolver

// ProviderDescriptor is the static, per-provider metadata the resolver
// needs to bootstrap accounts from the environment and validate them
// (spec §4.8), independent of the runtime providers.Engine each one backs.
type ProviderDescriptor struct {
	ID                       string
	Name                     string
	RequireAPIKey            bool
	OrganizationModeAvailable bool
	EnvVarAPIKey             string
	EnvVarOrganizationKey    string
}

// KnownProviders is the closed set of providers BasiliskLLM ships adapters
// for (spec §4.3/§6), grounded in original_source/basilisk/provider.py's
// `providers` list.
var KnownProviders = []ProviderDescriptor{
	{
		ID: "anthropic", Name: "Anthropic",
		RequireAPIKey: true, OrganizationModeAvailable: false,
		EnvVarAPIKey: "ANTHROPIC_API_KEY", EnvVarOrganizationKey: "ANTHROPIC_ORG_KEY",
	},
	{
		ID: "openai", Name: "OpenAI",
		RequireAPIKey: true, OrganizationModeAvailable: true,
		EnvVarAPIKey: "OPENAI_API_KEY", EnvVarOrganizationKey: "OPENAI_ORG_KEY",
	},
	{
		ID: "mistralai", Name: "MistralAI",
		RequireAPIKey: true, OrganizationModeAvailable: false,
		EnvVarAPIKey: "MISTRAL_API_KEY",
	},
	{
		ID: "openrouter", Name: "OpenRouter",
		RequireAPIKey: true, OrganizationModeAvailable: false,
		EnvVarAPIKey: "OPENROUTER_API_KEY",
	},
}

// ProviderByID looks up a ProviderDescriptor by id, returning false if the
// provider is unknown.
func ProviderByID(id string) (ProviderDescriptor, bool) {
	for _, p := range KnownProviders {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderDescriptor{}, false
}
