package resolver

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sigmanight/basiliskllm/pkg/errs"
)

// AccountSource tags where an Account's credentials came from, mirroring
// original_source/basilisk/account.py's AccountSource enum: accounts
// loaded from the environment are never persisted back to the config
// file.
type AccountSource string

const (
	AccountSourceEnvVar AccountSource = "env_var"
	AccountSourceConfig AccountSource = "config"
)

// AccountOrganization is a named organization key under an Account, used
// by providers whose billing can be split across multiple orgs (spec
// §4.8, OrganizationModeAvailable providers only).
type AccountOrganization struct {
	ID     string
	Name   string
	Key    string
	Source AccountSource
}

// Account pairs a provider id with credentials (spec §4.8). ID is stable
// across the process lifetime and is the key the EngineCache uses to
// identify it.
type Account struct {
	ID                  string
	Name                string
	ProviderID          string
	APIKey              string
	Organizations       []AccountOrganization
	ActiveOrganizationID string
	Source              AccountSource
}

// NewAccount builds an Account with a fresh ID, validating it against its
// provider's requirements (spec §4.8: require_api_key, organization mode
// availability), the same checks original_source's Account.require_keys/
// validate_active_organization pydantic validators perform.
func NewAccount(name, providerID, apiKey string, organizations []AccountOrganization, activeOrgID string, source AccountSource) (Account, error) {
	provider, ok := ProviderByID(providerID)
	if !ok {
		return Account{}, errs.Newf(errs.KindConfig, "unknown provider %q", providerID)
	}
	if provider.RequireAPIKey && apiKey == "" {
		return Account{}, errs.Newf(errs.KindConfig, "API key for %s is required", provider.Name)
	}
	if !provider.OrganizationModeAvailable && activeOrgID != "" {
		return Account{}, errs.Newf(errs.KindConfig, "organization mode is not available for %s", provider.Name)
	}
	if activeOrgID != "" {
		found := false
		for _, org := range organizations {
			if org.ID == activeOrgID {
				found = true
				break
			}
		}
		if !found {
			return Account{}, errs.Newf(errs.KindConfig, "active organization %q not found for %s account", activeOrgID, provider.Name)
		}
	}
	return Account{
		ID:                   uuid.NewString(),
		Name:                 name,
		ProviderID:           providerID,
		APIKey:               apiKey,
		Organizations:        organizations,
		ActiveOrganizationID: activeOrgID,
		Source:               source,
	}, nil
}

// ActiveOrganization returns the organization named by ActiveOrganizationID,
// or the zero value and false if there is none.
func (a Account) ActiveOrganization() (AccountOrganization, bool) {
	for _, org := range a.Organizations {
		if org.ID == a.ActiveOrganizationID {
			return org, true
		}
	}
	return AccountOrganization{}, false
}

func (a Account) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.ProviderID)
}
