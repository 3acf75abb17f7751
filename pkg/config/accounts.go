package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sigmanight/basiliskllm/pkg/logger"
	"github.com/sigmanight/basiliskllm/pkg/resolver"
)

// organizationFile is the on-disk shape of one AccountOrganization,
// mirroring original_source's AccountOrganization pydantic model.
type organizationFile struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// accountFile is the on-disk shape of one config-sourced account.
// Env-sourced accounts are never serialised here, matching
// AccountManager.serialize_accounts's "source == CONFIG" filter.
type accountFile struct {
	Name                 string             `yaml:"name"`
	ProviderID           string             `yaml:"provider_id"`
	APIKey               string             `yaml:"api_key"`
	Organizations        []organizationFile `yaml:"organizations,omitempty"`
	ActiveOrganizationID string             `yaml:"active_organization_id,omitempty"`
}

// accountsFile is the root document of accounts.yml.
type accountsFile struct {
	Accounts          []accountFile `yaml:"accounts"`
	DefaultAccountRef string        `yaml:"default_account_info,omitempty"`
}

// AccountsConfig is the loaded, merged account configuration: every
// env-var account (unless noEnvAccount) plus every accounts.yml account,
// wrapped in a resolver.AccountManager.
type AccountsConfig struct {
	Manager           *resolver.AccountManager
	DefaultAccountRef string
	path              string
}

// LoadAccounts reads accounts.yml from dir (creating none if absent) and
// prepends environment-variable accounts unless noEnvAccount is set
// (spec §6's --no-env-account flag).
func LoadAccounts(dir string, noEnvAccount bool) (*AccountsConfig, error) {
	path := accountsPath(dir)
	manager := resolver.NewAccountManager()

	if !noEnvAccount {
		if err := manager.LoadFromEnv(); err != nil {
			return nil, err
		}
	}

	var doc accountsFile
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// No config file yet; env accounts (if any) are all we have.
	default:
		return nil, err
	}

	for _, af := range doc.Accounts {
		var orgs []resolver.AccountOrganization
		for _, of := range af.Organizations {
			orgs = append(orgs, resolver.AccountOrganization{
				ID:     of.ID,
				Name:   of.Name,
				Key:    of.Key,
				Source: resolver.AccountSourceConfig,
			})
		}
		account, err := resolver.NewAccount(af.Name, af.ProviderID, af.APIKey, orgs, af.ActiveOrganizationID, resolver.AccountSourceConfig)
		if err != nil {
			logger.WarnCF("config", "skipping invalid account in accounts.yml", map[string]any{"name": af.Name, "error": err.Error()})
			continue
		}
		manager.Add(account)
	}

	return &AccountsConfig{Manager: manager, DefaultAccountRef: doc.DefaultAccountRef, path: path}, nil
}

// Save writes every config-sourced account back to accounts.yml.
// Env-sourced accounts are never persisted.
func (c *AccountsConfig) Save() error {
	doc := accountsFile{DefaultAccountRef: c.DefaultAccountRef}
	for _, a := range c.Manager.All() {
		if a.Source != resolver.AccountSourceConfig {
			continue
		}
		af := accountFile{
			Name:                 a.Name,
			ProviderID:           a.ProviderID,
			APIKey:               a.APIKey,
			ActiveOrganizationID: a.ActiveOrganizationID,
		}
		for _, o := range a.Organizations {
			af.Organizations = append(af.Organizations, organizationFile{ID: o.ID, Name: o.Name, Key: o.Key})
		}
		doc.Accounts = append(doc.Accounts, af)
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, raw, 0o600)
}
