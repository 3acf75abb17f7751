package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAccountsWithNoFilesYieldsEmptyManager(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadAccounts(dir, true)
	require.NoError(t, err)
	require.Zero(t, cfg.Manager.Len())
}

func TestLoadAccountsReadsConfigFileAccounts(t *testing.T) {
	dir := t.TempDir()
	doc := `
accounts:
  - name: "OpenAI account"
    provider_id: openai
    api_key: "sk-test"
default_account_info: ""
`
	require.NoError(t, os.WriteFile(accountsPath(dir), []byte(doc), 0o600))

	cfg, err := LoadAccounts(dir, true)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Manager.Len())

	account, ok := cfg.Manager.FirstByProviderID("openai")
	require.True(t, ok)
	require.Equal(t, "sk-test", account.APIKey)
}

func TestLoadAccountsSkipsInvalidConfigAccount(t *testing.T) {
	dir := t.TempDir()
	doc := `
accounts:
  - name: "Broken account"
    provider_id: anthropic
    api_key: ""
`
	require.NoError(t, os.WriteFile(accountsPath(dir), []byte(doc), 0o600))

	cfg, err := LoadAccounts(dir, true)
	require.NoError(t, err)
	require.Zero(t, cfg.Manager.Len(), "invalid account should be skipped")
}

func TestSaveAccountsRoundTripsAndOmitsEnvSourced(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")

	cfg, err := LoadAccounts(dir, false)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Manager.Len(), "one env account")

	require.NoError(t, cfg.Save())

	raw, err := os.ReadFile(filepath.Join(dir, "accounts.yml"))
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	reloaded, err := LoadAccounts(dir, true)
	require.NoError(t, err)
	require.Zero(t, reloaded.Manager.Len(), "env account was never persisted")
}
