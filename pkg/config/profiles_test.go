package config

import (
	"os"
	"testing"

	"github.com/sigmanight/basiliskllm/pkg/model"
	"github.com/sigmanight/basiliskllm/pkg/resolver"
)

func TestLoadProfilesWithNoFileYieldsBuiltinDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadProfiles(dir)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if len(cfg.Profiles) != 1 || cfg.Profiles[0].Name != "default" {
		t.Fatalf("Profiles = %+v, want exactly the built-in default", cfg.Profiles)
	}
}

func TestLoadProfilesRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	doc := `
profiles:
  - name: work
  - name: work
`
	if err := os.WriteFile(profilesPath(dir), []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadProfiles(dir); err == nil {
		t.Fatal("expected an error for duplicate profile names")
	}
}

func TestLoadProfilesRejectsUnknownNonDefaultDefault(t *testing.T) {
	dir := t.TempDir()
	doc := `
profiles:
  - name: work
default_profile_name: missing
`
	if err := os.WriteFile(profilesPath(dir), []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadProfiles(dir); err == nil {
		t.Fatal("expected an error: default_profile_name names no profile")
	}
}

func TestLoadProfilesAddsMissingBuiltinDefault(t *testing.T) {
	dir := t.TempDir()
	doc := `
profiles:
  - name: work
`
	if err := os.WriteFile(profilesPath(dir), []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := LoadProfiles(dir)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if len(cfg.Profiles) != 2 {
		t.Fatalf("Profiles = %+v, want work + auto-added default", cfg.Profiles)
	}
	if _, ok := cfg.ByName("default"); !ok {
		t.Fatal("expected an auto-added default profile")
	}
}

func TestRepairDanglingRefsClearsUnknownAccount(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadProfiles(dir)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if err := cfg.Add(model.ConversationProfile{Name: "work", AccountRef: "does-not-exist"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	repairs := cfg.RepairDanglingRefs(resolver.NewAccountManager())
	if len(repairs) != 1 {
		t.Fatalf("repairs = %v, want 1 repair", repairs)
	}
	p, _ := cfg.ByName("work")
	if p.AccountRef != "" {
		t.Fatalf("AccountRef = %q, want cleared", p.AccountRef)
	}
}

func TestRepairDanglingRefsLeavesKnownAccountAlone(t *testing.T) {
	dir := t.TempDir()
	manager := resolver.NewAccountManager()
	account, err := resolver.NewAccount("Anthropic account", "anthropic", "sk-ant-test", nil, "", resolver.AccountSourceConfig)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	manager.Add(account)

	cfg, err := LoadProfiles(dir)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if err := cfg.Add(model.ConversationProfile{Name: "work", AccountRef: account.ID}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	repairs := cfg.RepairDanglingRefs(manager)
	if len(repairs) != 0 {
		t.Fatalf("repairs = %v, want none", repairs)
	}
	p, _ := cfg.ByName("work")
	if p.AccountRef != account.ID {
		t.Fatalf("AccountRef = %q, want unchanged %q", p.AccountRef, account.ID)
	}
}

func TestSaveProfilesRoundTripsAndOmitsBuiltinDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadProfiles(dir)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if err := cfg.Add(model.ConversationProfile{Name: "work", SystemPrompt: "be terse"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := LoadProfiles(dir)
	if err != nil {
		t.Fatalf("LoadProfiles (reload): %v", err)
	}
	if len(reloaded.Profiles) != 2 {
		t.Fatalf("Profiles = %+v, want work + re-added default", reloaded.Profiles)
	}
	if _, ok := reloaded.ByName("work"); !ok {
		t.Fatal("expected the work profile to round-trip")
	}
}
