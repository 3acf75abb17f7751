package resolver

import "testing"

func TestNewAccountRejectsMissingRequiredAPIKey(t *testing.T) {
	_, err := NewAccount("Anthropic account", "anthropic", "", nil, "", AccountSourceConfig)
	if err == nil {
		t.Fatal("expected an error for a missing required API key")
	}
}

func TestNewAccountRejectsOrganizationOnUnsupportedProvider(t *testing.T) {
	orgs := []AccountOrganization{{ID: "org-1", Name: "test org", Key: "key"}}
	_, err := NewAccount("MistralAI account", "mistralai", "sk-test", orgs, "org-1", AccountSourceConfig)
	if err == nil {
		t.Fatal("expected an error: mistralai has no organization mode")
	}
}

func TestNewAccountRejectsUnknownActiveOrganization(t *testing.T) {
	orgs := []AccountOrganization{{ID: "org-1", Name: "test org", Key: "key"}}
	_, err := NewAccount("OpenAI account", "openai", "sk-test", orgs, "org-does-not-exist", AccountSourceConfig)
	if err == nil {
		t.Fatal("expected an error for an active_organization_id with no matching organization")
	}
}

func TestNewAccountAcceptsValidOrganization(t *testing.T) {
	orgs := []AccountOrganization{{ID: "org-1", Name: "test org", Key: "key"}}
	account, err := NewAccount("OpenAI account", "openai", "sk-test", orgs, "org-1", AccountSourceConfig)
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	org, ok := account.ActiveOrganization()
	if !ok || org.Name != "test org" {
		t.Fatalf("ActiveOrganization() = %+v, %v", org, ok)
	}
}

func TestNewAccountRejectsUnknownProvider(t *testing.T) {
	_, err := NewAccount("Mystery account", "does-not-exist", "key", nil, "", AccountSourceConfig)
	if err == nil {
		t.Fatal("expected an error for an unknown provider id")
	}
}
