package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sigmanight/basiliskllm/pkg/errs"
	"github.com/sigmanight/basiliskllm/pkg/logger"
	"github.com/sigmanight/basiliskllm/pkg/model"
	"github.com/sigmanight/basiliskllm/pkg/resolver"
)

// profileFile is the on-disk shape of one model.ConversationProfile.
type profileFile struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`
	AccountRef   string   `yaml:"account_ref,omitempty"`
	ModelRef     string   `yaml:"model_ref,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	TopP         *float64 `yaml:"top_p,omitempty"`
	MaxTokens    *int     `yaml:"max_tokens,omitempty"`
	StreamMode   bool     `yaml:"stream_mode,omitempty"`
}

// profilesFile is the root document of profiles.yml.
type profilesFile struct {
	Profiles           []profileFile `yaml:"profiles"`
	DefaultProfileName string        `yaml:"default_profile_name,omitempty"`
}

// ProfilesConfig is the loaded conversation profile set, mirroring
// original_source's ConversationProfileManager.
type ProfilesConfig struct {
	Profiles           []model.ConversationProfile
	DefaultProfileName string
	path               string
}

func defaultProfile() model.ConversationProfile {
	return model.ConversationProfile{Name: "default", SystemPrompt: "default system prompt"}
}

// LoadProfiles reads profiles.yml from dir. A missing file, or a file
// with no profiles at all, yields just the built-in default profile,
// matching ConversationProfileManager's own default field value.
func LoadProfiles(dir string) (*ProfilesConfig, error) {
	path := profilesPath(dir)

	var doc profilesFile
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// No config file yet.
	default:
		return nil, err
	}

	cfg := &ProfilesConfig{DefaultProfileName: doc.DefaultProfileName, path: path}
	if cfg.DefaultProfileName == "" {
		cfg.DefaultProfileName = "default"
	}

	seen := make(map[string]bool, len(doc.Profiles))
	for _, pf := range doc.Profiles {
		if seen[pf.Name] {
			return nil, errs.Newf(errs.KindConfig, "duplicate profile name: %s", pf.Name)
		}
		seen[pf.Name] = true
		cfg.Profiles = append(cfg.Profiles, model.ConversationProfile{
			Name:         pf.Name,
			SystemPrompt: pf.SystemPrompt,
			AccountRef:   pf.AccountRef,
			ModelRef:     pf.ModelRef,
			Temperature:  pf.Temperature,
			TopP:         pf.TopP,
			MaxTokens:    pf.MaxTokens,
			StreamMode:   pf.StreamMode,
		})
	}

	if !seen[cfg.DefaultProfileName] {
		if cfg.DefaultProfileName == "default" {
			cfg.Profiles = append(cfg.Profiles, defaultProfile())
			seen["default"] = true
		} else {
			return nil, errs.Newf(errs.KindConfig, "default profile not found: %s", cfg.DefaultProfileName)
		}
	}

	return cfg, nil
}

// ByName returns the profile with the given name.
func (c *ProfilesConfig) ByName(name string) (model.ConversationProfile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return model.ConversationProfile{}, false
}

// Default returns the configured default profile, falling back to the
// first profile if DefaultProfileName names none (mirrors
// ConversationProfileManager.default_profile's own log-and-fall-back).
func (c *ProfilesConfig) Default() model.ConversationProfile {
	if p, ok := c.ByName(c.DefaultProfileName); ok {
		return p
	}
	logger.WarnCF("config", "default profile not found, using first profile", map[string]any{"default_profile_name": c.DefaultProfileName})
	if len(c.Profiles) > 0 {
		return c.Profiles[0]
	}
	return defaultProfile()
}

// Add appends a new profile, rejecting a duplicate name.
func (c *ProfilesConfig) Add(p model.ConversationProfile) error {
	if _, ok := c.ByName(p.Name); ok {
		return errs.Newf(errs.KindConfig, "duplicate profile name: %s", p.Name)
	}
	c.Profiles = append(c.Profiles, p)
	return nil
}

// RepairDanglingRefs clears any AccountRef that no longer names a
// configured account, auto-correcting the profile in place rather than
// failing outright (spec §7's KindConfig: "invalid profile;
// auto-corrected where possible", grounded in the Open Question about
// orphaned defaults). It returns one description per repaired profile.
func (c *ProfilesConfig) RepairDanglingRefs(accounts *resolver.AccountManager) []string {
	var repairs []string
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if p.AccountRef == "" {
			continue
		}
		if _, ok := accounts.ByID(p.AccountRef); ok {
			continue
		}
		repairs = append(repairs, fmt.Sprintf("profile %q: account_ref %q no longer exists, cleared", p.Name, p.AccountRef))
		p.AccountRef = ""
	}
	return repairs
}

// Save writes every profile back to profiles.yml.
func (c *ProfilesConfig) Save() error {
	doc := profilesFile{DefaultProfileName: c.DefaultProfileName}
	for _, p := range c.Profiles {
		if p.Name == "default" && p.SystemPrompt == "default system prompt" && p.AccountRef == "" && p.ModelRef == "" {
			continue
		}
		doc.Profiles = append(doc.Profiles, profileFile{
			Name:         p.Name,
			SystemPrompt: p.SystemPrompt,
			AccountRef:   p.AccountRef,
			ModelRef:     p.ModelRef,
			Temperature:  p.Temperature,
			TopP:         p.TopP,
			MaxTokens:    p.MaxTokens,
			StreamMode:   p.StreamMode,
		})
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, raw, 0o600)
}
