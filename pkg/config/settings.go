package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ImageSettings holds the image resize defaults, mirroring
// original_source's ImagesSettings (config/main_config.py). Nothing converts
// them into attachments.ResolveOptions; each engine uses its own fixed options.
type ImageSettings struct {
	MaxWidth  int  `yaml:"max_width"`
	MaxHeight int  `yaml:"max_height"`
	Quality   int  `yaml:"quality"`
	Resize    bool `yaml:"resize"`
}

// GeneralSettings is the subset of original_source's GeneralSettings
// relevant to a headless conversation engine: language (for
// provider-side locale hints) and log level (spec §6's --log-level).
type GeneralSettings struct {
	Language string `yaml:"language"`
	LogLevel string `yaml:"log_level"`
}

// Settings is the root document of config.yml: the engine-wide defaults
// that are not accounts or profiles.
type Settings struct {
	General GeneralSettings `yaml:"general"`
	Images  ImageSettings   `yaml:"images"`

	path string
}

func defaultSettings() Settings {
	return Settings{
		General: GeneralSettings{Language: "auto", LogLevel: "INFO"},
		Images:  ImageSettings{MaxHeight: 720, MaxWidth: 0, Quality: 85, Resize: false},
	}
}

// LoadSettings reads config.yml from dir, falling back to defaults for
// any field (or the whole file) that is absent.
func LoadSettings(dir string) (*Settings, error) {
	path := filepath.Join(dir, "config.yml")
	s := defaultSettings()
	s.path = path

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		s.path = path
	case os.IsNotExist(err):
		// Use defaults.
	default:
		return nil, err
	}
	return &s, nil
}

// Save writes the settings back to config.yml.
func (s *Settings) Save() error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}
