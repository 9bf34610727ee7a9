package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type GenrePreference string

const (
	PreferenceSame   GenrePreference = "same"
	PreferenceSwitch GenrePreference = "switch"
	PreferenceNone   GenrePreference = "none"
)

// PersonalTraits describe the simulated agent. They are read once, at
// concentration model construction.
type PersonalTraits struct {
	GenrePreference GenrePreference `toml:"genre_preference" yaml:"genre_preference"`
	GenreBonus      float64         `toml:"genre_bonus" yaml:"genre_bonus"`
	GenrePenalty    float64         `toml:"genre_penalty" yaml:"genre_penalty"`
	Sustainability  string          `toml:"sustainability" yaml:"sustainability"`
}

// LoadPersonal overlays the YAML file at path on base.
func LoadPersonal(path string, base PersonalTraits) (PersonalTraits, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return PersonalTraits{}, err
	}
	raw, err := os.ReadFile(resolved)
	if err != nil {
		return PersonalTraits{}, fmt.Errorf("read personal data %s: %w", resolved, err)
	}
	out := base
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return PersonalTraits{}, fmt.Errorf("decode personal data: %w", err)
	}
	if out.GenrePreference == "" {
		out.GenrePreference = PreferenceNone
	}
	return out, nil
}
