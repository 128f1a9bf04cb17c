package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// SeedData is the decoded shape of a populate.source fixture file: table
// name to a list of field maps, one per row to insert at startup.
type SeedData map[string][]map[string]any

// LoadSeedData reads a populate.source fixture, choosing a decoder by file
// extension: .toml uses BurntSushi/toml (the format Loader itself favors
// for hand-edited config), .yaml/.yml uses yaml.v3 (common for
// machine-generated or test fixtures).
func LoadSeedData(path string) (SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read seed data %s: %w", path, err)
	}

	var data SeedData
	switch {
	case strings.HasSuffix(path, ".toml"):
		if _, err := toml.Decode(string(raw), &data); err != nil {
			return nil, fmt.Errorf("config: decode toml seed data %s: %w", path, err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("config: decode yaml seed data %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config: unrecognized seed data format %s (want .toml, .yaml, or .yml)", path)
	}
	return data, nil
}
