package sources

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed hubs.yaml
var defaultHubs []byte

// Hub is a source region whose stories fan out to its spoke locales.
type Hub struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	City           string   `yaml:"city"`
	Country        string   `yaml:"country"`
	Region         string   `yaml:"region"`
	Borough        string   `yaml:"borough"`
	ResidencyQuery string   `yaml:"residency_query"`
	Keywords       []string `yaml:"blue_chip_keywords"`
	Pipelines      []string `yaml:"pipelines"`
	Spokes         []string `yaml:"spokes"`
}

// HubSet is the loaded hub & spoke map.
type HubSet struct {
	Hubs []Hub `yaml:"hubs"`
}

// LoadHubs reads the hub map from path, or the built-in map when path is
// empty.
func LoadHubs(path string) (HubSet, error) {
	data := defaultHubs
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return HubSet{}, fmt.Errorf("failed to read hubs file: %w", err)
		}
		data = b
	}
	return ParseHubs(data)
}

// ParseHubs decodes and validates a hub map.
func ParseHubs(data []byte) (HubSet, error) {
	var set HubSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return HubSet{}, fmt.Errorf("failed to parse hubs: %w", err)
	}
	seen := make(map[string]bool, len(set.Hubs))
	for _, h := range set.Hubs {
		if h.ID == "" {
			return HubSet{}, fmt.Errorf("hub without id")
		}
		if seen[h.ID] {
			return HubSet{}, fmt.Errorf("duplicate hub %q", h.ID)
		}
		seen[h.ID] = true
		if len(h.Spokes) == 0 {
			return HubSet{}, fmt.Errorf("hub %q has no spokes", h.ID)
		}
	}
	return set, nil
}

// For returns the hubs that feed the named pipeline.
func (s HubSet) For(pipeline string) []Hub {
	var out []Hub
	for _, h := range s.Hubs {
		if slices.Contains(h.Pipelines, pipeline) {
			out = append(out, h)
		}
	}
	return out
}

// RegionalKeywords maps hub ID to its extra blue-chip keywords.
func (s HubSet) RegionalKeywords() map[string][]string {
	out := make(map[string][]string, len(s.Hubs))
	for _, h := range s.Hubs {
		if len(h.Keywords) > 0 {
			out[h.ID] = h.Keywords
		}
	}
	return out
}
