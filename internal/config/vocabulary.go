package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Yeiad-Explore/studynet-counselor-agent/internal/core/domain"
)

// LoadVocabulary returns the built-in vocabulary overlaid with the YAML
// file at path. An empty path yields the built-in vocabulary.
func LoadVocabulary(path string) (domain.Vocabulary, error) {
	base := domain.DefaultVocabulary()
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read vocabulary file: %w", err)
	}
	var override domain.Vocabulary
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return base, fmt.Errorf("parse vocabulary file: %w", err)
	}
	return base.Merge(override), nil
}
