package rewrite

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultSynonyms maps informal user phrasing to canonical entity names.
// Longer phrases are substituted before shorter ones.
var defaultSynonyms = map[string]string{
	"old bisq":      "Bisq 1",
	"legacy bisq":   "Bisq 1",
	"bisq v1":       "Bisq 1",
	"new bisq":      "Bisq 2",
	"bisq v2":       "Bisq 2",
	"bisq easy":     "Bisq Easy",
	"easy protocol": "Bisq Easy",
	"the dao":       "the Bisq DAO",
}

// knownEntities are canonical names the heuristic track can resolve
// pronouns against, checked in order of specificity.
var knownEntities = []string{
	"Bisq Easy",
	"Bisq 2",
	"Bisq 1",
	"Bisq DAO",
	"BSQ",
	"reputation",
	"mediation",
	"arbitration",
}

type synonymFile struct {
	Synonyms map[string]string `yaml:"synonyms"`
}

// LoadSynonyms merges a YAML synonym table over the built-in defaults.
// An empty path returns the defaults unchanged.
func LoadSynonyms(path string) (map[string]string, error) {
	merged := make(map[string]string, len(defaultSynonyms))
	for k, v := range defaultSynonyms {
		merged[k] = v
	}
	if path == "" {
		return merged, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read synonym table: %w", err)
	}
	var parsed synonymFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse synonym table: %w", err)
	}
	for k, v := range parsed.Synonyms {
		merged[k] = v
	}
	return merged, nil
}
