package signature

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File represents the signatures configuration file
type File struct {
	Signatures []RuleConfig `yaml:"signatures"`
}

// RuleConfig represents a single signature rule
type RuleConfig struct {
	Extension string         `yaml:"extension"`
	Prefixes  []PrefixConfig `yaml:"prefixes"`
	SkipCheck bool           `yaml:"skip_check"`
}

// PrefixConfig represents one expected header prefix, written either
// as hex bytes or as ASCII text. Exactly one form must be set.
type PrefixConfig struct {
	Hex   string `yaml:"hex"`
	ASCII string `yaml:"ascii"`
}

func (p PrefixConfig) bytes() ([]byte, error) {
	switch {
	case p.Hex != "" && p.ASCII != "":
		return nil, fmt.Errorf("prefix sets both hex and ascii")
	case p.Hex != "":
		b, err := hex.DecodeString(p.Hex)
		if err != nil {
			return nil, fmt.Errorf("invalid hex prefix %q: %w", p.Hex, err)
		}
		return b, nil
	case p.ASCII != "":
		return []byte(p.ASCII), nil
	default:
		return nil, fmt.Errorf("prefix sets neither hex nor ascii")
	}
}

// LoadTable loads the signature table with 3-level fallback:
// 1. Explicit path (--signatures flag)
// 2. Home directory (~/.filesentry/signatures.yaml)
// 3. Embedded default (passed as defaultData)
func LoadTable(path string, defaultData []byte) (*Table, error) {
	var data []byte
	var err error

	// Level 1: Explicit path (for development/debugging)
	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		// Level 2: Home directory (for advanced users)
		home, err := os.UserHomeDir()
		if err == nil {
			homeTable := filepath.Join(home, ".filesentry", "signatures.yaml")
			if fileExists(homeTable) {
				data, err = os.ReadFile(homeTable)
				if err == nil {
					// Successfully loaded from home directory
					goto parseTable
				}
			}
		}

		// Level 3: Embedded default (for 99% of users)
		data = defaultData
	}

parseTable:
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(file.Signatures))
	for _, rc := range file.Signatures {
		rule := Rule{Extension: rc.Extension, SkipCheck: rc.SkipCheck}
		for _, pc := range rc.Prefixes {
			b, err := pc.bytes()
			if err != nil {
				return nil, fmt.Errorf("signature %q: %w", rc.Extension, err)
			}
			rule.Prefixes = append(rule.Prefixes, b)
		}
		rules = append(rules, rule)
	}

	return NewTable(rules)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
