package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchemeAliasFile is the on-disk shape of the alias seed file:
//
//	schemes:
//	  SCH001: [S001, "001"]
type SchemeAliasFile struct {
	Schemes map[string][]string `yaml:"schemes"`
}

// LoadSchemeAliasFile returns alias -> canonical scheme id.
func LoadSchemeAliasFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file SchemeAliasFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	aliases := make(map[string]string)
	for canonical, list := range file.Schemes {
		canonical = strings.TrimSpace(canonical)
		if canonical == "" {
			continue
		}
		for _, alias := range list {
			alias = strings.TrimSpace(alias)
			if alias == "" || alias == canonical {
				continue
			}
			if prev, ok := aliases[alias]; ok && prev != canonical {
				return nil, fmt.Errorf("alias %s maps to both %s and %s", alias, prev, canonical)
			}
			aliases[alias] = canonical
		}
	}
	return aliases, nil
}
