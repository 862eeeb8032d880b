package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeAliasFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write alias file: %v", err)
	}
	return path
}

func TestLoadSchemeAliasFile(t *testing.T) {
	path := writeAliasFile(t, `
schemes:
  EQ1: [old-eq, "001", " EQ1 ", ""]
  DEBT1:
    - old-debt
`)
	aliases, err := LoadSchemeAliasFile(path)
	if err != nil {
		t.Fatalf("LoadSchemeAliasFile: %v", err)
	}
	want := map[string]string{"old-eq": "EQ1", "001": "EQ1", "old-debt": "DEBT1"}
	if len(aliases) != len(want) {
		t.Fatalf("aliases = %v, want %v", aliases, want)
	}
	for alias, canonical := range want {
		if aliases[alias] != canonical {
			t.Fatalf("alias %s = %q, want %q", alias, aliases[alias], canonical)
		}
	}
}

func TestLoadSchemeAliasFileRejectsConflicts(t *testing.T) {
	path := writeAliasFile(t, `
schemes:
  EQ1: [shared]
  EQ2: [shared]
`)
	_, err := LoadSchemeAliasFile(path)
	if err == nil || !strings.Contains(err.Error(), "shared") {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestLoadSchemeAliasFileErrors(t *testing.T) {
	if _, err := LoadSchemeAliasFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := writeAliasFile(t, "schemes: [not, a, map]\n")
	if _, err := LoadSchemeAliasFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
