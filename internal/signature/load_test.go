package signature

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTable_ExplicitFile(t *testing.T) {
	yaml := `
signatures:
  - extension: pdf
    prefixes:
      - ascii: "%PDF"
  - extension: png
    prefixes:
      - hex: "89504e470d0a1a0a"
  - extension: gif
    prefixes:
      - ascii: "GIF87a"
      - ascii: "GIF89a"
  - extension: txt
    skip_check: true
`
	path := filepath.Join(t.TempDir(), "signatures.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path, nil)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}

	if table.Len() != 4 {
		t.Errorf("Len() = %d, want 4", table.Len())
	}

	rule, ok := table.Lookup("png")
	if !ok {
		t.Fatal("Lookup(png) not found")
	}
	want := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if len(rule.Prefixes) != 1 || string(rule.Prefixes[0]) != string(want) {
		t.Errorf("png prefix = %x, want %x", rule.Prefixes[0], want)
	}

	if got := table.Identify([]byte("GIF89a...")); got != "gif" {
		t.Errorf("Identify() = %q, want gif", got)
	}
}

func TestLoadTable_EmbeddedFallback(t *testing.T) {
	// Point the home lookup at an empty directory so level 2 misses.
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	embedded := []byte(`
signatures:
  - extension: exe
    prefixes:
      - ascii: "MZ"
`)
	table, err := LoadTable("", embedded)
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestLoadTable_HomeOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	dir := filepath.Join(home, ".filesentry")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	custom := []byte(`
signatures:
  - extension: wasm
    prefixes:
      - hex: "0061736d"
`)
	if err := os.WriteFile(filepath.Join(dir, "signatures.yaml"), custom, 0644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable("", []byte(`signatures: []`))
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if _, ok := table.Lookup("wasm"); !ok {
		t.Error("home override not loaded")
	}
}

func TestLoadTable_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "both hex and ascii",
			yaml: `
signatures:
  - extension: pdf
    prefixes:
      - hex: "25"
        ascii: "%PDF"
`,
		},
		{
			name: "neither hex nor ascii",
			yaml: `
signatures:
  - extension: pdf
    prefixes:
      - {}
`,
		},
		{
			name: "invalid hex",
			yaml: `
signatures:
  - extension: pdf
    prefixes:
      - hex: "zz"
`,
		},
		{
			name: "duplicate extensions",
			yaml: `
signatures:
  - extension: pdf
    prefixes:
      - ascii: "%PDF"
  - extension: pdf
    prefixes:
      - ascii: "%PDF"
`,
		},
		{
			name: "not yaml",
			yaml: `signatures: [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "signatures.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadTable(path, nil); err == nil {
				t.Error("LoadTable() error = nil, want error")
			}
		})
	}
}
