package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrefersFileOverInlineValue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("  from-file\n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	got, err := Load(Source{Name: "search api key", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "from-file" {
		t.Fatalf("expected trimmed file content, got %q", got)
	}
}

func TestLoadFallsBackToInlineValue(t *testing.T) {
	t.Parallel()

	got, err := Load(Source{Name: "search api key", Value: " inline \n"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got != "inline" {
		t.Fatalf("expected trimmed inline value, got %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	emptyFile := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(emptyFile, []byte("   \n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	tests := []struct {
		name    string
		source  Source
		mention string
	}{
		{
			name:    "nothing configured",
			source:  Source{Name: "gemini api key"},
			mention: "gemini api key",
		},
		{
			name:    "missing file",
			source:  Source{Name: "gemini api key", File: filepath.Join(t.TempDir(), "absent")},
			mention: "gemini api key",
		},
		{
			name:    "empty file",
			source:  Source{Name: "gemini api key", File: emptyFile},
			mention: "is empty",
		},
		{
			name:    "unnamed secret",
			source:  Source{},
			mention: "secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(tt.source)
			if err == nil {
				t.Fatal("expected an error")
			}

			if !strings.Contains(err.Error(), tt.mention) {
				t.Fatalf("expected error mentioning %q, got %v", tt.mention, err)
			}
		})
	}
}
