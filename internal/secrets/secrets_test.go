package secrets

import (
	"context"
	"path/filepath"
	"testing"
)

func TestEnvProviderPrefix(t *testing.T) {
	t.Setenv("QUARRY_LLM_API_KEY", "sk-test")

	p := NewEnvProvider("QUARRY_")
	val, err := p.Get(context.Background(), string(SecretLLMAPIKey))
	if err != nil {
		t.Fatal(err)
	}
	if val != "sk-test" {
		t.Errorf("expected sk-test, got %q", val)
	}
}

func TestEnvProviderUnprefixedFallback(t *testing.T) {
	t.Setenv("CATALOG_PASSWORD", "hunter2")

	p := NewEnvProvider("QUARRY_")
	val, err := p.Get(context.Background(), string(SecretCatalogPassword))
	if err != nil {
		t.Fatal(err)
	}
	if val != "hunter2" {
		t.Errorf("expected hunter2, got %q", val)
	}
}

func TestEnvProviderMissing(t *testing.T) {
	p := NewEnvProvider("QUARRY_")
	if _, err := p.Get(context.Background(), "definitely_not_set_anywhere"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestFileProviderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	p, err := NewFileProvider(&FileConfig{Path: path, CreateIfMissing: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Set(context.Background(), "qdrant_api_key", "qk-123"); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewFileProvider(&FileConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	val, err := reopened.Get(context.Background(), "qdrant_api_key")
	if err != nil {
		t.Fatal(err)
	}
	if val != "qk-123" {
		t.Errorf("expected qk-123, got %q", val)
	}
}

func TestManagerFallsBackToEnv(t *testing.T) {
	t.Setenv("QUARRY_LLM_API_KEY", "from-env")

	path := filepath.Join(t.TempDir(), "secrets.json")
	m, err := NewManager(&Config{
		Provider:   "file",
		FileConfig: &FileConfig{Path: path, CreateIfMissing: true},
		EnvPrefix:  "QUARRY_",
	})
	if err != nil {
		t.Fatal(err)
	}

	val, err := m.Get(context.Background(), string(SecretLLMAPIKey))
	if err != nil {
		t.Fatal(err)
	}
	if val != "from-env" {
		t.Errorf("expected env fallback, got %q", val)
	}

	if got := m.GetOrDefault(context.Background(), "missing", "fallback"); got != "fallback" {
		t.Errorf("expected default, got %q", got)
	}
}

func TestManagerUnknownProvider(t *testing.T) {
	if _, err := NewManager(&Config{Provider: "vault"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
