package config

import (
	"strings"
	"testing"
)

func validBase() Config {
	return Config{
		LLM:    LLMConfig{Provider: "none"},
		Vector: VectorConfig{Dimension: 1536},
		Ingest: IngestConfig{ChunkSize: 1000, ChunkOverlap: 200},
		Chat:   ChatConfig{MaxTurns: 20},
	}
}

func TestValidate_Clean(t *testing.T) {
	cfg := validBase()
	if warnings := cfg.Validate(); len(warnings) != 0 {
		t.Errorf("valid config should have no warnings, got %v", warnings)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validBase()
	cfg.LLM.Provider = "openai"
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "api_key") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_NoneProvider(t *testing.T) {
	cfg := validBase()
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "api_key") {
			t.Error("'none' provider should not warn about missing api_key")
		}
	}
}

func TestValidate_Overlap(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		want    bool // true = should warn
	}{
		{"normal", 1000, 200, false},
		{"zero_overlap", 1000, 0, false},
		{"negative", 1000, -1, true},
		{"equal_to_size", 1000, 1000, true},
		{"above_size", 1000, 1500, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			cfg.Ingest.ChunkSize = tt.size
			cfg.Ingest.ChunkOverlap = tt.overlap
			hasWarn := false
			for _, w := range cfg.Validate() {
				if strings.Contains(w, "chunk_overlap") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("overlap=%d: hasWarn=%v, want=%v", tt.overlap, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_NegativeMaxChars(t *testing.T) {
	cfg := validBase()
	cfg.Chat.MaxChars = -1
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "max_chars") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about negative max_chars")
	}
}

func TestValidate_Dimension(t *testing.T) {
	cfg := validBase()
	cfg.Vector.Dimension = 0
	found := false
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "dimension") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about non-positive dimension")
	}
}
