package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/engram-labs/engram/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8741 {
		t.Fatalf("unexpected default port %d", cfg.Port)
	}
	if cfg.Provider != "ollama" {
		t.Fatalf("unexpected default provider %q", cfg.Provider)
	}
	if cfg.EmbeddingDim != 768 {
		t.Fatalf("unexpected default dimension %d", cfg.EmbeddingDim)
	}
	if cfg.DefaultThreshold != models.DefaultThreshold {
		t.Fatalf("unexpected default threshold %f", cfg.DefaultThreshold)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("EMBEDDING_PROVIDER", "mock")
	t.Setenv("DEFAULT_THRESHOLD", "0.55")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("PORT override ignored, got %d", cfg.Port)
	}
	if cfg.Provider != "mock" {
		t.Fatalf("provider override ignored, got %q", cfg.Provider)
	}
	if cfg.DefaultThreshold != 0.55 {
		t.Fatalf("threshold override ignored, got %f", cfg.DefaultThreshold)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yml")
	if err := os.WriteFile(path, []byte("port: 9100\nembedding_model: all-minilm\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ENGRAM_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9100 {
		t.Fatalf("yaml port ignored, got %d", cfg.Port)
	}
	if cfg.EmbeddingModel != "all-minilm" {
		t.Fatalf("yaml model ignored, got %q", cfg.EmbeddingModel)
	}

	// Env still wins over the file.
	t.Setenv("PORT", "9200")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Port != 9200 {
		t.Fatalf("env should win over yaml, got %d", cfg.Port)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("PORT", "70000")
		_, err := Load()
		if !errors.Is(err, models.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv("EMBEDDING_PROVIDER", "carrier-pigeon")
		_, err := Load()
		if !errors.Is(err, models.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("bad dimension", func(t *testing.T) {
		t.Setenv("EMBEDDING_DIM", "-5")
		_, err := Load()
		if !errors.Is(err, models.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		t.Setenv("ENGRAM_CONFIG", filepath.Join(t.TempDir(), "absent.yml"))
		_, err := Load()
		if !errors.Is(err, models.ErrConfiguration) {
			t.Fatalf("expected ErrConfiguration, got %v", err)
		}
	})
}
