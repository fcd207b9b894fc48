package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type gatewaySettings struct {
	ManifestPath string   `mapstructure:"manifest_path" json:"manifest_path"`
	DefaultModel string   `mapstructure:"default_model" json:"default_model"`
	Fallbacks    []string `mapstructure:"fallbacks" json:"fallbacks"`
}

func writeSettings(t *testing.T, path, doc string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeSettings(t, path, `
manifest_path: ./manifest.yaml
default_model: gpt-4o-mini
fallbacks: [deepseek-chat]
`)

	cfg, err := Load[gatewaySettings](path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got := cfg.Get()
	if got.ManifestPath != "./manifest.yaml" || got.DefaultModel != "gpt-4o-mini" {
		t.Fatalf("Get() = %+v", got)
	}
	if len(got.Fallbacks) != 1 || got.Fallbacks[0] != "deepseek-chat" {
		t.Fatalf("Fallbacks = %v", got.Fallbacks)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load[gatewaySettings](filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeSettings(t, path, "manifest_path: ./manifest.yaml\n")

	cfg, err := Load(path, WithDefaults[gatewaySettings](map[string]any{
		"default_model": "gpt-4o-mini",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Get(); got.DefaultModel != "gpt-4o-mini" {
		t.Fatalf("DefaultModel = %q", got.DefaultModel)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeSettings(t, path, "fallbacks: [deepseek-chat, claude-3-5-sonnet]\n")

	cfg, err := Load[gatewaySettings](path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	first := cfg.Get()
	first.Fallbacks[0] = "mutated"

	if got := cfg.Get(); got.Fallbacks[0] != "deepseek-chat" {
		t.Fatalf("Get() leaked shared state: %v", got.Fallbacks)
	}
}

func TestOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeSettings(t, path, "default_model: gpt-4o-mini\n")

	cfg, err := Load[gatewaySettings](path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	changed := make(chan [2]string, 1)
	cfg.OnChange(func(old, new gatewaySettings) {
		select {
		case changed <- [2]string{old.DefaultModel, new.DefaultModel}:
		default:
		}
	})

	writeSettings(t, path, "default_model: deepseek-chat\n")

	select {
	case pair := <-changed:
		if pair[0] != "gpt-4o-mini" || pair[1] != "deepseek-chat" {
			t.Fatalf("OnChange(old=%q, new=%q)", pair[0], pair[1])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnChange callback not invoked")
	}

	if got := cfg.Get(); got.DefaultModel != "deepseek-chat" {
		t.Fatalf("DefaultModel after reload = %q", got.DefaultModel)
	}
}

func TestChanged(t *testing.T) {
	a := gatewaySettings{DefaultModel: "gpt-4o-mini", Fallbacks: []string{"deepseek-chat"}}
	b := a
	if Changed(a, b) {
		t.Fatal("identical values reported as changed")
	}
	b.Fallbacks = []string{"claude-3-5-sonnet"}
	if !Changed(a, b) {
		t.Fatal("differing values reported as unchanged")
	}
}
