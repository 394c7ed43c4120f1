package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Publisher.Prefix != "jr" {
		t.Fatalf("prefix = %q", cfg.Publisher.Prefix)
	}
	if cfg.Project.DefaultTemplate != "standard-project" {
		t.Fatalf("default template = %q", cfg.Project.DefaultTemplate)
	}
	if cfg.Server.Addr != ":8787" || cfg.Server.BasePath != "/v0" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if !cfg.Platform.Dataverse {
		t.Fatal("dataverse default should be on")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestGenerateDefaultRoundTrip(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Publisher.UniqueName != "jimiryquai" {
		t.Fatalf("publisher = %+v", cfg.Publisher)
	}
}

func TestValidatePrefix(t *testing.T) {
	cases := []struct {
		prefix string
		want   string
	}{
		{"", "config.publisher.prefix is required"},
		{"j", "must be 2-8 characters"},
		{"waytoolongp", "must be 2-8 characters"},
		{"JR", "must be lowercase"},
		{"j r", "must be alphanumeric"},
		{"1jr", "must start with a letter"},
		{"jr2", ""},
	}
	for _, c := range cases {
		cfg := Default()
		cfg.Publisher.Prefix = c.prefix
		err := cfg.Validate()
		if c.want == "" {
			if err != nil {
				t.Errorf("prefix %q: unexpected error %v", c.prefix, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("prefix %q: err = %v, want %q", c.prefix, err, c.want)
		}
	}
}

func TestValidateVisibility(t *testing.T) {
	cfg := Default()
	cfg.WorkTracking.Visibility = "secret"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected visibility error")
	}
	cfg.WorkTracking.Visibility = "public"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateWebhooksAndKeys(t *testing.T) {
	cfg := Default()
	cfg.Webhooks = []WebhookConfig{{URL: "  "}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "webhooks[0].url") {
		t.Fatalf("err = %v", err)
	}

	cfg = Default()
	cfg.Server.APIKeys = []APIKeyConfig{{Name: "ci", Key: ""}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "api_keys[0].key") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Publisher.Prefix != "jr" {
		t.Fatalf("missing file should yield defaults, got %+v", cfg.Publisher)
	}

	custom := strings.Replace(GenerateDefault(), "prefix: jr", "prefix: acme", 1)
	if err := os.WriteFile(filepath.Join(dir, "ppo.yml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Publisher.Prefix != "acme" {
		t.Fatalf("prefix = %q", cfg.Publisher.Prefix)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "ppo init") {
		t.Fatalf("err = %v", err)
	}
}

func TestFromYAMLInvalid(t *testing.T) {
	if _, err := FromYAML([]byte("publisher: [")); err == nil {
		t.Fatal("expected yaml error")
	}
}
