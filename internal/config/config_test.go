package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen:
  port: 8080
llm:
  base_url: http://localhost:8000/v1
  model: test-model
mcp:
  transport: http
  url: http://localhost:9100/mcp
memory:
  capacity: 10
  archive_path: /tmp/transcript.db
tool_errors: abort
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("Port = %d", cfg.Listen.Port)
	}
	if cfg.LLM.Model != "test-model" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	if cfg.MCP.Transport != "http" || cfg.MCP.URL != "http://localhost:9100/mcp" {
		t.Errorf("MCP = %+v", cfg.MCP)
	}
	if cfg.Memory.Capacity != 10 {
		t.Errorf("Capacity = %d", cfg.Memory.Capacity)
	}
	if cfg.ToolErrors != "abort" {
		t.Errorf("ToolErrors = %q", cfg.ToolErrors)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  model: only-this
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen.Port != 9000 {
		t.Errorf("default port lost: %d", cfg.Listen.Port)
	}
	if cfg.Memory.Capacity != 5 {
		t.Errorf("default capacity lost: %d", cfg.Memory.Capacity)
	}
	if cfg.ToolErrors != "report" {
		t.Errorf("default tool_errors lost: %q", cfg.ToolErrors)
	}
	if cfg.LLM.Model != "only-this" {
		t.Errorf("override lost: %q", cfg.LLM.Model)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_WIP_KEY", "sk-secret")
	path := writeConfig(t, `
llm:
  api_key: ${TEST_WIP_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "sk-secret" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestFindConfigExplicit(t *testing.T) {
	path := writeConfig(t, "llm:\n  model: x\n")
	found, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig failed: %v", err)
	}
	if found != path {
		t.Errorf("found = %q, want %q", found, path)
	}
}
