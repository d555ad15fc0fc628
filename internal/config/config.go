// Package config handles wip-agent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/wip-agent/config.yaml, /etc/wip-agent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "wip-agent", "config.yaml"))
	}

	paths = append(paths, "/etc/wip-agent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all wip-agent configuration.
type Config struct {
	Listen       ListenConfig    `yaml:"listen"`
	LLM          LLMConfig       `yaml:"llm"`
	MCP          MCPConfig       `yaml:"mcp"`
	Retriever    RetrieverConfig `yaml:"retriever"`
	Memory       MemoryConfig    `yaml:"memory"`
	SystemPrompt string          `yaml:"system_prompt"`
	ToolErrors   string          `yaml:"tool_errors"` // "report" (default) or "abort"
	LogLevel     string          `yaml:"log_level"`
	LogFormat    string          `yaml:"log_format"` // "text" (default) or "json"
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the completion backend. Any OpenAI-compatible
// chat-completions endpoint works (OpenAI, Groq, vLLM, LM Studio, ...).
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// MCPConfig defines how to reach the widget MCP server.
type MCPConfig struct {
	// Transport selects "stdio" (subprocess) or "http".
	Transport string `yaml:"transport"`

	// Command and Args launch the server subprocess (stdio transport).
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`

	// URL is the server endpoint (http transport).
	URL string `yaml:"url"`
	// Headers are sent with every request (e.g., Authorization).
	Headers map[string]string `yaml:"headers"`
}

// RetrieverConfig defines the optional embedding-based widget retriever.
// When disabled, every chat turn exposes the full widget catalog.
type RetrieverConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"` // Embedding endpoint (Ollama-compatible)
	Model   string `yaml:"model"`    // Embedding model (e.g., nomic-embed-text)
	TopK    int    `yaml:"top_k"`    // Widgets per prompt (default 5)
}

// MemoryConfig defines session memory settings.
type MemoryConfig struct {
	// Capacity is the per-session message limit K. Oldest entries are
	// evicted first; the pinned system entry is preserved.
	Capacity int `yaml:"capacity"`

	// ArchivePath enables the SQLite transcript archive when non-empty.
	ArchivePath string `yaml:"archive_path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 9000},
		LLM: LLMConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "openai/gpt-oss-20b",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Command:   "wip-server",
			Args:      []string{"--transport", "stdio", "--input-dir", "resources/widgets"},
		},
		Retriever:  RetrieverConfig{TopK: 5},
		Memory:     MemoryConfig{Capacity: 5},
		ToolErrors: "report",
	}
}
