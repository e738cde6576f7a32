// Package config loads server configuration from a YAML file and applies
// environment variable overrides. MCP hosts usually configure the server via
// environment only, so every field is also reachable without a file.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the KIS MCP server.
type Config struct {
	KIS     KIS     `yaml:"kis"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

// KIS holds credentials and mode selection for the KIS open API.
type KIS struct {
	AppKey    string `yaml:"app_key"`
	AppSecret string `yaml:"app_secret"`
	AccountNo string `yaml:"account_no"` // "12345678-01"
	HTSID     string `yaml:"hts_id"`
	Virtual   bool   `yaml:"virtual"`    // mock-trading mode
	TokenPath string `yaml:"token_path"` // access-token cache file, optional
}

// Server holds transport selection and the HTTP listener configuration.
type Server struct {
	Transport string `yaml:"transport"` // "stdio" (default) or "http"
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"` // streamable HTTP endpoint path
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadFromEnv builds a Config from environment variables alone, for the
// common case of an MCP host launching the binary without a config file.
func LoadFromEnv() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = "stdio"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = "/mcp"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		cfg.KIS.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		cfg.KIS.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_NO"); v != "" {
		cfg.KIS.AccountNo = v
	}
	if v := os.Getenv("KIS_HTS_ID"); v != "" {
		cfg.KIS.HTSID = v
	}
	if v := os.Getenv("KIS_TOKEN_PATH"); v != "" {
		cfg.KIS.TokenPath = v
	}
	if v := os.Getenv("VIRTUAL_TRADING"); v != "" {
		cfg.KIS.Virtual = strings.EqualFold(v, "true")
	}

	if v := os.Getenv("MCP_TRANSPORT"); v != "" {
		cfg.Server.Transport = v
	}
	if v := os.Getenv("MCP_HTTP_ADDR"); v != "" {
		if host, port, ok := splitHostPort(v); ok {
			cfg.Server.Host = host
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func splitHostPort(addr string) (string, int, bool) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", 0, false
	}
	port := 0
	for _, c := range addr[i+1:] {
		if c < '0' || c > '9' {
			return "", 0, false
		}
		port = port*10 + int(c-'0')
	}
	if port == 0 {
		return "", 0, false
	}
	return addr[:i], port, true
}
