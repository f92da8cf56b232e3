// Package config loads application configuration from a YAML file,
// environment variables and command-line flags, in increasing precedence
// for explicitly set values.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix namespaces the environment variables read by Load. A double
// underscore separates nesting levels: KNOWCARDS_WEBDAV__BASE_URL maps to
// webdav.base_url.
const envPrefix = "KNOWCARDS_"

// Config is the full application configuration.
type Config struct {
	DBPath   string       `koanf:"db_path" validate:"required"`
	GroupCap int          `koanf:"group_cap" validate:"min=1"`
	Listen   string       `koanf:"listen" validate:"required"`
	WebDAV   WebDAVConfig `koanf:"webdav"`
	AI       AIConfig     `koanf:"ai"`
}

// WebDAVConfig configures the remote blob store used for sync.
type WebDAVConfig struct {
	BaseURL        string `koanf:"base_url" validate:"omitempty,url"`
	AuthToken      string `koanf:"auth_token"`
	TimeoutSeconds int    `koanf:"timeout_seconds" validate:"min=0"`
}

// AIConfig configures the text-completion collaborator.
type AIConfig struct {
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
}

// Flags returns the flag set carrying the configuration defaults. posflag
// feeds unset flag defaults into koanf, so defaults live here.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("knowcards", pflag.ContinueOnError)
	f.String("config", "", "Path to a YAML config file")
	f.String("db_path", "knowcards.db", "Path to the SQLite database file")
	f.Int("group_cap", 16, "Maximum number of groups")
	f.String("listen", ":8347", "HTTP listen address")
	f.String("webdav.base_url", "", "WebDAV server base URL")
	f.String("webdav.auth_token", "", "Pre-encoded Basic auth token for the WebDAV server")
	f.Int("webdav.timeout_seconds", 60, "Timeout for WebDAV requests in seconds")
	f.String("ai.base_url", "", "Chat-completions API base URL")
	f.String("ai.api_key", "", "Chat-completions API key")
	f.String("ai.model", "gpt-4o-mini", "Chat-completions model name")
	return f
}

// Load merges the config file (if any), KNOWCARDS_* environment variables
// and command-line flags into a validated Config.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		return strings.ReplaceAll(key, "__", "."), value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
