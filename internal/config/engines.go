package config

import "time"

// EnginesConfig is the engine catalog loaded from engines.yaml. It is
// hot-reloadable: new engines and pricing take effect without a restart.
type EnginesConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Engines   map[string]EngineEntry    `yaml:"engines"`
}

// ProviderConfig is the connection config for one upstream provider account.
type ProviderConfig struct {
	Type    string        `yaml:"type"` // "openai", "anthropic", or openai-compatible
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// EngineEntry describes one selectable engine: which provider account serves
// it, the provider-side model name, and its pricing in cents per million tokens.
type EngineEntry struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	DisplayName string `yaml:"display_name"`
	Enabled     bool   `yaml:"enabled"`
	InputRate   int64  `yaml:"input_rate_cents_per_mtok"`
	OutputRate  int64  `yaml:"output_rate_cents_per_mtok"`
}
