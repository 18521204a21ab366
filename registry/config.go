package registry

import (
	"encoding/json"
	"os"

	"github.com/octaviocubillos/proobox/paths"
)

// Backend is the single recognized config.json section, per spec.md §4.5/§9:
// "The only recognized config keys are backend.url, backend.username,
// backend.token. Any other keys must be ignored." A plain struct decode
// already drops unknown top-level keys, satisfying that forward-compat rule
// without extra code.
type Backend struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Config is the top-level $BASE/config.json shape.
type Config struct {
	Backend Backend `json:"backend"`
}

// LoadConfig reads $BASE/config.json. A missing file is not an error — it
// returns a zero Config, which disables the registry tiers that need a
// backend, per spec.md §4.5.
func LoadConfig(layout *paths.Layout) (*Config, error) {
	data, err := os.ReadFile(layout.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Configured reports whether a backend is usable for registry tiers 2/push.
func (c *Config) Configured() bool {
	return c != nil && c.Backend.URL != ""
}
