package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/shotover_agent/internal/settings"
)

// DefaultPages is the order in which multi-page flows visit the UI.
var DefaultPages = []string{
	"/network",
	"/controller",
	"/gimbal",
	"/lens",
	"/gimbal/motors",
	"/lens/motors",
	"/lens/rain_spinner",
}

// PagesConfig is the YAML file listing UI pages and import skip rules.
type PagesConfig struct {
	Pages     []string            `yaml:"pages"`
	SkipRules []settings.SkipRule `yaml:"skip_rules"`
}

// DefaultPagesConfig returns the built-in page list and skip rules.
func DefaultPagesConfig() *PagesConfig {
	return &PagesConfig{
		Pages:     append([]string(nil), DefaultPages...),
		SkipRules: settings.DefaultSkipRules(),
	}
}

// LoadPages reads the pages file. A missing file yields the defaults; a file
// that omits skip_rules keeps the default rules, and an explicit empty list
// disables them.
func LoadPages(path string) (*PagesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("pages config not found, using defaults", "path", path)
			return DefaultPagesConfig(), nil
		}
		return nil, fmt.Errorf("pages config: %w", err)
	}

	var raw struct {
		Pages     []string             `yaml:"pages"`
		SkipRules *[]settings.SkipRule `yaml:"skip_rules"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("pages config: %w", err)
	}

	cfg := DefaultPagesConfig()
	if len(raw.Pages) > 0 {
		cfg.Pages = cfg.Pages[:0]
		for i, p := range raw.Pages {
			p = strings.TrimSpace(p)
			if !strings.HasPrefix(p, "/") {
				return nil, fmt.Errorf("pages config: pages[%d] %q must start with /", i, p)
			}
			cfg.Pages = append(cfg.Pages, p)
		}
	}
	if raw.SkipRules != nil {
		cfg.SkipRules = *raw.SkipRules
		for i, r := range cfg.SkipRules {
			if r.ContainerContains == "" {
				return nil, fmt.Errorf("pages config: skip_rules[%d] missing container_contains", i)
			}
		}
	}
	return cfg, nil
}
