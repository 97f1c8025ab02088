// Package config loads the controller's settings from the environment and
// the page list from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the controller binary needs at startup.
type Config struct {
	// CDP connection
	CDPAddress    string
	CDPPort       int
	TabURLFilter  string
	EvalTimeoutMS int

	// HTTP API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Logging
	LogLevel string
	LogFile  string

	// Storage
	DataDir           string
	JournalMaxSizeMB  int
	JournalBufferSize int

	// Flow timing
	SettleDelayMS int
	NavDelayMS    int
	PassDelayMS   int
	ImportPasses  int
	IdleTimeoutMS int

	// Import behaviour
	Visibility      string
	DOMFallback     bool
	PagesConfigPath string

	// Tab activity
	PingTimeoutMS   int
	StaleRequestSec int

	// Notifications
	NtfyURL string

	// Browser launch
	LaunchBrowser bool
	StartURL      string
	ProfileDir    string
	Headless      bool
}

// Load reads configuration from environment variables and an optional .env
// file in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		TabURLFilter:      getEnvOrDefault("SHOTOVER_TAB_URL_FILTER", ""),
		EvalTimeoutMS:     getEnvIntOrDefault("SHOTOVER_EVAL_TIMEOUT_MS", 10000),
		BindAddr:          getEnvOrDefault("SHOTOVER_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:    getEnvListOrDefault("SHOTOVER_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:  getEnvBoolOrDefault("SHOTOVER_PORT_AUTO_FALLBACK", true),
		LogLevel:          strings.ToLower(getEnvOrDefault("SHOTOVER_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("SHOTOVER_LOG_FILE", "logs/shotover_controller.log"),
		DataDir:           getEnvOrDefault("SHOTOVER_DATA_DIR", "./shotover_data"),
		JournalMaxSizeMB:  getEnvIntOrDefault("SHOTOVER_JOURNAL_MAX_SIZE_MB", 20),
		JournalBufferSize: getEnvIntOrDefault("SHOTOVER_JOURNAL_BUFFER_SIZE", 1024),
		SettleDelayMS:     getEnvIntOrDefault("SHOTOVER_SETTLE_DELAY_MS", 2000),
		NavDelayMS:        getEnvIntOrDefault("SHOTOVER_NAV_DELAY_MS", 500),
		PassDelayMS:       getEnvIntOrDefault("SHOTOVER_PASS_DELAY_MS", 1000),
		ImportPasses:      getEnvIntOrDefault("SHOTOVER_IMPORT_PASSES", 2),
		IdleTimeoutMS:     getEnvIntOrDefault("SHOTOVER_IDLE_TIMEOUT_MS", 10000),
		Visibility:        strings.ToLower(getEnvOrDefault("SHOTOVER_VISIBILITY", "computed")),
		DOMFallback:       getEnvBoolOrDefault("SHOTOVER_DOM_FALLBACK", false),
		PagesConfigPath:   getEnvOrDefault("SHOTOVER_PAGES_CONFIG", "./config/pages.yaml"),
		PingTimeoutMS:     getEnvIntOrDefault("SHOTOVER_PING_TIMEOUT_MS", 5000),
		StaleRequestSec:   getEnvIntOrDefault("SHOTOVER_STALE_REQUEST_SEC", 120),
		NtfyURL:           getEnvOrDefault("SHOTOVER_NTFY_URL", ""),
		LaunchBrowser:     getEnvBoolOrDefault("SHOTOVER_LAUNCH_BROWSER", false),
		StartURL:          getEnvOrDefault("SHOTOVER_START_URL", "http://192.168.1.20/"),
		ProfileDir:        getEnvOrDefault("SHOTOVER_PROFILE_DIR", "./browser_profile"),
		Headless:          getEnvBoolOrDefault("SHOTOVER_BROWSER_HEADLESS", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EvalTimeoutMS < 1000 {
		c.EvalTimeoutMS = 1000
	}
	if c.ImportPasses < 1 {
		c.ImportPasses = 1
	}
	switch c.Visibility {
	case "computed", "inline":
	default:
		return fmt.Errorf("config: SHOTOVER_VISIBILITY must be computed or inline, got %q", c.Visibility)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: SHOTOVER_LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func (c *Config) EvalTimeout() time.Duration { return ms(c.EvalTimeoutMS) }
func (c *Config) SettleDelay() time.Duration { return ms(c.SettleDelayMS) }
func (c *Config) NavDelay() time.Duration    { return ms(c.NavDelayMS) }
func (c *Config) PassDelay() time.Duration   { return ms(c.PassDelayMS) }
func (c *Config) IdleTimeout() time.Duration { return ms(c.IdleTimeoutMS) }
func (c *Config) PingTimeout() time.Duration {
	return ms(c.PingTimeoutMS)
}

// StaleAfter is how long an HTML request may stay unfinished before the
// tracker stops counting it.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleRequestSec) * time.Second
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
