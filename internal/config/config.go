package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/X0IVY/prompt-injection-detector/internal/analyzer"
	"github.com/X0IVY/prompt-injection-detector/internal/patterns"
	"github.com/X0IVY/prompt-injection-detector/internal/suspicion"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Heuristics are the tunable scoring and analysis constants. They can be set
// from a YAML file and overridden per key from the environment.
type Heuristics struct {
	SuspicionThreshold     float64 `yaml:"suspicion_threshold"`
	ComplexityThreshold    float64 `yaml:"complexity_threshold"`
	MinLength              int     `yaml:"min_length"`
	MaxLength              int     `yaml:"max_length"`
	MemorySaturationTokens int     `yaml:"memory_saturation_tokens"`
	MemoryWindowSize       int     `yaml:"memory_window_size"`
	SessionMaxHistory      int     `yaml:"session_max_history"`
	SessionMax             int     `yaml:"session_max"`
	PatternStoreMax        int     `yaml:"pattern_store_max"`
}

type Config struct {
	Port              int
	LogLevel          string
	StoreDriver       string
	DatabaseURL       string
	DataDir           string
	PatternCollection string
	NatsURL           string
	NatsToken         string
	SlackBotToken     string
	SlackChannel      string
	AlertsEnabled     bool
	APIToken          string
	HeuristicsFile    string
	Heuristics        Heuristics
}

func defaultHeuristics() Heuristics {
	return Heuristics{
		SuspicionThreshold:     patterns.DefaultSuspicionThreshold,
		ComplexityThreshold:    suspicion.DefaultComplexity,
		MinLength:              suspicion.DefaultMinLength,
		MaxLength:              suspicion.DefaultMaxLength,
		MemorySaturationTokens: analyzer.DefaultSaturationTokens,
		MemoryWindowSize:       analyzer.DefaultWindowSize,
		SessionMaxHistory:      analyzer.DefaultMaxHistory,
		SessionMax:             analyzer.DefaultMaxSessions,
		PatternStoreMax:        patterns.DefaultMaxRecords,
	}
}

// Load reads configuration from a .env file if present, the optional
// heuristics file and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:              envInt("DETECTOR_PORT", 8760),
		LogLevel:          envStr("LOG_LEVEL", "info"),
		StoreDriver:       strings.ToLower(envStr("STORE_DRIVER", DriverSQLite)),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		DataDir:           envStr("DETECTOR_DATA_DIR", defaultDataDir()),
		PatternCollection: envStr("PATTERN_COLLECTION", patterns.DefaultCollection),
		NatsURL:           envStr("NATS_URL", ""),
		NatsToken:         envStr("NATS_TOKEN", ""),
		SlackBotToken:     envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:      envStr("SLACK_ALERT_CHANNEL", ""),
		AlertsEnabled:     envBool("SLACK_ALERTS_ENABLED", true),
		APIToken:          envStr("DETECTOR_API_TOKEN", ""),
		HeuristicsFile:    envStr("DETECTOR_HEURISTICS_FILE", ""),
		Heuristics:        defaultHeuristics(),
	}

	if cfg.HeuristicsFile != "" {
		if err := loadHeuristics(cfg.HeuristicsFile, &cfg.Heuristics); err != nil {
			return Config{}, err
		}
	}

	h := &cfg.Heuristics
	h.SuspicionThreshold = envFloat("SUSPICION_THRESHOLD", h.SuspicionThreshold)
	h.ComplexityThreshold = envFloat("COMPLEXITY_THRESHOLD", h.ComplexityThreshold)
	h.MemorySaturationTokens = envInt("MEMORY_SATURATION_TOKENS", h.MemorySaturationTokens)
	h.MemoryWindowSize = envInt("MEMORY_WINDOW_SIZE", h.MemoryWindowSize)
	h.SessionMaxHistory = envInt("SESSION_MAX_HISTORY", h.SessionMaxHistory)
	h.SessionMax = envInt("SESSION_MAX", h.SessionMax)
	h.PatternStoreMax = envInt("PATTERN_STORE_MAX", h.PatternStoreMax)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadHeuristics overlays the keys present in the YAML file at path onto h.
func loadHeuristics(path string, h *Heuristics) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read heuristics file: %w", err)
	}
	if err := yaml.Unmarshal(data, h); err != nil {
		return fmt.Errorf("parse heuristics file %s: %w", path, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.StoreDriver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.PatternCollection == "" {
		return fmt.Errorf("pattern collection must not be empty")
	}

	h := c.Heuristics
	if h.SuspicionThreshold <= 0 || h.SuspicionThreshold > 1 {
		return fmt.Errorf("suspicion threshold must be in (0, 1], got %v", h.SuspicionThreshold)
	}
	if h.ComplexityThreshold <= 0 {
		return fmt.Errorf("complexity threshold must be positive, got %v", h.ComplexityThreshold)
	}
	if h.MinLength < 0 || h.MaxLength <= h.MinLength {
		return fmt.Errorf("invalid length bounds [%d, %d]", h.MinLength, h.MaxLength)
	}
	for name, v := range map[string]int{
		"memory saturation tokens": h.MemorySaturationTokens,
		"memory window size":       h.MemoryWindowSize,
		"session max history":      h.SessionMaxHistory,
		"session max":              h.SessionMax,
		"pattern store max":        h.PatternStoreMax,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	return nil
}

// NatsEnabled reports whether a NATS connection is configured.
func (c Config) NatsEnabled() bool {
	return c.NatsURL != ""
}

// SlackEnabled reports whether alert posting is configured and switched on.
func (c Config) SlackEnabled() bool {
	return c.AlertsEnabled && c.SlackBotToken != "" && c.SlackChannel != ""
}

func (c Config) ScorerThresholds() suspicion.Thresholds {
	return suspicion.Thresholds{
		Complexity: c.Heuristics.ComplexityThreshold,
		MinLength:  c.Heuristics.MinLength,
		MaxLength:  c.Heuristics.MaxLength,
	}
}

func (c Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		WindowSize:       c.Heuristics.MemoryWindowSize,
		SaturationTokens: c.Heuristics.MemorySaturationTokens,
		MaxHistory:       c.Heuristics.SessionMaxHistory,
		MaxSessions:      c.Heuristics.SessionMax,
	}
}

func (c Config) PatternOptions() patterns.Options {
	return patterns.Options{
		Collection:         c.PatternCollection,
		MaxRecords:         c.Heuristics.PatternStoreMax,
		SuspicionThreshold: c.Heuristics.SuspicionThreshold,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".detector"
	}
	return filepath.Join(home, ".detector")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
