package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Lockouts     LockoutsConfig     `yaml:"lockouts"`
	Transactions TransactionsConfig `yaml:"transaction_logging"`
	Scan         ScanConfig         `yaml:"scan"`
	Storage      StorageConfig      `yaml:"storage"`
	States       map[string]State   `yaml:"states"`
	Notes        NotesConfig        `yaml:"notes"`
	Refresh      RefreshConfig      `yaml:"refresh"`
	Report       ReportConfig       `yaml:"report"`
	Notify       NotifyConfig       `yaml:"notify"`
}

// ServerConfig holds the HTTP/websocket server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the record-store connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "mysql" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LockoutsConfig holds the advisory lockout store configuration. The
// subsystem is optional; when disabled all lockout operations are no-ops.
type LockoutsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabaseFile string `yaml:"database_file"`
}

// TransactionsConfig holds the transaction log configuration.
type TransactionsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabaseFile string `yaml:"database_file"`
}

// ScanConfig controls how raw scanner input is interpreted.
type ScanConfig struct {
	CommandPrefix string `yaml:"command_prefix"`
}

// StorageConfig maps bay types to the naming prefix used in the record store.
type StorageConfig struct {
	Prefixes map[string]string `yaml:"prefixes"`
}

// State carries the workflow flags for one record-store status id. The
// record store only knows display data; these flags drive the workflow.
type State struct {
	Name           string `yaml:"name"`
	OnSite         bool   `yaml:"on_site"`
	WorkInProgress bool   `yaml:"work_in_progress"`
	IsStored       bool   `yaml:"is_stored"`
	ExtraAlert     string `yaml:"extra_alert"`
}

// NotesConfig toggles the explanatory notes appended on bay changes.
type NotesConfig struct {
	OnAssign   bool `yaml:"on_assign"`
	OnRelocate bool `yaml:"on_relocate"`
}

// RefreshConfig controls the periodic occupancy broadcast.
type RefreshConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// ReportConfig controls the periodic daily-report broadcast.
type ReportConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"`
}

// NotifyConfig holds the outbound notification service configuration.
type NotifyConfig struct {
	Enabled  bool                     `yaml:"enabled"`
	Server   string                   `yaml:"server"`
	Messages map[string]NotifyMessage `yaml:"messages"`
}

// NotifyMessage routes one message type to a carrier and recipient.
type NotifyMessage struct {
	Carrier   string `yaml:"carrier"`
	Recipient string `yaml:"recipient"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.Database.Driver != "mysql" && cfg.Database.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Scan.CommandPrefix == "" {
		cfg.Scan.CommandPrefix = "PCRT_SCAN_"
	}

	if len(cfg.Storage.Prefixes) == 0 {
		log.Printf("storage.prefixes is not set; bay types will resolve to unknown")
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Refresh.IntervalSeconds <= 0 {
		cfg.Refresh.IntervalSeconds = 60
	}
	cfg.Refresh.Interval = time.Duration(cfg.Refresh.IntervalSeconds) * time.Second

	if cfg.Report.IntervalSeconds <= 0 {
		cfg.Report.IntervalSeconds = 3600
	}
	cfg.Report.Interval = time.Duration(cfg.Report.IntervalSeconds) * time.Second

	return &cfg, nil
}

// TerminalStateID returns the status id configured with the terminal
// ("collected") alias, or an error when none is configured. Without a
// terminal state open and closed work orders are indistinguishable, so
// callers treat this as fatal at startup.
func (c *Config) TerminalStateID() (string, error) {
	for id, st := range c.States {
		if st.Name == "collected" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no state with name %q configured", "collected")
}
