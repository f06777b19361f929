package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Config holds the full hnidx configuration.
type Config struct {
	DBPath     string        `toml:"db_path"`
	ListenAddr string        `toml:"listen_addr"`
	Indexer    IndexerConfig `toml:"indexer"`
	Janitor    JanitorConfig `toml:"janitor"`
	Cache      CacheConfig   `toml:"cache"`
}

// IndexerConfig controls the background indexing scheduler.
type IndexerConfig struct {
	Interval         Duration `toml:"interval"`
	BulkTarget       int      `toml:"bulk_target"`
	BulkPageSize     int      `toml:"bulk_page_size"`
	IncrementalCount int      `toml:"incremental_count"`
}

// JanitorConfig controls retention housekeeping.
type JanitorConfig struct {
	Interval    Duration `toml:"interval"`
	Retention   Duration `toml:"retention"`
	MaxDBSizeMB int64    `toml:"max_db_size_mb"`
}

// CacheConfig configures the optional Redis-backed cache. An empty Addr
// disables caching entirely.
type CacheConfig struct {
	Addr      string   `toml:"addr"`
	ItemTTL   Duration `toml:"item_ttl"`
	SearchTTL Duration `toml:"search_ttl"`
}

// Duration wraps time.Duration for TOML text (un)marshaling.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// GetDefaultConfig returns a configuration with all defaults applied.
func GetDefaultConfig() (*Config, error) {
	dataDir, err := GetDefaultDataDir()
	if err != nil {
		return nil, fmt.Errorf("getting default data directory: %w", err)
	}
	cfg := &Config{
		DBPath:     filepath.Join(dataDir, "hnidx.db"),
		ListenAddr: ":8080",
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.Indexer.Interval.Duration == 0 {
		c.Indexer.Interval = Duration{15 * time.Minute}
	}
	if c.Indexer.BulkTarget == 0 {
		c.Indexer.BulkTarget = 5000
	}
	if c.Indexer.BulkPageSize == 0 {
		c.Indexer.BulkPageSize = 500
	}
	if c.Indexer.IncrementalCount == 0 {
		c.Indexer.IncrementalCount = 20
	}
	if c.Janitor.Interval.Duration == 0 {
		c.Janitor.Interval = Duration{6 * time.Hour}
	}
	if c.Janitor.Retention.Duration == 0 {
		c.Janitor.Retention = Duration{90 * 24 * time.Hour}
	}
	if c.Janitor.MaxDBSizeMB == 0 {
		c.Janitor.MaxDBSizeMB = 512
	}
	if c.Cache.ItemTTL.Duration == 0 {
		c.Cache.ItemTTL = Duration{5 * time.Minute}
	}
	if c.Cache.SearchTTL.Duration == 0 {
		c.Cache.SearchTTL = Duration{time.Minute}
	}
}

// LoadConfig reads the configuration file, falling back to defaults when the
// file does not exist.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.DBPath == "" {
		dataDir, err := GetDefaultDataDir()
		if err != nil {
			return nil, fmt.Errorf("getting default data directory: %w", err)
		}
		config.DBPath = filepath.Join(dataDir, "hnidx.db")
	}
	config.applyDefaults()

	return &config, nil
}

// SaveConfig writes the configuration as TOML.
func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveTemplateConfig writes the annotated sample configuration, substituting
// the resolved database path.
func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template := strings.Replace(configTemplate, "/home/user/.local/share/hnidx/hnidx.db", c.DBPath, 1)
	return os.WriteFile(configPath, []byte(template), 0644)
}

// GetDefaultDataDir returns the default directory for the database file.
func GetDefaultDataDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	hnidxDir := filepath.Join(dataDir, "hnidx")
	if err := os.MkdirAll(hnidxDir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory %s: %w", hnidxDir, err)
	}

	return hnidxDir, nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	hnidxConfigDir := filepath.Join(configDir, "hnidx")
	if err := os.MkdirAll(hnidxConfigDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", hnidxConfigDir, err)
	}

	return filepath.Join(hnidxConfigDir, "config.toml"), nil
}
