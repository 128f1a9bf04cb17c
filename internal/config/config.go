// Package config loads the store's configuration (in-memory populate
// directives, or a relational collaborator's connection settings) via
// viper, with TOML as the primary file format, YAML accepted for fixtures,
// and fsnotify-driven hot reload — grounded on the teacher's
// internal/config/yaml_config.go viper-backed pattern, generalized from its
// single global config.yaml to an explicit, injectable Config.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Populate describes how a table store should seed itself on startup.
type Populate struct {
	GenerateTables bool     `mapstructure:"generate_tables"`
	Tables         []string `mapstructure:"tables"`
	Source         string   `mapstructure:"source"`
}

// Relational describes how to reach a real relational collaborator.
type Relational struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Database       string   `mapstructure:"database"`
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	MinConnections int      `mapstructure:"min_connections"`
	MaxConnections int      `mapstructure:"max_connections"`
	Populate       Populate `mapstructure:"populate"`
}

// Config is the top-level configuration tree.
type Config struct {
	Populate   Populate   `mapstructure:"populate"`
	Relational Relational `mapstructure:"relational"`
}

// Loader wraps a viper instance bound to a config file, supporting hot
// reload via fsnotify.
type Loader struct {
	v        *viper.Viper
	onChange func(*Config)
}

// NewLoader creates a Loader that reads path (TOML by default; extension
// drives format detection, so a .yaml/.yml file is read as YAML).
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("relational.min_connections", 1)
	v.SetDefault("relational.max_connections", 8)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return &Loader{v: v}, nil
}

// Load unmarshals the current configuration.
func (l *Loader) Load() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// WatchForChanges invokes onChange with the freshly reloaded configuration
// whenever the underlying file changes, debounced briefly since editors
// frequently emit several fsnotify events for one save.
func (l *Loader) WatchForChanges(onChange func(*Config)) {
	l.onChange = onChange
	l.v.OnConfigChange(func(e fsnotify.Event) {
		time.Sleep(50 * time.Millisecond)
		cfg, err := l.Load()
		if err != nil {
			slog.Warn("config: reload failed", "event", e.Name, "error", err)
			return
		}
		l.onChange(cfg)
	})
	l.v.WatchConfig()
}

// DSN builds a MySQL-dialect data source name from a Relational config,
// suitable for the go-sql-driver/mysql or dolthub/driver adapters.
func (r Relational) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		r.Username, r.Password, r.Host, r.Port, r.Database)
}
