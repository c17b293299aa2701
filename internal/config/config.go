package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ExportRoot  string `toml:"export_root"`
	DBPath      string `toml:"db_path"`
	SelfLabel   string `toml:"self_label"`
	DirPrefix   string `toml:"dir_prefix"`
	MinDigits   int    `toml:"min_digits"`
	BatchSize   int    `toml:"batch_size"`
	LogLevel    string `toml:"log_level"`
	ExporterBin string `toml:"exporter_bin"`
}

// Dir returns the config directory. IMSGDB_CONFIG_DIR overrides the default
// ~/.config/imsgdb, which keeps tests away from the real home directory.
func Dir() (string, error) {
	if override := os.Getenv("IMSGDB_CONFIG_DIR"); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "imsgdb"), nil
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ExportRoot:  "exported",
		DBPath:      filepath.Join(dir, "imessage.db"),
		SelfLabel:   "Me",
		DirPrefix:   "p",
		MinDigits:   10,
		BatchSize:   500,
		LogLevel:    "info",
		ExporterBin: "imessage-exporter",
	}

	cfgPath := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	// expand ~ in paths
	cfg.ExportRoot = expandHome(cfg.ExportRoot, home)
	cfg.DBPath = expandHome(cfg.DBPath, home)

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.DirPrefix == "" {
		return nil, fmt.Errorf("parse config %s: dir_prefix must not be empty", cfgPath)
	}

	return cfg, nil
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
