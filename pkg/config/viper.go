package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/papercomputeco/switchboard/pkg/dotdir"
)

// envPrefix prefixes every environment variable read by viper, e.g.
// SWITCHBOARD_PROXY_LISTEN.
const envPrefix = "SWITCHBOARD"

// InitViper creates and returns a configured *viper.Viper.
// It loads .env files, sets defaults from NewDefaultConfig(), reads the
// config.toml file (if found via dotdir resolution), and binds environment
// variables with the SWITCHBOARD_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (SWITCHBOARD_PROXY_LISTEN, SWITCHBOARD_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if err := LoadDotEnv(target); err != nil {
		return nil, err
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// LoadDotEnv loads .env from the working directory and then from dirs.
// Variables already present in the environment are never overwritten, and
// missing files are skipped.
func LoadDotEnv(dirs ...string) error {
	paths := []string{".env"}
	for _, dir := range dirs {
		if dir != "" {
			paths = append(paths, filepath.Join(dir, ".env"))
		}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// Resolve applies viper's final value for every scalar key onto cfg, which
// is expected to come from Configer.LoadConfig so the routing table and
// finish-reason overrides are carried over from the file.
func Resolve(v *viper.Viper, cfg *Config) error {
	for _, key := range ValidConfigKeys() {
		raw := viperString(v, key)
		if raw == "" {
			continue
		}
		if expanded, ok := expandValue(raw); ok {
			raw = expanded
		}
		if err := configKeys[key].set(cfg, raw); err != nil {
			return err
		}
	}
	return nil
}

// viperString flattens list values (kafka_brokers from TOML) into the
// comma-separated form the key setters accept.
func viperString(v *viper.Viper, key string) string {
	switch val := v.Get(key).(type) {
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	}
	return v.GetString(key)
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	for key, info := range configKeys {
		v.SetDefault(key, info.get(d))
	}
}
