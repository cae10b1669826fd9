// Package config provides persistent configuration for the mirac CLI.
//
// Configuration is stored as JSON at ~/.config/mirac/config.json
// (XDG-compliant). The merge priority is: CLI flags > environment >
// config file > defaults. Environment overrides use MIRAC_* variables and
// may come from a .env file in the working directory.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/smokyabdulrahman/mirac/internal/logging"
	"github.com/smokyabdulrahman/mirac/internal/prayer"
)

const (
	configDirName  = "mirac"
	configFileName = "config.json"
	envPrefix      = "MIRAC_"
)

// ValidKeys lists all config keys that can be set via `config set`.
var ValidKeys = []string{
	"city", "country",
	"latitude", "longitude",
	"method", "school", "latitude_adjustment",
	"time_format",
	"prayers",
	"cache_dir", "cache_backend", "redis_addr",
	"adhan_enabled", "adhan_command",
	"mqtt_broker", "mqtt_topic",
	"log_level",
}

// Config holds all user-configurable settings.
// Zero values mean "not set" (use defaults or auto-detect).
type Config struct {
	City               string  `json:"city,omitempty"`
	Country            string  `json:"country,omitempty"`
	Latitude           float64 `json:"latitude,omitempty"`
	Longitude          float64 `json:"longitude,omitempty"`
	Method             *int    `json:"method,omitempty"`              // pointer so we can distinguish "not set" from 0
	School             *int    `json:"school,omitempty"`              // pointer so we can distinguish "not set" from 0
	LatitudeAdjustment *int    `json:"latitude_adjustment,omitempty"` // high-latitude rule, 0-3
	TimeFormat         string  `json:"time_format,omitempty"`         // "12h" or "24h"
	Prayers            string  `json:"prayers,omitempty"`             // comma-separated list
	CacheDir           string  `json:"cache_dir,omitempty"`
	CacheBackend       string  `json:"cache_backend,omitempty"` // "file", "redis" or "sqlite"
	RedisAddr          string  `json:"redis_addr,omitempty"`
	AdhanEnabled       *bool   `json:"adhan_enabled,omitempty"`
	AdhanCommand       string  `json:"adhan_command,omitempty"` // player command; {url} is replaced
	MQTTBroker         string  `json:"mqtt_broker,omitempty"`   // e.g. tcp://localhost:1883
	MQTTTopic          string  `json:"mqtt_topic,omitempty"`
	LogLevel           string  `json:"log_level,omitempty"`
}

// Defaults returns a Config with all default values applied.
func Defaults() Config {
	method := -1
	school := -1
	adjustment := -1
	enabled := true
	return Config{
		Method:             &method,
		School:             &school,
		LatitudeAdjustment: &adjustment,
		TimeFormat:         "24h",
		CacheBackend:       "file",
		AdhanEnabled:       &enabled,
		LogLevel:           logging.DefaultLevel,
	}
}

// Dir returns the config directory path.
// It respects $XDG_CONFIG_HOME if set, otherwise uses ~/.config/.
func Dir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, configDirName), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the config file from disk.
// If the file does not exist, it returns an empty Config (not an error).
// If the file exists but is invalid JSON, it returns an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	return LoadFrom(path)
}

// LoadFrom reads the config from a specific file path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Config{}
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return &cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// into the process environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// EnvVar returns the environment variable that overrides key,
// e.g. "latitude_adjustment" -> "MIRAC_LATITUDE_ADJUSTMENT".
func EnvVar(key string) string {
	return envPrefix + strings.ToUpper(key)
}

// ApplyEnv overrides config values with non-empty MIRAC_* variables read
// through getenv. Values are validated exactly as `config set` does.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	for _, key := range ValidKeys {
		v := getenv(EnvVar(key))
		if v == "" {
			continue
		}
		if err := c.Set(key, v); err != nil {
			return fmt.Errorf("%s: %w", EnvVar(key), err)
		}
	}
	return nil
}

// Save writes the config to disk, creating the directory if needed.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}

	return c.SaveTo(path)
}

// SaveTo writes the config to a specific file path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Reset deletes the config file.
func Reset() error {
	path, err := Path()
	if err != nil {
		return err
	}

	return ResetAt(path)
}

// ResetAt deletes the config file at a specific path.
func ResetAt(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}
	return nil
}

// Set sets a config key to the given value.
// It validates the key name and parses the value into the correct type.
func (c *Config) Set(key, value string) error {
	switch key {
	case "city":
		c.City = value
	case "country":
		c.Country = value
	case "latitude":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q: must be a number", value)
		}
		if v < -90 || v > 90 {
			return fmt.Errorf("invalid latitude %q: must be between -90 and 90", value)
		}
		c.Latitude = v
	case "longitude":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q: must be a number", value)
		}
		if v < -180 || v > 180 {
			return fmt.Errorf("invalid longitude %q: must be between -180 and 180", value)
		}
		c.Longitude = v
	case "method":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid method %q: must be an integer", value)
		}
		if v < 0 || v > 23 {
			return fmt.Errorf("invalid method %q: must be between 0 and 23", value)
		}
		c.Method = &v
	case "school":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid school %q: must be an integer", value)
		}
		if v != 0 && v != 1 {
			return fmt.Errorf("invalid school %q: must be 0 (Shafi) or 1 (Hanafi)", value)
		}
		c.School = &v
	case "latitude_adjustment":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid latitude_adjustment %q: must be an integer", value)
		}
		if v < 0 || v > 3 {
			return fmt.Errorf("invalid latitude_adjustment %q: must be between 0 and 3", value)
		}
		c.LatitudeAdjustment = &v
	case "time_format":
		if value != "12h" && value != "24h" {
			return fmt.Errorf("invalid time_format %q: must be \"12h\" or \"24h\"", value)
		}
		c.TimeFormat = value
	case "prayers":
		if _, err := prayer.ParseLabels(value); err != nil {
			return fmt.Errorf("invalid prayers list: %w", err)
		}
		c.Prayers = value
	case "cache_dir":
		c.CacheDir = value
	case "cache_backend":
		if value != "file" && value != "redis" && value != "sqlite" {
			return fmt.Errorf("invalid cache_backend %q: must be \"file\", \"redis\" or \"sqlite\"", value)
		}
		c.CacheBackend = value
	case "redis_addr":
		c.RedisAddr = value
	case "adhan_enabled":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid adhan_enabled %q: must be true or false", value)
		}
		c.AdhanEnabled = &v
	case "adhan_command":
		c.AdhanCommand = value
	case "mqtt_broker":
		if value != "" && !strings.Contains(value, "://") {
			return fmt.Errorf("invalid mqtt_broker %q: must include a scheme, e.g. tcp://localhost:1883", value)
		}
		c.MQTTBroker = value
	case "mqtt_topic":
		if strings.ContainsAny(value, "+#") {
			return fmt.Errorf("invalid mqtt_topic %q: wildcards are not allowed", value)
		}
		c.MQTTTopic = value
	case "log_level":
		if _, err := logging.ParseLevel(value); err != nil {
			return err
		}
		c.LogLevel = strings.ToLower(strings.TrimSpace(value))
	default:
		return fmt.Errorf("unknown config key %q; valid keys: %s", key, strings.Join(ValidKeys, ", "))
	}

	return nil
}

// Get returns the string value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "city":
		return c.City, nil
	case "country":
		return c.Country, nil
	case "latitude":
		if c.Latitude == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.Latitude, 'f', -1, 64), nil
	case "longitude":
		if c.Longitude == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.Longitude, 'f', -1, 64), nil
	case "method":
		return intPtrString(c.Method), nil
	case "school":
		return intPtrString(c.School), nil
	case "latitude_adjustment":
		return intPtrString(c.LatitudeAdjustment), nil
	case "time_format":
		return c.TimeFormat, nil
	case "prayers":
		return c.Prayers, nil
	case "cache_dir":
		return c.CacheDir, nil
	case "cache_backend":
		return c.CacheBackend, nil
	case "redis_addr":
		return c.RedisAddr, nil
	case "adhan_enabled":
		if c.AdhanEnabled == nil {
			return "", nil
		}
		return strconv.FormatBool(*c.AdhanEnabled), nil
	case "adhan_command":
		return c.AdhanCommand, nil
	case "mqtt_broker":
		return c.MQTTBroker, nil
	case "mqtt_topic":
		return c.MQTTTopic, nil
	case "log_level":
		return c.LogLevel, nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

func intPtrString(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

// MethodOrDefault returns the method value, falling back to the given default.
func (c *Config) MethodOrDefault(def int) int {
	if c.Method != nil {
		return *c.Method
	}
	return def
}

// SchoolOrDefault returns the school value, falling back to the given default.
func (c *Config) SchoolOrDefault(def int) int {
	if c.School != nil {
		return *c.School
	}
	return def
}

// LatitudeAdjustmentOrDefault returns the high-latitude rule, falling back
// to the given default.
func (c *Config) LatitudeAdjustmentOrDefault(def int) int {
	if c.LatitudeAdjustment != nil {
		return *c.LatitudeAdjustment
	}
	return def
}

// AdhanEnabledOrDefault reports whether the adhan daemon may arm.
func (c *Config) AdhanEnabledOrDefault(def bool) bool {
	if c.AdhanEnabled != nil {
		return *c.AdhanEnabled
	}
	return def
}

// PrayerLabels returns the configured prayer selection, or every label
// when unset.
func (c *Config) PrayerLabels() ([]prayer.Label, error) {
	if strings.TrimSpace(c.Prayers) == "" {
		return prayer.Labels, nil
	}
	return prayer.ParseLabels(c.Prayers)
}
