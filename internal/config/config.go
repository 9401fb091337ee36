package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	// TelegramBotToken enables the Telegram front end when set.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	// RegistryBackend is "memory" or "badger".
	RegistryBackend string `mapstructure:"REGISTRY_BACKEND"`

	BrowserBin        string   `mapstructure:"BROWSER_BIN"`
	BrowserControlURL string   `mapstructure:"BROWSER_CONTROL_URL"`
	BrowserHeadless   bool     `mapstructure:"BROWSER_HEADLESS"`
	StartURLs         []string `mapstructure:"START_URLS"`

	DOMScanInterval time.Duration `mapstructure:"DOM_SCAN_INTERVAL"`
	EventBuffer     int           `mapstructure:"EVENT_BUFFER"`

	// HTTPAddr is where the query API listens. Empty disables it.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`
}

var defaults = map[string]any{
	"TELEGRAM_BOT_TOKEN":  "",
	"REGISTRY_BACKEND":    "memory",
	"BROWSER_BIN":         "",
	"BROWSER_CONTROL_URL": "",
	"BROWSER_HEADLESS":    true,
	"START_URLS":          []string{},
	"DOM_SCAN_INTERVAL":   "2s",
	"EVENT_BUFFER":        256,
	"HTTP_ADDR":           "127.0.0.1:8787",
	"LOG_LEVEL":           "info",
	"LOG_FILE":            "",
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (Config, error) {
	// Missing .env is fine; the real environment still applies.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Every key needs a default so that AutomaticEnv values reach Unmarshal.
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks values that viper cannot.
func (c *Config) Validate() error {
	c.RegistryBackend = strings.ToLower(strings.TrimSpace(c.RegistryBackend))
	switch c.RegistryBackend {
	case "memory", "badger":
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be memory or badger, got %q", c.RegistryBackend)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("EVENT_BUFFER must be positive, got %d", c.EventBuffer)
	}
	if c.DOMScanInterval < 0 {
		return fmt.Errorf("DOM_SCAN_INTERVAL must not be negative, got %s", c.DOMScanInterval)
	}

	urls := c.StartURLs[:0]
	for _, u := range c.StartURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	c.StartURLs = urls
	return nil
}
