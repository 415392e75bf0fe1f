// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	AI       AIConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL string
}

// AIConfig holds the AI provider settings. Provider selects the text
// provider for translation and matching; receipt OCR always uses Gemini.
type AIConfig struct {
	Provider     string
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GroqAPIKey   string `mapstructure:"groq_api_key"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// RECETTES_ (e.g. RECETTES_DATABASE_URL).
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.url", "postgres://localhost:5432/recettes?sslmode=disable")
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.groq_api_key", "")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("RECETTES_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("RECETTES")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
