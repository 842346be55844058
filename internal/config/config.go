// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	DB            DBConfig            `mapstructure:"db"`
	SerpAPI       SerpAPIConfig       `mapstructure:"serpapi"`
	Chatwork      ChatworkConfig      `mapstructure:"chatwork"`
	SearchConsole SearchConsoleConfig `mapstructure:"searchconsole"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	PubSub        PubSubConfig        `mapstructure:"pubsub"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig protects the cron endpoint. An empty secret disables the
// check, which is only acceptable in development.
type AuthConfig struct {
	CronSecret string `mapstructure:"cron_secret"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
}

// SerpAPIConfig configures the ranking provider client.
type SerpAPIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ChatworkConfig configures the messaging client.
type ChatworkConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SearchConsoleConfig configures the search-analytics client.
type SearchConsoleConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ArchiveConfig sets the raw-response archive destination. An empty
// bucket keeps archiving disabled.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-summary notifications. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANKTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("serpapi.base_url", "https://serpapi.com/search")
	v.SetDefault("serpapi.timeout_seconds", 30)
	v.SetDefault("chatwork.base_url", "https://api.chatwork.com/v2")
	v.SetDefault("chatwork.timeout_seconds", 15)
	v.SetDefault("searchconsole.base_url", "https://www.googleapis.com/webmasters/v3")
	v.SetDefault("searchconsole.timeout_seconds", 20)
	v.SetDefault("archive.prefix", "serp")
	v.SetDefault("pubsub.topic_name", "ranktrack-runs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.SerpAPI.APIKey == "" {
		return fmt.Errorf("serpapi.api_key is required")
	}
	if c.SerpAPI.TimeoutSeconds <= 0 {
		return fmt.Errorf("serpapi.timeout_seconds must be > 0")
	}
	if c.Chatwork.TimeoutSeconds <= 0 {
		return fmt.Errorf("chatwork.timeout_seconds must be > 0")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// SerpAPITimeout converts the configured timeout into a duration.
func (c Config) SerpAPITimeout() time.Duration {
	return time.Duration(c.SerpAPI.TimeoutSeconds) * time.Second
}

// ChatworkTimeout converts the configured timeout into a duration.
func (c Config) ChatworkTimeout() time.Duration {
	return time.Duration(c.Chatwork.TimeoutSeconds) * time.Second
}

// SearchConsoleTimeout converts the configured timeout into a duration.
func (c Config) SearchConsoleTimeout() time.Duration {
	return time.Duration(c.SearchConsole.TimeoutSeconds) * time.Second
}

// DBConnLifetime converts the configured pool lifetime into a duration.
func (c Config) DBConnLifetime() time.Duration {
	return time.Duration(c.DB.MaxConnLifetimeMin) * time.Minute
}
