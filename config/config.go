package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SOUNDBEATS_SERVER_HTTP_ADDRESS.
const EnvPrefix = "SOUNDBEATS"

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Events        EventsConfig        `mapstructure:"events"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
	Instances     []InstanceConfig    `mapstructure:"instances"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress string        `mapstructure:"http_address"`
	RPCAddress  string        `mapstructure:"rpc_address"`
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
}

type HomeAssistantConfig struct {
	URL       string  `mapstructure:"url"`
	Token     string  `mapstructure:"token"`
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// InstanceConfig is one game deployment. MediaPlayer is the entity id of
// the player, empty for none.
type InstanceConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	MediaPlayer  string `mapstructure:"media_player"`
	TimerSeconds int    `mapstructure:"timer_seconds"`
	MaxTeams     int    `mapstructure:"max_teams"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var storageDrivers = map[string]bool{"memory": true, "gorm": true, "postgres": true, "sqlite": true, "redis": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8123")
	v.SetDefault("server.rpc_address", ":8124")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.user", "soundbeats")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "soundbeats")
	v.SetDefault("storage.sqlite.path", "soundbeats.db")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)

	v.SetDefault("events.nats_url", "")

	v.SetDefault("home_assistant.url", "http://localhost:8123")
	v.SetDefault("home_assistant.token", "")
	v.SetDefault("home_assistant.rate_limit", 10.0)
	v.SetDefault("home_assistant.burst", 5)

	v.SetDefault("instances", []map[string]interface{}{{"id": "default", "name": "Soundbeats"}})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path (a missing file is fine), applies
// SOUNDBEATS_ environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and references.
func (c *Config) Validate() error {
	if !storageDrivers[c.Storage.Driver] {
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if c.HomeAssistant.RateLimit < 0 {
		return errors.New("home_assistant.rate_limit must not be negative")
	}
	if len(c.Instances) == 0 {
		return errors.New("instances: at least one instance is required")
	}

	seen := make(map[string]bool, len(c.Instances))
	for i, inst := range c.Instances {
		if inst.ID == "" {
			return fmt.Errorf("instances[%d].id is required", i)
		}
		if seen[inst.ID] {
			return fmt.Errorf("instances[%d].id %q is duplicated", i, inst.ID)
		}
		seen[inst.ID] = true
		if inst.TimerSeconds != 0 && (inst.TimerSeconds < 5 || inst.TimerSeconds > 300) {
			return fmt.Errorf("instances[%d].timer_seconds must be between 5 and 300", i)
		}
		if inst.MaxTeams != 0 && (inst.MaxTeams < 1 || inst.MaxTeams > 5) {
			return fmt.Errorf("instances[%d].max_teams must be between 1 and 5", i)
		}
	}
	return nil
}
