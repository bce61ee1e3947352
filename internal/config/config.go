package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type AuthConfig struct {
	Secret string `yaml:"secret"`
}

type PresenceConfig struct {
	MemberTTLSeconds     int `yaml:"member_ttl_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	ServerCfg    ServerConfig   `yaml:"server"`
	RedisCfg     RedisConfig    `yaml:"redis"`
	PostgresCfg  PostgresConfig `yaml:"postgres"`
	AuthCfg      AuthConfig     `yaml:"auth"`
	PresenceCfg  PresenceConfig `yaml:"presence"`
	LoggerConfig LoggerConfig   `yaml:"logger"`
}

var (
	ErrNoDataInCfg  = errors.New("config: no data in config file")
	ErrMissingField = errors.New("config: missing required field")
)

func LoadFromFile(path string) (*Config, error) {
	// .env is optional; real deployments set the variables directly.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNoDataInCfg
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.RedisCfg.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisCfg.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresCfg.DSN = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.AuthCfg.Secret = v
	}
}

func (c *Config) applyDefaults() {
	if c.ServerCfg.Host == "" {
		c.ServerCfg.Host = "0.0.0.0"
	}
	if c.ServerCfg.Port == "" {
		c.ServerCfg.Port = "8080"
	}
	if c.RedisCfg.Port == 0 {
		c.RedisCfg.Port = 6379
	}
	if c.PresenceCfg.MemberTTLSeconds == 0 {
		c.PresenceCfg.MemberTTLSeconds = 300
	}
	if c.PresenceCfg.SweepIntervalSeconds == 0 {
		c.PresenceCfg.SweepIntervalSeconds = 60
	}
	if c.LoggerConfig.Level == "" {
		c.LoggerConfig.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.RedisCfg.Host == "" {
		return ErrMissingField
	}
	if c.PostgresCfg.DSN == "" {
		return ErrMissingField
	}
	if c.AuthCfg.Secret == "" {
		return ErrMissingField
	}
	return nil
}

func (c *PresenceConfig) MemberTTL() time.Duration {
	return time.Duration(c.MemberTTLSeconds) * time.Second
}

func (c *PresenceConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
