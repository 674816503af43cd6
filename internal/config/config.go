package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	NATS     NATSConfig     `yaml:"nats"`
	Store    StoreConfig    `yaml:"store"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Telegram TelegramConfig `yaml:"telegram"`
	Vault    VaultConfig    `yaml:"vault"`
}

type GatewayConfig struct {
	Port          int `yaml:"port"`
	QueueCapacity int `yaml:"queue_capacity"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WatchdogConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Sweep            string        `yaml:"sweep"` // interval duration or cron expression
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

func defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port:          17432,
			QueueCapacity: 100,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/crewd.db",
		},
		Watchdog: WatchdogConfig{
			Enabled:          true,
			Sweep:            "30s",
			HeartbeatTimeout: 2 * time.Minute,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("CREWD_CONFIG")
	if path == "" {
		path = "config/crewd.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CREWD_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("CREWD_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("CREWD_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CREWD_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("CREWD_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("CREWD_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
}
