package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Database   DatabaseConfig   `yaml:"database"`
	History    HistoryConfig    `yaml:"history"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// MQTTConfig holds the upstream broker connection and topic configuration.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`

	WeightTopic  string `yaml:"weight_topic"`
	StatusTopic  string `yaml:"status_topic"`
	CommandTopic string `yaml:"command_topic"`

	ReconnectInitialMs int           `yaml:"reconnect_initial_ms"`
	ReconnectMaxMs     int           `yaml:"reconnect_max_ms"`
	ReconnectInitial   time.Duration `yaml:"-"` // Ignored by YAML parser
	ReconnectMax       time.Duration `yaml:"-"`

	AckTimeoutMs int           `yaml:"ack_timeout_ms"`
	AckTimeout   time.Duration `yaml:"-"`
	CommandQoS   byte          `yaml:"command_qos"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// HistoryConfig holds the telemetry persistence configuration.
type HistoryConfig struct {
	BufferSize   int           `yaml:"buffer_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelayMs int           `yaml:"retry_delay_ms"`
	RetryDelay   time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3000
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "weighbridge-bridge"
	}
	// Topic names come from the scale firmware and rarely change.
	if cfg.MQTT.WeightTopic == "" {
		cfg.MQTT.WeightTopic = "ayoti/scale/Wvehicle"
	}
	if cfg.MQTT.StatusTopic == "" {
		cfg.MQTT.StatusTopic = "ayoti/scale/status"
	}
	if cfg.MQTT.CommandTopic == "" {
		cfg.MQTT.CommandTopic = "ayoti/scale/cmd"
	}
	if cfg.MQTT.ReconnectInitialMs <= 0 {
		cfg.MQTT.ReconnectInitialMs = 1000
	}
	if cfg.MQTT.ReconnectMaxMs <= 0 {
		cfg.MQTT.ReconnectMaxMs = 30000
	}
	if cfg.MQTT.AckTimeoutMs <= 0 {
		cfg.MQTT.AckTimeoutMs = 5000
	}
	cfg.MQTT.ReconnectInitial = time.Duration(cfg.MQTT.ReconnectInitialMs) * time.Millisecond
	cfg.MQTT.ReconnectMax = time.Duration(cfg.MQTT.ReconnectMaxMs) * time.Millisecond
	cfg.MQTT.AckTimeout = time.Duration(cfg.MQTT.AckTimeoutMs) * time.Millisecond

	if cfg.History.BufferSize <= 0 {
		cfg.History.BufferSize = 256
	}
	if cfg.History.MaxRetries <= 0 {
		cfg.History.MaxRetries = 3
	}
	if cfg.History.RetryDelayMs <= 0 {
		cfg.History.RetryDelayMs = 500
	}
	cfg.History.RetryDelay = time.Duration(cfg.History.RetryDelayMs) * time.Millisecond

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}
