package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	WS struct {
		WriteTimeout     string `yaml:"write_timeout"`
		MaxMessageSizeKB int    `yaml:"max_message_size_kb"`
	} `yaml:"ws"`
	State struct {
		Throttle string `yaml:"throttle"`
	} `yaml:"state"`
	Database struct {
		Path           string `yaml:"path"`
		WALMode        bool   `yaml:"wal_mode"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"database"`
	Jobs struct {
		StatsSchedule   string `yaml:"stats_schedule"`
		PurgeSchedule   string `yaml:"purge_schedule"`
		ClosedTicketTTL string `yaml:"closed_ticket_ttl"`
	} `yaml:"jobs"`
	RateLimit struct {
		PerMinute int `yaml:"per_minute"`
		Burst     int `yaml:"burst"`
	} `yaml:"ratelimit"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Default() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = "30s"
	cfg.Server.WriteTimeout = "30s"
	cfg.WS.WriteTimeout = "10s"
	cfg.WS.MaxMessageSizeKB = 512
	cfg.State.Throttle = "2s"
	cfg.Database.Path = "./relay.db"
	cfg.Database.WALMode = true
	cfg.Database.MaxConnections = 10
	cfg.Jobs.StatsSchedule = "@every 1m"
	cfg.Jobs.PurgeSchedule = "@hourly"
	cfg.Jobs.ClosedTicketTTL = "720h"
	cfg.RateLimit.PerMinute = 1000
	cfg.RateLimit.Burst = 200
	cfg.Logging.Level = "info"
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	overrideFromEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Addr(cfg Config) string {
	return cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
}

func ReadTimeout(cfg Config) time.Duration {
	return duration(cfg.Server.ReadTimeout, 30*time.Second)
}

func WriteTimeout(cfg Config) time.Duration {
	return duration(cfg.Server.WriteTimeout, 30*time.Second)
}

func WSWriteTimeout(cfg Config) time.Duration {
	return duration(cfg.WS.WriteTimeout, 10*time.Second)
}

func StateThrottle(cfg Config) time.Duration {
	return duration(cfg.State.Throttle, 2*time.Second)
}

func ClosedTicketTTL(cfg Config) time.Duration {
	return duration(cfg.Jobs.ClosedTicketTTL, 720*time.Hour)
}

func duration(s string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(s)
	if d <= 0 {
		return fallback
	}
	return d
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("RELAY_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("RELAY_SERVER_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		}
	}
	if v := os.Getenv("RELAY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RELAY_STATE_THROTTLE"); v != "" {
		cfg.State.Throttle = v
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("invalid server.port")
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if cfg.WS.MaxMessageSizeKB <= 0 {
		return errors.New("ws.max_message_size_kb must be > 0")
	}
	durations := []struct {
		key   string
		value string
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"ws.write_timeout", cfg.WS.WriteTimeout},
		{"state.throttle", cfg.State.Throttle},
		{"jobs.closed_ticket_ttl", cfg.Jobs.ClosedTicketTTL},
	}
	for _, f := range durations {
		if d, err := time.ParseDuration(strings.TrimSpace(f.value)); err != nil || d <= 0 {
			return fmt.Errorf("%s must be a positive duration", f.key)
		}
	}
	if cfg.RateLimit.PerMinute <= 0 {
		return errors.New("ratelimit.per_minute must be > 0")
	}
	return nil
}
