package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr string `yaml:"addr"`

	WriteWaitMS         int `yaml:"write_wait_ms"`
	PongWaitMS          int `yaml:"pong_wait_ms"`
	HeartbeatIntervalMS int `yaml:"heartbeat_interval_ms"`
	MaxMessageBytes     int `yaml:"max_message_bytes"`
	SendBuffer          int `yaml:"send_buffer"`
	RegisterBufSize     int `yaml:"register_buf"`
	UnregisterBufSize   int `yaml:"unregister_buf"`

	RedisAddr        string `yaml:"redis_addr"`
	RedisPassword    string `yaml:"redis_password"`
	RedisDB          int    `yaml:"redis_db"`
	RedisOpTimeoutMS int    `yaml:"redis_op_timeout_ms"`

	QueueKey     string `yaml:"queue_key"`
	QueueWorkers int    `yaml:"queue_workers"`
	QueueBuffer  int    `yaml:"queue_buffer"`

	JWTSecret string `yaml:"jwt_secret"`

	StoreDriver   string `yaml:"store_driver"`
	StoreDSN      string `yaml:"store_dsn"`
	MongoDatabase string `yaml:"mongo_database"`

	WorkerBackoffMS int  `yaml:"worker_backoff_ms"`
	RunWorker       bool `yaml:"run_worker"`

	LogLevel   string `yaml:"log_level"`
	LogDir     string `yaml:"log_dir"`
	LogConsole bool   `yaml:"log_console"`
	Dev        bool   `yaml:"dev"`
}

func Default() Config {
	return Config{
		Addr:                ":8080",
		WriteWaitMS:         5000,
		HeartbeatIntervalMS: 30000,
		MaxMessageBytes:     64 * 1024,
		SendBuffer:          256,
		RegisterBufSize:     1024,
		UnregisterBufSize:   1024,

		RedisAddr:        "localhost:6379",
		RedisOpTimeoutMS: 5000,

		QueueKey:     "messageQueue",
		QueueWorkers: 4,
		QueueBuffer:  10000,

		StoreDriver:   "sqlite",
		StoreDSN:      "whiteboard.db",
		MongoDatabase: "whiteboard",

		WorkerBackoffMS: 5000,

		LogLevel:   "info",
		LogDir:     "logs",
		LogConsole: true,
	}
}

// Load reads CONFIG_FILE (if set) over the defaults, then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getEnv("ADDR", cfg.Addr)
	cfg.WriteWaitMS = getEnvInt("WRITE_WAIT_MS", cfg.WriteWaitMS)
	cfg.PongWaitMS = getEnvInt("PONG_WAIT_MS", cfg.PongWaitMS)
	cfg.HeartbeatIntervalMS = getEnvInt("HEARTBEAT_INTERVAL_MS", cfg.HeartbeatIntervalMS)
	cfg.MaxMessageBytes = getEnvInt("MAX_MESSAGE_BYTES", cfg.MaxMessageBytes)
	cfg.SendBuffer = getEnvInt("SEND_BUFFER", cfg.SendBuffer)
	cfg.RegisterBufSize = getEnvInt("REGISTER_BUF", cfg.RegisterBufSize)
	cfg.UnregisterBufSize = getEnvInt("UNREGISTER_BUF", cfg.UnregisterBufSize)

	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.RedisOpTimeoutMS = getEnvInt("REDIS_OP_TIMEOUT_MS", cfg.RedisOpTimeoutMS)

	cfg.QueueKey = getEnv("QUEUE_KEY", cfg.QueueKey)
	cfg.QueueWorkers = getEnvInt("QUEUE_WORKERS", cfg.QueueWorkers)
	cfg.QueueBuffer = getEnvInt("QUEUE_BUFFER", cfg.QueueBuffer)

	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)

	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.StoreDSN = getEnv("STORE_DSN", cfg.StoreDSN)
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)

	cfg.WorkerBackoffMS = getEnvInt("WORKER_BACKOFF_MS", cfg.WorkerBackoffMS)
	cfg.RunWorker = getEnvBool("RUN_WORKER", cfg.RunWorker)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogDir = getEnv("LOG_DIR", cfg.LogDir)
	cfg.LogConsole = getEnvBool("LOG_CONSOLE", cfg.LogConsole)
	cfg.Dev = getEnvBool("DEV", cfg.Dev)
}

func (c Config) WriteWait() time.Duration {
	return time.Duration(c.WriteWaitMS) * time.Millisecond
}

// PongWait is the read deadline extended by each pong. Unset, it is one
// heartbeat interval plus the write wait, so a peer that stops answering is
// dropped before the next ping is due to be answered.
func (c Config) PongWait() time.Duration {
	if c.PongWaitMS > 0 {
		return time.Duration(c.PongWaitMS) * time.Millisecond
	}
	return c.HeartbeatInterval() + c.WriteWait()
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond
}

func (c Config) RedisOpTimeout() time.Duration {
	return time.Duration(c.RedisOpTimeoutMS) * time.Millisecond
}

func (c Config) WorkerBackoff() time.Duration {
	return time.Duration(c.WorkerBackoffMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			return b
		}
	}
	return fallback
}
