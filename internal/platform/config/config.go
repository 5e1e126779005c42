package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | sqlite3
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Path     string `yaml:"path"` // sqlite3 のみ
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	TLS         bool     `yaml:"tls"`
	AllowOrigin []string `yaml:"allow_origins"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type AttendanceConfig struct {
	EditWindowMinutes int      `yaml:"edit_window_minutes"`
	PrivilegedRoles   []string `yaml:"privileged_roles"`
	StrictReplay      bool     `yaml:"strict_replay"`
}

func (a AttendanceConfig) EditWindow() time.Duration {
	return time.Duration(a.EditWindowMinutes) * time.Minute
}

type RedisConfig struct {
	Addr             string `yaml:"addr"`
	ReplayTTLSeconds int    `yaml:"replay_ttl_seconds"`
}

type OtelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// OutboxConfig はクライアント(outboxctl)側の設定
type OutboxConfig struct {
	ServerURL          string `yaml:"server_url"`
	Token              string `yaml:"token"`
	ActorID            string `yaml:"actor_id"`
	Backend            string `yaml:"backend"` // sqlite | badger
	Path               string `yaml:"path"`
	MaxRetries         int    `yaml:"max_retries"`
	BackoffBaseSeconds int    `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds  int    `yaml:"backoff_max_seconds"`
	AttemptTimeoutSec  int    `yaml:"attempt_timeout_seconds"`
	SyncIntervalSec    int    `yaml:"sync_interval_seconds"`
	Parallelism        int    `yaml:"parallelism"`
}

type Config struct {
	Version     string           `yaml:"version"`
	Mode        string           `yaml:"mode"`
	Server      ServerConfig     `yaml:"server"`
	DB          DatabaseConfig   `yaml:"database"`
	Certificate Certs            `yaml:"certificate"`
	Auth        AuthConfig       `yaml:"auth"`
	Attendance  AttendanceConfig `yaml:"attendance"`
	Redis       RedisConfig      `yaml:"redis"`
	Otel        OtelConfig       `yaml:"otel"`
	Outbox      OutboxConfig     `yaml:"outbox"`
}

// Load: YAML を読み込み、.env / 環境変数で上書きしてデフォルトを埋める
func Load(path string) (*Config, error) {
	// .env は無くてもよい
	_ = godotenv.Load()

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("OUTBOX_TOKEN"); v != "" {
		c.Outbox.Token = v
	}
	if v := os.Getenv("EDIT_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Attendance.EditWindowMinutes = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "mysql"
	}
	if c.DB.Driver == "sqlite3" && c.DB.Path == "" {
		c.DB.Path = "attendance.db"
	}
	if c.Attendance.EditWindowMinutes <= 0 {
		c.Attendance.EditWindowMinutes = 120
	}
	if len(c.Attendance.PrivilegedRoles) == 0 {
		c.Attendance.PrivilegedRoles = []string{"ADMIN", "PRINCIPAL"}
	}
	if c.Redis.ReplayTTLSeconds <= 0 {
		c.Redis.ReplayTTLSeconds = 24 * 60 * 60
	}
	if c.Otel.Exporter == "" {
		c.Otel.Exporter = "stdout"
	}
	if c.Otel.SampleRatio <= 0 {
		c.Otel.SampleRatio = 0.1
	}

	o := &c.Outbox
	if o.Backend == "" {
		o.Backend = "sqlite"
	}
	if o.Path == "" {
		o.Path = "outbox.db"
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 8
	}
	if o.BackoffBaseSeconds <= 0 {
		o.BackoffBaseSeconds = 2
	}
	if o.BackoffMaxSeconds <= 0 {
		o.BackoffMaxSeconds = 300
	}
	if o.AttemptTimeoutSec <= 0 {
		o.AttemptTimeoutSec = 15
	}
	if o.SyncIntervalSec <= 0 {
		o.SyncIntervalSec = 30
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release: %q", c.Mode)
	}
	switch c.DB.Driver {
	case "mysql", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.DB.Driver)
	}
	switch strings.ToLower(c.Outbox.Backend) {
	case "sqlite", "badger":
	default:
		return fmt.Errorf("unsupported outbox backend: %q", c.Outbox.Backend)
	}
	return nil
}

func (c *Config) IsPrivileged(role string) bool {
	for _, r := range c.Attendance.PrivilegedRoles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
