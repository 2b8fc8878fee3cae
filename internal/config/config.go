package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	// 服务器配置
	ListenAddr string `json:"listen_addr"`
	// TLS/证书配置
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`
	TLSAuto     bool   `json:"tls_auto"`      // 是否启用自动申请（Let's Encrypt）
	TLSDomain   string `json:"tls_domain"`    // 自动证书域名
	TLSCacheDir string `json:"tls_cache_dir"` // 自动证书缓存目录

	// HTTP超时配置
	HTTPReadTimeout  time.Duration `json:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `json:"http_write_timeout"`
	HTTPIdleTimeout  time.Duration `json:"http_idle_timeout"`
	HandlerTimeout   time.Duration `json:"handler_timeout"`

	// 上游传感器 REST 接口
	APIBaseURL      string        `json:"api_base_url"`
	APITimeout      time.Duration `json:"api_timeout"`
	APIServiceToken string        `json:"-"`
	BreakerFailures int           `json:"breaker_failures"`
	BreakerReset    time.Duration `json:"breaker_reset"`

	// 后台轮询
	PollInterval time.Duration `json:"poll_interval"`

	// 快照数据库：sqlite 或 postgres
	DBDriver string `json:"db_driver"`
	DBDSN    string `json:"db_dsn"`

	// Redis 缓存，地址为空时使用进程内缓存
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`

	// MQTT 报警推送，broker 为空时关闭
	MQTTBroker   string `json:"mqtt_broker"`
	MQTTTopic    string `json:"mqtt_topic"`
	MQTTClientID string `json:"mqtt_client_id"`

	// 会话配置
	SessionSecret string        `json:"-"`
	SessionTTL    time.Duration `json:"session_ttl"`

	// CORS配置
	AllowedOrigins string `json:"allowed_origins"`

	// 登录限流（每个 IP 每分钟）
	LoginRatePerMinute int `json:"login_rate_per_minute"`

	// 日志配置
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:         ":8080",
		TLSCacheDir:        "cert-cache",
		HTTPReadTimeout:    30 * time.Second,
		HTTPWriteTimeout:   30 * time.Second,
		HTTPIdleTimeout:    60 * time.Second,
		HandlerTimeout:     25 * time.Second,
		APIBaseURL:         "http://localhost:8000/api",
		APITimeout:         10 * time.Second,
		BreakerFailures:    5,
		BreakerReset:       30 * time.Second,
		PollInterval:       30 * time.Second,
		DBDriver:           "sqlite",
		DBDSN:              "clinisense.db",
		MQTTTopic:          "clinisense/alerts",
		MQTTClientID:       "clinisense",
		SessionTTL:         12 * time.Hour,
		LoginRatePerMinute: 10,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

var defaultEnvConfig = DefaultConfig()

// 默认配置文件查找路径
var configPaths = []string{
	"config/config.yaml",
	"../config/config.yaml",
	"./config.yaml",
}

// Load 从配置文件和环境变量加载配置。path 为空时按默认路径查找，
// 找不到文件时只使用默认值与环境变量。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// 1. 先从 YAML 文件加载配置
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// 2. 环境变量覆盖配置
	loadFromEnv(cfg)

	return cfg, nil
}

func findConfigFile() string {
	for _, p := range configPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// fileConfig YAML 文件结构
type fileConfig struct {
	Server struct {
		Addr           string `yaml:"addr"`
		ReadTimeout    string `yaml:"read_timeout"`
		WriteTimeout   string `yaml:"write_timeout"`
		IdleTimeout    string `yaml:"idle_timeout"`
		HandlerTimeout string `yaml:"handler_timeout"`
		AllowedOrigins string `yaml:"allowed_origins"`
	} `yaml:"server"`
	TLS struct {
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
		Auto     *bool  `yaml:"auto"`
		Domain   string `yaml:"domain"`
		CacheDir string `yaml:"cache_dir"`
	} `yaml:"tls"`
	Upstream struct {
		BaseURL         string `yaml:"base_url"`
		Timeout         string `yaml:"timeout"`
		ServiceToken    string `yaml:"service_token"`
		BreakerFailures int    `yaml:"breaker_failures"`
		BreakerReset    string `yaml:"breaker_reset"`
	} `yaml:"upstream"`
	Poller struct {
		Interval string `yaml:"interval"`
	} `yaml:"poller"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	MQTT struct {
		Broker   string `yaml:"broker"`
		Topic    string `yaml:"topic"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Session struct {
		Secret string `yaml:"secret"`
		TTL    string `yaml:"ttl"`
	} `yaml:"session"`
	Login struct {
		RatePerMinute int `yaml:"rate_per_minute"`
	} `yaml:"login"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`
}

// loadFromFile 从 YAML 文件加载配置
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setStringIfNotEmpty(&cfg.ListenAddr, fc.Server.Addr)
	setDurationFromText(&cfg.HTTPReadTimeout, fc.Server.ReadTimeout)
	setDurationFromText(&cfg.HTTPWriteTimeout, fc.Server.WriteTimeout)
	setDurationFromText(&cfg.HTTPIdleTimeout, fc.Server.IdleTimeout)
	setDurationFromText(&cfg.HandlerTimeout, fc.Server.HandlerTimeout)
	setStringIfNotEmpty(&cfg.AllowedOrigins, fc.Server.AllowedOrigins)

	setStringIfNotEmpty(&cfg.TLSCertFile, fc.TLS.CertFile)
	setStringIfNotEmpty(&cfg.TLSKeyFile, fc.TLS.KeyFile)
	if fc.TLS.Auto != nil {
		cfg.TLSAuto = *fc.TLS.Auto
	}
	setStringIfNotEmpty(&cfg.TLSDomain, fc.TLS.Domain)
	setStringIfNotEmpty(&cfg.TLSCacheDir, fc.TLS.CacheDir)

	setStringIfNotEmpty(&cfg.APIBaseURL, fc.Upstream.BaseURL)
	setDurationFromText(&cfg.APITimeout, fc.Upstream.Timeout)
	setStringIfNotEmpty(&cfg.APIServiceToken, fc.Upstream.ServiceToken)
	setPositiveInt(&cfg.BreakerFailures, fc.Upstream.BreakerFailures)
	setDurationFromText(&cfg.BreakerReset, fc.Upstream.BreakerReset)

	setDurationFromText(&cfg.PollInterval, fc.Poller.Interval)

	setStringIfNotEmpty(&cfg.DBDriver, fc.Database.Driver)
	setStringIfNotEmpty(&cfg.DBDSN, fc.Database.DSN)

	setStringIfNotEmpty(&cfg.RedisAddr, fc.Redis.Addr)
	setStringIfNotEmpty(&cfg.RedisPassword, fc.Redis.Password)
	setPositiveInt(&cfg.RedisDB, fc.Redis.DB)

	setStringIfNotEmpty(&cfg.MQTTBroker, fc.MQTT.Broker)
	setStringIfNotEmpty(&cfg.MQTTTopic, fc.MQTT.Topic)
	setStringIfNotEmpty(&cfg.MQTTClientID, fc.MQTT.ClientID)

	setStringIfNotEmpty(&cfg.SessionSecret, fc.Session.Secret)
	setDurationFromText(&cfg.SessionTTL, fc.Session.TTL)

	setPositiveInt(&cfg.LoginRatePerMinute, fc.Login.RatePerMinute)

	setStringIfNotEmpty(&cfg.LogLevel, fc.Log.Level)
	setStringIfNotEmpty(&cfg.LogFormat, fc.Log.Format)
	setStringIfNotEmpty(&cfg.LogFile, fc.Log.File)
	return nil
}

func setStringIfNotEmpty(dst *string, value string) {
	if dst == nil || value == "" {
		return
	}
	*dst = value
}

func setDurationFromText(dst *time.Duration, value string) {
	if dst == nil || value == "" {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		*dst = parsed
	}
}

func setPositiveInt(dst *int, value int) {
	if dst == nil || value <= 0 {
		return
	}
	*dst = value
}

// loadFromEnv 从环境变量加载配置（会覆盖文件配置）
func loadFromEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	defaults := defaultEnvConfig

	setStringFromEnv(&cfg.ListenAddr, "LISTEN_ADDR")

	setDurationFromEnvWithFallback(&cfg.HTTPReadTimeout, "HTTP_READ_TIMEOUT", defaults.HTTPReadTimeout, false)
	setDurationFromEnvWithFallback(&cfg.HTTPWriteTimeout, "HTTP_WRITE_TIMEOUT", defaults.HTTPWriteTimeout, false)
	setDurationFromEnv(&cfg.HTTPIdleTimeout, "HTTP_IDLE_TIMEOUT")
	setDurationFromEnvWithFallback(&cfg.HandlerTimeout, "HTTP_HANDLER_TIMEOUT", defaults.HandlerTimeout, true)

	setStringFromEnv(&cfg.TLSCertFile, "TLS_CERT_FILE")
	setStringFromEnv(&cfg.TLSKeyFile, "TLS_KEY_FILE")
	setBoolFromEnvAllowOne(&cfg.TLSAuto, "TLS_AUTO")
	setStringFromEnv(&cfg.TLSDomain, "TLS_DOMAIN")
	setStringFromEnv(&cfg.TLSCacheDir, "TLS_CACHE_DIR")

	setStringFromEnv(&cfg.APIBaseURL, "API_BASE_URL")
	setDurationFromEnvWithFallback(&cfg.APITimeout, "API_TIMEOUT", defaults.APITimeout, true)
	setStringFromEnv(&cfg.APIServiceToken, "API_SERVICE_TOKEN")

	setDurationFromEnvWithFallback(&cfg.PollInterval, "POLL_INTERVAL", defaults.PollInterval, true)

	setStringFromEnv(&cfg.DBDriver, "DB_DRIVER")
	setStringFromEnv(&cfg.DBDSN, "DB_DSN")

	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	setStringFromEnv(&cfg.RedisPassword, "REDIS_PASSWORD")
	setIntFromEnv(&cfg.RedisDB, "REDIS_DB")

	setStringFromEnv(&cfg.MQTTBroker, "MQTT_BROKER")
	setStringFromEnv(&cfg.MQTTTopic, "MQTT_TOPIC")

	setStringFromEnv(&cfg.SessionSecret, "SESSION_SECRET")
	setStringFromEnv(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setIntFromEnvWithFallback(&cfg.LoginRatePerMinute, "LOGIN_RATE_PER_MINUTE", defaults.LoginRatePerMinute)

	setStringFromEnv(&cfg.LogLevel, "LOG_LEVEL")
	setStringFromEnv(&cfg.LogFormat, "LOG_FORMAT")
	setStringFromEnv(&cfg.LogFile, "LOG_FILE")
}

func setStringFromEnv(dst *string, key string) {
	if dst == nil {
		return
	}
	if value, ok := envValue(key); ok {
		*dst = value
	}
}

func setBoolFromEnvAllowOne(dst *bool, key string) {
	if dst == nil {
		return
	}
	if value, ok := envValue(key); ok {
		trimmed := strings.TrimSpace(value)
		*dst = strings.EqualFold(trimmed, "true") || trimmed == "1"
	}
}

func setIntFromEnv(dst *int, key string) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		*dst = parsed
	}
}

func setIntFromEnvWithFallback(dst *int, key string, fallback int) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		*dst = parsed
		return
	}
	if *dst == 0 {
		*dst = fallback
	}
}

func setDurationFromEnv(dst *time.Duration, key string) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		*dst = parsed
	}
}

func setDurationFromEnvWithFallback(dst *time.Duration, key string, fallback time.Duration, mustPositive bool) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		if !mustPositive || parsed > 0 {
			*dst = parsed
			return
		}
	}
	if *dst == 0 {
		*dst = fallback
	}
}

func envValue(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}

// Validate 检查启动服务所必需的配置
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("api base url is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", c.APIBaseURL)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	return nil
}

// GetAllowedOrigins 获取允许的跨域来源列表
func (c *Config) GetAllowedOrigins() []string {
	if c.AllowedOrigins == "" {
		return []string{"http://localhost:8080", "http://127.0.0.1:8080"}
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String 返回配置的字符串表示
func (c *Config) String() string {
	return fmt.Sprintf("Config{ListenAddr=%s, APIBaseURL=%s, PollInterval=%v, DBDriver=%s, Redis=%t, MQTT=%t, LogLevel=%s}",
		c.ListenAddr, c.APIBaseURL, c.PollInterval, c.DBDriver, c.RedisAddr != "", c.MQTTBroker != "", c.LogLevel)
}
