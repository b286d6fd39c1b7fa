// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Mail          MailConfig          `yaml:"mail" mapstructure:"mail"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Tenancy       TenancyConfig       `yaml:"tenancy" mapstructure:"tenancy"`
	Billing       BillingConfig       `yaml:"billing" mapstructure:"billing"`
	Jobs          JobsConfig          `yaml:"jobs" mapstructure:"jobs"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// IsProduction 是否为生产环境
func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// Addr 返回监听地址
func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// 存储驱动
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Driver 存储驱动：postgres 或 memory（开发/测试）
	Driver      string         `yaml:"driver" mapstructure:"driver"`
	AutoMigrate bool           `yaml:"auto_migrate" mapstructure:"auto_migrate"`
	Postgres    PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// DSN 返回 PostgreSQL 连接串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// Addr 返回 Redis 地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	S3 S3Config `yaml:"s3" mapstructure:"s3"`
}

// S3Config S3 兼容对象存储配置，用于租户隔离作用域
type S3Config struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix" mapstructure:"prefix"`
	UsePathStyle    bool   `yaml:"use_path_style" mapstructure:"use_path_style"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
	Kafka       KafkaConfig       `yaml:"kafka" mapstructure:"kafka"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// KafkaConfig Kafka 配置，审计事件外发
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Brokers      []string      `yaml:"brokers" mapstructure:"brokers"`
	AuditTopic   string        `yaml:"audit_topic" mapstructure:"audit_topic"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// MailConfig 邮件配置
type MailConfig struct {
	SendGrid     SendGridConfig `yaml:"sendgrid" mapstructure:"sendgrid"`
	ResetURLBase string         `yaml:"reset_url_base" mapstructure:"reset_url_base"`
}

// SendGridConfig SendGrid 配置
type SendGridConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
	FromName  string `yaml:"from_name" mapstructure:"from_name"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`

	// WorkerAddr job-worker 暴露指标的监听地址，为空时不监听
	WorkerAddr string `yaml:"worker_addr" mapstructure:"worker_addr"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT              JWTConfig       `yaml:"jwt" mapstructure:"jwt"`
	RateLimit        RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS             CORSConfig      `yaml:"cors" mapstructure:"cors"`
	PasswordResetTTL time.Duration   `yaml:"password_reset_ttl" mapstructure:"password_reset_ttl"`
	BcryptCost       int             `yaml:"bcrypt_cost" mapstructure:"bcrypt_cost"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret            string        `yaml:"secret" mapstructure:"secret"`
	Issuer            string        `yaml:"issuer" mapstructure:"issuer"`
	Expiration        time.Duration `yaml:"expiration" mapstructure:"expiration"`
	RefreshExpiration time.Duration `yaml:"refresh_expiration" mapstructure:"refresh_expiration"`
}

// RateLimitConfig 限流配置（固定窗口，按客户端 IP）
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Requests int           `yaml:"requests" mapstructure:"requests"`
	Window   time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// TenancyConfig 租户上下文与隔离配置
type TenancyConfig struct {
	HeaderName string          `yaml:"header_name" mapstructure:"header_name"`
	QueryParam string          `yaml:"query_param" mapstructure:"query_param"`
	CacheTTL   time.Duration   `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	Isolation  IsolationConfig `yaml:"isolation" mapstructure:"isolation"`
}

// IsolationConfig 默认隔离策略
type IsolationConfig struct {
	EncryptionRequired  bool   `yaml:"encryption_required" mapstructure:"encryption_required"`
	RetentionPeriodDays int    `yaml:"retention_period_days" mapstructure:"retention_period_days"`
	DataResidency       string `yaml:"data_residency" mapstructure:"data_residency"`
}

// BillingConfig 计费配置
type BillingConfig struct {
	DefaultCurrency string        `yaml:"default_currency" mapstructure:"default_currency"`
	PaymentTimeout  time.Duration `yaml:"payment_timeout" mapstructure:"payment_timeout"`
	TrialMaxDays    int           `yaml:"trial_max_days" mapstructure:"trial_max_days"`
	// GatewayLatency 模拟网关延迟，仅用于开发环境
	GatewayLatency time.Duration `yaml:"gateway_latency" mapstructure:"gateway_latency"`
}

// JobsConfig 后台任务配置
type JobsConfig struct {
	UsageRollupInterval      time.Duration `yaml:"usage_rollup_interval" mapstructure:"usage_rollup_interval"`
	TrialSweepInterval       time.Duration `yaml:"trial_sweep_interval" mapstructure:"trial_sweep_interval"`
	PaymentReconcileInterval time.Duration `yaml:"payment_reconcile_interval" mapstructure:"payment_reconcile_interval"`
	WorkerName               string        `yaml:"worker_name" mapstructure:"worker_name"`
}
