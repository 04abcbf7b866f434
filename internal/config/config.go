package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// SyncConfig 定义 IMAP 同步调度配置
type SyncConfig struct {
	Interval       time.Duration // 同步轮询间隔，默认 3 分钟
	AccountTimeout time.Duration // 单账户一次同步的墙钟上限，默认 5 分钟
	Workers        int           // 并发同步的账户数上限，默认 4
	URIBase        string        // 邮件正文内相对链接的补全基址
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空表示只输出到控制台
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 配置（同步锁与状态缓存）
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，留空禁用
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// StorageConfig 定义附件 blob 存储配置
type StorageConfig struct {
	Path string // 附件根目录，默认 "./data/attachments"
}

// SMTPConfig 定义出站邮件（坐席回复）的 SMTP 配置
type SMTPConfig struct {
	Host      string // SMTP 服务地址，留空禁用出站邮件
	Port      int    // SMTP 端口，默认 587
	Username  string // SMTP 认证用户名
	Password  string // SMTP 认证密码
	FromEmail string // 发件地址，留空时用账户邮箱
	StartTLS  bool   // 是否通过 STARTTLS 升级，默认 true
}

// JWTConfig 定义 WebSocket 订阅鉴权用的 JWT 配置
type JWTConfig struct {
	Secret string // JWT 签名密钥，必须至少 32 字符
	Issuer string // JWT 签发者标识，默认 "helpdesk"
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig   // HTTP 服务器配置
	Sync     SyncConfig     // IMAP 同步配置
	CORS     CORSConfig     // 跨域配置
	Log      LogConfig      // 日志配置
	Database DatabaseConfig // 数据库配置
	Redis    RedisConfig    // Redis 配置
	Storage  StorageConfig  // 附件存储配置
	SMTP     SMTPConfig     // 出站邮件配置
	JWT      JWTConfig      // WebSocket 鉴权配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: HELPDESK_
// 例如: HELPDESK_SERVER_PORT, HELPDESK_SYNC_INTERVAL
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("helpdesk")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("sync.interval", "3m")
	viper.SetDefault("sync.account_timeout", "5m")
	viper.SetDefault("sync.workers", 4)
	viper.SetDefault("sync.uri_base", "https://helpdesk.local")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storage.path", "./data/attachments")
	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from_email", "")
	viper.SetDefault("smtp.starttls", true)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "helpdesk")

	syncInterval, err := time.ParseDuration(viper.GetString("sync.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.interval: %w", err)
	}
	if syncInterval < time.Second {
		return nil, fmt.Errorf("sync.interval must be at least 1s")
	}

	accountTimeout, err := time.ParseDuration(viper.GetString("sync.account_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid sync.account_timeout: %w", err)
	}

	workers := viper.GetInt("sync.workers")
	if workers <= 0 {
		workers = 4
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set HELPDESK_JWT_SECRET environment variable")
	}

	// JWT secret 必须至少 32 字符
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Sync: SyncConfig{
			Interval:       syncInterval,
			AccountTimeout: accountTimeout,
			Workers:        workers,
			URIBase:        viper.GetString("sync.uri_base"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Path: viper.GetString("storage.path"),
		},
		SMTP: SMTPConfig{
			Host:      viper.GetString("smtp.host"),
			Port:      viper.GetInt("smtp.port"),
			Username:  viper.GetString("smtp.username"),
			Password:  viper.GetString("smtp.password"),
			FromEmail: viper.GetString("smtp.from_email"),
			StartTLS:  viper.GetBool("smtp.starttls"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
			Issuer: viper.GetString("jwt.issuer"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 依次尝试当前目录和上一级目录，.env 不存在时静默跳过。
func loadEnvFile() {
	candidates := []string{".env"}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, "..", ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}
