package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Postgres PostgresConfig `mapstructure:"postgres"` // PostgreSQL配置
	Goated   GoatedConfig   `mapstructure:"goated"`   // Goated外部统计平台配置
	Sync     SyncConfig     `mapstructure:"sync"`     // 同步调度配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// GoatedConfig Goated平台（外部投注统计源）配置
type GoatedConfig struct {
	BaseURL         string        `mapstructure:"base_url"`         // API基础地址
	LeaderboardPath string        `mapstructure:"leaderboard_path"` // 联盟排行榜接口路径
	Token           string        `mapstructure:"token"`            // Bearer认证Token
	Timeout         int           `mapstructure:"timeout"`          // 单次请求超时（秒）
	RetryCount      int           `mapstructure:"retry_count"`      // 失败重试次数
	Proxy           string        `mapstructure:"proxy"`            // 代理地址
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`        // 排行榜缓存有效期
}

// SyncConfig 同步调度配置
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"` // 刷新周期（拉取统计+刷新比赛榜单）
	TopN     int           `mapstructure:"top_n"`    // 比赛接口返回的参赛者条数上限
	Enabled  bool          `mapstructure:"enabled"`  // 是否启动后台调度
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("GOATED_API_TOKEN"); v != "" {
		cfg.Goated.Token = v
	}
	if v := os.Getenv("GOATED_PROXY"); v != "" {
		cfg.Goated.Proxy = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// applyDefaults 关键参数兜底，避免0值把调度打满或请求永不超时
func applyDefaults(cfg *Config) {
	if cfg.Goated.Timeout <= 0 {
		cfg.Goated.Timeout = 15
	}
	if cfg.Goated.RetryCount <= 0 {
		cfg.Goated.RetryCount = 3
	}
	if cfg.Goated.CacheTTL <= 0 {
		cfg.Goated.CacheTTL = 30 * time.Second
	}
	if cfg.Sync.Interval <= 0 {
		cfg.Sync.Interval = time.Minute
	}
	if cfg.Sync.TopN <= 0 {
		cfg.Sync.TopN = 10
	}
}
