package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/searchview-backend/internal/pkg/database"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	pkgminio "github.com/lk2023060901/searchview-backend/internal/pkg/minio"
	pkgredis "github.com/lk2023060901/searchview-backend/internal/pkg/redis"
	"github.com/lk2023060901/searchview-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/searchview-backend/internal/server/middleware"
	"github.com/lk2023060901/searchview-backend/internal/views/client"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀, 如 SEARCHVIEW_SERVER_PORT
const EnvPrefix = "SEARCHVIEW"

type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Log      logger.Config     `mapstructure:"log"`
	Database database.Config   `mapstructure:"database"`
	Redis    pkgredis.Config   `mapstructure:"redis"`
	MinIO    pkgminio.Config   `mapstructure:"minio"`
	Backend  client.Config     `mapstructure:"backend"`
	Pool     workerpool.Config `mapstructure:"pool"`
	Views    ViewsConfig       `mapstructure:"views"`

	RateLimit middleware.RateLimiterConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 监听地址
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type ViewsConfig struct {
	SnapshotTTL     time.Duration `mapstructure:"snapshot_ttl"`     // 快照在 Redis 中的过期时间, 0 不过期
	StreamKeepAlive time.Duration `mapstructure:"stream_keepalive"` // SSE 心跳间隔
	ExecuteEnabled  bool          `mapstructure:"execute_enabled"`  // 是否启用后端轮询
}

// Default 返回全部默认配置, 配置文件和环境变量在此基础上覆盖
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ShutdownTimeout: 5 * time.Second,
		},
		Log:      *logger.DefaultConfig(),
		Database: *database.DefaultConfig(),
		Redis:    *pkgredis.DefaultConfig(),
		MinIO:    *pkgminio.DefaultConfig(),
		Backend:  *client.DefaultConfig(),
		Pool:     *workerpool.DefaultConfig(),
		Views: ViewsConfig{
			SnapshotTTL:     24 * time.Hour,
			StreamKeepAlive: 15 * time.Second,
			ExecuteEnabled:  true,
		},
		RateLimit: middleware.DefaultRateLimiterConfig(),
	}
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 校验各子配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis config: %w", err)
	}
	if err := c.MinIO.Validate(); err != nil {
		return fmt.Errorf("invalid minio config: %w", err)
	}
	if c.Views.ExecuteEnabled {
		if err := c.Backend.Validate(); err != nil {
			return fmt.Errorf("invalid backend config: %w", err)
		}
	}
	if c.Views.SnapshotTTL < 0 {
		return fmt.Errorf("views.snapshot_ttl must be >= 0")
	}
	return nil
}
