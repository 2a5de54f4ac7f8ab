package client

import (
	"errors"
	"net/url"
	"time"
)

// Config 搜索后端配置
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`       // 单次请求超时
	MaxRetries   int           `mapstructure:"max_retries"`   // 包含首次请求
	RetryBackoff time.Duration `mapstructure:"retry_backoff"` // 首次重试等待, 之后翻倍

	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollBurst    int           `mapstructure:"poll_burst"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"` // 单个搜索的轮询上限
	Concurrency  int           `mapstructure:"concurrency"`  // RunMany 并发数
}

// DefaultConfig returns the default backend configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "http://localhost:9000",
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
		PollInterval: time.Second,
		PollBurst:    1,
		PollTimeout:  5 * time.Minute,
		Concurrency:  4,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("backend base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("backend base url must be absolute")
	}
	if c.MaxRetries < 1 {
		return errors.New("backend max retries must be at least 1")
	}
	if c.PollInterval <= 0 {
		return errors.New("backend poll interval must be positive")
	}
	return nil
}
