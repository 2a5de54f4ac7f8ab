package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool is full")
)

// TaskResult 任务结果
type TaskResult struct {
	Data  interface{}
	Error error
}

// Config Worker Pool 配置
type Config struct {
	Workers          int           `mapstructure:"workers"`            // worker 数量
	MaxBlockingTasks int           `mapstructure:"max_blocking_tasks"` // 等待队列上限, 0 不限制
	Nonblocking      bool          `mapstructure:"nonblocking"`        // 池满时直接返回 ErrPoolFull
	ExpiryDuration   time.Duration `mapstructure:"expiry_duration"`    // 空闲 worker 回收时间
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:          8,
		MaxBlockingTasks: 256,
		ExpiryDuration:   10 * time.Second,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64 // 已提交
	Completed int64 // 已完成
	Failed    int64 // 失败
	Running   int64 // 运行中
}

type counters struct {
	mu sync.Mutex
	Statistics
}

func (c *counters) update(fn func(s *Statistics)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.Statistics)
}

func (c *counters) get() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Statistics
}

// Pool wraps an ants pool with task accounting and result delivery.
type Pool struct {
	pool   *ants.Pool
	config *Config
	stats  counters

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("invalid worker count: %d", config.Workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []ants.Option{
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(err interface{}) {
			logger.Error("worker panic", zap.Any("error", err))
		}),
	}
	if config.ExpiryDuration > 0 {
		opts = append(opts, ants.WithExpiryDuration(config.ExpiryDuration))
	}

	antsPool, err := ants.NewPool(config.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		pool:   antsPool,
		config: config,
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	default:
	}

	p.stats.update(func(s *Statistics) { s.Submitted++ })

	err := p.pool.Submit(func() {
		p.stats.update(func(s *Statistics) { s.Running++ })
		defer p.stats.update(func(s *Statistics) {
			s.Running--
			s.Completed++
		})
		task()
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		err = ErrPoolFull
	case errors.Is(err, ants.ErrPoolClosed):
		err = ErrPoolClosed
	}

	p.stats.update(func(s *Statistics) { s.Failed++ })
	return err
}

// SubmitWithResult 提交任务并获取结果
// 提交失败时通道中直接返回错误
func (p *Pool) SubmitWithResult(task func() (interface{}, error)) <-chan TaskResult {
	resultCh := make(chan TaskResult, 1)

	err := p.Submit(func() {
		data, err := task()
		if err != nil {
			p.stats.update(func(s *Statistics) { s.Failed++ })
		}
		resultCh <- TaskResult{Data: data, Error: err}
		close(resultCh)
	})
	if err != nil {
		resultCh <- TaskResult{Error: err}
		close(resultCh)
	}

	return resultCh
}

// Running 获取运行中的 worker 数量
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Free 获取空闲 worker 数量
func (p *Pool) Free() int {
	return p.pool.Free()
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return p.stats.get()
}

// Shutdown 关闭, 等待运行中的任务完成直到超时
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.cancel()
	if timeout <= 0 {
		p.pool.Release()
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}
