package workerpool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolBusy   = errors.New("worker pool is overloaded")
)

// Config Worker Pool 配置
type Config struct {
	Workers          int           `mapstructure:"workers"`            // worker 数量
	MaxBlockingTasks int           `mapstructure:"max_blocking_tasks"` // 等待中的最大任务数，0 表示不限制
	ExpiryDuration   time.Duration `mapstructure:"expiry_duration"`    // 空闲 worker 回收间隔
	ReleaseTimeout   time.Duration `mapstructure:"release_timeout"`    // 关闭时等待任务完成的时间
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:          16,
		MaxBlockingTasks: 1000,
		ExpiryDuration:   time.Minute,
		ReleaseTimeout:   10 * time.Second,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64
	Completed int64
	Failed    int64
	Running   int
	Free      int
}

// Pool 基于 ants 的 Worker Pool
type Pool struct {
	pool   *ants.Pool
	config *Config
	logger *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("workerpool: workers must be > 0, got %d", config.Workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{config: config, logger: logger}

	opts := []ants.Option{
		ants.WithPanicHandler(func(v any) {
			p.failed.Add(1)
			logger.Error("worker panic", zap.Any("error", v))
		}),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
	}
	if config.ExpiryDuration > 0 {
		opts = append(opts, ants.WithExpiryDuration(config.ExpiryDuration))
	}

	antsPool, err := ants.NewPool(config.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool
	return p, nil
}

// Submit 提交任务。没有空闲 worker 时阻塞等待；
// 等待者已达 MaxBlockingTasks 时返回 ErrPoolBusy，关闭后返回 ErrPoolClosed
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)
	err := p.pool.Submit(func() {
		task()
		p.completed.Add(1)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolClosed):
		p.failed.Add(1)
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		p.failed.Add(1)
		return ErrPoolBusy
	default:
		p.failed.Add(1)
		return err
	}
}

// Stats 统计信息快照
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Running:   p.pool.Running(),
		Free:      p.pool.Free(),
	}
}

// Shutdown 关闭，等待运行中的任务直至 ReleaseTimeout
func (p *Pool) Shutdown() {
	timeout := p.config.ReleaseTimeout
	if timeout <= 0 {
		p.pool.Release()
		return
	}
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		p.logger.Warn("worker pool release timed out", zap.Duration("timeout", timeout), zap.Error(err))
	}
}
