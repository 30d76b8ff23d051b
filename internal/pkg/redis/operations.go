package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Get 获取字符串值，key 不存在时返回 ErrNil
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
	}
	return val, err
}

// Incr 自增
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		c.logger.Error("redis incr failed", zap.String("key", key), zap.Error(err))
	}
	return n, err
}

// Publish 发布消息
func (c *Client) Publish(ctx context.Context, channel string, message any) (int64, error) {
	n, err := c.rdb.Publish(ctx, channel, message).Result()
	if err != nil {
		c.logger.Error("redis publish failed", zap.String("channel", channel), zap.Error(err))
		return 0, err
	}
	c.logger.Debug("redis message published", zap.String("channel", channel), zap.Int64("receivers", n))
	return n, nil
}

// Subscribe 订阅频道，调用方负责关闭返回的 PubSub
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channels...)
}

// RunScript 执行 Lua 脚本，优先使用 EVALSHA
func (c *Client) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	res, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis script failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return res, err
}
