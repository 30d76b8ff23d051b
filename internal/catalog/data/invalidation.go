package data

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lk2023060901/file-catalog/internal/catalog/biz"
	"github.com/lk2023060901/file-catalog/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-catalog/internal/pkg/redis"
	"go.uber.org/zap"
)

// RedisBus 通过 Redis Pub/Sub 在实例间广播目录变更
//
// Publish 先在本进程内分发，再发布到频道；Run 接收其他实例的消息并在本地分发。
type RedisBus struct {
	*biz.LocalBus
	client  *pkgredis.Client
	channel string
	origin  string
	logger  *logger.Logger
}

func NewRedisBus(client *pkgredis.Client, channel, origin string, log *logger.Logger) *RedisBus {
	if channel == "" {
		channel = "catalog:invalidations"
	}
	return &RedisBus{
		LocalBus: biz.NewLocalBus(),
		client:   client,
		channel:  channel,
		origin:   origin,
		logger:   log.Named("invalidation_bus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, inv biz.Invalidation) error {
	b.Dispatch(inv)

	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if _, err := b.client.Publish(ctx, b.channel, payload); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Run relays invalidations from other instances until ctx is done
func (b *RedisBus) Run(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("listening for catalog invalidations", zap.String("channel", b.channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var inv biz.Invalidation
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				b.logger.Warn("dropping malformed invalidation", zap.Error(err))
				continue
			}
			if inv.Origin == b.origin {
				continue
			}
			b.logger.Debug("remote invalidation received",
				zap.String("origin", inv.Origin),
				zap.Uint64("generation", inv.Generation),
			)
			b.Dispatch(inv)
		}
	}
}
