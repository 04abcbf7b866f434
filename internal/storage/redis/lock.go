package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"helpdesk/backend/internal/config"
)

// SyncLocker 提供每账户同步互斥。
//
// 调度器的 tick 可能在上一轮未结束时到来；SET NX + TTL
// 让后到的 tick 直接跳过仍在同步中的账户。TTL 兜底进程崩溃
// 后锁不被永久持有。
type SyncLocker struct {
	rdb *goredis.Client
	log *zap.Logger
}

// NewSyncLocker 创建 Redis 同步锁。
func NewSyncLocker(cfg *config.RedisConfig, log *zap.Logger) (*SyncLocker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("connected to Redis",
		zap.String("address", cfg.Address),
		zap.Int("db", cfg.DB),
	)

	return &SyncLocker{rdb: rdb, log: log}, nil
}

func lockKey(accountID string) string {
	return "helpdesk:sync-lock:" + accountID
}

// TryLock 尝试获取账户同步锁，已被持有时返回 false。
func (l *SyncLocker) TryLock(ctx context.Context, accountID string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(accountID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire sync lock: %w", err)
	}
	return ok, nil
}

// Unlock 释放账户同步锁。
func (l *SyncLocker) Unlock(ctx context.Context, accountID string) error {
	return l.rdb.Del(ctx, lockKey(accountID)).Err()
}

// Health 存活检查。
func (l *SyncLocker) Health(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close 关闭 Redis 连接。
func (l *SyncLocker) Close() error {
	return l.rdb.Close()
}
