package scheduler

import (
	"context"
	"sync"
	"time"
)

// LocalLocker 进程内同步锁，单实例部署无 Redis 时使用。
// TTL 过期后锁自动失效，语义与 Redis SET NX 对齐。
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewLocalLocker 创建进程内同步锁。
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]time.Time)}
}

// TryLock 尝试获取账户锁，已被持有且未过期时返回 false。
func (l *LocalLocker) TryLock(_ context.Context, accountID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expiry, held := l.locks[accountID]; held && now.Before(expiry) {
		return false, nil
	}
	l.locks[accountID] = now.Add(ttl)
	return true, nil
}

// Unlock 释放账户锁。
func (l *LocalLocker) Unlock(_ context.Context, accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, accountID)
	return nil
}
