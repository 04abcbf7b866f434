package imap

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"helpdesk/backend/internal/domain"
)

// Manager 维护每账户一条长连接 IMAP 会话。
//
// 会话跨同步周期复用；复用前先做存活探测，探测失败则丢弃重拨。
// 每账户带一个重拨限速器，防止账户凭证失效时在每个 tick 上
// 反复冲击邮件服务器。
type Manager struct {
	dial Dialer
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// sessionEntry 单账户的会话槽位。
// entry 级别的互斥保证同一账户同一时刻只有一个持有者，
// 不同账户的连接建立互不阻塞。
type sessionEntry struct {
	mu      sync.Mutex
	session MailSession
	limiter *rate.Limiter
}

// NewManager 创建会话管理器。
func NewManager(dial Dialer, log *zap.Logger) *Manager {
	return &Manager{
		dial:     dial,
		log:      log,
		sessions: make(map[string]*sessionEntry),
	}
}

// Acquire 为账户取得一条可用会话，必要时重拨。
// 调用方用完必须 Release；会话不可用时改调 Invalidate。
func (m *Manager) Acquire(ctx context.Context, account *domain.Account) (MailSession, error) {
	entry := m.entry(account.ID)
	entry.mu.Lock()

	if entry.session != nil {
		if err := entry.session.Check(ctx); err == nil {
			return entry.session, nil
		}
		m.log.Warn("cached IMAP session is stale, reconnecting",
			zap.String("account_id", account.ID),
			zap.String("email", account.Email),
		)
		_ = entry.session.Close()
		entry.session = nil
	}

	if !entry.limiter.Allow() {
		entry.mu.Unlock()
		return nil, &ConnectionError{
			AccountID: account.ID,
			Email:     account.Email,
			Cause:     errReconnectThrottled,
		}
	}

	session, err := m.dial(ctx, account)
	if err != nil {
		entry.mu.Unlock()
		return nil, err
	}

	m.log.Info("IMAP session established",
		zap.String("account_id", account.ID),
		zap.String("email", account.Email),
		zap.String("host", account.Host),
	)
	entry.session = session
	return session, nil
}

// Release 归还账户会话，连接保持打开供下个周期复用。
func (m *Manager) Release(accountID string) {
	entry := m.entry(accountID)
	entry.mu.Unlock()
}

// Invalidate 关闭并丢弃账户会话，随后归还槽位。
// 同步中途发现连接断开时调用，下个周期重拨。
func (m *Manager) Invalidate(accountID string) {
	entry := m.entry(accountID)
	if entry.session != nil {
		_ = entry.session.Close()
		entry.session = nil
	}
	entry.mu.Unlock()
}

// Close 关闭所有缓存会话，进程退出时调用。
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.sessions {
		entry.mu.Lock()
		if entry.session != nil {
			_ = entry.session.Close()
			entry.session = nil
		}
		entry.mu.Unlock()
		delete(m.sessions, id)
	}
}

func (m *Manager) entry(accountID string) *sessionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[accountID]
	if !ok {
		// 每分钟最多 2 次重拨，突发允许 3 次
		entry = &sessionEntry{limiter: rate.NewLimiter(rate.Limit(2.0/60.0), 3)}
		m.sessions[accountID] = entry
	}
	return entry
}
